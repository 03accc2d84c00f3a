package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/metrics"
)

const (
	defaultQueueSize   = 256
	defaultHistorySize = 1000
	pollInterval       = time.Second
)

// Broker ferries point-to-point messages between agents, independent
// of workflow execution. Sends are fire-and-forget; a single delivery
// loop processes one message at a time, giving FIFO-per-broker
// ordering. Delivered messages land in a bounded history buffer with
// oldest-first eviction.
type Broker struct {
	mu       sync.RWMutex
	handlers map[string]agents.Handler
	history  []agents.Message

	queue       chan agents.Message
	historySize int
	logger      *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Option tunes broker construction.
type Option func(*Broker)

// WithQueueSize sets the pending-message queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queue = make(chan agents.Message, n)
		}
	}
}

// WithHistorySize caps the delivered-history buffer.
func WithHistorySize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.historySize = n
		}
	}
}

// New creates a broker. Call Start to begin delivery.
func New(logger *zap.Logger, opts ...Option) *Broker {
	b := &Broker{
		handlers:    make(map[string]agents.Handler),
		queue:       make(chan agents.Message, defaultQueueSize),
		historySize: defaultHistorySize,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterAgent adds an agent to the receiver table.
func (b *Broker) RegisterAgent(agentID string, handler agents.Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[agentID] = handler
	b.mu.Unlock()
}

// DeregisterAgent removes an agent's delivery route.
func (b *Broker) DeregisterAgent(agentID string) {
	b.mu.Lock()
	delete(b.handlers, agentID)
	b.mu.Unlock()
}

// Send enqueues a message for asynchronous delivery. It never blocks:
// when the queue is full the message is dropped and the event logged,
// matching the fire-and-forget contract.
func (b *Broker) Send(msg agents.Message) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case b.queue <- msg:
	default:
		metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
		b.logger.Warn("Broker queue full, dropping message",
			zap.String("message_id", msg.ID),
			zap.String("receiver_id", msg.ReceiverID),
		)
	}
}

// Start launches the single-consumer delivery loop.
func (b *Broker) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.processLoop(ctx)
	})
}

// Stop halts delivery. Pending messages are discarded. Safe to call
// on a broker that was never started: consuming startOnce here means
// no delivery loop exists to close doneCh, so Stop closes it itself.
func (b *Broker) Stop() {
	b.startOnce.Do(func() { close(b.doneCh) })
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh
}

// processLoop dequeues one message at a time. A poll tick keeps the
// loop responsive to cancellation even when the queue stays empty.
func (b *Broker) processLoop(ctx context.Context) {
	defer close(b.doneCh)
	for {
		select {
		case msg := <-b.queue:
			b.deliver(ctx, msg)
		case <-time.After(pollInterval):
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// deliver invokes the receiver's handler. An unknown receiver is a
// logged drop, never an error back to the sender. A non-nil reply is
// re-enqueued so request/reply chains proceed without the sender
// blocking.
func (b *Broker) deliver(ctx context.Context, msg agents.Message) {
	b.mu.RLock()
	handler, ok := b.handlers[msg.ReceiverID]
	b.mu.RUnlock()

	if !ok {
		metrics.MessagesDropped.WithLabelValues("unknown_receiver").Inc()
		b.logger.Warn("Cannot deliver message to unknown agent",
			zap.String("message_id", msg.ID),
			zap.String("receiver_id", msg.ReceiverID),
		)
		return
	}

	reply, err := handler.HandleMessage(ctx, msg)
	if err != nil {
		b.logger.Warn("Message handler failed",
			zap.String("message_id", msg.ID),
			zap.String("receiver_id", msg.ReceiverID),
			zap.Error(err),
		)
	}

	b.appendHistory(msg)
	metrics.MessagesDelivered.Inc()

	if reply != nil {
		if reply.ResponseTo == "" {
			reply.ResponseTo = msg.ID
		}
		b.Send(*reply)
	}
}

func (b *Broker) appendHistory(msg agents.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, msg)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	metrics.BrokerHistorySize.Set(float64(len(b.history)))
}

// History returns a copy of the delivered-message buffer, oldest first.
func (b *Broker) History() []agents.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]agents.Message, len(b.history))
	copy(out, b.history)
	return out
}

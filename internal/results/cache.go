package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/workflows"
)

// ErrNotFound is returned when no cached result exists for an id.
var ErrNotFound = errors.New("workflow result not found")

const defaultTTL = 24 * time.Hour

// Cache keeps recent workflow results in Redis so callers can fetch
// an outcome shortly after execution without hitting the history
// database.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(addr string, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: defaultTTL, logger: logger}, nil
}

// NewWithClient wraps an existing client; used by tests with miniredis.
func NewWithClient(client *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{client: client, ttl: defaultTTL, logger: logger}
}

// Put stores a workflow snapshot under its id with the cache TTL.
func (c *Cache) Put(ctx context.Context, snap workflows.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal workflow snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(snap.WorkflowID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache workflow result: %w", err)
	}
	return nil
}

// Get fetches a cached workflow snapshot by id.
func (c *Cache) Get(ctx context.Context, workflowID string) (*workflows.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key(workflowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("get workflow result: %w", err)
	}

	var snap workflows.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal workflow snapshot: %w", err)
	}
	return &snap, nil
}

// Close releases the client.
func (c *Cache) Close() error { return c.client.Close() }

func (c *Cache) key(workflowID string) string {
	return fmt.Sprintf("workflow:result:%s", workflowID)
}

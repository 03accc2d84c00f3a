package workflows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/registry"
	"github.com/finclick-ai/orchestrator/internal/scheduler"
	"github.com/finclick-ai/orchestrator/internal/workload"
)

// fakeAgent records the tasks it receives and delegates execution to fn.
type fakeAgent struct {
	mu    sync.Mutex
	tasks []agents.Task
	fn    func(ctx context.Context, task agents.Task) (agents.Result, error)
}

func (f *fakeAgent) ExecuteTask(ctx context.Context, task agents.Task) (agents.Result, error) {
	f.mu.Lock()
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, task)
	}
	return agents.Result{"agent": "fake"}, nil
}

func (f *fakeAgent) Status() agents.Status { return agents.StatusIdle }

func (f *fakeAgent) received() []agents.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]agents.Task, len(f.tasks))
	copy(out, f.tasks)
	return out
}

type engineFixture struct {
	registry *registry.Registry
	tracker  *workload.Tracker
	engine   *Engine
}

func newEngineFixture(t *testing.T, catalog *Catalog) *engineFixture {
	t.Helper()
	logger := zap.NewNop()
	reg := registry.New(logger)
	tracker := workload.NewTracker(logger)
	sched := scheduler.New(reg, tracker, logger)
	return &engineFixture{
		registry: reg,
		tracker:  tracker,
		engine:   NewEngine(catalog, sched, reg, tracker, logger),
	}
}

func (f *engineFixture) addAgent(t *testing.T, desc agents.Descriptor, fn func(ctx context.Context, task agents.Task) (agents.Result, error)) *fakeAgent {
	t.Helper()
	fake := &fakeAgent{fn: fn}
	require.NoError(t, f.registry.Register(desc, fake))
	f.tracker.Add(desc)
	return fake
}

func TestEngineRunsQuickAnalysis(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	f := newEngineFixture(t, catalog)

	extractor := f.addAgent(t, agents.Descriptor{ID: "extract-1", Category: agents.CategoryDataExtraction},
		func(ctx context.Context, task agents.Task) (agents.Result, error) {
			return agents.Result{"rows": 42}, nil
		})
	analyzer := f.addAgent(t, agents.Descriptor{ID: "fin-1", Category: agents.CategoryFinancialAnalysis}, nil)
	f.addAgent(t, agents.Descriptor{ID: "risk-1", Category: agents.CategoryRiskAssessment}, nil)
	reporter := f.addAgent(t, agents.Descriptor{ID: "report-1", Category: agents.CategoryReportGeneration},
		func(ctx context.Context, task agents.Task) (agents.Result, error) {
			return agents.Result{"summary": "all clear"}, nil
		})

	input := map[string]any{"company": "acme", "documents": []string{"balance_sheet.pdf"}}
	state := NewState(KindQuickAnalysis, input, nil)

	final, err := f.engine.Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, agents.Result{"summary": "all clear"}, final)
	assert.Equal(t, 4, state.CurrentStep())

	snap := state.Snapshot()
	assert.Equal(t, []string{"quick_data_extraction", "key_metrics", "risk_flags", "quick_summary"}, snap.IntermediateResults.Keys())
	assert.Equal(t, []string{"extract-1", "fin-1", "risk-1", "report-1"}, snap.ParticipatingAgents)

	// The entry step receives the workflow input; later steps receive
	// their declared predecessor results.
	require.Len(t, extractor.received(), 1)
	assert.Equal(t, input, extractor.received()[0].Input)
	assert.Equal(t, 10, extractor.received()[0].Priority)

	require.Len(t, analyzer.received(), 1)
	metricsTask := analyzer.received()[0]
	assert.Equal(t, "financial_analysis", metricsTask.Type)
	assert.Contains(t, metricsTask.Input, "quick_data_extraction")

	require.Len(t, reporter.received(), 1)
	assert.Contains(t, reporter.received()[0].Input, "key_metrics")
	assert.Contains(t, reporter.received()[0].Input, "risk_flags")

	// Workload counters return to zero once the run completes.
	for _, rec := range f.tracker.All() {
		assert.Equal(t, 0, rec.CurrentTasks, "agent %s", rec.AgentID)
	}
}

const fanoutCatalogYAML = `
workflows:
  - kind: quick_analysis
    steps:
      - name: extract
        category: data_extraction
      - fanout:
          - name: slow_branch
            category: liquidity_analysis
            inputs: [extract]
          - name: fast_branch
            category: profitability_analysis
            inputs: [extract]
      - name: summarize
        category: report_generation
        inputs: [slow_branch, fast_branch]
`

func TestEngineFanoutMergesInDeclarationOrder(t *testing.T) {
	catalog, err := LoadCatalog(strings.NewReader(fanoutCatalogYAML))
	require.NoError(t, err)
	f := newEngineFixture(t, catalog)

	f.addAgent(t, agents.Descriptor{ID: "extract-1", Category: agents.CategoryDataExtraction}, nil)
	f.addAgent(t, agents.Descriptor{
		ID: "liquidity-1", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"liquidity"},
	}, func(ctx context.Context, task agents.Task) (agents.Result, error) {
		time.Sleep(30 * time.Millisecond) // finishes after its sibling
		return agents.Result{"ratio": 1.8}, nil
	})
	f.addAgent(t, agents.Descriptor{
		ID: "profit-1", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"profitability"},
	}, func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{"margin": 0.22}, nil
	})
	reporter := f.addAgent(t, agents.Descriptor{ID: "report-1", Category: agents.CategoryReportGeneration}, nil)

	state := NewState(KindQuickAnalysis, nil, nil)
	_, err = f.engine.Run(context.Background(), state)
	require.NoError(t, err)

	// Declaration order wins even though the fast branch finished first.
	assert.Equal(t, []string{"extract", "slow_branch", "fast_branch", "summarize"}, state.Snapshot().IntermediateResults.Keys())
	assert.Equal(t, 3, state.CurrentStep(), "a fanout group advances the step counter once")

	require.Len(t, reporter.received(), 1)
	joined := reporter.received()[0].Input
	assert.Equal(t, agents.Result{"ratio": 1.8}, joined["slow_branch"])
	assert.Equal(t, agents.Result{"margin": 0.22}, joined["fast_branch"])
}

func TestEngineFanoutSiblingFailureIsRecorded(t *testing.T) {
	catalog, err := LoadCatalog(strings.NewReader(fanoutCatalogYAML))
	require.NoError(t, err)
	f := newEngineFixture(t, catalog)

	f.addAgent(t, agents.Descriptor{ID: "extract-1", Category: agents.CategoryDataExtraction}, nil)
	f.addAgent(t, agents.Descriptor{
		ID: "liquidity-1", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"liquidity"},
	}, func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return nil, errors.New("ledger unavailable")
	})
	f.addAgent(t, agents.Descriptor{
		ID: "profit-1", Category: agents.CategoryFinancialAnalysis, Specializations: []string{"profitability"},
	}, func(ctx context.Context, task agents.Task) (agents.Result, error) {
		return agents.Result{"margin": 0.22}, nil
	})
	f.addAgent(t, agents.Descriptor{ID: "report-1", Category: agents.CategoryReportGeneration}, nil)

	state := NewState(KindQuickAnalysis, nil, nil)
	_, err = f.engine.Run(context.Background(), state)
	require.NoError(t, err, "a failed sibling must not abort the workflow")

	v, ok := state.Result("slow_branch")
	require.True(t, ok)
	failure, ok := v.(agents.Result)
	require.True(t, ok)
	assert.Equal(t, "failed", failure["status"])
	assert.Contains(t, failure["error"], "ledger unavailable")

	v, ok = state.Result("fast_branch")
	require.True(t, ok)
	assert.Equal(t, agents.Result{"margin": 0.22}, v)
}

func TestEngineSequentialFailureAborts(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	f := newEngineFixture(t, catalog)

	f.addAgent(t, agents.Descriptor{ID: "extract-1", Category: agents.CategoryDataExtraction}, nil)
	f.addAgent(t, agents.Descriptor{ID: "fin-1", Category: agents.CategoryFinancialAnalysis},
		func(ctx context.Context, task agents.Task) (agents.Result, error) {
			return nil, errors.New("model diverged")
		})
	f.addAgent(t, agents.Descriptor{ID: "risk-1", Category: agents.CategoryRiskAssessment}, nil)
	f.addAgent(t, agents.Descriptor{ID: "report-1", Category: agents.CategoryReportGeneration}, nil)

	state := NewState(KindQuickAnalysis, nil, nil)
	_, err = f.engine.Run(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step key_metrics")
	assert.Contains(t, err.Error(), "model diverged")

	assert.Equal(t, 1, state.CurrentStep())
	_, ok := state.Result("risk_flags")
	assert.False(t, ok, "steps after the failure must not run")
}

func TestEngineHonorsCancelledContext(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	f := newEngineFixture(t, catalog)
	f.addAgent(t, agents.Descriptor{ID: "extract-1", Category: agents.CategoryDataExtraction}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := NewState(KindQuickAnalysis, nil, nil)
	_, err = f.engine.Run(ctx, state)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, state.CurrentStep())
}

func TestEngineUnknownGraph(t *testing.T) {
	catalog, err := LoadCatalog(strings.NewReader(fanoutCatalogYAML))
	require.NoError(t, err)
	f := newEngineFixture(t, catalog)

	state := NewState(KindValuation, nil, nil)
	_, err = f.engine.Run(context.Background(), state)
	assert.Error(t, err)
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/agents"
	"github.com/finclick-ai/orchestrator/internal/registry"
	"github.com/finclick-ai/orchestrator/internal/workload"
)

type stubAgent struct {
	status agents.Status
}

func (s *stubAgent) ExecuteTask(ctx context.Context, task agents.Task) (agents.Result, error) {
	return agents.Result{"ok": true}, nil
}

func (s *stubAgent) Status() agents.Status { return s.status }

func newFixture(t *testing.T) (*registry.Registry, *workload.Tracker, *Scheduler) {
	t.Helper()
	reg := registry.New(zap.NewNop())
	tracker := workload.NewTracker(zap.NewNop())
	return reg, tracker, New(reg, tracker, zap.NewNop())
}

func register(t *testing.T, reg *registry.Registry, tracker *workload.Tracker, desc agents.Descriptor, status agents.Status) {
	t.Helper()
	require.NoError(t, reg.Register(desc, &stubAgent{status: status}))
	tracker.Add(desc)
}

func TestSelectPrefersSpecialist(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "generalist", Category: agents.CategoryFinancialAnalysis}, agents.StatusIdle)
	register(t, reg, tracker, agents.Descriptor{
		ID:              "specialist",
		Category:        agents.CategoryFinancialAnalysis,
		Specializations: []string{"liquidity"},
	}, agents.StatusIdle)

	id, err := sched.Select("liquidity_analysis")
	require.NoError(t, err)
	assert.Equal(t, "specialist", id)
}

func TestSelectWeighsLoad(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "busy", Category: agents.CategoryRiskAssessment}, agents.StatusWorking)
	register(t, reg, tracker, agents.Descriptor{ID: "free", Category: agents.CategoryRiskAssessment}, agents.StatusIdle)

	// Equal specialization and success rate; load breaks the tie.
	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.BeginTask("busy"))
	}

	id, err := sched.Select("risk_analysis")
	require.NoError(t, err)
	assert.Equal(t, "free", id)
}

func TestSelectWeighsSuccessRate(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "flaky", Category: agents.CategoryValidation}, agents.StatusIdle)
	register(t, reg, tracker, agents.Descriptor{ID: "solid", Category: agents.CategoryValidation}, agents.StatusIdle)

	for i := 0; i < 4; i++ {
		require.NoError(t, tracker.BeginTask("flaky"))
		tracker.FinishTask("flaky", time.Millisecond, false)
		require.NoError(t, tracker.BeginTask("solid"))
		tracker.FinishTask("solid", time.Millisecond, true)
	}

	id, err := sched.Select("validation")
	require.NoError(t, err)
	assert.Equal(t, "solid", id)
}

func TestSelectTieBreaksByID(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "b", Category: agents.CategoryMarketAnalysis}, agents.StatusIdle)
	register(t, reg, tracker, agents.Descriptor{ID: "a", Category: agents.CategoryMarketAnalysis}, agents.StatusIdle)

	// Identical candidates: the lowest id wins every time.
	for i := 0; i < 5; i++ {
		id, err := sched.Select("market_analysis")
		require.NoError(t, err)
		assert.Equal(t, "a", id)
	}
}

func TestSelectFallbackIdle(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "working", Category: agents.CategoryDataExtraction}, agents.StatusWorking)
	register(t, reg, tracker, agents.Descriptor{ID: "resting", Category: agents.CategoryDataExtraction}, agents.StatusIdle)

	// No agent scores for recommendation work, so any idle agent serves.
	id, err := sched.Select("recommendation_generation")
	require.NoError(t, err)
	assert.Equal(t, "resting", id)
}

func TestSelectFallbackLeastBusy(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "swamped", Category: agents.CategoryDataExtraction}, agents.StatusWorking)
	register(t, reg, tracker, agents.Descriptor{ID: "loaded", Category: agents.CategoryDataExtraction}, agents.StatusWorking)

	require.NoError(t, tracker.BeginTask("swamped"))
	require.NoError(t, tracker.BeginTask("swamped"))
	require.NoError(t, tracker.BeginTask("loaded"))

	id, err := sched.Select("recommendation_generation")
	require.NoError(t, err)
	assert.Equal(t, "loaded", id)
}

func TestSelectNeverFailsWithAgents(t *testing.T) {
	reg, tracker, sched := newFixture(t)
	register(t, reg, tracker, agents.Descriptor{ID: "only", Category: agents.CategoryReportGeneration}, agents.StatusWorking)

	// Even with no specialization match and no idle agent, selection
	// still yields the one registered agent.
	id, err := sched.Select("compliance_check")
	require.NoError(t, err)
	assert.Equal(t, "only", id)
}

func TestSelectEmptyRegistry(t *testing.T) {
	_, _, sched := newFixture(t)

	_, err := sched.Select("financial_analysis")
	assert.ErrorIs(t, err, ErrNoAgents)
}

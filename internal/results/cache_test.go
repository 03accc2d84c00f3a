package results

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finclick-ai/orchestrator/internal/workflows"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client, zap.NewNop()), mr
}

func sampleSnapshot() workflows.Snapshot {
	results := workflows.NewResults()
	results.Set("quick_data_extraction", map[string]any{"rows": 42.0})
	results.Set("key_metrics", map[string]any{"roe": 0.18})

	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	return workflows.Snapshot{
		WorkflowID:          "wf-123",
		WorkflowType:        workflows.KindQuickAnalysis,
		Status:              workflows.StatusCompleted,
		CurrentStep:         4,
		ParticipatingAgents: []string{"extract-1", "fin-1"},
		IntermediateResults: results,
		FinalResult:         map[string]any{"summary": "healthy"},
		StartedAt:           started,
		CompletedAt:         started.Add(time.Minute),
	}
}

func TestCachePutGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	snap := sampleSnapshot()

	require.NoError(t, cache.Put(ctx, snap))

	got, err := cache.Get(ctx, "wf-123")
	require.NoError(t, err)
	assert.Equal(t, snap.WorkflowID, got.WorkflowID)
	assert.Equal(t, workflows.StatusCompleted, got.Status)
	assert.Equal(t, snap.ParticipatingAgents, got.ParticipatingAgents)

	// Intermediate results come back in their original order.
	require.NotNil(t, got.IntermediateResults)
	assert.Equal(t, []string{"quick_data_extraction", "key_metrics"}, got.IntermediateResults.Keys())
}

func TestCacheGetMissing(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, sampleSnapshot()))
	assert.Greater(t, mr.TTL("workflow:result:wf-123"), time.Duration(0))

	mr.FastForward(25 * time.Hour)
	_, err := cache.Get(ctx, "wf-123")
	assert.ErrorIs(t, err, ErrNotFound)
}

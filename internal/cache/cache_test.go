package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"einvoice-analytics/pkg/types"
)

func TestMemoryCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	_, ok, err := mc.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Set(ctx, "k", []byte("v"), 0))
	value, ok, err := mc.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, mc.Delete(ctx, "k"))
	_, ok, err = mc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	require.NoError(t, mc.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, ok, err := mc.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Set(ctx, "gone", []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, 1, mc.Sweep())
}

func TestCoordinator_EntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	coord := NewCoordinator(NewMemoryCache(), time.Minute, nil)

	version := types.EntityVersion{
		Role:       types.RoleSI,
		Fields:     map[string]any{"status": "submitted", "amount": 1250.5},
		ModifiedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, coord.PutEntity(ctx, types.RoleSI, "invoice", "inv-1", version))

	restored, ok, err := coord.GetEntity(ctx, types.RoleSI, "invoice", "inv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RoleSI, restored.Role)
	assert.Equal(t, "submitted", restored.Fields["status"])

	// The APP copy is a separate namespace.
	_, ok, err = coord.GetEntity(ctx, types.RoleAPP, "invoice", "inv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	stats := coord.Snapshot()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestCoordinator_InvalidateCounts(t *testing.T) {
	ctx := context.Background()
	coord := NewCoordinator(NewMemoryCache(), time.Minute, nil)

	version := types.EntityVersion{Role: types.RoleAPP, Fields: map[string]any{"x": 1.0}, ModifiedAt: time.Now()}
	require.NoError(t, coord.PutEntity(ctx, types.RoleAPP, "invoice", "inv-2", version))
	require.NoError(t, coord.Invalidate(ctx, types.RoleAPP, ClassEntity, "invoice", "inv-2"))

	_, ok, err := coord.GetEntity(ctx, types.RoleAPP, "invoice", "inv-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), coord.Snapshot().Invalidations)
}

func TestAggregateKey_Deterministic(t *testing.T) {
	tr := types.TimeRange{
		Start: time.Unix(1700000000, 0),
		End:   time.Unix(1700003600, 0),
	}
	a := AggregateKey("m1", types.AggregationSum, tr, map[string]string{"b": "2", "a": "1"})
	b := AggregateKey("m1", types.AggregationSum, tr, map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b, "dimension order must not change the key")

	c := AggregateKey("m1", types.AggregationAverage, tr, nil)
	assert.NotEqual(t, a, c)
}

func TestDecodeFields(t *testing.T) {
	type invoiceState struct {
		Status      string    `json:"status"`
		Amount      float64   `json:"amount"`
		SubmittedAt time.Time `json:"submitted_at"`
	}

	fields := map[string]any{
		"status":       "transmitted",
		"amount":       900.25,
		"submitted_at": "2026-03-15T10:00:00Z",
	}

	var state invoiceState
	require.NoError(t, DecodeFields(fields, &state))
	assert.Equal(t, "transmitted", state.Status)
	assert.Equal(t, 900.25, state.Amount)
	assert.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), state.SubmittedAt)
}

package syncro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/pkg/types"
)

func twoVersions(older, newer map[string]any) []types.EntityVersion {
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	return []types.EntityVersion{
		{Role: types.RoleSI, Fields: older, ModifiedAt: base},
		{Role: types.RoleAPP, Fields: newer, ModifiedAt: base.Add(time.Hour)},
	}
}

func TestResolve_LastWriteWins(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)

	resolution, err := resolver.Resolve(context.Background(), types.SyncConflict{
		EntityKind: "metric",
		EntityID:   "m-1",
		Versions:   twoVersions(map[string]any{"value": 1}, map[string]any{"value": 2}),
	})
	require.NoError(t, err)
	require.NotNil(t, resolution.Winner)
	assert.Equal(t, types.RoleAPP, *resolution.Winner)
	assert.Equal(t, 2, resolution.Merged["value"])
	assert.False(t, resolution.Pending)
}

func TestResolve_FirstWriteWins(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)
	require.NoError(t, resolver.SetPolicy("ledger", types.PolicyFirstWriteWins))

	resolution, err := resolver.Resolve(context.Background(), types.SyncConflict{
		EntityKind: "ledger",
		EntityID:   "l-1",
		Versions:   twoVersions(map[string]any{"value": 1}, map[string]any{"value": 2}),
	})
	require.NoError(t, err)
	require.NotNil(t, resolution.Winner)
	assert.Equal(t, types.RoleSI, *resolution.Winner)
	assert.Equal(t, 1, resolution.Merged["value"])
}

func TestResolve_FieldMerge(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	conflict := types.SyncConflict{
		EntityKind: "taxpayer",
		EntityID:   "t-1",
		Versions: []types.EntityVersion{
			{
				Role:       types.RoleSI,
				Fields:     map[string]any{"name": "Acme Ltd", "tin": "123", "segment": "sme"},
				ModifiedAt: base,
				FieldTimes: map[string]time.Time{"segment": base.Add(2 * time.Hour)},
			},
			{
				Role:       types.RoleAPP,
				Fields:     map[string]any{"name": "ACME Limited", "segment": "enterprise", "status": "active"},
				ModifiedAt: base.Add(time.Hour),
			},
		},
	}

	resolution, err := resolver.Resolve(context.Background(), conflict)
	require.NoError(t, err)
	assert.Nil(t, resolution.Winner)
	// Newer version wins on plain overlap, per-field time beats version time.
	assert.Equal(t, "ACME Limited", resolution.Merged["name"])
	assert.Equal(t, "sme", resolution.Merged["segment"])
	// Union keeps fields present on only one side.
	assert.Equal(t, "123", resolution.Merged["tin"])
	assert.Equal(t, "active", resolution.Merged["status"])
}

func TestResolve_ManualQueuesAndResolves(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)
	ctx := context.Background()

	resolution, err := resolver.Resolve(ctx, types.SyncConflict{
		EntityKind: "invoice",
		EntityID:   "inv-9",
		Versions:   twoVersions(map[string]any{"total": 100}, map[string]any{"total": 120}),
	})
	require.NoError(t, err)
	assert.True(t, resolution.Pending)

	pending := resolver.PendingConflicts()
	require.Len(t, pending, 1)
	conflictID := pending[0].ConflictID

	// A role that contributed no version is rejected and the conflict stays
	// queued.
	_, err = resolver.ResolveManually(ctx, conflictID, types.RoleSystem)
	require.Error(t, err)
	assert.Len(t, resolver.PendingConflicts(), 1)

	manual, err := resolver.ResolveManually(ctx, conflictID, types.RoleSI)
	require.NoError(t, err)
	require.NotNil(t, manual.Winner)
	assert.Equal(t, types.RoleSI, *manual.Winner)
	assert.Equal(t, 100, manual.Merged["total"])
	assert.Empty(t, resolver.PendingConflicts())

	_, err = resolver.ResolveManually(ctx, "missing", types.RoleSI)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResolve_Validation(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), types.SyncConflict{
		EntityKind: "metric",
		EntityID:   "m-1",
		Versions:   []types.EntityVersion{{Role: types.RoleSI}},
	})
	assert.Equal(t, apperrors.ErrorCodeValidation, apperrors.CodeOf(err))

	_, err = NewConflictResolver(types.ResolutionPolicy("bogus"))
	assert.Error(t, err)

	assert.Error(t, resolver.SetPolicy("metric", types.ResolutionPolicy("bogus")))
}

func TestPolicyFor_Defaults(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)

	assert.Equal(t, types.PolicyManual, resolver.PolicyFor("invoice"))
	assert.Equal(t, types.PolicyFieldMerge, resolver.PolicyFor("taxpayer"))
	assert.Equal(t, types.PolicyLastWriteWins, resolver.PolicyFor("unknown_kind"))
}

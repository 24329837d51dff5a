package syncro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"einvoice-analytics/internal/cache"
	"einvoice-analytics/internal/notify"
	"einvoice-analytics/pkg/types"
)

func newTestChecker(t *testing.T, resolver *ConflictResolver) (*ConsistencyChecker, *cache.Coordinator) {
	t.Helper()
	coordinator := cache.NewCoordinator(cache.NewMemoryCache(), time.Minute, nil)
	return NewConsistencyChecker(coordinator, resolver, nil), coordinator
}

func putCopy(t *testing.T, coordinator *cache.Coordinator, role types.Role, kind, id string, fields map[string]any, at time.Time) {
	t.Helper()
	require.NoError(t, coordinator.PutEntity(context.Background(), role, kind, id, types.EntityVersion{
		Role:       role,
		Fields:     fields,
		ModifiedAt: at,
	}))
}

func TestCheckEntity_Consistent(t *testing.T) {
	checker, coordinator := newTestChecker(t, nil)
	now := time.Now().UTC()
	fields := map[string]any{"name": "Acme", "total": 100.0}
	putCopy(t, coordinator, types.RoleSI, "taxpayer", "t-1", fields, now)
	putCopy(t, coordinator, types.RoleAPP, "taxpayer", "t-1", fields, now)

	report, err := checker.CheckEntity(context.Background(), "taxpayer", "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConsistencyConsistent, report.State)
	assert.Empty(t, report.MismatchedFields)
	assert.Equal(t, report.Checksums["si"], report.Checksums["app"])
}

func TestCheckEntity_Mismatch(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)
	checker, coordinator := newTestChecker(t, resolver)

	now := time.Now().UTC()
	putCopy(t, coordinator, types.RoleSI, "taxpayer", "t-2",
		map[string]any{"name": "Acme", "segment": "sme"}, now)
	putCopy(t, coordinator, types.RoleAPP, "taxpayer", "t-2",
		map[string]any{"name": "Acme", "segment": "enterprise", "status": "active"}, now.Add(time.Minute))

	report, err := checker.CheckEntity(context.Background(), "taxpayer", "t-2")
	require.NoError(t, err)
	assert.Equal(t, types.ConsistencyMismatch, report.State)
	assert.Equal(t, []string{"segment", "status"}, report.MismatchedFields)

	// The mismatch was handed to the resolver (taxpayer kind merges fields).
	resolutions := resolver.Resolutions()
	require.Len(t, resolutions, 1)
	assert.Equal(t, types.PolicyFieldMerge, resolutions[0].Policy)
	assert.Equal(t, "enterprise", resolutions[0].Merged["segment"])
}

func TestCheckEntity_MissingCopy(t *testing.T) {
	checker, coordinator := newTestChecker(t, nil)
	putCopy(t, coordinator, types.RoleSI, "invoice", "inv-1",
		map[string]any{"total": 50.0}, time.Now().UTC())

	report, err := checker.CheckEntity(context.Background(), "invoice", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConsistencyMissingCopy, report.State)
	assert.Contains(t, report.Checksums, "si")
	assert.NotContains(t, report.Checksums, "app")
}

func TestCheckMany_Counters(t *testing.T) {
	checker, coordinator := newTestChecker(t, nil)
	now := time.Now().UTC()
	putCopy(t, coordinator, types.RoleSI, "taxpayer", "a", map[string]any{"x": 1.0}, now)
	putCopy(t, coordinator, types.RoleAPP, "taxpayer", "a", map[string]any{"x": 1.0}, now)
	putCopy(t, coordinator, types.RoleSI, "taxpayer", "b", map[string]any{"x": 1.0}, now)
	putCopy(t, coordinator, types.RoleAPP, "taxpayer", "b", map[string]any{"x": 2.0}, now)

	reports, err := checker.CheckMany(context.Background(), "taxpayer", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, types.ConsistencyConsistent, reports[0].State)
	assert.Equal(t, types.ConsistencyMismatch, reports[1].State)

	checks, mismatches := checker.Counters()
	assert.Equal(t, 2, checks)
	assert.Equal(t, 1, mismatches)
}

func TestSyncMonitor_Status(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)
	checker, _ := newTestChecker(t, resolver)
	recorder := notify.NewRecorder()
	monitor := NewSyncMonitor(resolver, checker, recorder, 2, nil)

	status := monitor.Status()
	assert.True(t, status.Healthy)
	assert.Zero(t, status.PendingConflicts)

	// Queue two manual conflicts to cross the alert threshold.
	for _, id := range []string{"inv-1", "inv-2"} {
		_, err := resolver.Resolve(context.Background(), types.SyncConflict{
			EntityKind: "invoice",
			EntityID:   id,
			Versions:   twoVersions(map[string]any{"v": 1}, map[string]any{"v": 2}),
		})
		require.NoError(t, err)
	}

	status = monitor.Status()
	assert.Equal(t, 2, status.PendingConflicts)
	assert.False(t, status.Healthy)
	assert.Greater(t, status.MaxLag, time.Duration(0))

	require.NoError(t, monitor.CheckAlerts(context.Background()))
	alerts := recorder.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "manual conflict backlog", alerts[0].Title)
}

func TestSyncMonitor_AlertCarriesDisputedAmount(t *testing.T) {
	resolver, err := NewConflictResolver(types.PolicyLastWriteWins)
	require.NoError(t, err)
	checker, _ := newTestChecker(t, resolver)
	recorder := notify.NewRecorder()
	monitor := NewSyncMonitor(resolver, checker, recorder, 2, nil)

	// Two invoices whose role copies disagree on the total: spreads of 40
	// and 10 naira. The totals travel as generic field maps and are decoded
	// back into typed records when the alert is built.
	_, err = resolver.Resolve(context.Background(), types.SyncConflict{
		EntityKind: "invoice",
		EntityID:   "inv-10",
		Versions: twoVersions(
			map[string]any{"total": 100.0, "status": "transmitted"},
			map[string]any{"total": 140.0, "status": "transmitted"}),
	})
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), types.SyncConflict{
		EntityKind: "invoice",
		EntityID:   "inv-11",
		Versions: twoVersions(
			map[string]any{"total": "25.0"},
			map[string]any{"total": 35.0}),
	})
	require.NoError(t, err)

	require.NoError(t, monitor.CheckAlerts(context.Background()))
	alerts := recorder.Alerts()
	require.Len(t, alerts, 1)
	assert.InDelta(t, 50.0, alerts[0].Data["disputed_amount"], 1e-9)
}

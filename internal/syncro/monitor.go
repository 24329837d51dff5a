package syncro

import (
	"context"
	"fmt"
	"math"
	"time"

	"einvoice-analytics/internal/cache"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/notify"
	"einvoice-analytics/pkg/types"
)

// SyncMonitor summarizes synchronization health and raises operator alerts
type SyncMonitor struct {
	resolver       *ConflictResolver
	checker        *ConsistencyChecker
	notifier       notify.Notifier
	logger         logging.Logger
	pendingAlertAt int
}

// NewSyncMonitor creates a monitor over the resolver and checker.
// pendingAlertAt is the queued-manual-conflict count above which the monitor
// alerts; zero disables the alert.
func NewSyncMonitor(resolver *ConflictResolver, checker *ConsistencyChecker, notifier notify.Notifier, pendingAlertAt int, logger logging.Logger) *SyncMonitor {
	if logger == nil {
		logger = logging.NewNoOp()
	}
	return &SyncMonitor{
		resolver:       resolver,
		checker:        checker,
		notifier:       notifier,
		logger:         logger.WithComponent("sync_monitor"),
		pendingAlertAt: pendingAlertAt,
	}
}

// Status gathers the current synchronization health view
func (m *SyncMonitor) Status() types.SyncStatus {
	pending := m.resolver.PendingConflicts()
	checks, mismatches := m.checker.Counters()

	status := types.SyncStatus{
		PendingConflicts:  len(pending),
		ResolvedConflicts: len(m.resolver.Resolutions()) - len(pending),
		ChecksRun:         checks,
		MismatchesFound:   mismatches,
		ObservedAt:        time.Now().UTC(),
	}
	if status.ResolvedConflicts < 0 {
		status.ResolvedConflicts = 0
	}
	if len(pending) > 0 {
		status.MaxLag = status.ObservedAt.Sub(pending[0].DetectedAt)
	}
	status.Healthy = m.pendingAlertAt <= 0 || status.PendingConflicts < m.pendingAlertAt
	return status
}

// CheckAlerts evaluates the health view and notifies on threshold breaches.
// Intended to run from a background loop.
func (m *SyncMonitor) CheckAlerts(ctx context.Context) error {
	status := m.Status()
	if status.Healthy || m.notifier == nil {
		return nil
	}
	return m.notifier.Notify(ctx, notify.Alert{
		Source:   "sync_monitor",
		Severity: types.SeverityWarning,
		Title:    "manual conflict backlog",
		Message: fmt.Sprintf("%d conflicts are waiting for operator review (oldest %s)",
			status.PendingConflicts, status.MaxLag.Round(time.Second)),
		Data: map[string]float64{
			"pending":         float64(status.PendingConflicts),
			"mismatches":      float64(status.MismatchesFound),
			"disputed_amount": disputedAmount(m.resolver.PendingConflicts()),
		},
	})
}

// invoiceCopy is the typed projection of one role's cached invoice fields
type invoiceCopy struct {
	Total  float64 `json:"total"`
	Status string  `json:"status"`
}

// disputedAmount sums the invoice total spread across pending conflicts, a
// rough measure of how much money the backlog is holding up. Conflict fields
// come back from the cache as generic maps; each copy is decoded into the
// typed projection before comparing totals.
func disputedAmount(pending []types.SyncConflict) float64 {
	var total float64
	for _, conflict := range pending {
		if conflict.EntityKind != "invoice" {
			continue
		}
		low, high := math.Inf(1), math.Inf(-1)
		for _, version := range conflict.Versions {
			var rec invoiceCopy
			if err := cache.DecodeFields(version.Fields, &rec); err != nil {
				continue
			}
			low = math.Min(low, rec.Total)
			high = math.Max(high, rec.Total)
		}
		if high > low {
			total += high - low
		}
	}
	return total
}

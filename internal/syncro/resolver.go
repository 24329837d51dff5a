// Package syncro implements the cross-role synchronization bookkeeping:
// conflict resolution between divergent SI and APP copies, cache-backed
// consistency checking, websocket state broadcasting, and sync health
// monitoring.
package syncro

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/pkg/types"
)

// resolutionHistoryCap bounds the retained resolution log
const resolutionHistoryCap = 1000

// ConflictResolver applies per-entity-kind policies to sync conflicts
type ConflictResolver struct {
	defaultPolicy types.ResolutionPolicy
	bus           *events.Bus
	tel           *telemetry.Telemetry
	logger        logging.Logger

	mu          sync.RWMutex
	policies    map[string]types.ResolutionPolicy
	pending     map[string]types.SyncConflict
	resolutions []types.ConflictResolution
}

// ResolverOption configures optional collaborators on the resolver
type ResolverOption func(*ConflictResolver)

// WithResolverBus attaches the event bus for sync.conflict notifications
func WithResolverBus(bus *events.Bus) ResolverOption {
	return func(r *ConflictResolver) { r.bus = bus }
}

// WithResolverTelemetry attaches the Prometheus instruments
func WithResolverTelemetry(tel *telemetry.Telemetry) ResolverOption {
	return func(r *ConflictResolver) { r.tel = tel }
}

// WithResolverLogger attaches a logger
func WithResolverLogger(logger logging.Logger) ResolverOption {
	return func(r *ConflictResolver) { r.logger = logger.WithComponent("conflict_resolver") }
}

// NewConflictResolver creates a resolver with the given fallback policy and
// the built-in per-entity-kind policy table
func NewConflictResolver(defaultPolicy types.ResolutionPolicy, opts ...ResolverOption) (*ConflictResolver, error) {
	if !defaultPolicy.Valid() {
		return nil, apperrors.NewValidation("conflict_resolver",
			fmt.Sprintf("invalid default policy: %s", defaultPolicy))
	}
	r := &ConflictResolver{
		defaultPolicy: defaultPolicy,
		logger:        logging.NewNoOp(),
		policies: map[string]types.ResolutionPolicy{
			// Invoice documents are legally binding once transmitted; a human
			// decides when copies disagree.
			"invoice":  types.PolicyManual,
			"taxpayer": types.PolicyFieldMerge,
			"customer": types.PolicyFieldMerge,
			"metric":   types.PolicyLastWriteWins,
			"report":   types.PolicyLastWriteWins,
		},
		pending: make(map[string]types.SyncConflict),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SetPolicy overrides the policy for an entity kind
func (r *ConflictResolver) SetPolicy(entityKind string, policy types.ResolutionPolicy) error {
	if !policy.Valid() {
		return apperrors.NewValidation("conflict_resolver",
			fmt.Sprintf("invalid policy: %s", policy))
	}
	r.mu.Lock()
	r.policies[entityKind] = policy
	r.mu.Unlock()
	return nil
}

// PolicyFor returns the effective policy for an entity kind
func (r *ConflictResolver) PolicyFor(entityKind string) types.ResolutionPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if policy, ok := r.policies[entityKind]; ok {
		return policy
	}
	return r.defaultPolicy
}

// Resolve applies the effective policy to a conflict. Manual-policy conflicts
// are queued and returned with Pending set.
func (r *ConflictResolver) Resolve(ctx context.Context, conflict types.SyncConflict) (types.ConflictResolution, error) {
	if err := conflict.Validate(); err != nil {
		return types.ConflictResolution{}, apperrors.NewValidation("conflict_resolver", err.Error())
	}
	if conflict.ConflictID == "" {
		conflict.ConflictID = "cfl_" + uuid.NewString()
	}
	if conflict.DetectedAt.IsZero() {
		conflict.DetectedAt = time.Now().UTC()
	}
	policy := r.PolicyFor(conflict.EntityKind)

	resolution := types.ConflictResolution{
		ConflictID: conflict.ConflictID,
		Policy:     policy,
		ResolvedAt: time.Now().UTC(),
	}
	switch policy {
	case types.PolicyLastWriteWins:
		winner := newestVersion(conflict.Versions)
		resolution.Winner = &winner.Role
		resolution.Merged = winner.Fields
	case types.PolicyFirstWriteWins:
		winner := oldestVersion(conflict.Versions)
		resolution.Winner = &winner.Role
		resolution.Merged = winner.Fields
	case types.PolicyFieldMerge:
		resolution.Merged = mergeFields(conflict.Versions)
	case types.PolicyManual:
		resolution.Pending = true
		r.mu.Lock()
		r.pending[conflict.ConflictID] = conflict
		r.mu.Unlock()
	default:
		return types.ConflictResolution{}, apperrors.NewValidation("conflict_resolver",
			fmt.Sprintf("unknown resolution policy: %s", policy))
	}

	r.record(resolution)
	if r.tel != nil {
		r.tel.SyncConflicts.Inc()
		r.tel.SyncResolutions.WithLabelValues(string(policy)).Inc()
	}
	if r.bus != nil {
		r.bus.Publish(events.TopicSyncConflict, map[string]any{
			"conflict_id": conflict.ConflictID,
			"entity_kind": conflict.EntityKind,
			"entity_id":   conflict.EntityID,
			"policy":      string(policy),
			"pending":     resolution.Pending,
		})
	}
	r.logger.InfoContext(ctx, "sync conflict processed",
		"conflict_id", conflict.ConflictID,
		"entity_kind", conflict.EntityKind,
		"policy", string(policy),
		"pending", resolution.Pending)
	return resolution, nil
}

// ResolveManually closes a queued manual conflict by naming the winning role
func (r *ConflictResolver) ResolveManually(ctx context.Context, conflictID string, winner types.Role) (types.ConflictResolution, error) {
	if !winner.Valid() {
		return types.ConflictResolution{}, apperrors.NewValidation("conflict_resolver",
			fmt.Sprintf("invalid winner role: %s", winner))
	}
	r.mu.Lock()
	conflict, ok := r.pending[conflictID]
	if ok {
		delete(r.pending, conflictID)
	}
	r.mu.Unlock()
	if !ok {
		return types.ConflictResolution{}, apperrors.NewNotFound("conflict_resolver", "pending conflict", conflictID)
	}

	var winning *types.EntityVersion
	for i := range conflict.Versions {
		if conflict.Versions[i].Role == winner {
			winning = &conflict.Versions[i]
		}
	}
	if winning == nil {
		// Requeue so the conflict is not lost on a bad operator choice.
		r.mu.Lock()
		r.pending[conflictID] = conflict
		r.mu.Unlock()
		return types.ConflictResolution{}, apperrors.NewValidation("conflict_resolver",
			fmt.Sprintf("conflict %s has no version from role %s", conflictID, winner))
	}

	resolution := types.ConflictResolution{
		ConflictID: conflictID,
		Policy:     types.PolicyManual,
		Winner:     &winning.Role,
		Merged:     winning.Fields,
		ResolvedAt: time.Now().UTC(),
	}
	r.record(resolution)
	if r.tel != nil {
		r.tel.SyncResolutions.WithLabelValues(string(types.PolicyManual)).Inc()
	}
	r.logger.InfoContext(ctx, "manual conflict resolved",
		"conflict_id", conflictID, "winner", string(winner))
	return resolution, nil
}

// PendingConflicts lists queued manual conflicts, oldest first
func (r *ConflictResolver) PendingConflicts() []types.SyncConflict {
	r.mu.RLock()
	out := make([]types.SyncConflict, 0, len(r.pending))
	for _, conflict := range r.pending {
		out = append(out, conflict)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}

// Resolutions returns a copy of the retained resolution log
func (r *ConflictResolver) Resolutions() []types.ConflictResolution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ConflictResolution, len(r.resolutions))
	copy(out, r.resolutions)
	return out
}

func (r *ConflictResolver) record(resolution types.ConflictResolution) {
	r.mu.Lock()
	r.resolutions = append(r.resolutions, resolution)
	if len(r.resolutions) > resolutionHistoryCap {
		r.resolutions = r.resolutions[len(r.resolutions)-resolutionHistoryCap:]
	}
	r.mu.Unlock()
}

func newestVersion(versions []types.EntityVersion) *types.EntityVersion {
	best := &versions[0]
	for i := 1; i < len(versions); i++ {
		if versions[i].ModifiedAt.After(best.ModifiedAt) {
			best = &versions[i]
		}
	}
	return best
}

func oldestVersion(versions []types.EntityVersion) *types.EntityVersion {
	best := &versions[0]
	for i := 1; i < len(versions); i++ {
		if versions[i].ModifiedAt.Before(best.ModifiedAt) {
			best = &versions[i]
		}
	}
	return best
}

// mergeFields unions all versions' fields. On overlap the field from the copy
// with the newer per-field time wins, falling back to the version's
// modification time when field times are absent.
func mergeFields(versions []types.EntityVersion) map[string]any {
	merged := make(map[string]any)
	times := make(map[string]time.Time)
	for _, version := range versions {
		for field, value := range version.Fields {
			at := version.ModifiedAt
			if ft, ok := version.FieldTimes[field]; ok {
				at = ft
			}
			if existing, ok := times[field]; !ok || at.After(existing) {
				merged[field] = value
				times[field] = at
			}
		}
	}
	return merged
}

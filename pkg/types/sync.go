package types

import (
	"errors"
	"fmt"
	"time"
)

// ResolutionPolicy is the closed set of conflict resolution strategies
type ResolutionPolicy string

const (
	// PolicyLastWriteWins keeps the copy with the newest modification time
	PolicyLastWriteWins ResolutionPolicy = "last_write_wins"
	// PolicyFirstWriteWins keeps the copy with the oldest modification time
	PolicyFirstWriteWins ResolutionPolicy = "first_write_wins"
	// PolicyFieldMerge unions the fields of both copies, newer field wins on overlap
	PolicyFieldMerge ResolutionPolicy = "field_merge"
	// PolicyManual queues the conflict for operator review
	PolicyManual ResolutionPolicy = "manual"
)

// Valid returns true if the policy is valid
func (rp ResolutionPolicy) Valid() bool {
	switch rp {
	case PolicyLastWriteWins, PolicyFirstWriteWins, PolicyFieldMerge, PolicyManual:
		return true
	}
	return false
}

// EntityVersion is one role's copy of a shared entity
type EntityVersion struct {
	Role       Role                 `json:"role"`
	Fields     map[string]any       `json:"fields"`
	ModifiedAt time.Time            `json:"modified_at"`
	FieldTimes map[string]time.Time `json:"field_times,omitempty"`
}

// SyncConflict records divergent SI/APP copies of the same entity
type SyncConflict struct {
	ConflictID string          `json:"conflict_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id"`
	Versions   []EntityVersion `json:"versions"`
	DetectedAt time.Time       `json:"detected_at"`
}

// Validate checks the conflict record is usable
func (sc *SyncConflict) Validate() error {
	if sc.EntityKind == "" || sc.EntityID == "" {
		return errors.New("conflict requires entity kind and id")
	}
	if len(sc.Versions) < 2 {
		return fmt.Errorf("conflict %s needs at least two versions", sc.ConflictID)
	}
	return nil
}

// ConflictResolution is the outcome of applying a policy to a conflict
type ConflictResolution struct {
	ConflictID string           `json:"conflict_id"`
	Policy     ResolutionPolicy `json:"policy"`
	Winner     *Role            `json:"winner,omitempty"`
	Merged     map[string]any   `json:"merged,omitempty"`
	Pending    bool             `json:"pending"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// ConsistencyState classifies a cross-role entity comparison
type ConsistencyState string

const (
	ConsistencyConsistent  ConsistencyState = "consistent"
	ConsistencyMismatch    ConsistencyState = "mismatch"
	ConsistencyMissingCopy ConsistencyState = "missing_copy"
)

// ConsistencyReport is the result of checking one entity across role caches
type ConsistencyReport struct {
	EntityKind       string            `json:"entity_kind"`
	EntityID         string            `json:"entity_id"`
	State            ConsistencyState  `json:"state"`
	MismatchedFields []string          `json:"mismatched_fields,omitempty"`
	Checksums        map[string]string `json:"checksums,omitempty"`
	CheckedAt        time.Time         `json:"checked_at"`
}

// SyncEventKind labels a state change broadcast to dashboards
type SyncEventKind string

const (
	SyncEventEntityUpdated    SyncEventKind = "entity_updated"
	SyncEventConflictDetected SyncEventKind = "conflict_detected"
	SyncEventConflictResolved SyncEventKind = "conflict_resolved"
	SyncEventCacheInvalidated SyncEventKind = "cache_invalidated"
)

// SyncEvent is a change notification distributed over the event bus and to
// connected websocket clients
type SyncEvent struct {
	EventID    string         `json:"event_id"`
	Kind       SyncEventKind  `json:"kind"`
	EntityKind string         `json:"entity_kind,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Role       Role           `json:"role,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SyncStatus is the monitor's view of synchronization health
type SyncStatus struct {
	PendingConflicts  int           `json:"pending_conflicts"`
	ResolvedConflicts int           `json:"resolved_conflicts"`
	ChecksRun         int           `json:"checks_run"`
	MismatchesFound   int           `json:"mismatches_found"`
	MaxLag            time.Duration `json:"max_lag"`
	Healthy           bool          `json:"healthy"`
	ObservedAt        time.Time     `json:"observed_at"`
}

package syncro

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"einvoice-analytics/internal/cache"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/pkg/types"
)

// ConsistencyChecker compares the SI and APP cached copies of shared entities
type ConsistencyChecker struct {
	coordinator *cache.Coordinator
	resolver    *ConflictResolver
	logger      logging.Logger

	mu         sync.Mutex
	checksRun  int
	mismatches int
}

// NewConsistencyChecker creates a checker over the cache coordinator. The
// resolver is optional; when present, mismatches are handed to it as
// conflicts.
func NewConsistencyChecker(coordinator *cache.Coordinator, resolver *ConflictResolver, logger logging.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = logging.NewNoOp()
	}
	return &ConsistencyChecker{
		coordinator: coordinator,
		resolver:    resolver,
		logger:      logger.WithComponent("consistency_checker"),
	}
}

// CheckEntity compares the two role copies of one entity. A missing copy on
// either side is reported, not treated as an error.
func (c *ConsistencyChecker) CheckEntity(ctx context.Context, entityKind, entityID string) (types.ConsistencyReport, error) {
	report := types.ConsistencyReport{
		EntityKind: entityKind,
		EntityID:   entityID,
		CheckedAt:  time.Now().UTC(),
		Checksums:  make(map[string]string, 2),
	}

	siCopy, siOK, err := c.coordinator.GetEntity(ctx, types.RoleSI, entityKind, entityID)
	if err != nil {
		return types.ConsistencyReport{}, err
	}
	appCopy, appOK, err := c.coordinator.GetEntity(ctx, types.RoleAPP, entityKind, entityID)
	if err != nil {
		return types.ConsistencyReport{}, err
	}

	c.mu.Lock()
	c.checksRun++
	c.mu.Unlock()

	if !siOK || !appOK {
		report.State = types.ConsistencyMissingCopy
		if siOK {
			report.Checksums[string(types.RoleSI)] = fieldsChecksum(siCopy.Fields)
		}
		if appOK {
			report.Checksums[string(types.RoleAPP)] = fieldsChecksum(appCopy.Fields)
		}
		return report, nil
	}

	report.Checksums[string(types.RoleSI)] = fieldsChecksum(siCopy.Fields)
	report.Checksums[string(types.RoleAPP)] = fieldsChecksum(appCopy.Fields)
	if report.Checksums[string(types.RoleSI)] == report.Checksums[string(types.RoleAPP)] {
		report.State = types.ConsistencyConsistent
		return report, nil
	}

	report.State = types.ConsistencyMismatch
	report.MismatchedFields = mismatchedFields(siCopy.Fields, appCopy.Fields)
	c.mu.Lock()
	c.mismatches++
	c.mu.Unlock()
	c.logger.WarnContext(ctx, "cross-role entity mismatch",
		"entity_kind", entityKind,
		"entity_id", entityID,
		"fields", len(report.MismatchedFields))

	if c.resolver != nil {
		conflict := types.SyncConflict{
			EntityKind: entityKind,
			EntityID:   entityID,
			Versions:   []types.EntityVersion{*siCopy, *appCopy},
			DetectedAt: report.CheckedAt,
		}
		if _, err := c.resolver.Resolve(ctx, conflict); err != nil {
			c.logger.Warn("mismatch resolution failed",
				"entity_kind", entityKind, "entity_id", entityID, "error", err.Error())
		}
	}
	return report, nil
}

// CheckMany runs CheckEntity over a batch and returns every report
func (c *ConsistencyChecker) CheckMany(ctx context.Context, entityKind string, entityIDs []string) ([]types.ConsistencyReport, error) {
	reports := make([]types.ConsistencyReport, 0, len(entityIDs))
	for _, id := range entityIDs {
		report, err := c.CheckEntity(ctx, entityKind, id)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Counters reports how many checks ran and how many found mismatches
func (c *ConsistencyChecker) Counters() (checks, mismatches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checksRun, c.mismatches
}

// fieldsChecksum hashes the field map deterministically by sorting keys
func fieldsChecksum(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := sha256.New()
	for _, key := range keys {
		fmt.Fprintf(hash, "%s=%v;", key, fields[key])
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// mismatchedFields lists fields missing from one side or differing in value
func mismatchedFields(si, app map[string]any) []string {
	seen := make(map[string]bool)
	var out []string
	for key, siValue := range si {
		appValue, ok := app[key]
		if !ok || fmt.Sprintf("%v", siValue) != fmt.Sprintf("%v", appValue) {
			out = append(out, key)
		}
		seen[key] = true
	}
	for key := range app {
		if !seen[key] {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

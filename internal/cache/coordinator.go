package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"einvoice-analytics/internal/logging"
	"einvoice-analytics/pkg/types"
)

// DataClass selects the TTL policy applied to a cached entity
type DataClass string

const (
	// ClassAggregate covers short-lived computed aggregates
	ClassAggregate DataClass = "aggregate"
	// ClassEntity covers role-owned entity snapshots shared for sync checks
	ClassEntity DataClass = "entity"
	// ClassReport covers rendered report payloads
	ClassReport DataClass = "report"
)

// Stats is the coordinator's bookkeeping counters
type Stats struct {
	Hits          int64     `json:"hits"`
	Misses        int64     `json:"misses"`
	Sets          int64     `json:"sets"`
	Invalidations int64     `json:"invalidations"`
	Errors        int64     `json:"errors"`
	ObservedAt    time.Time `json:"observed_at"`
}

// HitRate returns hits/(hits+misses), or 0 when nothing was read yet
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Coordinator wraps the cache service with role-namespaced keys, per-class
// TTL policy, and hit/miss bookkeeping. Both roles write through the same
// coordinator so the consistency checker can compare their copies.
type Coordinator struct {
	svc    Service
	logger logging.Logger

	mu    sync.Mutex
	stats Stats
	ttls  map[DataClass]time.Duration
}

// NewCoordinator creates a coordinator over the given cache service
func NewCoordinator(svc Service, defaultTTL time.Duration, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNoOp()
	}
	return &Coordinator{
		svc:    svc,
		logger: logger.WithComponent("cache_coordinator"),
		ttls: map[DataClass]time.Duration{
			ClassAggregate: defaultTTL,
			ClassEntity:    30 * time.Minute,
			ClassReport:    10 * time.Minute,
		},
	}
}

// Key builds the role-namespaced cache key
func Key(role types.Role, class DataClass, kind, id string) string {
	return fmt.Sprintf("%s:%s:%s:%s", role, class, kind, id)
}

// PutEntity stores one role's copy of an entity
func (c *Coordinator) PutEntity(ctx context.Context, role types.Role, kind, id string, version types.EntityVersion) error {
	err := SetJSON(ctx, c.svc, Key(role, ClassEntity, kind, id), version, c.ttls[ClassEntity])
	c.count(func(s *Stats) {
		if err != nil {
			s.Errors++
		} else {
			s.Sets++
		}
	})
	return err
}

// GetEntity fetches one role's copy of an entity
func (c *Coordinator) GetEntity(ctx context.Context, role types.Role, kind, id string) (*types.EntityVersion, bool, error) {
	var version types.EntityVersion
	ok, err := GetJSON(ctx, c.svc, Key(role, ClassEntity, kind, id), &version)
	c.count(func(s *Stats) {
		switch {
		case err != nil:
			s.Errors++
		case ok:
			s.Hits++
		default:
			s.Misses++
		}
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return &version, true, nil
}

// PutAggregate caches a computed aggregate under its query key
func (c *Coordinator) PutAggregate(ctx context.Context, key string, aggregate types.AggregatedMetric) error {
	err := SetJSON(ctx, c.svc, key, aggregate, c.ttls[ClassAggregate])
	c.count(func(s *Stats) {
		if err != nil {
			s.Errors++
		} else {
			s.Sets++
		}
	})
	return err
}

// GetAggregate fetches a cached aggregate
func (c *Coordinator) GetAggregate(ctx context.Context, key string) (*types.AggregatedMetric, bool, error) {
	var aggregate types.AggregatedMetric
	ok, err := GetJSON(ctx, c.svc, key, &aggregate)
	c.count(func(s *Stats) {
		switch {
		case err != nil:
			s.Errors++
		case ok:
			s.Hits++
		default:
			s.Misses++
		}
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return &aggregate, true, nil
}

// Invalidate removes one role's copy of an entity
func (c *Coordinator) Invalidate(ctx context.Context, role types.Role, class DataClass, kind, id string) error {
	err := c.svc.Delete(ctx, Key(role, class, kind, id))
	c.count(func(s *Stats) {
		if err != nil {
			s.Errors++
		} else {
			s.Invalidations++
		}
	})
	return err
}

// DecodeFields decodes a generic cached field map into a typed struct.
// Sync payloads arrive as map[string]any after JSON round-tripping; this is
// the one place that bridges them back to typed records.
func DecodeFields(fields map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("build field decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return fmt.Errorf("decode cached fields: %w", err)
	}
	return nil
}

// AggregateKey builds a deterministic cache key for an aggregation query
func AggregateKey(metricID string, method types.AggregationMethod, tr types.TimeRange, dimensions map[string]string) string {
	key := fmt.Sprintf("system:%s:agg:%s:%s:%d:%d", ClassAggregate, metricID, method,
		tr.Start.Unix(), tr.End.Unix())
	if len(dimensions) > 0 {
		names := make([]string, 0, len(dimensions))
		for name := range dimensions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			key += fmt.Sprintf(":%s=%s", name, dimensions[name])
		}
	}
	return key
}

// Snapshot returns a copy of the current counters
func (c *Coordinator) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.ObservedAt = time.Now().UTC()
	return stats
}

// LogStats emits the current counters; wired to the cache-stats loop
func (c *Coordinator) LogStats(_ context.Context) error {
	stats := c.Snapshot()
	payload, _ := json.Marshal(stats)
	c.logger.Info("cache statistics", "stats", string(payload), "hit_rate", stats.HitRate())
	return nil
}

func (c *Coordinator) count(update func(*Stats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// Package metrics implements the unified metrics store: metric definition
// registry, bounded in-memory value retention, windowed aggregation, scope
// snapshots, and the bucketed series the trend analyzer consumes.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"einvoice-analytics/internal/cache"
	apperrors "einvoice-analytics/internal/errors"
	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/pkg/types"
)

// Store owns all metric state. Every entity it hands out is a copy; callers
// never alias its internal slices.
type Store struct {
	capacity       int
	refreshEvery   int
	snapshotWindow time.Duration
	confidenceAt   int

	coordinator *cache.Coordinator
	bus         *events.Bus
	tel         *telemetry.Telemetry
	logger      logging.Logger

	mu          sync.RWMutex
	definitions map[string]types.MetricDefinition
	values      map[string][]types.MetricValue
	inserts     map[string]int
}

// Option configures optional collaborators on the store
type Option func(*Store)

// WithCoordinator attaches the cache coordinator for aggregate caching
func WithCoordinator(coordinator *cache.Coordinator) Option {
	return func(s *Store) { s.coordinator = coordinator }
}

// WithBus attaches the event bus for metric.recorded notifications
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithTelemetry attaches the Prometheus instruments
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Store) { s.tel = tel }
}

// WithLogger attaches a logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) { s.logger = logger.WithComponent("metrics_store") }
}

// WithConfidenceFullAt sets the sample count at which aggregate confidence
// reaches 1.0. Non-positive values keep the default of 100.
func WithConfidenceFullAt(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.confidenceAt = n
		}
	}
}

// NewStore creates a metrics store. capacity bounds the per-metric value
// ring; refreshEvery controls how often an insert triggers an async
// aggregation refresh.
func NewStore(capacity, refreshEvery int, snapshotWindow time.Duration, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = 10000
	}
	if refreshEvery <= 0 {
		refreshEvery = 100
	}
	if snapshotWindow <= 0 {
		snapshotWindow = 5 * time.Minute
	}
	s := &Store{
		capacity:       capacity,
		refreshEvery:   refreshEvery,
		snapshotWindow: snapshotWindow,
		confidenceAt:   100,
		logger:         logging.NewNoOp(),
		definitions:    make(map[string]types.MetricDefinition),
		values:         make(map[string][]types.MetricValue),
		inserts:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterDefinition stores or overwrites a definition by metric id.
// Idempotent: re-registering the same definition is a no-op overwrite.
func (s *Store) RegisterDefinition(def types.MetricDefinition) error {
	if err := def.Validate(); err != nil {
		return apperrors.NewValidation("metrics_store", err.Error())
	}
	if def.RegisteredAt.IsZero() {
		def.RegisteredAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.definitions[def.MetricID] = def
	s.mu.Unlock()
	s.logger.Debug("metric definition registered", "metric_id", def.MetricID, "type", string(def.Type))
	return nil
}

// Definition returns a registered definition by id
func (s *Store) Definition(metricID string) (types.MetricDefinition, error) {
	s.mu.RLock()
	def, ok := s.definitions[metricID]
	s.mu.RUnlock()
	if !ok {
		return types.MetricDefinition{}, apperrors.NewNotFound("metrics_store", "metric", metricID)
	}
	return def, nil
}

// MetricIDs lists all registered metric ids, sorted
func (s *Store) MetricIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.definitions))
	for id := range s.definitions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// RecordValue appends an observation to the metric's bounded ring. Every
// refreshEvery-th insert fires an async aggregation refresh for the metric.
func (s *Store) RecordValue(ctx context.Context, value types.MetricValue) error {
	if err := value.Validate(); err != nil {
		return apperrors.NewValidation("metrics_store", err.Error())
	}

	s.mu.Lock()
	if _, ok := s.definitions[value.MetricID]; !ok {
		s.mu.Unlock()
		return apperrors.NewNotFound("metrics_store", "metric", value.MetricID)
	}
	ring := append(s.values[value.MetricID], value)
	if len(ring) > s.capacity {
		ring = ring[len(ring)-s.capacity:]
	}
	s.values[value.MetricID] = ring
	s.inserts[value.MetricID]++
	refresh := s.inserts[value.MetricID]%s.refreshEvery == 0
	s.mu.Unlock()

	if s.tel != nil {
		s.tel.ValuesRecorded.WithLabelValues(string(value.SourceRole)).Inc()
	}
	if s.bus != nil {
		s.bus.Publish(events.TopicMetricRecorded, map[string]any{
			"metric_id": value.MetricID,
			"value":     value.Value,
			"role":      string(value.SourceRole),
		})
	}
	if refresh {
		go s.refreshAggregate(value.MetricID)
	}
	return nil
}

// refreshAggregate recomputes the default aggregation over the snapshot
// window and warms the aggregate cache. Fire-and-forget.
func (s *Store) refreshAggregate(metricID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := s.Aggregate(ctx, []string{metricID}, types.LastRange(s.snapshotWindow), "", nil)
	if err != nil {
		s.logger.Warn("aggregation refresh failed", "metric_id", metricID, "error", err.Error())
		return
	}
	s.logger.Debug("aggregation refreshed", "metric_id", metricID, "results", len(results))
}

// Aggregate reduces each metric's values over the time range with the chosen
// method ("" selects each definition's default). Unknown metric ids and empty
// filtered sets are skipped, not errors. Both range bounds are inclusive.
func (s *Store) Aggregate(ctx context.Context, metricIDs []string, tr types.TimeRange, method types.AggregationMethod, dimensions map[string]string) ([]types.AggregatedMetric, error) {
	if err := tr.Validate(); err != nil {
		return nil, apperrors.NewValidation("metrics_store", err.Error())
	}
	if method != "" && !method.Valid() {
		return nil, apperrors.NewValidation("metrics_store", fmt.Sprintf("unknown aggregation method: %s", method))
	}

	started := time.Now()
	results := make([]types.AggregatedMetric, 0, len(metricIDs))
	for _, metricID := range metricIDs {
		s.mu.RLock()
		def, ok := s.definitions[metricID]
		ring := s.values[metricID]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		selected := method
		if selected == "" {
			selected = def.DefaultMethod
		}

		key := cache.AggregateKey(metricID, selected, tr, dimensions)
		if s.coordinator != nil {
			if cached, hit, err := s.coordinator.GetAggregate(ctx, key); err == nil && hit {
				results = append(results, *cached)
				continue
			}
		}

		filtered := filterValues(ring, tr, dimensions)
		if len(filtered) == 0 {
			continue
		}

		aggregate, err := s.reduce(metricID, selected, filtered, tr)
		if err != nil {
			return nil, err
		}
		aggregate.Breakdown = buildBreakdown(selected, filtered, tr)

		if s.coordinator != nil {
			if err := s.coordinator.PutAggregate(ctx, key, aggregate); err != nil {
				s.logger.Warn("aggregate cache write failed", "metric_id", metricID, "error", err.Error())
			}
		}
		results = append(results, aggregate)

		if s.tel != nil {
			s.tel.AggregationsTotal.WithLabelValues(string(selected)).Inc()
		}
	}
	if s.tel != nil {
		s.tel.AggregationDuration.Observe(time.Since(started).Seconds())
	}
	return results, nil
}

// reduce applies one aggregation method to a filtered value set
func (s *Store) reduce(metricID string, method types.AggregationMethod, filtered []types.MetricValue, tr types.TimeRange) (types.AggregatedMetric, error) {
	raw := make([]float64, len(filtered))
	for i, v := range filtered {
		raw[i] = v.Value
	}

	var value float64
	switch method {
	case types.AggregationSum:
		value = sum(raw)
	case types.AggregationAverage, types.AggregationWeightedAverage:
		// Weighted average with equal weights reduces to the mean.
		value = mean(raw)
	case types.AggregationCount:
		value = float64(len(raw))
	case types.AggregationMax:
		value = maxOf(raw)
	case types.AggregationMin:
		value = minOf(raw)
	case types.AggregationMedian:
		value = median(raw)
	case types.AggregationP95:
		value = quantile(raw, 0.95)
	case types.AggregationRate:
		elapsed := tr.Duration().Seconds()
		if elapsed <= 0 {
			return types.AggregatedMetric{}, apperrors.NewComputationFailed("metrics_store",
				fmt.Sprintf("rate aggregation for %s needs a non-zero window", metricID), nil)
		}
		value = float64(len(raw)) / elapsed
	default:
		return types.AggregatedMetric{}, apperrors.NewValidation("metrics_store",
			fmt.Sprintf("unknown aggregation method: %s", method))
	}

	confidence := float64(len(raw)) / float64(s.confidenceAt)
	if confidence > 1 {
		confidence = 1
	}

	return types.AggregatedMetric{
		MetricID:    metricID,
		Value:       value,
		Method:      method,
		Period:      encodePeriod(tr),
		PeriodStart: tr.Start,
		PeriodEnd:   tr.End,
		SampleCount: len(raw),
		Confidence:  confidence,
	}, nil
}

// Snapshot aggregates every metric matching the scope over the trailing
// snapshot window
func (s *Store) Snapshot(ctx context.Context, scope types.MetricScope, includeBreakdown bool) (types.MetricSnapshot, error) {
	if !scope.Valid() {
		return types.MetricSnapshot{}, apperrors.NewValidation("metrics_store", fmt.Sprintf("invalid scope: %s", scope))
	}

	s.mu.RLock()
	matching := make([]string, 0, len(s.definitions))
	defTypes := make(map[string]types.MetricType, len(s.definitions))
	for id, def := range s.definitions {
		if def.Scope == scope {
			matching = append(matching, id)
			defTypes[id] = def.Type
		}
	}
	s.mu.RUnlock()
	sort.Strings(matching)

	window := types.LastRange(s.snapshotWindow)
	aggregates, err := s.Aggregate(ctx, matching, window, "", nil)
	if err != nil {
		return types.MetricSnapshot{}, err
	}

	snapshot := types.MetricSnapshot{
		SnapshotID: uuid.New().String(),
		Scope:      scope,
		TakenAt:    time.Now().UTC(),
		Window:     window,
		Metrics:    make(map[string]types.AggregatedMetric, len(aggregates)),
	}

	countsByType := make(map[string]int)
	typeTotals := make(map[string]float64)
	confidenceSum := 0.0
	for _, aggregate := range aggregates {
		if !includeBreakdown {
			aggregate.Breakdown = nil
		}
		snapshot.Metrics[aggregate.MetricID] = aggregate
		metricType := string(defTypes[aggregate.MetricID])
		countsByType[metricType]++
		typeTotals[metricType] += aggregate.Value
		confidenceSum += aggregate.Confidence
	}

	snapshot.Summary = types.SnapshotSummary{
		MetricCount:  len(aggregates),
		CountsByType: countsByType,
	}
	if len(aggregates) > 0 {
		snapshot.Summary.MeanConfidence = confidenceSum / float64(len(aggregates))
	}
	if includeBreakdown {
		breakdown := make(map[string]float64, len(typeTotals))
		for metricType, total := range typeTotals {
			breakdown[metricType] = total / float64(countsByType[metricType])
		}
		snapshot.Summary.TypeBreakdown = breakdown
	}
	return snapshot, nil
}

// Trends splits the range into fixed-size buckets and aggregates each bucket
// independently with the metric's default method. Empty buckets are skipped.
// This is the raw series the trend analyzer consumes.
func (s *Store) Trends(_ context.Context, metricID string, tr types.TimeRange, granularity types.Granularity) ([]types.AggregatedMetric, error) {
	if err := tr.Validate(); err != nil {
		return nil, apperrors.NewValidation("metrics_store", err.Error())
	}
	if !granularity.Valid() {
		return nil, apperrors.NewValidation("metrics_store", fmt.Sprintf("invalid granularity: %s", granularity))
	}

	s.mu.RLock()
	def, ok := s.definitions[metricID]
	ring := s.values[metricID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("metrics_store", "metric", metricID)
	}

	step := granularity.Duration()
	series := make([]types.AggregatedMetric, 0, int(tr.Duration()/step)+1)
	for bucketStart := tr.Start; bucketStart.Before(tr.End); bucketStart = bucketStart.Add(step) {
		bucketEnd := bucketStart.Add(step)
		if bucketEnd.After(tr.End) {
			bucketEnd = tr.End
		}
		// Bucket upper bound is exclusive to keep buckets disjoint.
		bucket := types.TimeRange{Start: bucketStart, End: bucketEnd.Add(-time.Nanosecond)}
		filtered := filterValues(ring, bucket, nil)
		if len(filtered) == 0 {
			continue
		}
		aggregate, err := s.reduce(metricID, def.DefaultMethod, filtered, bucket)
		if err != nil {
			return nil, err
		}
		series = append(series, aggregate)
	}
	return series, nil
}

// ValueCount returns how many observations are retained for a metric
func (s *Store) ValueCount(metricID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values[metricID])
}

// Reset drops all definitions and values. Only used on full service reset.
func (s *Store) Reset() {
	s.mu.Lock()
	s.definitions = make(map[string]types.MetricDefinition)
	s.values = make(map[string][]types.MetricValue)
	s.inserts = make(map[string]int)
	s.mu.Unlock()
}

func filterValues(ring []types.MetricValue, tr types.TimeRange, dimensions map[string]string) []types.MetricValue {
	filtered := make([]types.MetricValue, 0, len(ring))
	for _, v := range ring {
		if !tr.Contains(v.Timestamp) {
			continue
		}
		if !matchesDimensions(v.Dimensions, dimensions) {
			continue
		}
		filtered = append(filtered, v)
	}
	return filtered
}

func matchesDimensions(have, want map[string]string) bool {
	for name, wanted := range want {
		if have[name] != wanted {
			return false
		}
	}
	return true
}

func buildBreakdown(method types.AggregationMethod, filtered []types.MetricValue, tr types.TimeRange) *types.AggregateBreakdown {
	byRole := make(map[string][]float64)
	byService := make(map[string][]float64)
	byDimension := make(map[string][]float64)
	raw := make([]float64, 0, len(filtered))
	for _, v := range filtered {
		raw = append(raw, v.Value)
		byRole[string(v.SourceRole)] = append(byRole[string(v.SourceRole)], v.Value)
		if v.Service != "" {
			byService[v.Service] = append(byService[v.Service], v.Value)
		}
		for name, dim := range v.Dimensions {
			key := name + "=" + dim
			byDimension[key] = append(byDimension[key], v.Value)
		}
	}

	breakdown := &types.AggregateBreakdown{
		ByRole:      reduceGroups(method, byRole, tr),
		ByService:   reduceGroups(method, byService, tr),
		ByDimension: reduceGroups(method, byDimension, tr),
		Distribution: &types.DistributionStats{
			Min:    minOf(raw),
			Max:    maxOf(raw),
			Mean:   mean(raw),
			Median: median(raw),
			StdDev: stdDev(raw),
		},
	}
	return breakdown
}

// reduceGroups applies a simplified reduction per group: count-like methods
// keep counts, everything else uses the mean of the group
func reduceGroups(method types.AggregationMethod, groups map[string][]float64, tr types.TimeRange) map[string]float64 {
	if len(groups) == 0 {
		return nil
	}
	out := make(map[string]float64, len(groups))
	for name, values := range groups {
		switch method {
		case types.AggregationSum:
			out[name] = sum(values)
		case types.AggregationCount:
			out[name] = float64(len(values))
		case types.AggregationRate:
			if elapsed := tr.Duration().Seconds(); elapsed > 0 {
				out[name] = float64(len(values)) / elapsed
			}
		default:
			out[name] = mean(values)
		}
	}
	return out
}

func encodePeriod(tr types.TimeRange) string {
	return strings.Join([]string{
		tr.Start.UTC().Format(time.RFC3339),
		tr.End.UTC().Format(time.RFC3339),
	}, "/")
}

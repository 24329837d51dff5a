package types

import "time"

// PatternKind is the shape a detector fits to a series
type PatternKind string

const (
	PatternLinear      PatternKind = "linear"
	PatternExponential PatternKind = "exponential"
	PatternSeasonal    PatternKind = "seasonal"
	PatternCyclical    PatternKind = "cyclical"
)

// Valid returns true if the pattern kind is valid
func (pk PatternKind) Valid() bool {
	switch pk {
	case PatternLinear, PatternExponential, PatternSeasonal, PatternCyclical:
		return true
	}
	return false
}

// PatternDirection is the sign of a fitted pattern
type PatternDirection string

const (
	DirectionUpward   PatternDirection = "upward"
	DirectionDownward PatternDirection = "downward"
	DirectionFlat     PatternDirection = "flat"
)

// PatternStrength is a qualitative tier derived from R²
type PatternStrength string

const (
	StrengthStrong   PatternStrength = "strong"
	StrengthModerate PatternStrength = "moderate"
	StrengthWeak     PatternStrength = "weak"
)

// PatternSignificance is a qualitative tier derived from the p-value
type PatternSignificance string

const (
	SignificanceHigh   PatternSignificance = "high"
	SignificanceMedium PatternSignificance = "medium"
	SignificanceLow    PatternSignificance = "low"
)

// DataPoint is a single bucketed observation in a trend series
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ConfidenceInterval is a fitted-parameter interval
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// TrendPattern is one statistically detected shape over a data-point window.
// Multiple patterns may be detected per analysis; exactly one is chosen as
// primary by a weighted score.
type TrendPattern struct {
	Kind          PatternKind         `json:"kind"`
	Direction     PatternDirection    `json:"direction"`
	Strength      PatternStrength     `json:"strength"`
	Significance  PatternSignificance `json:"significance"`
	Span          TimeRange           `json:"span"`
	Slope         float64             `json:"slope"`
	RSquared      float64             `json:"r_squared"`
	Interval      ConfidenceInterval  `json:"interval"`
	SeasonalLag   int                 `json:"seasonal_lag,omitempty"`
	SeasonalScore float64             `json:"seasonal_score,omitempty"`
	CycleLength   float64             `json:"cycle_length,omitempty"`
	GrowthRate    float64             `json:"growth_rate,omitempty"`
}

// AnomalyKind distinguishes how an outlier was detected
type AnomalyKind string

const (
	// AnomalyZScore marks points beyond the z-score boundary
	AnomalyZScore AnomalyKind = "z_score"
	// AnomalyTrendDeviation marks points far from the fitted trend line
	AnomalyTrendDeviation AnomalyKind = "trend_deviation"
)

// TrendAnomaly is one flagged outlier
type TrendAnomaly struct {
	Kind      AnomalyKind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Value     float64     `json:"value"`
	Expected  float64     `json:"expected"`
	Score     float64     `json:"score"`
}

// SeasonalitySummary reports hour-of-day / day-of-week structure
type SeasonalitySummary struct {
	HourlyAverages map[int]float64 `json:"hourly_averages,omitempty"`
	DailyAverages  map[int]float64 `json:"daily_averages,omitempty"`
	Strength       float64         `json:"strength"`
	Detected       bool            `json:"detected"`
}

// TrendAnalysis is the full analysis result for one metric and range
type TrendAnalysis struct {
	MetricID         string             `json:"metric_id"`
	Range            TimeRange          `json:"range"`
	Granularity      Granularity        `json:"granularity"`
	DataPoints       []DataPoint        `json:"data_points"`
	Patterns         []TrendPattern     `json:"patterns"`
	Primary          *TrendPattern      `json:"primary,omitempty"`
	Anomalies        []TrendAnomaly     `json:"anomalies"`
	Seasonality      SeasonalitySummary `json:"seasonality"`
	ForecastAccuracy float64            `json:"forecast_accuracy"`
	AnalyzedAt       time.Time          `json:"analyzed_at"`
}

// ForecastModel selects how a prediction extrapolates
type ForecastModel string

const (
	ModelLinear      ForecastModel = "linear"
	ModelExponential ForecastModel = "exponential"
	// ModelAuto picks the model matching the primary pattern
	ModelAuto ForecastModel = "auto"
)

// ForecastStep is one predicted point with its naive band
type ForecastStep struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// ConfidenceTier is the qualitative reliability of a prediction
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// TrendPrediction is an N-step-ahead forecast for a metric
type TrendPrediction struct {
	MetricID    string         `json:"metric_id"`
	Model       ForecastModel  `json:"model"`
	Steps       []ForecastStep `json:"steps"`
	Confidence  ConfidenceTier `json:"confidence"`
	Assumptions []string       `json:"assumptions"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// TrendDivergence marks a region where two metrics' primary directions disagree
type TrendDivergence struct {
	MetricA    string           `json:"metric_a"`
	MetricB    string           `json:"metric_b"`
	DirectionA PatternDirection `json:"direction_a"`
	DirectionB PatternDirection `json:"direction_b"`
}

// TrendPairSimilarity scores how alike two metric trends are
type TrendPairSimilarity struct {
	MetricA     string  `json:"metric_a"`
	MetricB     string  `json:"metric_b"`
	Correlation float64 `json:"correlation"`
	Similarity  float64 `json:"similarity"`
}

// TrendComparison is the pairwise comparison of several metric trends
type TrendComparison struct {
	MetricIDs    []string              `json:"metric_ids"`
	Range        TimeRange             `json:"range"`
	Similarities []TrendPairSimilarity `json:"similarities"`
	Divergences  []TrendDivergence     `json:"divergences"`
	ComparedAt   time.Time             `json:"compared_at"`
}

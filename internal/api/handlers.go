package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"einvoice-analytics/internal/reporting"
	"einvoice-analytics/pkg/types"
)

const defaultQueryWindow = 24 * time.Hour

// parseTimeRange reads start/end query parameters (RFC3339). Absent
// parameters fall back to the trailing default window.
func parseTimeRange(req *http.Request) (types.TimeRange, error) {
	now := time.Now().UTC()
	tr := types.TimeRange{Start: now.Add(-defaultQueryWindow), End: now}
	if raw := req.URL.Query().Get("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr.Start = start
	}
	if raw := req.URL.Query().Get("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.TimeRange{}, err
		}
		tr.End = end
	}
	return tr, nil
}

func decodeBody(req *http.Request, into any) error {
	defer req.Body.Close()
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	health := map[string]string{"status": "ok"}
	status := http.StatusOK
	if r.svc.Cache != nil {
		if err := r.svc.Cache.HealthCheck(req.Context()); err != nil {
			health["status"] = "degraded"
			health["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health["cache"] = "ok"
		}
	}
	writeSuccess(w, status, health)
}

func (r *Router) handleRecordValue(w http.ResponseWriter, req *http.Request) {
	var value types.MetricValue
	if err := decodeBody(req, &value); err != nil {
		writeValidationError(w, "invalid metric value payload: "+err.Error())
		return
	}
	if err := r.svc.Store.RecordValue(req.Context(), value); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, map[string]string{"metric_id": value.MetricID})
}

func (r *Router) handleSnapshot(w http.ResponseWriter, req *http.Request) {
	scope := types.MetricScope(req.URL.Query().Get("scope"))
	if scope == "" {
		scope = types.ScopeSystemWide
	}
	breakdown := req.URL.Query().Get("breakdown") == "true"
	snapshot, err := r.svc.Store.Snapshot(req.Context(), scope, breakdown)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, snapshot)
}

type aggregateRequest struct {
	MetricIDs  []string                `json:"metric_ids"`
	Method     types.AggregationMethod `json:"method"`
	Start      time.Time               `json:"start"`
	End        time.Time               `json:"end"`
	Dimensions map[string]string       `json:"dimensions,omitempty"`
}

func (r *Router) handleAggregate(w http.ResponseWriter, req *http.Request) {
	var body aggregateRequest
	if err := decodeBody(req, &body); err != nil {
		writeValidationError(w, "invalid aggregate payload: "+err.Error())
		return
	}
	tr := types.TimeRange{Start: body.Start, End: body.End}
	aggregates, err := r.svc.Store.Aggregate(req.Context(), body.MetricIDs, tr, body.Method, body.Dimensions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, aggregates)
}

func (r *Router) handleSeries(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	granularity := types.Granularity(req.URL.Query().Get("granularity"))
	if granularity == "" {
		granularity = types.GranularityHour
	}
	series, err := r.svc.Store.Trends(req.Context(), chi.URLParam(req, "metricID"), tr, granularity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, series)
}

func (r *Router) handleKPIDashboard(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	var kpiIDs []string
	if raw := req.URL.Query()["id"]; len(raw) > 0 {
		kpiIDs = raw
	}
	category := types.KPICategory(req.URL.Query().Get("category"))
	dashboard, err := r.svc.Calculator.Dashboard(req.Context(), kpiIDs, category, tr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, dashboard)
}

func (r *Router) handleKPICalculate(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	period := req.URL.Query().Get("period")
	if period == "" {
		period = "daily"
	}
	calculation, err := r.svc.Calculator.Calculate(req.Context(), chi.URLParam(req, "kpiID"), tr, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, calculation)
}

func (r *Router) handleKPITarget(w http.ResponseWriter, req *http.Request) {
	var target types.KPITarget
	if err := decodeBody(req, &target); err != nil {
		writeValidationError(w, "invalid target payload: "+err.Error())
		return
	}
	target.KPIID = chi.URLParam(req, "kpiID")
	if err := r.svc.Calculator.SetTarget(target); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, target)
}

func (r *Router) handleTrendAnalyze(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	granularity := types.Granularity(req.URL.Query().Get("granularity"))
	if granularity == "" {
		granularity = types.GranularityHour
	}
	analysis, err := r.svc.Analyzer.Analyze(req.Context(), chi.URLParam(req, "metricID"), tr, granularity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, analysis)
}

func (r *Router) handleTrendForecast(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	horizonDays := 7
	if raw := req.URL.Query().Get("horizon_days"); raw != "" {
		horizonDays, err = strconv.Atoi(raw)
		if err != nil {
			writeValidationError(w, "horizon_days must be an integer")
			return
		}
	}
	model := types.ForecastModel(req.URL.Query().Get("model"))
	if model == "" {
		model = types.ModelAuto
	}
	prediction, err := r.svc.Analyzer.Predict(req.Context(), chi.URLParam(req, "metricID"), tr, horizonDays, model)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, prediction)
}

type compareRequest struct {
	MetricIDs []string  `json:"metric_ids"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (r *Router) handleTrendCompare(w http.ResponseWriter, req *http.Request) {
	var body compareRequest
	if err := decodeBody(req, &body); err != nil {
		writeValidationError(w, "invalid compare payload: "+err.Error())
		return
	}
	comparison, err := r.svc.Analyzer.Compare(req.Context(),
		body.MetricIDs, types.TimeRange{Start: body.Start, End: body.End})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, comparison)
}

func (r *Router) handleInsightList(w http.ResponseWriter, req *http.Request) {
	status := types.InsightStatus(req.URL.Query().Get("status"))
	category := types.InsightCategory(req.URL.Query().Get("category"))
	writeSuccess(w, http.StatusOK, r.svc.Generator.Insights(status, category))
}

func (r *Router) handleInsightGenerate(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	generated, err := r.svc.Generator.Generate(req.Context(), tr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, generated)
}

type insightStatusRequest struct {
	Status types.InsightStatus `json:"status"`
}

func (r *Router) handleInsightStatus(w http.ResponseWriter, req *http.Request) {
	var body insightStatusRequest
	if err := decodeBody(req, &body); err != nil {
		writeValidationError(w, "invalid status payload: "+err.Error())
		return
	}
	insight, err := r.svc.Generator.UpdateStatus(chi.URLParam(req, "insightID"), body.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, insight)
}

func (r *Router) handleReportTemplates(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, r.svc.Reports.TemplateIDs())
}

func (r *Router) handleReportGenerate(w http.ResponseWriter, req *http.Request) {
	tr, err := parseTimeRange(req)
	if err != nil {
		writeValidationError(w, "invalid time range: "+err.Error())
		return
	}
	format := reporting.Format(req.URL.Query().Get("format"))
	if format == "" {
		format = reporting.FormatJSON
	}
	if !format.Valid() {
		writeValidationError(w, "unsupported report format: "+string(format))
		return
	}
	report, err := r.svc.Reports.Generate(req.Context(), chi.URLParam(req, "templateID"), tr)
	if err != nil {
		writeError(w, err)
		return
	}
	switch format {
	case reporting.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	case reporting.FormatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	if err := r.svc.Reports.Render(w, &report, format); err != nil {
		r.logger.Error("report rendering failed",
			"template", report.TemplateID, "format", string(format), "error", err.Error())
	}
}

func (r *Router) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, r.svc.Monitor.Status())
}

func (r *Router) handleSyncConflicts(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, r.svc.Resolver.PendingConflicts())
}

type resolveRequest struct {
	WinnerRole types.Role `json:"winner_role"`
}

func (r *Router) handleSyncResolve(w http.ResponseWriter, req *http.Request) {
	var body resolveRequest
	if err := decodeBody(req, &body); err != nil {
		writeValidationError(w, "invalid resolve payload: "+err.Error())
		return
	}
	resolution, err := r.svc.Resolver.ResolveManually(req.Context(), chi.URLParam(req, "conflictID"), body.WinnerRole)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resolution)
}

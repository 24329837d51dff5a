// Package api provides the HTTP layer for the analytics service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"einvoice-analytics/internal/cache"
	"einvoice-analytics/internal/insights"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/reporting"
	"einvoice-analytics/internal/syncro"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/internal/trends"
)

const (
	requestTimeout = 30 * time.Second
	maxRequestSize = 1 * 1024 * 1024
)

// Services bundles the components the router exposes. Telemetry and the
// synchronizer are optional; everything else must be provided.
type Services struct {
	Store        *metrics.Store
	Calculator   *kpi.Calculator
	Analyzer     *trends.Analyzer
	Generator    *insights.Generator
	Reports      *reporting.Engine
	Resolver     *syncro.ConflictResolver
	Monitor      *syncro.SyncMonitor
	Synchronizer *syncro.StateSynchronizer
	Cache        cache.Service
	Telemetry    *telemetry.Telemetry
}

// Router is the HTTP API surface
type Router struct {
	mux    *chi.Mux
	svc    Services
	logger logging.Logger
}

// NewRouter creates the router with the standard middleware stack and routes
func NewRouter(svc Services, logger logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewNoOp()
	}
	r := &Router{
		mux:    chi.NewRouter(),
		svc:    svc,
		logger: logger.WithComponent("api"),
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Handler returns the HTTP handler
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupMiddleware() {
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(chimiddleware.RealIP)
	r.mux.Use(chimiddleware.RequestSize(maxRequestSize))
	r.mux.Use(chimiddleware.Heartbeat("/ping"))
	r.mux.Use(r.requestLogger)
	// Websocket upgrades must not inherit the request timeout.
	r.mux.Use(func(next http.Handler) http.Handler {
		timeout := http.TimeoutHandler(next, requestTimeout, "request timed out")
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/ws" {
				next.ServeHTTP(w, req)
				return
			}
			timeout.ServeHTTP(w, req)
		})
	})
}

func (r *Router) setupRoutes() {
	r.mux.Get("/healthz", r.handleHealth)
	if r.svc.Telemetry != nil {
		r.mux.Handle("/metrics", r.svc.Telemetry.Handler())
	}
	if r.svc.Synchronizer != nil {
		r.mux.Get("/ws", r.svc.Synchronizer.ServeWS)
	}

	r.mux.Route("/api/v1", func(v1 chi.Router) {
		v1.Route("/metrics", func(m chi.Router) {
			m.Post("/values", r.handleRecordValue)
			m.Get("/snapshot", r.handleSnapshot)
			m.Post("/aggregate", r.handleAggregate)
			m.Get("/{metricID}/series", r.handleSeries)
		})
		v1.Route("/kpis", func(k chi.Router) {
			k.Get("/dashboard", r.handleKPIDashboard)
			k.Get("/{kpiID}", r.handleKPICalculate)
			k.Put("/{kpiID}/target", r.handleKPITarget)
		})
		v1.Route("/trends", func(tr chi.Router) {
			tr.Post("/compare", r.handleTrendCompare)
			tr.Get("/{metricID}", r.handleTrendAnalyze)
			tr.Get("/{metricID}/forecast", r.handleTrendForecast)
		})
		v1.Route("/insights", func(in chi.Router) {
			in.Get("/", r.handleInsightList)
			in.Post("/generate", r.handleInsightGenerate)
			in.Post("/{insightID}/status", r.handleInsightStatus)
		})
		v1.Route("/reports", func(rp chi.Router) {
			rp.Get("/templates", r.handleReportTemplates)
			rp.Get("/{templateID}", r.handleReportGenerate)
		})
		v1.Route("/sync", func(s chi.Router) {
			s.Get("/status", r.handleSyncStatus)
			s.Get("/conflicts", r.handleSyncConflicts)
			s.Post("/conflicts/{conflictID}/resolve", r.handleSyncResolve)
		})
	})
}

// requestLogger emits one structured line per request
func (r *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		r.logger.Debug("request handled",
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// Command server runs the e-invoicing analytics HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"einvoice-analytics/internal/api"
	"einvoice-analytics/internal/background"
	"einvoice-analytics/internal/cache"
	"einvoice-analytics/internal/config"
	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/insights"
	"einvoice-analytics/internal/kpi"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/internal/metrics"
	"einvoice-analytics/internal/notify"
	"einvoice-analytics/internal/reporting"
	"einvoice-analytics/internal/syncro"
	"einvoice-analytics/internal/telemetry"
	"einvoice-analytics/internal/trends"
	"einvoice-analytics/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addrFlag := flag.String("addr", "", "listen address, overrides HOST/PORT from the environment")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel := telemetry.New()
	bus := events.NewBus(256, 64, logger)
	if err := bus.Start(); err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer func() { _ = bus.Stop() }()
	notifier := notify.NewLogNotifier(logger)

	cacheSvc, err := cache.NewService(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache backend: %w", err)
	}
	coordinator := cache.NewCoordinator(cacheSvc, cfg.Cache.DefaultTTL, logger)

	store := metrics.NewStore(
		cfg.Metrics.ValueRingCapacity,
		cfg.Metrics.RefreshEvery,
		cfg.Metrics.SnapshotWindow,
		metrics.WithCoordinator(coordinator),
		metrics.WithBus(bus),
		metrics.WithTelemetry(tel),
		metrics.WithLogger(logger),
		metrics.WithConfidenceFullAt(cfg.Metrics.ConfidenceFullAt),
	)
	if err := store.RegisterBuiltins(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	calculator := kpi.NewCalculator(store,
		cfg.KPI.HistoryCapacity,
		cfg.KPI.TrendLookback,
		kpi.WithBus(bus),
		kpi.WithTelemetry(tel),
		kpi.WithLogger(logger),
	)
	if err := calculator.RegisterBuiltins(); err != nil {
		return fmt.Errorf("register kpis: %w", err)
	}

	analyzer := trends.NewAnalyzer(store, cfg.Trends,
		trends.WithNotifier(notifier),
		trends.WithBus(bus),
		trends.WithTelemetry(tel),
		trends.WithLogger(logger),
	)

	generator := insights.NewGenerator(store, calculator, analyzer,
		insights.WithBus(bus),
		insights.WithTelemetry(tel),
		insights.WithLogger(logger),
	)

	engine := reporting.NewEngine(store, calculator, analyzer, generator,
		reporting.WithLogger(logger))
	if cfg.Reporting.TemplateDir != "" {
		if err := engine.LoadTemplateDir(cfg.Reporting.TemplateDir); err != nil {
			return fmt.Errorf("load report templates: %w", err)
		}
	}

	resolver, err := syncro.NewConflictResolver(
		types.ResolutionPolicy(cfg.Sync.DefaultPolicy),
		syncro.WithResolverBus(bus),
		syncro.WithResolverTelemetry(tel),
		syncro.WithResolverLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("conflict resolver: %w", err)
	}
	checker := syncro.NewConsistencyChecker(coordinator, resolver, logger)
	monitor := syncro.NewSyncMonitor(resolver, checker, notifier, cfg.Sync.MaxPendingAlertAt, logger)

	synchronizer := syncro.NewStateSynchronizer(bus, logger)
	go synchronizer.Run(ctx)

	runner := background.NewRunner(cfg.Background.IterationTimeout,
		background.WithTelemetry(tel),
		background.WithLogger(logger))
	if err := background.RegisterStandardLoops(runner, cfg.Background, cfg.Sync.CheckInterval, background.Services{
		Store:       store,
		Calculator:  calculator,
		Analyzer:    analyzer,
		Generator:   generator,
		Coordinator: coordinator,
		Monitor:     monitor,
		Telemetry:   tel,
	}); err != nil {
		return fmt.Errorf("background loops: %w", err)
	}
	runner.Start(ctx)

	router := api.NewRouter(api.Services{
		Store:        store,
		Calculator:   calculator,
		Analyzer:     analyzer,
		Generator:    generator,
		Reports:      engine,
		Resolver:     resolver,
		Monitor:      monitor,
		Synchronizer: synchronizer,
		Cache:        cacheSvc,
		Telemetry:    tel,
	}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if *addrFlag != "" {
		addr = *addrFlag
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("analytics server listening", "addr", addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err.Error())
	}
	runner.Wait()
	return nil
}

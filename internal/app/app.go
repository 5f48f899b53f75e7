// Package app assembles the merge pipeline from configuration. Both binaries
// build the same graph; they differ only in which entry points they expose.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"variant-merger/internal/catalog"
	"variant-merger/internal/config"
	"variant-merger/internal/database"
	"variant-merger/internal/handler"
	"variant-merger/internal/merge"
	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
	"variant-merger/internal/oracle"
	"variant-merger/internal/repository"
	"variant-merger/internal/scheduler"
	"variant-merger/internal/service"
	"variant-merger/internal/synthesis"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *sqlx.DB
	Metrics    *metrics.Metrics
	Queue      *repository.SQLiteQueue
	State      *repository.SQLiteRunState
	Settings   *repository.SQLiteSettings
	Catalog    *catalog.SQLiteCatalog
	Worker     *service.WorkerService
	Controller *service.RunController
	Cleaner    *service.Cleaner
	Scheduler  *scheduler.Scheduler
}

// NewLogger builds a production JSON logger, or a development console logger when pretty is set
func NewLogger(level string, pretty bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// New opens the database, seeds operator settings and wires every component
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("app", cfg.AppName))

	db, err := database.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics()
	settings := repository.NewSQLiteSettings(db, cfg.Defaults.Settings())
	if err := settings.SeedSettings(ctx, cfg.Defaults.Settings()); err != nil {
		db.Close()
		return nil, err
	}

	current, err := settings.GetSettings(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	queue := repository.NewSQLiteQueue(db, cfg.Queue.MaxAttempts, logger)
	state := repository.NewSQLiteRunState(db, cfg.Queue.LogCapacity, logger)
	cat := catalog.NewSQLiteCatalog(db, logger)

	synth := synthesis.NewSynthesizer(resolveOracle(current, cfg.Oracle, m, logger), cfg.Oracle.Timeout, logger)
	executor := merge.NewExecutor(cat, synth, m, logger)
	worker := service.NewWorkerService(queue, state, executor, m, logger)
	controller := service.NewRunController(queue, state, settings, cat, worker, m, service.ControllerConfig{
		CandidateBatchSize: cfg.Queue.CandidateBatchSize,
		ClaimBatchSize:     cfg.Queue.ClaimBatchSize,
		StatusLogTail:      cfg.Queue.StatusLogTail,
	}, logger)
	cleaner := service.NewCleaner(queue, service.Retention{
		Completed: cfg.Retention.Completed,
		Failed:    cfg.Retention.Failed,
		Stuck:     cfg.Retention.Stuck,
	}, m, logger)

	sched := scheduler.New(controller, cleaner, scheduler.Config{
		DrainInterval:   cfg.Scheduler.DrainInterval,
		SweepInterval:   cfg.Scheduler.SweepInterval,
		CleanupInterval: cfg.Scheduler.CleanupInterval,
	}, logger)
	controller.SetTrigger(sched)

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Metrics:    m,
		Queue:      queue,
		State:      state,
		Settings:   settings,
		Catalog:    cat,
		Worker:     worker,
		Controller: controller,
		Cleaner:    cleaner,
		Scheduler:  sched,
	}, nil
}

// Router builds the API server routes
func (a *App) Router() *echo.Echo {
	return handler.NewRouter(handler.RouterConfig{
		Run:          handler.NewRunHandler(a.Controller, a.Cleaner, a.Logger),
		Items:        handler.NewItemHandler(a.Catalog),
		Settings:     handler.NewSettingsHandler(a.Settings, a.Logger),
		Health:       handler.NewHealthHandler(a.DB),
		Metrics:      a.Metrics.Handler(),
		AllowOrigins: a.Config.HTTP.AllowOrigins,
		Logger:       a.Logger,
	})
}

// HTTPServer wraps the router with the configured timeouts
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Port),
		Handler:      a.Router(),
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
	}
}

// Close releases the database
func (a *App) Close() error {
	return a.DB.Close()
}

// resolveOracle returns the configured provider, or nil when it is unknown or
// lacks credentials, in which case synthesis uses its fallbacks
func resolveOracle(settings models.Settings, cfg config.OracleConfig, m *metrics.Metrics, logger *zap.Logger) oracle.Oracle {
	o, err := oracle.Resolve(settings.Provider, settings.Credentials(), oracle.Options{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Metrics:   m,
	})
	if err != nil {
		logger.Warn("text generation unavailable, using deterministic synthesis",
			zap.String("provider", settings.Provider), zap.Error(err))
		return nil
	}
	logger.Info("text generation provider configured", zap.String("provider", o.Provider()))
	return o
}

package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"glimpse/internal/config"
	"glimpse/internal/engine"
	"glimpse/internal/export"
	glimpsehttp "glimpse/internal/http"
	"glimpse/internal/identity"
	"glimpse/internal/jobs"
	"glimpse/internal/location"
	"glimpse/internal/logging"
	"glimpse/internal/storage"
)

// Application wires the engine, stores, resolvers, background jobs and the
// fiber server.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
	Fiber  *fiber.App

	scheduler *jobs.Scheduler
	sqlite    *storage.SQLiteStore // nil when degraded to memory
	geo       *location.GeoIPResolver
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	app := &Application{
		Config: cfg,
		Logger: logger,
	}

	// Persistent store: sqlite, degrading to memory-only when storage is
	// unavailable. Every counter still functions; nothing is durable.
	var persistent storage.Store
	sqliteStore, err := storage.NewSQLiteStore(cfg, logger)
	if err != nil {
		logger.Warn("Persistent store unavailable, running in-memory only", slog.Any("error", err))
		persistent = storage.NewMemoryStore()
	} else {
		app.sqlite = sqliteStore
		persistent = sqliteStore
	}
	sessions := storage.NewMemoryStore()

	app.Engine = engine.New(engine.Options{
		Store:           persistent,
		Sessions:        sessions,
		Identity:        identity.ContextResolver{},
		Location:        app.newLocationResolver(cfg, logger),
		Logger:          logger,
		BounceWindow:    cfg.GetBounceWindow(),
		SessionAuditMax: cfg.SessionAuditMax,
		TransactionsMax: cfg.TransactionsMax,
	})

	exporter := export.New(cfg.ExportEndpoint, nil, logger)
	app.scheduler = jobs.NewScheduler(app.Engine, exporter, logger)

	app.Fiber = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: !cfg.IsDevelopment(),
	})
	app.Fiber.Use(recover.New())
	MountAppRoutes(app.Fiber, glimpsehttp.NewHandler(app.Engine, logger))

	return app, nil
}

// newLocationResolver picks the configured strategy.
func (a *Application) newLocationResolver(cfg *config.Config, logger *slog.Logger) location.Resolver {
	switch cfg.LocationStrategy {
	case config.LocationStrategyTimezone:
		return location.NewTimezoneResolver("")
	case config.LocationStrategyGeoIP:
		a.geo = location.NewGeoIPResolver(cfg.GeoDBPath, logger)
		return a.geo
	default:
		return location.NewWeightedResolver(nil)
	}
}

// StartAsync starts background jobs and the HTTP listener without
// blocking.
func (a *Application) StartAsync() error {
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start background jobs: %w", err)
	}

	go func() {
		addr := ":" + a.Config.AppPort
		a.Logger.Info("Listening", slog.String("addr", addr))
		if err := a.Fiber.Listen(addr); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()

	return nil
}

// Shutdown stops jobs and drains the HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	a.scheduler.Stop()

	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	if a.geo != nil {
		a.geo.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.Logger.Warn("Failed to close sqlite store", slog.Any("error", err))
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neomorfeo/tenantgrid/internal/adapter/fsm"
	"github.com/neomorfeo/tenantgrid/internal/adapter/memconfig"
	"github.com/neomorfeo/tenantgrid/internal/adapter/otel"
	"github.com/neomorfeo/tenantgrid/internal/adapter/river"
	"github.com/neomorfeo/tenantgrid/internal/adapter/sqlite"
	"github.com/neomorfeo/tenantgrid/internal/app"
	"github.com/neomorfeo/tenantgrid/internal/config"
	"github.com/neomorfeo/tenantgrid/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("tenantgrid: %v", err)
	}
}

// run wires the full stack and blocks until ctx is cancelled. Split out of
// main so tests can drive it with their own context.
func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("TENANTGRID_CONFIG"))
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	directory, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("tenant directory: %w", err)
	}
	tracedDirectory := otel.NewTracingDirectory(directory)

	riverClient, err := river.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			logger.Error("river stop", "error", err)
		}
	}()

	publisher := otel.NewTracingPublisher(river.NewPublisher(riverClient))

	provider, err := otel.NewTracingProvider(&logEngineProvider{log: logger})
	if err != nil {
		return fmt.Errorf("engine provider: %w", err)
	}

	// The in-memory store stands in for an external configuration service,
	// so it is ready as soon as it exists.
	store := memconfig.New()
	store.MarkReady()

	// --- Application ---
	orch := app.NewOrchestrator(provider, tracedDirectory, fsm.New(), publisher, app.Options{
		PoolSize:      cfg.Orchestrator.PoolSize,
		QueueCapacity: cfg.Orchestrator.QueueCapacity,
		StageTimeout:  cfg.Orchestrator.StageTimeout,
		Logger:        logger,
	})
	router := app.NewRouter(cfg.Lifecycle.TenantsRoot, orch.Registry(), provider,
		orch.RequestOnboarding, logger)
	controller := app.NewController(orch, router, store, tracedDirectory,
		cfg.Lifecycle.TenantsRoot, cfg.Lifecycle.ConfigReadyTimeout, logger)

	if err := controller.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	logger.Info("tenantgrid running",
		"tenants_root", cfg.Lifecycle.TenantsRoot,
		"pool_size", cfg.Orchestrator.PoolSize,
		"database", cfg.Database.Path,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	controller.Stop(shutdownCtx)
	controller.Terminate(shutdownCtx)

	logger.Info("stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// logEngineHandle is the handle type for the logging engine below.
type logEngineHandle struct {
	record domain.TenantRecord
}

func (h *logEngineHandle) Tenant() domain.TenantRecord { return h.record }

// logEngineProvider is a placeholder EngineProvider whose stages only log.
// It stands in until real engine composition (pipelines, datastores) is
// plugged into the orchestrator.
type logEngineProvider struct {
	log *slog.Logger
}

func (p *logEngineProvider) Initialize(ctx context.Context, record domain.TenantRecord) (domain.EngineHandle, error) {
	p.log.InfoContext(ctx, "engine initialized", "tenant_id", record.ID, "tenant_name", record.Name)
	return &logEngineHandle{record: record}, nil
}

func (p *logEngineProvider) Start(ctx context.Context, handle domain.EngineHandle) error {
	p.log.InfoContext(ctx, "engine started", "tenant_id", handle.Tenant().ID)
	return nil
}

func (p *logEngineProvider) Bootstrap(ctx context.Context, handle domain.EngineHandle) error {
	p.log.InfoContext(ctx, "engine bootstrapped", "tenant_id", handle.Tenant().ID)
	return nil
}

func (p *logEngineProvider) Stop(ctx context.Context, handle domain.EngineHandle) error {
	p.log.InfoContext(ctx, "engine stopped", "tenant_id", handle.Tenant().ID)
	return nil
}

func (p *logEngineProvider) ConfigurationAdded(ctx context.Context, handle domain.EngineHandle, relativePath string, _ []byte) error {
	p.log.InfoContext(ctx, "engine configuration added", "tenant_id", handle.Tenant().ID, "path", relativePath)
	return nil
}

func (p *logEngineProvider) ConfigurationUpdated(ctx context.Context, handle domain.EngineHandle, relativePath string, _ []byte) error {
	p.log.InfoContext(ctx, "engine configuration updated", "tenant_id", handle.Tenant().ID, "path", relativePath)
	return nil
}

func (p *logEngineProvider) ConfigurationDeleted(ctx context.Context, handle domain.EngineHandle, relativePath string) error {
	p.log.InfoContext(ctx, "engine configuration deleted", "tenant_id", handle.Tenant().ID, "path", relativePath)
	return nil
}

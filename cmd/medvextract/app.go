package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"

	"github.com/medvextract/medvextract-api/internal/api"
	"github.com/medvextract/medvextract-api/internal/auth"
	"github.com/medvextract/medvextract-api/internal/cache"
	"github.com/medvextract/medvextract-api/internal/config"
	"github.com/medvextract/medvextract-api/internal/extraction"
	"github.com/medvextract/medvextract-api/internal/fingerprint"
	"github.com/medvextract/medvextract-api/internal/pipeline"
	"github.com/medvextract/medvextract-api/internal/platform/gemini"
	"github.com/medvextract/medvextract-api/internal/platform/httpextract"
	"github.com/medvextract/medvextract-api/internal/platform/sqlstore"
	"github.com/medvextract/medvextract-api/internal/platform/telemetry"
	"github.com/medvextract/medvextract-api/internal/resilience"
	"github.com/medvextract/medvextract-api/internal/task"
)

// application holds the wired dependencies of the service.
type application struct {
	config       *config.Config
	logger       *slog.Logger
	db           *sqlstore.DB
	cacheBackend cache.Backend
	registry     *resilience.Registry
	taskRunner   *task.TaskRunner
	orchestrator *pipeline.Orchestrator
	jwtService   *auth.JWTService
}

// appOptions overrides parts of the wiring. Tests use it to swap the
// extraction provider.
type appOptions struct {
	extractor extraction.Extractor
}

// newApplication connects to the job store and cache and wires the pipeline.
// The caller must call cleanup.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	metrics := telemetry.NewMetrics(otel.GetMeterProvider())
	tracer := telemetry.NewTracer(otel.GetTracerProvider())

	app.db, err = sqlstore.Open(ctx, sqlstore.Options{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := sqlstore.Migrate(ctx, app.db, sqlstore.MigrateUp, logger); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	jobStore := sqlstore.NewJobStore(app.db, logger)
	logger.Info("job store initialized", "driver", cfg.Database.Driver)

	app.cacheBackend, err = newCacheBackend(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	resultCache := cache.NewResultCache(app.cacheBackend, cache.Config{
		TTL:        cfg.Cache.TTL,
		ReceiptTTL: cfg.Cache.ReceiptTTL,
	}, logger, metrics)
	logger.Info("result cache initialized", "backend", cfg.Cache.Backend)

	extractor := opts.extractor
	if extractor == nil {
		extractor, err = newExtractor(ctx, cfg.Extraction, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize extractor: %w", err)
		}
	}
	logger.Info("extractor initialized", "provider", cfg.Extraction.Provider)

	var schema *extraction.SchemaValidator
	if cfg.Extraction.SchemaPath != "" {
		schema, err = extraction.LoadSchemaValidator(cfg.Extraction.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load output schema: %w", err)
		}
	}

	fingerprinter, err := fingerprint.New(fingerprint.Algorithm(cfg.Fingerprint.Algorithm))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fingerprinter: %w", err)
	}

	app.registry = resilience.NewRegistry(resilienceConfig(cfg.Resilience), logger, metrics)

	app.taskRunner = task.NewTaskRunner(task.TaskRunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
	}, logger)

	app.orchestrator, err = pipeline.NewOrchestrator(pipeline.Deps{
		Store:         jobStore,
		Cache:         resultCache,
		Extractor:     extractor,
		Fingerprinter: fingerprinter,
		Policies:      app.registry,
		Runner:        app.taskRunner,
		Schema:        schema,
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if cfg.Auth.Enabled() {
		app.jwtService, err = auth.NewJWTService(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize auth: %w", err)
		}
		logger.Info("bearer authentication enabled")
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// router builds the HTTP handler.
func (app *application) router() http.Handler {
	cfg := api.RouterConfig{
		Handler: api.NewExtractionHandler(app.orchestrator),
		Logger:  app.logger,
	}
	if app.jwtService != nil {
		cfg.Auth = app.jwtService
	}
	return api.NewRouter(cfg)
}

// cleanup releases the cache and database connections.
func (app *application) cleanup() {
	if app.cacheBackend != nil {
		if err := app.cacheBackend.Close(); err != nil {
			app.logger.Error("error closing cache", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
}

func newCacheBackend(ctx context.Context, cfg config.CacheConfig) (cache.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryBackend(), nil
	case "redis":
		client, err := cache.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisBackend(client, ""), nil
	case "none":
		return cache.NopBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func newExtractor(ctx context.Context, cfg config.ExtractionConfig, logger *slog.Logger) (extraction.Extractor, error) {
	switch cfg.Provider {
	case "gemini":
		return gemini.NewExtractor(ctx, logger, gemini.Config{
			APIKey:             cfg.GeminiAPIKey,
			ModelName:          cfg.ModelName,
			PromptTemplatePath: cfg.PromptTemplatePath,
			Temperature:        cfg.Temperature,
		})
	case "http":
		return httpextract.NewExtractor(httpextract.Config{
			URL:       cfg.HTTPURL,
			Timeout:   cfg.HTTPTimeout,
			AuthToken: cfg.HTTPAuthToken,
		}, nil, logger)
	default:
		return nil, errors.New("unknown extraction provider " + cfg.Provider)
	}
}

func resilienceConfig(cfg config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.MaxAttempts,
			InitialDelay:   cfg.InitialDelay,
			Multiplier:     cfg.Multiplier,
			MaxDelay:       cfg.MaxDelay,
			JitterPercent:  cfg.JitterPercent,
			AttemptTimeout: cfg.AttemptTimeout,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			FailureRatio:     cfg.Breaker.FailureRatio,
			MinRequests:      cfg.Breaker.MinRequests,
			Window:           cfg.Breaker.Window,
			Cooldown:         cfg.Breaker.Cooldown,
		},
	}
}

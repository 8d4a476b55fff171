package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jatin-dot-py/matrx-microservice-template/internal/config"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/events"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/observability"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/platform/postgres"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/auth"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/logs"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/service/scrape"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/session"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/socket"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/task"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "matrx"

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService auth.JWTService
	registry   *task.Registry
	metrics    *observability.Metrics
	sessions   *session.Manager
	runner     *task.TaskRunner
	emitter    *events.InMemoryEventEmitter
	hub        *socket.Hub

	stopJanitor context.CancelFunc
}

// newApplication wires the dispatch engine, its services and transports. db
// may be nil, in which case execution history is not recorded and scrape
// domains are served from memory.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	seeds := seedDomains(cfg.Scrape)
	var domains store.ScrapeDomainStore
	observers := task.Observers{}
	app.metrics = observability.NewMetrics(metricsNamespace)
	observers = append(observers, app.metrics)
	if db != nil {
		if err := postgres.SeedScrapeDomains(ctx, db, seeds); err != nil {
			return nil, fmt.Errorf("failed to seed scrape domains: %w", err)
		}
		domains = postgres.NewScrapeDomainStore(db)
		observers = append(observers, postgres.NewExecutionStore(db, logger))
	} else {
		domains = store.NewMemoryScrapeDomainStore(seeds...)
	}

	app.registry, err = setupRegistry(cfg, domains, logger)
	if err != nil {
		return nil, err
	}

	// The hub resolves result sinks for the runner and submits to the
	// runner through the emitter, so the runner sees it through a late
	// bound resolver.
	resolver := task.SinkResolverFunc(func(ctx context.Context, t *task.Task) task.Sink {
		return app.hub.ResolveSink(ctx, t)
	})

	app.runner = task.NewTaskRunner(
		runnerConfig(cfg.Task),
		app.registry,
		resolver,
		logger,
		task.WithObserver(observers),
	)
	app.metrics.RegisterRunnerGauges(metricsNamespace, app.runner.Stats)

	app.sessions = session.NewManager(cfg.Session.InactivityTimeout(), logger)
	app.sessions.SetExpireHook(func(s *session.Session) {
		evicted := app.runner.ResetUser(s.UserID)
		app.metrics.SessionsExpired.Inc()
		logger.Info("session expired, cached services dropped",
			"user_id", s.UserID,
			"evicted", evicted)
	})

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(task.NewSubmitEventHandler(app.runner, logger))

	app.hub = socket.NewHub(
		socket.HubConfig{AllowedOrigins: cfg.Server.AllowedOrigins},
		app.jwtService,
		app.emitter,
		app.runner,
		app.sessions,
		app.metrics,
		logger,
	)

	logger.Info("application initialized",
		"services", app.registry.Names(),
		"persistence", db != nil)
	return app, nil
}

// setupRegistry registers every task service this server provides.
func setupRegistry(cfg *config.Config, domains store.ScrapeDomainStore, logger *slog.Logger) (*task.Registry, error) {
	registry := task.NewRegistry()

	if err := registry.Register(logs.ServiceName, logs.Factory(logs.Config{
		Directory:    cfg.Logs.Directory,
		Files:        cfg.Logs.Files,
		TailInterval: cfg.Logs.TailInterval(),
	})); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", logs.ServiceName, err)
	}

	if err := registry.Register(scrape.ServiceName, scrape.Factory(domains, logger)); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", scrape.ServiceName, err)
	}

	return registry, nil
}

func seedDomains(c config.ScrapeConfig) []store.ScrapeDomain {
	seeds := make([]store.ScrapeDomain, 0, len(c.Domains))
	for _, d := range c.Domains {
		seeds = append(seeds, store.ScrapeDomain{
			URL:        d.URL,
			CommonName: d.CommonName,
			Scrapable:  d.Scrapable,
		})
	}
	return seeds
}

func runnerConfig(c config.TaskConfig) task.TaskRunnerConfig {
	rc := task.DefaultTaskRunnerConfig()
	rc.ShortWorkers = c.ShortWorkers
	rc.LongWorkers = c.LongWorkers
	rc.ExecutorWorkers = c.ExecutorWorkers
	rc.DefaultUserLimit = c.DefaultUserLimit
	rc.UserSubmitRate = c.UserSubmitRate
	rc.UserSubmitBurst = c.UserSubmitBurst
	rc.PollWait = c.PollWait()
	rc.BackgroundEvery = c.BackgroundEvery
	rc.MaxRequeues = c.MaxRequeues
	rc.RequeueBackoff = c.RequeueBackoff()
	if len(c.LongRunningServices) > 0 {
		rc.LongRunningServices = append([]string(nil), c.LongRunningServices...)
	}
	return rc
}

// start launches the workers and the session janitor.
func (app *application) start(ctx context.Context) error {
	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	janitorCtx, cancel := context.WithCancel(ctx)
	app.stopJanitor = cancel
	app.sessions.StartJanitor(janitorCtx, app.config.Session.JanitorInterval())
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(ctx); err != nil {
		return err
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup closes the websocket connections, stops the runner within ctx
// and releases the database.
func (app *application) cleanup(ctx context.Context) error {
	if app.stopJanitor != nil {
		app.stopJanitor()
	}

	app.hub.CloseAll()

	var errs []error
	if err := app.runner.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("task runner stop: %w", err))
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		app.logger.Error("application shutdown incomplete", "error", err)
	} else {
		app.logger.Info("application shutdown completed")
	}
	return err
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/commercegrid/adsync-api/internal/audit"
	"github.com/commercegrid/adsync-api/internal/config"
	"github.com/commercegrid/adsync-api/internal/dispatch"
	"github.com/commercegrid/adsync-api/internal/handlers"
	"github.com/commercegrid/adsync-api/internal/middleware"
	"github.com/commercegrid/adsync-api/internal/migration"
	"github.com/commercegrid/adsync-api/internal/provider"
	"github.com/commercegrid/adsync-api/internal/reconcile"
	"github.com/commercegrid/adsync-api/internal/repository"
	"github.com/commercegrid/adsync-api/internal/routes"
	"github.com/commercegrid/adsync-api/internal/scheduler"
	"github.com/commercegrid/adsync-api/internal/syncer"
	"github.com/commercegrid/adsync-api/internal/temporal"
	"github.com/commercegrid/adsync-api/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	temporalClient tc.Client
	logger         zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	temporalLogger := temporal.NewSDKLogger(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Initialize Temporal client.
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporalLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Unable to create Temporal client")
	}
	defer temporalClient.Close()

	// Create the application instance.
	app := &application{
		config:         cfg,
		db:             db,
		temporalClient: temporalClient,
		logger:         logger,
	}

	// Start the Temporal worker in a separate goroutine.
	syncWorker := app.startSyncWorker(logger)

	// Start the cron scheduler for recurring syncs.
	cronScheduler := app.startScheduler(logger)

	// Initialize the HTTP router and middleware.
	router := app.initRouter()
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Tenant-ID"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, syncWorker, cronScheduler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter() http.Handler {
	runRepo := repository.NewRunRepository(app.db)
	cursorRepo := repository.NewCursorRepository(app.db)

	runHandler := handlers.NewRunHandler(runRepo)
	cursorHandler := handlers.NewCursorHandler(cursorRepo)

	return routes.NewRouter(runHandler, cursorHandler)
}

// newDispatcher wires the full sync pipeline behind the dispatch guard.
func (app *application) newDispatcher(logger zerolog.Logger) *dispatch.Dispatcher {
	entityRepo := repository.NewEntityRepository(app.db)
	linkRepo := repository.NewLinkRepository(app.db)
	cursorRepo := repository.NewCursorRepository(app.db)
	runRepo := repository.NewRunRepository(app.db)
	idempotencyRepo := repository.NewIdempotencyRepository(app.db)
	rateLimitRepo := repository.NewRateLimitRepository(app.db)
	bindingRepo := repository.NewBindingRepository(app.db)
	lockManager := repository.NewAdvisoryLockManager(app.db, logger)

	providerCfg := app.config.Provider
	factory := func(creds provider.Credentials) dispatch.Syncer {
		client := provider.NewClient(creds, provider.Options{
			BaseURL:           providerCfg.BaseURL,
			RequestsPerSecond: providerCfg.RequestsPerSecond,
			Burst:             providerCfg.Burst,
			PageSize:          providerCfg.PageSize,
			Timeout:           providerCfg.Timeout,
			Logger:            logger,
		})
		rec := reconcile.New(entityRepo, linkRepo, logger)
		cursors := reconcile.NewCursorTracker(cursorRepo)
		return syncer.NewOrchestrator(client, rec, cursors, entityRepo, providerCfg.HydrateBatch, logger)
	}

	resolver := dispatch.StaticCredentialResolver{Creds: provider.Credentials{
		AccessToken: providerCfg.AccessToken,
		AppID:       providerCfg.AppID,
		Secret:      providerCfg.Secret,
	}}

	return dispatch.NewDispatcher(
		runRepo, idempotencyRepo, lockManager, bindingRepo, rateLimitRepo,
		resolver, factory, audit.NewLogSink(logger),
		dispatch.Options{
			WorkerID:           app.config.Dispatch.WorkerID,
			LockWait:           app.config.Dispatch.LockWait,
			TriggerMinInterval: app.config.Dispatch.TriggerMinInterval,
		},
		logger,
	)
}

func (app *application) startSyncWorker(logger zerolog.Logger) *worker.Worker {
	syncWorker := worker.New(app.temporalClient, app.newDispatcher(logger))

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := syncWorker.Run(nil); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return syncWorker
}

func (app *application) startScheduler(logger zerolog.Logger) *scheduler.Scheduler {
	cronScheduler := scheduler.New(app.temporalClient, logger)
	for _, sched := range app.config.Schedules {
		if err := cronScheduler.Register(sched); err != nil {
			logger.Fatal().Err(err).Str("schedule", sched.Name).Msg("Invalid schedule")
		}
	}
	cronScheduler.Start()
	return cronScheduler
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, syncWorker *worker.Worker, cronScheduler *scheduler.Scheduler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop recurring schedules before the worker so nothing new enqueues.
	logger.Info().Msg("Stopping scheduler...")
	cronScheduler.Stop()

	// Stop the Temporal worker.
	logger.Info().Msg("Stopping Temporal worker...")
	syncWorker.Stop()
	logger.Info().Msg("Temporal worker stopped.")
}

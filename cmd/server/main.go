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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/config"
	"github.com/acadium/acadium-api/internal/handlers"
	"github.com/acadium/acadium-api/internal/invitation"
	"github.com/acadium/acadium-api/internal/license"
	"github.com/acadium/acadium-api/internal/middleware"
	"github.com/acadium/acadium-api/internal/migration"
	"github.com/acadium/acadium-api/internal/notification"
	"github.com/acadium/acadium-api/internal/reconciler"
	"github.com/acadium/acadium-api/internal/repository"
	"github.com/acadium/acadium-api/internal/routes"
	"github.com/acadium/acadium-api/internal/security"
	"github.com/acadium/acadium-api/internal/security/ratelimit"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

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

	app := &application{config: cfg, db: db, logger: logger}

	// Repositories
	invitationRepo := repository.NewInvitationRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)
	userRepo := repository.NewUserRepository(db)
	securityEventRepo := repository.NewSecurityEventRepository(db)

	// Redis backs the rate limiter and the membership event feed when
	// configured; otherwise both fall back to in-process implementations.
	limiter, feed := app.initRedis(logger)
	defer limiter.Stop()
	defer feed.Close()

	// Services
	mailer := app.initMailer(logger)
	ledger := license.NewLedger(subscriberRepo, invitationRepo, logger)
	registry := invitation.NewRegistry(invitationRepo, ledger, mailer, cfg.Email.InviteURLTemplate, logger)
	securityEvents := security.NewEventRecorder(securityEventRepo, logger)

	// Reconciler runs for the lifetime of the server and is torn down
	// with the shutdown context.
	rec := reconciler.New(registry, invitationRepo, userRepo, feed, cfg.Reconciler.SweepInterval, cfg.Reconciler.ExpiryInterval, logger)
	rec.OnRefresh(func(tenantID string) {
		logger.Debug().Str("tenant_id", tenantID).Msg("invitation state changed")
	})

	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	go func() {
		if err := rec.Run(reconcilerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("reconciler exited")
		}
	}()

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, subscriberRepo, securityEvents, cfg.JWTSecret, logger)
	invitationHandler := handlers.NewInvitationHandler(registry, userRepo, limiter, securityEvents, feed, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(ledger, logger)
	teamHandler := handlers.NewTeamHandler(userRepo, ledger, securityEvents, logger)

	router := routes.NewRouter(authHandler, invitationHandler, subscriptionHandler, teamHandler)
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, stopReconciler, logger)

	logger.Info().Msg("Application terminated.")
}

// initRedis wires the shared-state backends. Redis is optional: a single
// replica works fine on the in-process fallbacks.
func (app *application) initRedis(logger zerolog.Logger) (ratelimit.Limiter, reconciler.EventFeed) {
	if app.config.RedisURL == "" {
		logger.Info().Msg("redis not configured, using in-process rate limiter and event feed")
		return ratelimit.NewMemoryLimiter(app.config.RateLimit.InvitesPerMinute, time.Minute), reconciler.NewInProcessFeed()
	}

	opts, err := redis.ParseURL(app.config.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid redis url")
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	feed, err := reconciler.NewRedisFeed(app.config.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create membership event feed")
	}

	return ratelimit.NewRedisLimiter(rdb, app.config.RateLimit.InvitesPerMinute, time.Minute), feed
}

func (app *application) initMailer(logger zerolog.Logger) notification.InviteMailer {
	switch app.config.Email.Provider {
	case "sendgrid":
		mailer, err := notification.NewSendGridInviteMailer(app.config.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure sendgrid mailer")
		}
		return mailer
	case "console":
		return notification.NewConsoleInviteMailer(logger)
	default:
		mailer, err := notification.NewSMTPInviteMailer(app.config.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure smtp mailer")
		}
		return mailer
	}
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, stopReconciler context.CancelFunc, logger zerolog.Logger) {
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

	// Stop the reconciler loop.
	logger.Info().Msg("Stopping reconciler...")
	stopReconciler()
	logger.Info().Msg("Reconciler stopped.")
}

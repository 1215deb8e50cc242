package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/telehealth-meet/internal/adapters/database"
	"github.com/zatekoja/telehealth-meet/internal/adapters/healthcare"
	"github.com/zatekoja/telehealth-meet/internal/adapters/lock"
	"github.com/zatekoja/telehealth-meet/internal/adapters/providers/calendar"
	"github.com/zatekoja/telehealth-meet/internal/api/handlers"
	"github.com/zatekoja/telehealth-meet/internal/api/routes"
	"github.com/zatekoja/telehealth-meet/internal/api/session"
	"github.com/zatekoja/telehealth-meet/internal/application/services"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/providers"
	"github.com/zatekoja/telehealth-meet/internal/domain/repositories"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/clients/google"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/clients/redis"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
	"github.com/zatekoja/telehealth-meet/pkg/config"
	"github.com/zatekoja/telehealth-meet/pkg/secrets"
	"golang.org/x/oauth2"
)

func main() {
	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets from Vault land in the environment before configuration is read
	vaultResult, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env, cfg.Settings.DebugLogging)
	if vaultResult.Enabled {
		log.Info().
			Str("path", vaultResult.Path).
			Strs("loaded", vaultResult.Loaded).
			Strs("skipped", vaultResult.Skipped).
			Msg("Vault secrets applied")
	}

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// FHIR store, accessed with the service's own credentials
	serviceCreds, err := google.NewServiceCredentials(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve Google service credentials")
	}
	encounterRepo, err := healthcare.NewFHIRStoreAdapter(ctx, cfg.Settings.FHIRStore, serviceCreds.ClientOptions()...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize FHIR store adapter")
	}
	log.Info().Str("fhir_store", cfg.Settings.FHIRStore).Msg("FHIR store adapter initialized")

	// Per-encounter locking: Redis when shared across replicas, in-process otherwise
	var locker providers.EncounterLocker
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis client, falling back to in-process locks")
		} else {
			defer redisClient.Close()
			locker = lock.NewRedisLocker(redisClient, cfg.Lock.TTL)
			log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis encounter locks enabled")
		}
	}
	if locker == nil {
		locker = lock.NewMemoryLocker(cfg.Lock.TTL)
	}

	// Meeting event ledger
	var ledger repositories.MeetingEventRepository
	if cfg.Database.Enabled {
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()

		eventAdapter := database.NewMeetingEventAdapter(pgClient.DB())
		if err := eventAdapter.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure meeting event schema")
		}
		reportOrphanedEvents(ctx, eventAdapter)
		ledger = eventAdapter
		log.Info().Msg("Meeting event ledger initialized")
	}

	// Calendar provider and user sessions
	calendarProvider := calendar.NewCalendarProvider(calendar.ProviderConfig{
		OAuthConfigured: cfg.Settings.CalendarOAuthConfigured(),
		CalendarID:      cfg.Settings.CalendarID,
	})

	var oauthConfig *oauth2.Config
	if cfg.Settings.CalendarOAuthConfigured() {
		oauthConfig = google.NewCalendarOAuthConfig(
			cfg.Settings.CalendarClientID,
			cfg.Settings.CalendarClientSecret,
			cfg.Settings.OAuthRedirectURL,
		)
	}
	sessionManager := session.NewManager(cfg.Settings.SessionCookieSecret, !cfg.IsDev(), oauthConfig)

	// Initialize services
	meetingService := services.NewMeetingService(encounterRepo, calendarProvider, locker, ledger, metrics)

	// Initialize handlers
	meetingHandler := handlers.NewMeetingHandler(meetingService, sessionManager)
	authHandler := handlers.NewAuthHandler(sessionManager)
	settingsHandler := handlers.NewSettingsHandler(cfg.Settings.FHIRClientID)

	// Set up router
	router := routes.NewRouter(
		meetingHandler,
		authHandler,
		settingsHandler,
		routes.StaticDirs{
			Root:       cfg.Settings.StaticDir,
			FHIRClient: cfg.Settings.FHIRClientDir,
			JQuery:     cfg.Settings.JQueryDir,
		},
		cfg.Server.AllowedOrigins,
		metrics,
	)
	handler := router.SetupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Server.Env).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// reportOrphanedEvents warns about calendar events a previous run could not
// delete, so they can be cleaned up by hand.
func reportOrphanedEvents(ctx context.Context, ledger repositories.MeetingEventRepository) {
	orphaned, err := ledger.ListByStatus(ctx, entities.MeetingEventStatusOrphaned, 20)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list orphaned calendar events")
		return
	}
	for _, event := range orphaned {
		log.Warn().
			Str("encounter_id", event.EncounterID).
			Str("event_id", event.EventID).
			Time("created_at", event.CreatedAt).
			Msg("Orphaned calendar event from a previous request")
	}
}

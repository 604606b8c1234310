package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/salonchat/supportdesk/internal/api/router"
	"github.com/salonchat/supportdesk/internal/app/bootstrap"
	"github.com/salonchat/supportdesk/internal/appointments"
	"github.com/salonchat/supportdesk/internal/assistant"
	"github.com/salonchat/supportdesk/internal/catalog"
	appconfig "github.com/salonchat/supportdesk/internal/config"
	"github.com/salonchat/supportdesk/internal/notify"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/internal/realtime"
	"github.com/salonchat/supportdesk/internal/reminders"
	"github.com/salonchat/supportdesk/internal/sessions"
	"github.com/salonchat/supportdesk/internal/webchat"
	"github.com/salonchat/supportdesk/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting supportdesk API server", "env", cfg.Env, "port", cfg.Port)

	if err := run(cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := bootstrap.BuildRedisClient(ctx, cfg, true)
	if err != nil {
		return err
	}
	if redisClient == nil {
		return errors.New("REDIS_ADDR is required")
	}
	defer func() { _ = redisClient.Close() }()

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}
		awsCfg = &loaded
	}

	llm, closeLLM, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	defer closeLLM()

	widgetJS, err := loadWidgetScript(cfg.WidgetScriptPath)
	if err != nil {
		return err
	}

	registry, metricsHandler := setupMetrics()
	app := wire(cfg, logger, pool, redisClient, awsCfg, llm, registry, widgetJS)
	app.router.MetricsHandler = metricsHandler
	app.router.ReadinessChecks = map[string]router.HealthCheck{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(app.router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type application struct {
	router *router.Config
	hub    *realtime.Hub
}

// wire builds every service and handler on top of the shared clients.
func wire(cfg *appconfig.Config, logger *logging.Logger, pool *pgxpool.Pool, redisClient *redis.Client, awsCfg *aws.Config, llm assistant.LLMClient, registry prometheus.Registerer, widgetJS []byte) *application {
	loc := venueLocation(cfg.VenueTimezone, logger)

	catalogStore := catalog.NewStore(redisClient)
	hub := realtime.NewHub(cfg.CORSAllowedOrigins, logger)
	emailSender, provider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	logger.Info("email provider selected", "provider", provider)
	dispatcher := notify.NewDispatcher(hub, emailSender, cfg.StaffNotifyEmail, logger)

	reminderStore := reminders.NewStore(pool)
	scheduler := reminders.NewScheduler(reminderStore, catalogStore, loc, logger)

	sessionStore := sessions.NewStore(pool)
	sessionService := sessions.NewService(sessionStore, catalogStore, scheduler, logger)

	apptService := appointments.NewService(
		appointments.NewStore(pool),
		catalogStore,
		sessionStore,
		scheduler,
		dispatcher,
		metrics.NewSchedulingMetrics(registry),
		appointments.Options{
			Location:           loc,
			MinBookingNotice:   cfg.MinBookingNotice,
			AdvanceBookingDays: cfg.AdvanceBookingDays,
		},
		logger,
	)

	chatMetrics := metrics.NewChatMetrics(registry)
	assistantService := assistant.NewService(llm, catalogStore, cfg.AssistantLanguage, cfg.AssistantTimeout, chatMetrics, logger)

	// The webchat wants a nil Responder, not a typed nil, when no model is wired.
	var responder webchat.Responder
	if assistantService.Enabled() {
		responder = assistantService
	}
	chat := webchat.NewHandler(webchat.NewTranscriptStore(redisClient), responder, dispatcher, chatMetrics, widgetJS, logger)
	if store := bootstrap.BuildArchiveStore(cfg, awsCfg, logger); store != nil {
		chat.WithArchiver(store)
	}

	return &application{
		hub: hub,
		router: &router.Config{
			Logger:              logger,
			CatalogHandler:      catalog.NewHandler(catalogStore, logger),
			AppointmentsHandler: appointments.NewHandler(apptService, logger),
			SessionsHandler:     sessions.NewHandler(sessionService, logger),
			RemindersHandler:    reminders.NewHandler(reminderStore, logger),
			AssistantHandler:    assistant.NewHandler(assistantService, logger),
			WebchatHandler:      chat,
			StaffEvents:         hub,
			StaffJWTSecret:      cfg.StaffJWTSecret,
			CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
			PublicRateLimit:     5,
			PublicRateBurst:     20,
		},
	}
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func venueLocation(name string, logger *logging.Logger) *time.Location {
	if strings.TrimSpace(name) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown venue timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

func loadWidgetScript(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read widget script: %w", err)
	}
	return data, nil
}

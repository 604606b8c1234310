package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/salonchat/supportdesk/internal/app/bootstrap"
	appconfig "github.com/salonchat/supportdesk/internal/config"
	"github.com/salonchat/supportdesk/internal/notify"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/internal/reminders"
	"github.com/salonchat/supportdesk/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).With("component", "reminder-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("reminder worker requires postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := bootstrap.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}
	emailSender, provider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	logger.Info("email provider selected", "provider", provider)

	// Dashboard pushes live in the API process; the worker only emails.
	dispatcher := notify.NewDispatcher(nil, emailSender, cfg.StaffNotifyEmail, logger)

	registry := prometheus.NewRegistry()
	worker := reminders.NewWorker(reminders.NewStore(pool), dispatcher, metrics.NewReminderMetrics(registry), logger).
		WithInterval(cfg.ReminderPollInterval).
		WithBatchSize(cfg.ReminderBatchSize).
		WithMaxAttempts(cfg.ReminderMaxAttempts)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	logger.Info("reminder worker started",
		"interval", cfg.ReminderPollInterval.String(),
		"batch_size", cfg.ReminderBatchSize,
		"max_attempts", cfg.ReminderMaxAttempts,
	)
	worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("reminder worker stopped")
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finbrief/internal/amqp"
	"finbrief/internal/config"
	"finbrief/internal/mailer"
	"finbrief/internal/mailer/gmail"
	"finbrief/internal/report"
	"finbrief/internal/services"
	"finbrief/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting report-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath, cfg.CommitTimeout)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Outcome publishing is optional; without a broker the runner still
	// commits outcomes, it just emits no events.
	var publisher services.OutcomePublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP outcome publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	m, err := buildMailer(cfg)
	if err != nil {
		logger.Error("Failed to initialize mailer", "error", err, "backend", cfg.MailBackend)
		os.Exit(1)
	}
	logger.Info("Mailer initialized", "backend", cfg.MailBackend)

	runner := services.NewReportJobRunner(services.NewStore(repo), report.NewGenerator(repo), m, publisher)
	recurring := services.NewRecurringProcessor(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runOnce := func() {
		now := time.Now().UTC()
		if _, err := recurring.ProcessDue(ctx, now); err != nil {
			logger.Error("Recurring transaction processing failed", "error", err)
		}
		result := runner.RunCycle(ctx, now)
		if result.Err != nil {
			logger.Error("Report cycle aborted", "error", result.Err,
				"processed", result.ProcessedCount, "failed", result.FailedCount)
		}
	}

	// Process anything already due before the first tick.
	runOnce()

	ticker := time.NewTicker(cfg.ReportCheckInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()
	logger.Info("report-worker stopped")
}

// buildMailer selects the delivery backend from configuration.
func buildMailer(cfg *config.Config) (mailer.Mailer, error) {
	switch cfg.MailBackend {
	case "smtp":
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}), nil
	case "gmail":
		return gmail.NewFromEnv(context.Background())
	default:
		return mailer.LogMailer{}, nil
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"treasury/internal/amqp"
	"treasury/internal/api"
	"treasury/internal/config"
	"treasury/internal/log"
	"treasury/internal/sheets"
	gsheet "treasury/internal/sheets/google"
	"treasury/internal/storage"
	"treasury/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentWorker,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	logger.Info("Starting treasury-export-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if !cfg.AsyncExports() {
		logger.Error("AMQP_URL is required to run the export worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := api.NewClient(api.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout})
	if err != nil {
		logger.Error("Failed to create API client", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher sheets.TablePublisher
	if cfg.ExportTarget == config.ExportTargetSheets {
		sheetsClient, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		publisher = sheetsClient
		logger.Info("Google Sheets export target enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
			logger.Error("Failed to create export directory", log.FieldError, err, "dir", cfg.ExportDir)
			os.Exit(1)
		}
		logger.Info("Writing xlsx exports", "dir", cfg.ExportDir)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(worker.Config{
		Jobs:      repo,
		Sessions:  repo,
		Fetcher:   client,
		Publisher: publisher,
		ExportDir: cfg.ExportDir,
		Logger:    logger,
	})

	// jobs left running by a crashed worker would otherwise stay running forever
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup check", log.FieldError, err)
	}

	go func() {
		if err := amqpClient.ConsumeExportRequests(ctx, exportWorker.HandleExportRequested); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	cancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}

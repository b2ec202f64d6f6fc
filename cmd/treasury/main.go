package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"treasury/internal/amqp"
	"treasury/internal/api"
	"treasury/internal/cache"
	"treasury/internal/config"
	"treasury/internal/format"
	apphttp "treasury/internal/http"
	"treasury/internal/log"
	"treasury/internal/middleware/ratelimit"
	"treasury/internal/report"
	"treasury/internal/services"
	"treasury/internal/session"
	"treasury/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	cur, err := format.NewCurrency(cfg.CurrencyLocale, cfg.CurrencyCode)
	if err != nil {
		logger.Error("Invalid currency settings", log.FieldError, err)
		os.Exit(1)
	}

	client, err := api.NewClient(api.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout})
	if err != nil {
		logger.Error("Failed to create API client", log.FieldError, err)
		os.Exit(1)
	}

	var (
		store  session.Store
		repo   *storage.SQLiteRepository
		checks []apphttp.Check
	)
	if cfg.SessionBackend == config.SessionBackendSQLite {
		repo, err = storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		checks = append(checks, apphttp.Check{Name: "database", Run: repo.Ping})
		logger.Info("Sessions stored in SQLite", "path", cfg.SQLiteDBPath)
	} else {
		store = session.NewMemoryStore()
		logger.Info("Sessions kept in memory")
	}
	sessions := session.NewManager(store, cfg.SessionTTL)

	reports := services.NewReportService(client, report.NewSlots(), cur, cfg.APITimeout, logger)
	setup := services.NewSetupService(client, 256, logger)

	caches := cache.NewManager(logger)
	for _, c := range setup.Caches() {
		caches.Register(c)
	}
	caches.StartCleanup(5 * time.Minute)
	defer caches.Stop()

	sessions.OnEnd(func(id string) {
		reports.Forget(id)
		setup.Forget(id)
	})

	var exports *services.ExportService
	if cfg.AsyncExports() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		exports = services.NewExportService(repo, amqpClient, cfg.ExportTarget, logger)
		checks = append(checks, apphttp.Check{Name: "amqp", Run: func(context.Context) error {
			if !amqpClient.IsHealthy() {
				return errors.New("amqp connection unhealthy")
			}
			return nil
		}})
		logger.Info("Background exports enabled", log.FieldExportTarget, cfg.ExportTarget)
	} else {
		logger.Info("Background exports disabled - no AMQP_URL provided")
	}

	srvCfg := apphttp.Config{
		Addr:         ":" + cfg.Port,
		Reports:      reports,
		Setup:        setup,
		Auth:         client,
		Sessions:     sessions,
		Currency:     cur,
		ExportDir:    cfg.ExportDir,
		CookieSecure: cfg.CookieSecure,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		Checks: checks,
		Logger: logger,
	}
	// a typed nil would make the interface non-nil
	if exports != nil {
		srvCfg.Exports = exports
	}

	srv, err := apphttp.NewServer(srvCfg)
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweepSessions(ctx, sessions, logger)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting treasury server",
		"port", cfg.Port,
		"api", cfg.APIBaseURL,
		"sessions", cfg.SessionBackend,
		"currency", cur.Locale()+"/"+cfg.CurrencyCode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

func sweepSessions(ctx context.Context, sessions *session.Manager, logger *log.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				logger.Error("Session sweep failed", log.FieldError, err)
				continue
			}
			if n > 0 {
				logger.Info("Expired sessions removed", log.FieldItemCount, n)
			}
		}
	}
}

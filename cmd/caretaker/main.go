package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"caretaker/internal/actionlog"
	"caretaker/internal/amqp"
	"caretaker/internal/auth"
	"caretaker/internal/backend"
	"caretaker/internal/cache"
	"caretaker/internal/config"
	apphttp "caretaker/internal/http"
	"caretaker/internal/ledger"
	applog "caretaker/internal/log"
	"caretaker/internal/remote"
	"caretaker/internal/services"
	"caretaker/internal/storage"
	"caretaker/internal/store"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	be, err := backend.New(cfg, slog.Default())
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}

	// The remote user directory rides the same REST backend; any other
	// backend leaves auth purely local.
	var directory auth.Directory
	if backend.Type(cfg.DataBackend) == backend.RESTBackend {
		directory = remote.New(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.RemoteTimeout)
	}

	// The queue is optional; without it writes are mirrored by direct
	// background pushes.
	var publisher store.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - sync falls back to direct pushes")
	}

	stores := store.NewManager(repo, be, publisher, logger.WithComponent(applog.ComponentStore))

	authSvc := auth.NewService(repo, directory, cfg.SessionTTL, logger.WithComponent(applog.ComponentAuth))
	actions := actionlog.NewLogger(stores, logger.WithComponent(applog.ComponentActionLog))
	worklog := ledger.NewWorklog(stores, actions, logger.WithComponent(applog.ComponentLedger))
	shevah := ledger.NewShevah(stores, logger.WithComponent(applog.ComponentLedger))
	elder := ledger.NewElder(stores, logger.WithComponent(applog.ComponentLedger))
	settings := services.NewSettingsService(stores, logger.WithComponent(applog.ComponentApp))

	views := cache.New[services.MonthView](cfg.CacheSize, cfg.CacheTTL)
	views.StartJanitor(10 * time.Minute)
	defer views.StopJanitor()
	payslips := services.NewPayslipService(stores, settings, worklog, shevah, views,
		logger.WithComponent(applog.ComponentPayslip))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:     authSvc,
		Stores:   stores,
		Worklog:  worklog,
		Shevah:   shevah,
		Elder:    elder,
		Payslips: payslips,
		Settings: settings,
		Actions:  actions,
		Logger:   logger.WithComponent(applog.ComponentHTTP),
	})
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting caretaker server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

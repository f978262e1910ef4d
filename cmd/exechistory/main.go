package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/exechistory/internal/config"
	"github.com/efreitasn/exechistory/internal/engine"
	"github.com/efreitasn/exechistory/internal/handler"
	"github.com/efreitasn/exechistory/internal/metrics"
	"github.com/efreitasn/exechistory/internal/notify"
	"github.com/efreitasn/exechistory/internal/service"
	"github.com/efreitasn/exechistory/internal/store"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	m := metrics.New()

	// Ledger store: Postgres when a DSN is configured, in memory otherwise.
	var reportStore store.ReportStore
	if cfg.DatabaseDSN != "" {
		gs, err := store.OpenGormReportStore(cfg.DatabaseDSN, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			logger.Error("failed to open ledger database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer gs.Close()
		reportStore = gs
		logger.Info("ledger backed by postgres")
	} else {
		reportStore = store.NewMemoryReportStore()
		logger.Info("ledger kept in memory")
	}

	history := engine.NewHistory(engine.WithLogger(logger), engine.WithMetrics(m))
	logger = logger.With(slog.String("session_id", history.SessionID()))

	// Notification sinks.
	var sinks []notify.Sink
	var kafkaSink *notify.KafkaSink
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = notify.NewKafkaSink(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		sinks = append(sinks, kafkaSink)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fanout *notify.Fanout
	if len(sinks) > 0 {
		fanout = notify.NewFanout(history.SessionID(), cfg.NotifyBuffer, logger, m, sinks...)
		fanout.Start(ctx)
		history.Subscribe(fanout)
		logger.Info("change notifications enabled", slog.Int("sinks", len(sinks)))
	}

	// Services.
	ledgerSvc := service.NewLedgerService(reportStore, logger, m)
	reportSvc := service.NewReportService(history, ledgerSvc, cfg.PersistIncoming, logger)

	// Router.
	router := handler.NewRouter(reportSvc, ledgerSvc, m, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, drain notifications, then cancel
	// the context shared by the sink workers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if fanout != nil {
		fanout.Close()
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("kafka writer close error", slog.String("error", err.Error()))
		}
	}
	cancel()

	logger.Info("server stopped")
}

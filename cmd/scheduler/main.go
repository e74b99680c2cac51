package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"database/sql"

	"github.com/avezhov/finance-service/internal/alerts"
	"github.com/avezhov/finance-service/internal/config"
	"github.com/avezhov/finance-service/internal/integrations/insights"
	"github.com/avezhov/finance-service/internal/recurring"
	"github.com/avezhov/finance-service/internal/reports"
	"github.com/avezhov/finance-service/internal/repository"
	"github.com/avezhov/finance-service/internal/scheduler"
	"github.com/avezhov/finance-service/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize components
	repo := repository.NewRepository(db)
	sender := email.NewSender(cfg, logger)
	insightsClient := insights.NewClient(cfg, logger)

	selector := recurring.NewSelector(repo, logger)
	materializer := recurring.NewMaterializer(repo, logger)
	dispatcher := recurring.NewDispatcher(materializer, logger, recurring.DispatcherConfig{
		Workers:            cfg.WorkerCount,
		MaxRetries:         cfg.MaxRetries,
		BaseDelay:          cfg.RetryBaseDelay,
		OwnerRatePerMinute: cfg.OwnerRatePerMinute,
	})
	monitor := alerts.NewMonitor(repo, sender, logger)
	generator := reports.NewGenerator(repo, insightsClient, sender, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(cfg, logger, selector, dispatcher, monitor, generator)
	if err := sched.Start(ctx); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received signal %s, shutting down", sig)

	cancel()
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timed out")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/api"
	"simrig-booking-backend/internal/booking"
	"simrig-booking-backend/internal/db"
	"simrig-booking-backend/internal/housekeeping"
	"simrig-booking-backend/internal/localtime"
	"simrig-booking-backend/internal/logging"
	"simrig-booking-backend/internal/notification"
	"simrig-booking-backend/internal/queue"
	"simrig-booking-backend/internal/schedule"
	"simrig-booking-backend/internal/session"
	"simrig-booking-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Warn("VAPID keys are not configured; queue notifications will fail to send")
	}
	if cfg.Server.OperatorToken == "" {
		logger.Warn("operator token is empty; operator endpoints are open")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	engine, err := schedule.NewEngine(appStore, cfg.Business, localtime.SystemClock, logger.Named("schedule"))
	if err != nil {
		logger.Fatal("invalid business hours", zap.Error(err))
	}

	workers := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, &webpushOptions, logger.Named("notification"))
	workers.Start(ctx)

	queueSvc, err := queue.NewService(appStore, workers, cfg.Business, localtime.SystemClock, logger.Named("queue"))
	if err != nil {
		logger.Fatal("failed to initialize queue", zap.Error(err))
	}
	sessionSvc := session.NewService(appStore, localtime.SystemClock, logger.Named("session"))
	bookingSvc := booking.NewService(appStore, engine, logger.Named("booking"))

	sweeper, err := housekeeping.NewService(cfg.Housekeeping, cfg.Business, appStore, localtime.SystemClock, logger.Named("housekeeping"))
	if err != nil {
		logger.Fatal("failed to initialize housekeeping", zap.Error(err))
	}
	go sweeper.Run(ctx)

	router := api.NewRouter(api.Services{
		Store:    appStore,
		Engine:   engine,
		Bookings: bookingSvc,
		Queue:    queueSvc,
		Sessions: sessionSvc,
	}, cfg.Server, &webpushOptions, logger.Named("api"))
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("HTTP server Shutdown", zap.Error(err))
	}

	logger.Info("Server gracefully stopped")
}

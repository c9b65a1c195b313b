package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"generichttp/pkg/api"
	"generichttp/pkg/config"
	"generichttp/pkg/database"
	"generichttp/pkg/health"
	"generichttp/pkg/metrics"
	"generichttp/pkg/models"
	"generichttp/pkg/persistence"
	"generichttp/pkg/poller"
	"generichttp/pkg/registry"
	"generichttp/pkg/scheduler"
	"generichttp/pkg/transport"

	"github.com/gin-gonic/gin"
)

func main() {
	// ══════════════════════════════════════════════════════════════
	// CONFIGURATION
	// ══════════════════════════════════════════════════════════════
	conf, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load conf", "error", err)
		os.Exit(1)
	}

	// ══════════════════════════════════════════════════════════════
	// STRUCTURED LOGGING
	// ══════════════════════════════════════════════════════════════
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: conf.SlogLevel()}))
	slog.SetDefault(logger)
	slog.Info("Config loaded", "devices_file", conf.DevicesFile, "tick_interval_ms", conf.SchedulerTickIntervalMs, "db_enabled", conf.DBEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := api.Auth(conf)
	promMetrics := metrics.New("generichttp")

	// ══════════════════════════════════════════════════════════════
	// COMMUNICATION CHANNELS - One per topic
	// ══════════════════════════════════════════════════════════════
	deviceEventChan := make(chan models.Event, conf.InternalQueueSize)
	healthEventChan := make(chan models.Event, conf.InternalQueueSize)
	schedulerToPollerChan := make(chan []string, conf.InternalQueueSize)
	registryRequestChan := make(chan models.Request, conf.InternalQueueSize)

	var pollResultChan chan models.PollResult
	var historyRequestChan chan models.Request

	// ══════════════════════════════════════════════════════════════
	// DEVICES
	// ══════════════════════════════════════════════════════════════
	deviceRegistry := registry.NewRegistry(
		registryRequestChan,
		deviceEventChan,
		transport.NewClient(),
		promMetrics,
		conf.EncryptionKey,
	)

	configs, err := models.LoadDevices(conf.DevicesFile)
	if err != nil {
		// Usable definitions are still returned next to the errors of the others
		slog.Error("Some device definitions were skipped", "file", conf.DevicesFile, "error", err)
	}
	if err := deviceRegistry.Load(configs); err != nil {
		slog.Error("Some devices could not be built", "error", err)
	}
	slog.Info("Devices loaded", "count", len(deviceRegistry.DeviceIDs()))

	// ══════════════════════════════════════════════════════════════
	// DATABASE (optional value history)
	// ══════════════════════════════════════════════════════════════
	var historyService *persistence.HistoryService
	if conf.DBEnabled {
		db, err := database.Connect(conf)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		pollResultChan = make(chan models.PollResult, conf.InternalQueueSize)
		historyRequestChan = make(chan models.Request, conf.InternalQueueSize)
		historyService = persistence.NewHistoryService(
			pollResultChan,
			historyRequestChan,
			database.NewGormRepository[models.PortSample](db),
			promMetrics,
			conf.HistoryDefaultLimit,
			conf.HistoryDefaultLookbackHours,
			time.Duration(conf.HistoryRetentionHours)*time.Hour,
		)
	}

	// ══════════════════════════════════════════════════════════════
	// SERVICES
	// ══════════════════════════════════════════════════════════════
	sched := scheduler.NewScheduler(
		deviceEventChan,
		registryRequestChan,
		schedulerToPollerChan,
		time.Duration(conf.SchedulerTickIntervalMs)*time.Millisecond,
	)
	sched.InitQueue(deviceRegistry.DeviceIDs())

	poll := poller.NewPoller(
		conf.PollingWorkerConcurrency,
		conf.InternalQueueSize,
		registryRequestChan,
		schedulerToPollerChan,
		pollResultChan,
		healthEventChan,
		promMetrics,
	)

	healthMonitor := health.NewHealthMonitor(
		healthEventChan,
		registryRequestChan,
		time.Duration(conf.HealthFailureWindowSeconds)*time.Second,
		conf.HealthFailureThreshold,
	)

	// ══════════════════════════════════════════════════════════════
	// START SERVICES
	// ══════════════════════════════════════════════════════════════
	go deviceRegistry.Run(ctx)
	go sched.Run(ctx)
	go poll.Run(ctx)
	go healthMonitor.Run(ctx)
	if historyService != nil {
		go historyService.Run(ctx)
	}

	// ══════════════════════════════════════════════════════════════
	// ROUTER SETUP
	// ══════════════════════════════════════════════════════════════
	router := gin.New()
	router.Use(gin.Recovery(), api.SecurityHeaders())

	// Public routes (no auth)
	router.POST("/login", auth.LoginHandler)
	api.RegisterMetricsRoute(router, promMetrics)

	// Protected routes - all use channels
	apiGroup := router.Group("/api/v1")
	apiGroup.Use(auth.JWTMiddleware())
	{
		api.RegisterDeviceRoutes(apiGroup, registryRequestChan)
		if historyRequestChan != nil {
			api.RegisterHistoryRoute(apiGroup, historyRequestChan)
		}
	}

	// ══════════════════════════════════════════════════════════════
	// START SERVER
	// ══════════════════════════════════════════════════════════════
	srv := &http.Server{
		Addr:              conf.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if conf.TLSCertFile != "" && conf.TLSKeyFile != "" {
			slog.Info("Starting HTTPS server", "address", conf.ServerAddress)
			err = srv.ListenAndServeTLS(conf.TLSCertFile, conf.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server", "address", conf.ServerAddress)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridecore/internal/app"
	"ridecore/internal/config"
	"ridecore/internal/handler"
	"ridecore/internal/pricing"
	internalRedis "ridecore/internal/redis"
	"ridecore/internal/repository/postgres"
	"ridecore/internal/service"
)

func main() {
	cfg := config.Load()
	logger := app.NewLogger(cfg.Log)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize New Relic")
		} else {
			logger.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()

	notifier, closeNotifier, err := app.NewNotifier(cfg.RabbitMQ, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to RabbitMQ")
	}
	defer closeNotifier()

	server, reconciler := wireServer(db, redisClient, nrApp, notifier, logger, cfg)

	runCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go reconciler.Run(runCtx)

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	stopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// ride view reconciler.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	notifier service.Notifier,
	logger *logrus.Logger,
	cfg *config.Config,
) (*http.Server, *service.Reconciler) {
	// Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// PostgreSQL repositories.
	userRepo := postgres.NewUserRepository(db)
	vehicleRepo := postgres.NewVehicleRepository(db)
	driverRepo := postgres.NewDriverRepository(db)
	promoRepo := postgres.NewPromotionRepository(db)

	releaser := service.NewDriverReleaser(driverRepo, locationStore, logger)
	rideStore := internalRedis.NewRideStore(redisClient, releaser)

	surge, err := app.NewSurgePolicy(cfg.Pricing, locationStore, rideStore, logger)
	if err != nil {
		logger.WithError(err).Fatal("invalid pricing configuration")
	}
	engine := pricing.NewEngine(pricing.WithCurrency(cfg.Pricing.Currency))

	// Services.
	matchingService := service.NewMatchingService(
		locationStore, lockStore, cacheStore,
		driverRepo, vehicleRepo, userRepo, rideStore,
		logger,
		service.MatchingConfig{
			RadiusKm:      cfg.Matching.RadiusKm,
			MinCandidates: cfg.Matching.MinCandidates,
			LockTTL:       cfg.Matching.LockTTL,
		},
	)
	rideService := service.NewRideService(rideStore, promoRepo, engine, surge, matchingService, notifier, logger)
	driverService := service.NewDriverService(locationStore, driverRepo, notifier, logger)
	reconciler := service.NewReconciler(rideStore, logger, service.ReconcileConfig{
		Interval:      cfg.Reconcile.Interval,
		SweepInterval: cfg.Reconcile.SweepInterval,
		BatchSize:     int64(cfg.Reconcile.BatchSize),
	})

	router := app.NewRouter(app.RouterDeps{
		RideHandler:   handler.NewRideHandler(rideService),
		DriverHandler: handler.NewDriverHandler(driverService),
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		Logger:        logger,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, reconciler
}

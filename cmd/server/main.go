// Command server runs the trip detection core: the telemetry ingestion
// HTTP/Kafka endpoints, the dispatcher/reaper scheduler loops, and the
// operator maintenance API, all wired against one Postgres/Redis pair.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/drivelog/tripcore/internal/collaborators"
	"github.com/drivelog/tripcore/internal/config"
	"github.com/drivelog/tripcore/internal/connection"
	"github.com/drivelog/tripcore/internal/database"
	"github.com/drivelog/tripcore/internal/dispatcher"
	"github.com/drivelog/tripcore/internal/eventstore"
	"github.com/drivelog/tripcore/internal/health"
	"github.com/drivelog/tripcore/internal/httpmw"
	"github.com/drivelog/tripcore/internal/logging"
	"github.com/drivelog/tripcore/internal/operator"
	"github.com/drivelog/tripcore/internal/reaper"
	"github.com/drivelog/tripcore/internal/reconstruct"
	"github.com/drivelog/tripcore/internal/scheduler"
	"github.com/drivelog/tripcore/internal/statemachine"
	"github.com/drivelog/tripcore/internal/telemetry"
	"github.com/drivelog/tripcore/internal/tripwriter"
)

const serviceName = "tripcore"
const serviceVersion = "1.0.0"

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log := logging.Default()
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logger := logging.New(logCfg)

	logger.Info("starting tripcore", "environment", cfg.Environment, "version", serviceVersion)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("database migrate failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database ready")

	redisClient, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		logger.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("redis ready")

	events := eventstore.New(db)
	connections := connection.New(db)
	locker := connection.NewLocker(redisClient, 30*time.Second)

	geocoder := &collaborators.HTTPGeocoder{
		BaseURL: cfg.Collaborators.GeocoderURL,
		Logger:  logger,
		Timeout: time.Duration(cfg.Collaborators.TimeoutMS) * time.Millisecond,
	}
	roadSnapper := &collaborators.HTTPRoadSnapper{
		BaseURL: cfg.Collaborators.RoadSnapperURL,
		Logger:  logger,
		Timeout: time.Duration(cfg.Collaborators.TimeoutMS) * time.Millisecond,
	}
	upstream := &collaborators.HTTPUpstreamProvider{
		BaseURL: cfg.Collaborators.UpstreamURL,
		Timeout: time.Duration(cfg.Collaborators.TimeoutMS) * time.Millisecond,
	}
	vehicles := collaborators.NewGormVehicleStore(db)
	geofences := collaborators.NewGormGeofenceStore(db)
	trips := collaborators.NewGormTripStore(db)

	writer := &tripwriter.Writer{
		Geocoder:    geocoder,
		RoadSnapper: roadSnapper,
		Vehicles:    vehicles,
		Geofences:   geofences,
		Trips:       trips,
	}

	machine := &statemachine.Machine{
		Config: statemachine.Config{
			GPSSilence: cfg.Tuning.GPSSilence(),
			StaleTrip:  cfg.Tuning.StaleTrip(),
		},
		Geocoder:   geocoder,
		Vehicles:   vehicles,
		TripWriter: writer,
		Logger:     logger,
		Upstream:   upstream,
		AutoEnrich: cfg.Collaborators.AutoEnrich,
	}

	disp := &dispatcher.Dispatcher{
		Events:      events,
		Connections: connections,
		Locker:      locker,
		Machine:     machine,
		Logger:      logger,
	}

	reap := &reaper.Reaper{
		Connections: connections,
		Events:      events,
		Machine:     machine,
		Logger:      logger,
		Retention:   cfg.Tuning.EventRetention(),
	}

	reconstructor := &reconstruct.Reconstructor{
		Events:      events,
		Connections: connections,
		Trips:       trips,
		Writer:      writer,
		Logger:      logger,
	}

	resolveUserID := func(vin string) (string, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		userID, ok, err := connections.ResolveUserID(ctx, vin)
		if err != nil {
			logger.Error("resolve user id failed", "vin", vin, "error", err)
			return "", false
		}
		return userID, ok
	}

	webhookHandler := &telemetry.Handler{
		Events:   events,
		Logger:   logger,
		HMACKey:  cfg.Auth.WebhookHMACKey,
		UserIDOf: resolveUserID,
	}

	operatorHandler := &operator.Handler{
		Connections:   connections,
		Deactivator:   connections,
		Upstream:      upstream,
		Vehicles:      vehicles,
		Reconstructor: reconstructor,
		Logger:        logger,
	}

	healthChecker := health.New(db, redisClient, serviceName, serviceVersion)
	healthHandler := health.NewHandler(healthChecker)

	router := gin.New()
	router.Use(httpmw.Recovery(logger))
	router.Use(httpmw.RequestLogging(logger))
	router.Use(httpmw.SecurityHeaders())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Signature"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler.Liveness)
	router.GET("/readyz", healthHandler.Readiness)

	webhook := router.Group("/webhook")
	webhook.Use(httpmw.RateLimit(600))
	webhook.Use(httpmw.WebhookToken(cfg.Auth.WebhookTokenHash))
	webhook.POST("", webhookHandler.Ingest)

	operatorGroup := router.Group("")
	operatorGroup.Use(httpmw.OperatorAuth(cfg.Auth.JWTSecret))
	operatorHandler.Routes(operatorGroup)

	var kafkaConsumer *telemetry.KafkaConsumer
	var kafkaReader interface{ Close() error }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Kafka.Brokers) > 0 {
		reader := telemetry.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		kafkaConsumer = &telemetry.KafkaConsumer{
			Events:   events,
			Logger:   logger,
			UserIDOf: resolveUserID,
		}
		kafkaReader = reader
		go func() {
			if err := kafkaConsumer.Run(ctx, reader); err != nil && ctx.Err() == nil {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
		logger.Info("kafka ingestion enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	dispatcherLoop := scheduler.New("dispatcher", cfg.Tuning.DispatcherInterval(), disp.Tick, logger)
	staleTripLoop := scheduler.New("reaper-stale-trips", cfg.Tuning.ReaperInterval(), reap.TickStaleTrips, logger)
	retentionLoop := scheduler.New("reaper-retention", cfg.Tuning.RetentionInterval(), reap.TickRetention, logger)

	healthChecker.RegisterLoop(dispatcherLoop)
	healthChecker.RegisterLoop(staleTripLoop)
	healthChecker.RegisterLoop(retentionLoop)

	go dispatcherLoop.Run(ctx)
	go staleTripLoop.Run(ctx)
	go retentionLoop.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Warn("shutting down")
	cancel()

	if kafkaReader != nil {
		if err := kafkaReader.Close(); err != nil {
			logger.Error("kafka reader close failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

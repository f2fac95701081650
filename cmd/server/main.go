package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/analytics"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/config"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
	rcmEvents "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/events"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/handler"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/database"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/health"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/kafka"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/logger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/middleware"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository/memory"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/saga"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type storage struct {
	payments payment.Repository
	records  ledger.RecordRepository
	configs  gwdomain.ConfigRepository
	calls    gwdomain.CallLog
	deps     map[string]health.Pinger
}

func openStorage(cfg *config.ServiceConfig, zapLogger *zap.Logger) storage {
	if cfg.StorageDriver == config.StorageMemory {
		zapLogger.Warn("using in-memory storage, data is lost on restart")
		return storage{
			payments: memory.NewPaymentRepository(),
			records:  memory.NewLedgerRepository(),
			configs:  memory.NewGatewayConfigRepository(),
			calls:    memory.NewGatewayCallLog(),
		}
	}

	db, err := database.Connect(cfg.DBConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), cfg.MigrationsDir, zapLogger); err != nil {
		zapLogger.Fatal("failed to run migrations", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to get underlying sql.DB", zap.Error(err))
	}

	return storage{
		payments: repository.NewPaymentRepository(db),
		records:  repository.NewLedgerRepository(db),
		configs:  repository.NewGatewayConfigRepository(db),
		calls:    repository.NewGatewayCallLog(db),
		deps:     map[string]health.Pinger{"postgres": sqlDB},
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, cfg.TelemetryConfig.ServiceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting rcm-service",
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
	)

	// Telemetry
	meterProvider, meter, err := monitoring.InitMeter(cfg.TelemetryConfig.ServiceName, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialize metrics", zap.Error(err))
	}
	metrics, err := monitoring.NewMetrics(meter)
	if err != nil {
		zapLogger.Fatal("failed to create instruments", zap.Error(err))
	}
	tracerProvider, _, err := monitoring.InitTracer(cfg.TelemetryConfig.ServiceName, cfg.TelemetryConfig.OTLPEndpoint, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	store := openStorage(cfg, zapLogger)

	// Cache
	lru, err := cache.NewLRUStore(cfg.CacheConfig.Size)
	if err != nil {
		zapLogger.Fatal("failed to create cache store", zap.Error(err))
	}
	rcmCache := cache.New(lru, zapLogger.Named("cache"), metrics)

	// Gateway registry
	registry := gateway.NewRegistry(
		store.configs,
		store.calls,
		gateway.NewLookupResolver(cfg.Lookup),
		rcmCache,
		cfg.CacheConfig.GatewayTTL,
		metrics,
		zapLogger.Named("gateway"),
	)
	registry.Register(gateway.StripeDriver(zapLogger))
	registry.Register(gateway.MockDriver(adapter.NewMockGateway(zapLogger)))

	// Event publishing
	var publisher saga.EventPublisher = saga.NoopPublisher()
	var kafkaProducer *kafka.Producer
	if cfg.KafkaConfig.Enabled {
		kafkaProducer = kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
		defer kafkaProducer.Close()
		publisher = kafkaProducer
	}

	// Saga and application services
	sagaService := saga.NewPaymentSagaService(
		store.payments,
		store.records,
		rcmCache,
		publisher,
		saga.RetryPolicy{
			MaxAttempts:    cfg.GatewayConfig.MaxAttempts,
			InitialBackoff: cfg.GatewayConfig.InitialBackoff,
			MaxBackoff:     cfg.GatewayConfig.MaxBackoff,
			CallTimeout:    cfg.GatewayConfig.CallTimeout,
		},
		metrics,
		zapLogger.Named("saga"),
	)
	paymentService := application.NewPaymentService(store.payments, registry, sagaService, zapLogger)
	analyticsService := application.NewAnalyticsService(
		analytics.NewAggregator(store.records, cfg.AnalyticsConfig.Currency),
		rcmCache,
		cfg.CacheConfig.DashboardTTL,
		metrics,
		zapLogger,
	)
	gatewayService := application.NewGatewayService(registry, zapLogger)
	claimService := application.NewClaimService(store.records, rcmCache, zapLogger)

	// Background workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	rcmCache.StartSweeper(workerCtx, cfg.CacheConfig.SweepInterval)

	reconciler := application.NewReconciler(
		paymentService,
		cfg.ReconcileConfig.Interval,
		cfg.ReconcileConfig.MinAge,
		cfg.ReconcileConfig.BatchSize,
		zapLogger,
	)
	go reconciler.Start(workerCtx)

	if cfg.KafkaConfig.Enabled {
		consumerGroupID := cfg.KafkaConfig.GroupPrefix + "rcm-service"
		claimConsumer := rcmEvents.NewClaimEventConsumer(
			cfg.KafkaConfig.Brokers,
			consumerGroupID,
			claimService,
			zapLogger,
		)
		defer claimConsumer.Close()

		go func() {
			zapLogger.Info("starting claim event consumer")
			if err := claimConsumer.Start(workerCtx); err != nil {
				if workerCtx.Err() == nil {
					zapLogger.Error("claim event consumer failed", zap.Error(err))
				}
			}
		}()
	}

	// Auth
	guard := auth.NewGuard(auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.Issuer))

	// Setup Gin router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(otelgin.Middleware(cfg.TelemetryConfig.ServiceName))
	router.Use(monitoring.HTTPMetricsMiddleware(metrics))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	health.NewHandler(cfg.TelemetryConfig.ServiceName, store.deps).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(monitoring.MetricsHandler()))

	apiV1 := router.Group("/api/v1")
	handler.NewPaymentHandler(paymentService).RegisterRoutes(apiV1, guard)
	handler.NewGatewayHandler(gatewayService).RegisterRoutes(apiV1, guard)
	handler.NewDashboardHandler(analyticsService).RegisterRoutes(apiV1, guard)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayConfig.CallTimeout*time.Duration(cfg.GatewayConfig.MaxAttempts) + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down rcm-service...")

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("meter provider shutdown failed", zap.Error(err))
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			zapLogger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}

	zapLogger.Info("rcm-service stopped")
}

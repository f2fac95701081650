//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/analytics"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/events"
	rcmEvents "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/events"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/database"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/kafka"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/saga"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// rcmStack holds wired-up RCM service components.
type rcmStack struct {
	Payments        *application.PaymentService
	Analytics       *application.AnalyticsService
	Gateways        *application.GatewayService
	Consumer        *rcmEvents.ClaimEventConsumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers, applies the
// migrations and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_rcm",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pgCfg := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_rcm",
		SSLMode:  "disable",
	}

	logger := zap.NewNop()
	var db *gorm.DB
	require.Eventually(t, func() bool {
		db, err = database.Connect(pgCfg, logger)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(pgCfg.DatabaseURL(), "migrations", logger))

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	createTopics(t, kafkaBrokers, events.TopicPaymentEvents, events.TopicClaimEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupRCMStack wires the services over Postgres, Kafka and the mock gateway.
// Each call gets its own cache, like a separate service instance.
func setupRCMStack(t *testing.T, db *gorm.DB, brokers []string) *rcmStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	metrics := monitoring.NoopMetrics()

	lru, err := cache.NewLRUStore(256)
	require.NoError(t, err)
	c := cache.New(lru, logger, metrics)

	registry := gateway.NewRegistry(
		repository.NewGatewayConfigRepository(db),
		repository.NewGatewayCallLog(db),
		gateway.NewLookupResolver(func(string) string { return "" }),
		c, time.Minute, metrics, logger,
	)
	registry.Register(gateway.MockDriver(adapter.NewMockGateway(logger)))

	payments := repository.NewPaymentRepository(db)
	records := repository.NewLedgerRepository(db)
	producer := kafka.NewProducer(brokers, logger)
	sagaSvc := saga.NewPaymentSagaService(payments, records, c, producer, saga.DefaultRetryPolicy(), metrics, logger)

	claims := application.NewClaimService(records, c, logger)
	groupID := fmt.Sprintf("test-rcm-%s", uuid.New().String()[:8])

	return &rcmStack{
		Payments:        application.NewPaymentService(payments, registry, sagaSvc, logger),
		Analytics:       application.NewAnalyticsService(analytics.NewAggregator(records, "USD"), c, time.Minute, metrics, logger),
		Gateways:        application.NewGatewayService(registry, logger),
		Consumer:        rcmEvents.NewClaimEventConsumer(brokers, groupID, claims, logger),
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// tenant returns an auth context holding every scope for tenantID.
func tenant(tenantID string) *auth.Context {
	return &auth.Context{TenantID: tenantID, ProviderID: "prov-it", Scopes: auth.AllScopes(), ExpiresAt: time.Now().Add(time.Hour)}
}

// configureMockGateway enables the mock gateway for tenantID.
func configureMockGateway(t *testing.T, stack *rcmStack, tenantID string) {
	t.Helper()
	_, err := stack.Gateways.ConfigureGateway(context.Background(), tenant(tenantID), adapter.MockGatewayID,
		gateway.ConfigureRequest{CredentialsRef: "none"})
	require.NoError(t, err)
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data any) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForRecords polls transaction_records until tenantID has want rows.
func waitForRecords(t *testing.T, db *gorm.DB, tenantID string, want int64, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		var count int64
		err := db.Model(&repository.TransactionRecordModel{}).Where("tenant_id = ?", tenantID).Count(&count).Error
		return err == nil && count == want
	}, timeout, 200*time.Millisecond, "tenant %s did not reach %d ledger records", tenantID, want)
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	require.NoError(t, controllerConn.CreateTopics(topicConfigs...), "failed to create Kafka topics")

	time.Sleep(1 * time.Second)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/database"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// JWTConfig holds token verification settings.
type JWTConfig struct {
	Secret string
	Issuer string
}

// KafkaConfig holds broker settings. Disabled means events are not published
// and claim events are not consumed.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	GroupPrefix string
}

// CacheConfig sizes the in-process cache and its TTLs.
type CacheConfig struct {
	Size          int
	DashboardTTL  time.Duration
	GatewayTTL    time.Duration
	SweepInterval time.Duration
}

// GatewayConfig bounds outbound gateway calls.
type GatewayConfig struct {
	CallTimeout    time.Duration
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ReconcileConfig drives the pending-verification worker.
type ReconcileConfig struct {
	Interval  time.Duration
	MinAge    time.Duration
	BatchSize int
}

// AnalyticsConfig controls dashboard aggregation.
type AnalyticsConfig struct {
	Currency string
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

// ServiceConfig holds all configuration for the RCM service.
type ServiceConfig struct {
	Port            string
	AppEnv          string
	StorageDriver   string
	MigrationsDir   string
	DBConfig        database.PostgresConfig
	JWTConfig       JWTConfig
	KafkaConfig     KafkaConfig
	CacheConfig     CacheConfig
	GatewayConfig   GatewayConfig
	ReconcileConfig ReconcileConfig
	AnalyticsConfig AnalyticsConfig
	TelemetryConfig TelemetryConfig

	v *viper.Viper
}

// Load reads configuration from an optional .env file, an optional rcm.yaml
// and environment variables, in increasing order of precedence.
func Load() (*ServiceConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("rcm")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read rcm.yaml: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "rcm")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("JWT_ISSUER", "rcm-identity")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "")

	v.SetDefault("CACHE_SIZE", 4096)
	v.SetDefault("CACHE_DASHBOARD_TTL", "5m")
	v.SetDefault("CACHE_GATEWAY_TTL", "1m")
	v.SetDefault("CACHE_SWEEP_INTERVAL", "1m")

	v.SetDefault("GATEWAY_CALL_TIMEOUT", "10s")
	v.SetDefault("GATEWAY_MAX_ATTEMPTS", 3)
	v.SetDefault("GATEWAY_INITIAL_BACKOFF", "200ms")
	v.SetDefault("GATEWAY_MAX_BACKOFF", "2s")

	v.SetDefault("RECONCILE_INTERVAL", "30s")
	v.SetDefault("RECONCILE_MIN_AGE", "1m")
	v.SetDefault("RECONCILE_BATCH_SIZE", 50)

	v.SetDefault("ANALYTICS_CURRENCY", "USD")

	v.SetDefault("OTEL_SERVICE_NAME", "rcm-service")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
}

func fromViper(v *viper.Viper) (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Port:          servicePort(v.GetString("SERVICE_PORT")),
		AppEnv:        v.GetString("APP_ENV"),
		StorageDriver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
		DBConfig: database.PostgresConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		JWTConfig: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		KafkaConfig: KafkaConfig{
			Enabled:     v.GetBool("KAFKA_ENABLED"),
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		CacheConfig: CacheConfig{
			Size:          v.GetInt("CACHE_SIZE"),
			DashboardTTL:  v.GetDuration("CACHE_DASHBOARD_TTL"),
			GatewayTTL:    v.GetDuration("CACHE_GATEWAY_TTL"),
			SweepInterval: v.GetDuration("CACHE_SWEEP_INTERVAL"),
		},
		GatewayConfig: GatewayConfig{
			CallTimeout:    v.GetDuration("GATEWAY_CALL_TIMEOUT"),
			MaxAttempts:    v.GetUint64("GATEWAY_MAX_ATTEMPTS"),
			InitialBackoff: v.GetDuration("GATEWAY_INITIAL_BACKOFF"),
			MaxBackoff:     v.GetDuration("GATEWAY_MAX_BACKOFF"),
		},
		ReconcileConfig: ReconcileConfig{
			Interval:  v.GetDuration("RECONCILE_INTERVAL"),
			MinAge:    v.GetDuration("RECONCILE_MIN_AGE"),
			BatchSize: v.GetInt("RECONCILE_BATCH_SIZE"),
		},
		AnalyticsConfig: AnalyticsConfig{
			Currency: strings.ToUpper(v.GetString("ANALYTICS_CURRENCY")),
		},
		TelemetryConfig: TelemetryConfig{
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
		v: v,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServiceConfig) validate() error {
	if c.JWTConfig.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.StorageDriver != StoragePostgres && c.StorageDriver != StorageMemory {
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.GatewayConfig.MaxAttempts == 0 {
		return errors.New("GATEWAY_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.AnalyticsConfig.Currency) != 3 {
		return errors.New("ANALYTICS_CURRENCY must be a three letter ISO code")
	}
	if c.CacheConfig.Size <= 0 {
		return errors.New("CACHE_SIZE must be positive")
	}
	return nil
}

// Lookup returns a raw configuration value. Gateway credential references
// of the form env:NAME are resolved through it.
func (c *ServiceConfig) Lookup(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *ServiceConfig) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}

func servicePort(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

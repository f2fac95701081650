package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(newTestViper(map[string]any{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaConfig.Brokers)
	assert.Equal(t, 5*time.Minute, cfg.CacheConfig.DashboardTTL)
	assert.Equal(t, uint64(3), cfg.GatewayConfig.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.GatewayConfig.InitialBackoff)
	assert.Equal(t, "USD", cfg.AnalyticsConfig.Currency)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromViper_Overrides(t *testing.T) {
	cfg, err := fromViper(newTestViper(map[string]any{
		"JWT_SECRET":     "s3cret",
		"SERVICE_PORT":   ":9090",
		"STORAGE_DRIVER": "MEMORY",
		"KAFKA_BROKERS":  "k1:9092, k2:9092,",
		"APP_ENV":        "production",
		"STRIPE_PRIMARY": "sk_test_123",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaConfig.Brokers)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "sk_test_123", cfg.Lookup("STRIPE_PRIMARY"))
}

func TestFromViper_Validation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"missing jwt secret", map[string]any{}},
		{"unknown storage driver", map[string]any{"JWT_SECRET": "x", "STORAGE_DRIVER": "sqlite"}},
		{"zero attempts", map[string]any{"JWT_SECRET": "x", "GATEWAY_MAX_ATTEMPTS": 0}},
		{"zero cache size", map[string]any{"JWT_SECRET": "x", "CACHE_SIZE": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromViper(newTestViper(tt.overrides))
			assert.Error(t, err)
		})
	}
}

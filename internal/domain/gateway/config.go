package gateway

import (
	"context"
	"sort"
	"time"
)

// Operation is one capability a gateway adapter can expose.
type Operation string

const (
	OpCreateIntent Operation = "create_intent"
	OpConfirm      Operation = "confirm"
	OpRefund       Operation = "refund"
	OpFetchConfig  Operation = "fetch_config"
	OpRetrieve     Operation = "retrieve"
)

// AllOperations lists every operation in a stable order.
func AllOperations() []Operation {
	return []Operation{OpCreateIntent, OpConfirm, OpRefund, OpFetchConfig, OpRetrieve}
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	for _, known := range AllOperations() {
		if op == known {
			return true
		}
	}
	return false
}

// Config is a tenant's configuration of one payment gateway.
// CredentialsRef is an opaque pointer to a secret and is never serialized.
type Config struct {
	TenantID       string      `json:"-"`
	GatewayID      string      `json:"gateway_id"`
	CredentialsRef string      `json:"-"`
	Capabilities   []Operation `json:"capabilities"`
	Enabled        bool        `json:"enabled"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Supports reports whether op is in the capability set.
func (c Config) Supports(op Operation) bool {
	for _, have := range c.Capabilities {
		if have == op {
			return true
		}
	}
	return false
}

// Public returns a copy safe to hand to callers and caches.
func (c Config) Public() Config {
	caps := make([]Operation, len(c.Capabilities))
	copy(caps, c.Capabilities)
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return Config{
		TenantID:     c.TenantID,
		GatewayID:    c.GatewayID,
		Capabilities: caps,
		Enabled:      c.Enabled,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ConfigRepository persists gateway configuration per tenant.
type ConfigRepository interface {
	Find(ctx context.Context, tenantID, gatewayID string) (*Config, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Config, error)
	Upsert(ctx context.Context, cfg Config) error
}

// CallRecord is the stored outcome of an idempotent gateway call.
type CallRecord struct {
	Key         string
	RequestHash string
	Response    []byte
	CreatedAt   time.Time
}

// CallLog stores gateway call outcomes keyed by idempotency key.
type CallLog interface {
	Find(ctx context.Context, key string) (*CallRecord, error)
	Record(ctx context.Context, rec CallRecord) error
}

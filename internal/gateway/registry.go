// Package gateway resolves a tenant's configured payment gateways into
// capability-checked, idempotent bindings.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Driver knows how to open one kind of gateway.
type Driver struct {
	Name         string
	Capabilities []gwdomain.Operation
	// Open builds an adapter for the resolved secret.
	Open func(secret string) (adapter.Gateway, error)
}

// ConfigureRequest updates a tenant's gateway configuration.
type ConfigureRequest struct {
	CredentialsRef string               `json:"credentials_ref" binding:"required"`
	Capabilities   []gwdomain.Operation `json:"capabilities"`
	Enabled        *bool                `json:"enabled"`
}

// Registry holds the available drivers and the tenants' configurations.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	opened  map[string]openedAdapter

	configs  gwdomain.ConfigRepository
	calls    gwdomain.CallLog
	creds    CredentialResolver
	cache    *cache.Cache
	cacheTTL time.Duration
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(
	configs gwdomain.ConfigRepository,
	calls gwdomain.CallLog,
	creds CredentialResolver,
	c *cache.Cache,
	cacheTTL time.Duration,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		drivers:  make(map[string]Driver),
		opened:   make(map[string]openedAdapter),
		configs:  configs,
		calls:    calls,
		creds:    creds,
		cache:    c,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register adds or replaces a driver.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name] = d
}

// Drivers returns the registered driver names, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) driver(name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	return d, ok
}

func notConfigured(gatewayID string) error {
	return domain.NewError(domain.KindGatewayNotConfigured, fmt.Sprintf("gateway %s is not configured", gatewayID))
}

func (r *Registry) findConfig(ctx context.Context, tenantID, gatewayID string) (*gwdomain.Config, error) {
	key := cache.Key{Tenant: tenantID, Scope: cache.ScopeGateways, Query: "config:" + gatewayID}
	cfg, err := cache.GetOrCompute(ctx, r.cache, key, r.cacheTTL, func(ctx context.Context) (*gwdomain.Config, error) {
		return r.configs.Find(ctx, tenantID, gatewayID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notConfigured(gatewayID)
		}
		return nil, err
	}
	return cfg, nil
}

// Resolve returns a binding for the tenant's gateway. It fails with
// GatewayNotConfigured when the gateway is absent, disabled or its
// credentials no longer resolve.
func (r *Registry) Resolve(ctx context.Context, tenantID, gatewayID string) (*Binding, error) {
	cfg, err := r.findConfig(ctx, tenantID, gatewayID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, notConfigured(gatewayID)
	}

	gw, err := r.open(*cfg)
	if err != nil {
		return nil, err
	}

	return &Binding{
		config:  *cfg,
		gateway: gw,
		calls:   r.calls,
		tracer:  otel.Tracer("rcm/gateway"),
		metrics: r.metrics,
		logger:  r.logger.With(zap.String("tenant_id", tenantID), zap.String("gateway_id", gatewayID)),
	}, nil
}

// openedAdapter is the adapter opened for one version of a tenant's config.
type openedAdapter struct {
	version time.Time
	gw      adapter.Gateway
}

// open returns the adapter for cfg, reusing the one opened for the same
// configuration version. Only the newest version is kept per tenant and
// gateway.
func (r *Registry) open(cfg gwdomain.Config) (adapter.Gateway, error) {
	d, ok := r.driver(cfg.GatewayID)
	if !ok {
		return nil, notConfigured(cfg.GatewayID)
	}

	handle := cfg.TenantID + "|" + cfg.GatewayID
	r.mu.RLock()
	cached, ok := r.opened[handle]
	r.mu.RUnlock()
	if ok && cached.version.Equal(cfg.UpdatedAt) {
		return cached.gw, nil
	}

	secret, err := r.creds.Resolve(cfg.CredentialsRef)
	if err != nil {
		return nil, domain.Wrap(domain.KindGatewayNotConfigured,
			fmt.Sprintf("gateway %s credentials are unavailable", cfg.GatewayID), err)
	}
	gw, err := d.Open(secret)
	if err != nil {
		return nil, domain.Wrap(domain.KindGatewayNotConfigured,
			fmt.Sprintf("gateway %s could not be opened", cfg.GatewayID), err)
	}

	r.mu.Lock()
	if cur, ok := r.opened[handle]; !ok || !cur.version.After(cfg.UpdatedAt) {
		r.opened[handle] = openedAdapter{version: cfg.UpdatedAt, gw: gw}
	}
	r.mu.Unlock()
	return gw, nil
}

// Configure validates and stores a tenant's gateway configuration, then
// invalidates the tenant's cached registry lookups.
func (r *Registry) Configure(ctx context.Context, tenantID, gatewayID string, req ConfigureRequest) (*gwdomain.Config, error) {
	d, ok := r.driver(gatewayID)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown gateway %s", gatewayID))
	}

	caps := req.Capabilities
	if len(caps) == 0 {
		caps = d.Capabilities
	}
	seen := make(map[gwdomain.Operation]bool, len(caps))
	for _, op := range caps {
		if !op.Valid() || !slices.Contains(d.Capabilities, op) {
			return nil, domain.NewValidationError(fmt.Sprintf("gateway %s cannot provide %s", gatewayID, op))
		}
		seen[op] = true
	}
	deduped := make([]gwdomain.Operation, 0, len(seen))
	for op := range seen {
		deduped = append(deduped, op)
	}

	if _, err := r.creds.Resolve(req.CredentialsRef); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	cfg := gwdomain.Config{
		TenantID:       tenantID,
		GatewayID:      gatewayID,
		CredentialsRef: req.CredentialsRef,
		Capabilities:   deduped,
		Enabled:        enabled,
		UpdatedAt:      time.Now().UTC(),
	}

	if enabled && cfg.Supports(gwdomain.OpFetchConfig) {
		gw, err := r.open(cfg)
		if err != nil {
			return nil, err
		}
		if _, err := gw.FetchConfig(ctx); err != nil {
			return nil, err
		}
	}

	if err := r.configs.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save gateway config: %w", err)
	}
	r.cache.Invalidate(ctx, tenantID, cache.ScopeGateways)

	r.logger.Info("gateway configured",
		zap.String("tenant_id", tenantID),
		zap.String("gateway_id", gatewayID),
		zap.Bool("enabled", enabled),
		zap.Int("capabilities", len(deduped)),
	)

	public := cfg.Public()
	return &public, nil
}

// List returns the tenant's gateway configurations without credentials.
func (r *Registry) List(ctx context.Context, tenantID string) ([]gwdomain.Config, error) {
	key := cache.Key{Tenant: tenantID, Scope: cache.ScopeGateways, Query: "list"}
	return cache.GetOrCompute(ctx, r.cache, key, r.cacheTTL, func(ctx context.Context) ([]gwdomain.Config, error) {
		cfgs, err := r.configs.ListByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		out := make([]gwdomain.Config, len(cfgs))
		for i, c := range cfgs {
			out[i] = c.Public()
		}
		sort.Slice(out, func(i, j int) bool { return out[i].GatewayID < out[j].GatewayID })
		return out, nil
	})
}

// Package cache memoizes analytics snapshots and registry lookups per
// tenant. Invalidation bumps a per-(tenant, scope) epoch, so entries written
// under an older epoch become stale in O(1) and are replaced lazily.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Scopes used by the service.
const (
	ScopeAnalytics = "analytics"
	ScopeGateways  = "gateways"
)

// Key identifies a cached value.
type Key struct {
	Tenant    string
	Scope     string
	Timeframe string
	Query     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Tenant, k.Scope, k.Timeframe, k.Query)
}

func epochKey(tenant, scope string) string {
	return tenant + "|" + scope
}

// Cache is safe for concurrent use. A nil *Cache computes every value directly.
type Cache struct {
	store   Store
	group   singleflight.Group
	epochs  sync.Map // epochKey -> *atomic.Uint64
	now     func() time.Time
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a Cache over store.
func New(store Store, logger *zap.Logger, metrics *monitoring.Metrics) *Cache {
	return &Cache{
		store:   store,
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Cache) epochCounter(tenant, scope string) *atomic.Uint64 {
	k := epochKey(tenant, scope)
	if v, ok := c.epochs.Load(k); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := c.epochs.LoadOrStore(k, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

// Epoch returns the current invalidation epoch for tenant and scope.
func (c *Cache) Epoch(tenant, scope string) uint64 {
	return c.epochCounter(tenant, scope).Load()
}

// Invalidate makes every entry of tenant under scope stale.
func (c *Cache) Invalidate(ctx context.Context, tenant, scope string) {
	if c == nil {
		return
	}
	next := c.epochCounter(tenant, scope).Add(1)
	c.metrics.RecordInvalidation(ctx, scope)
	c.logger.Debug("cache scope invalidated",
		zap.String("tenant_id", tenant),
		zap.String("scope", scope),
		zap.Uint64("epoch", next),
	)
}

// lookup returns a fresh value for key under epoch. Store failures are
// logged and reported as a miss.
func (c *Cache) lookup(key string, epoch uint64) (any, bool) {
	e, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache read failed, computing directly", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok || e.Epoch != epoch || e.Expired(c.now()) {
		return nil, false
	}
	return e.Value, true
}

// GetOrCompute returns the cached value for key or runs compute once for
// all concurrent callers. compute runs detached from the caller's
// cancellation so one abandoned request does not fail the others; the caller
// itself stops waiting when ctx is done.
func GetOrCompute[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return compute(ctx)
	}

	epoch := c.Epoch(key.Tenant, key.Scope)
	storeKey := key.String()

	if v, ok := c.lookup(storeKey, epoch); ok {
		if typed, ok := v.(T); ok {
			c.metrics.RecordCacheLookup(ctx, key.Scope, "hit")
			return typed, nil
		}
	}
	c.metrics.RecordCacheLookup(ctx, key.Scope, "miss")

	detached := context.WithoutCancel(ctx)
	flightKey := storeKey + "@" + strconv.FormatUint(epoch, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		if v, ok := c.lookup(storeKey, epoch); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}

		value, err := compute(detached)
		if err != nil {
			return value, err
		}

		entry := Entry{Value: value, Epoch: epoch, ExpiresAt: c.now().Add(ttl)}
		if err := c.store.Set(storeKey, entry); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", storeKey), zap.Error(err))
		}
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Sweep removes expired entries once.
func (c *Cache) Sweep() {
	removed, err := c.store.Sweep(c.now())
	if err != nil {
		c.logger.Warn("cache sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		c.logger.Debug("cache sweep completed", zap.Int("removed", removed))
	}
}

// StartSweeper runs Sweep every interval until ctx is done.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if c == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

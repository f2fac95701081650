package application

import (
	"context"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/analytics"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"go.uber.org/zap"
)

// AnalyticsService serves dashboard snapshots through the cache.
type AnalyticsService struct {
	aggregator *analytics.Aggregator
	cache      *cache.Cache
	ttl        time.Duration
	metrics    *monitoring.Metrics
	now        func() time.Time
	logger     *zap.Logger
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(
	aggregator *analytics.Aggregator,
	c *cache.Cache,
	ttl time.Duration,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *AnalyticsService {
	if metrics == nil {
		metrics = monitoring.NoopMetrics()
	}
	return &AnalyticsService{
		aggregator: aggregator,
		cache:      c,
		ttl:        ttl,
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Dashboard returns the caller's snapshot for timeframe. The timeframe is
// validated before any read.
func (s *AnalyticsService) Dashboard(ctx context.Context, ac *auth.Context, timeframe, granularity string) (*analytics.Snapshot, error) {
	if err := ac.Require(auth.ScopeAnalyticsRead); err != nil {
		return nil, err
	}

	tf, err := analytics.ParseTimeframe(timeframe, granularity, s.now())
	if err != nil {
		return nil, err
	}

	key := cache.Key{
		Tenant:    ac.TenantID,
		Scope:     cache.ScopeAnalytics,
		Timeframe: tf.Signature(),
		Query:     "dashboard:" + s.aggregator.Currency(),
	}

	return cache.GetOrCompute(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*analytics.Snapshot, error) {
		start := time.Now()
		snap, err := s.aggregator.ComputeDashboard(ctx, ac.TenantID, tf)
		s.metrics.RecordDashboard(ctx, time.Since(start))
		if err != nil {
			s.logger.Error("failed to compute dashboard",
				zap.String("tenant_id", ac.TenantID),
				zap.String("timeframe", tf.Label),
				zap.Error(err),
			)
			return nil, err
		}
		s.logger.Debug("dashboard computed",
			zap.String("tenant_id", ac.TenantID),
			zap.String("timeframe", tf.Label),
			zap.Int("records", snap.RecordCount),
		)
		return snap, nil
	})
}

package application

import (
	"context"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/gateway"
	"go.uber.org/zap"
)

// GatewayService exposes the registry to tenants.
type GatewayService struct {
	registry *gateway.Registry
	logger   *zap.Logger
}

// NewGatewayService creates a new GatewayService.
func NewGatewayService(registry *gateway.Registry, logger *zap.Logger) *GatewayService {
	return &GatewayService{registry: registry, logger: logger}
}

// ListGateways returns the caller's gateway configurations without credentials.
func (s *GatewayService) ListGateways(ctx context.Context, ac *auth.Context) ([]gwdomain.Config, error) {
	if err := ac.Require(auth.ScopeGatewaysRead); err != nil {
		return nil, err
	}
	return s.registry.List(ctx, ac.TenantID)
}

// ConfigureGateway creates or replaces the caller's configuration of gatewayID.
func (s *GatewayService) ConfigureGateway(ctx context.Context, ac *auth.Context, gatewayID string, req gateway.ConfigureRequest) (*gwdomain.Config, error) {
	if err := ac.Require(auth.ScopeGatewaysWrite); err != nil {
		return nil, err
	}

	cfg, err := s.registry.Configure(ctx, ac.TenantID, gatewayID, req)
	if err != nil {
		s.logger.Warn("gateway configuration rejected",
			zap.String("tenant_id", ac.TenantID),
			zap.String("gateway_id", gatewayID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("gateway configured",
		zap.String("tenant_id", ac.TenantID),
		zap.String("gateway_id", gatewayID),
		zap.Bool("enabled", cfg.Enabled),
	)
	public := cfg.Public()
	return &public, nil
}

package gateway

import (
	"errors"
	"strings"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"go.uber.org/zap"
)

// StripeDriver opens a Stripe client per tenant secret key.
func StripeDriver(logger *zap.Logger) Driver {
	return Driver{
		Name:         adapter.StripeGatewayID,
		Capabilities: adapter.StripeCapabilities(),
		Open: func(secret string) (adapter.Gateway, error) {
			if !strings.HasPrefix(secret, "sk_") && !strings.HasPrefix(secret, "rk_") {
				return nil, errors.New("stripe credentials must be a secret or restricted key")
			}
			return adapter.NewStripeGateway(secret, logger), nil
		},
	}
}

// MockDriver serves every tenant from the same simulator.
func MockDriver(m *adapter.MockGateway) Driver {
	return Driver{
		Name:         adapter.MockGatewayID,
		Capabilities: adapter.MockCapabilities(),
		Open: func(string) (adapter.Gateway, error) {
			return m, nil
		},
	}
}

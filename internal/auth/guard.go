package auth

import (
	"slices"
	"strings"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
)

// Scope names one permitted operation family.
type Scope string

const (
	ScopePaymentsRead   Scope = "payments:read"
	ScopePaymentsWrite  Scope = "payments:write"
	ScopePaymentsRefund Scope = "payments:refund"
	ScopePaymentsSettle Scope = "payments:settle"
	ScopeGatewaysRead   Scope = "gateways:read"
	ScopeGatewaysWrite  Scope = "gateways:write"
	ScopeAnalyticsRead  Scope = "analytics:read"
)

// AllScopes lists every scope the service checks.
func AllScopes() []Scope {
	return []Scope{
		ScopePaymentsRead, ScopePaymentsWrite, ScopePaymentsRefund, ScopePaymentsSettle,
		ScopeGatewaysRead, ScopeGatewaysWrite, ScopeAnalyticsRead,
	}
}

// Context is the caller identity resolved for one request. It is passed
// explicitly to every application operation.
type Context struct {
	TenantID   string
	ProviderID string
	Scopes     []Scope
	ExpiresAt  time.Time
}

// HasScope reports whether the caller was granted s.
func (a *Context) HasScope(s Scope) bool {
	return slices.Contains(a.Scopes, s)
}

// CheckTenant fails with TenantMismatch unless tenantID is the caller's tenant.
func (a *Context) CheckTenant(tenantID string) error {
	if a == nil || a.TenantID != tenantID {
		return domain.NewError(domain.KindTenantMismatch, "resource belongs to another tenant")
	}
	return nil
}

// Require fails unless the caller holds s. A nil Context counts as a
// missing token.
func (a *Context) Require(s Scope) error {
	if a == nil {
		return domain.NewError(domain.KindMissingToken, "authentication is required")
	}
	if !a.HasScope(s) {
		return domain.NewError(domain.KindInsufficientScope, "token lacks scope "+string(s))
	}
	return nil
}

// Guard turns an Authorization header into a Context.
type Guard struct {
	jwt *JWTManager
}

// NewGuard creates a Guard verifying tokens with jwtManager.
func NewGuard(jwtManager *JWTManager) *Guard {
	return &Guard{jwt: jwtManager}
}

// Authorize validates the bearer token in header and requires scope.
func (g *Guard) Authorize(header string, scope Scope) (*Context, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, domain.NewError(domain.KindMissingToken, "authorization header is required")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, domain.NewError(domain.KindInvalidToken, "authorization header must be a bearer token")
	}

	claims, err := g.jwt.ValidateToken(strings.TrimSpace(token))
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidToken, "token is invalid or expired", err)
	}

	ac := &Context{
		TenantID:   claims.TenantID,
		ProviderID: claims.ProviderID,
		Scopes:     make([]Scope, len(claims.Scopes)),
	}
	for i, s := range claims.Scopes {
		ac.Scopes[i] = Scope(s)
	}
	if claims.ExpiresAt != nil {
		ac.ExpiresAt = claims.ExpiresAt.Time
	}

	if !ac.HasScope(scope) {
		return nil, domain.NewError(domain.KindInsufficientScope, "token lacks scope "+string(scope))
	}
	return ac, nil
}

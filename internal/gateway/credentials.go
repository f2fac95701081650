package gateway

import (
	"strings"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
)

// CredentialResolver turns an opaque credentials reference into a secret.
type CredentialResolver interface {
	Resolve(ref string) (string, error)
}

// LookupResolver resolves references of the form env:NAME through a
// configuration lookup. The reference "none" resolves to an empty secret
// for gateways that need no credentials.
type LookupResolver struct {
	lookup func(string) string
}

// NewLookupResolver creates a resolver backed by lookup.
func NewLookupResolver(lookup func(string) string) *LookupResolver {
	return &LookupResolver{lookup: lookup}
}

func (r *LookupResolver) Resolve(ref string) (string, error) {
	if ref == "none" {
		return "", nil
	}
	name, ok := strings.CutPrefix(ref, "env:")
	if !ok || name == "" {
		return "", domain.NewValidationError("credentials reference must have the form env:NAME")
	}
	secret := r.lookup(name)
	if secret == "" {
		return "", domain.NewError(domain.KindGatewayNotConfigured, "credentials reference does not resolve")
	}
	return secret, nil
}

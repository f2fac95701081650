package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
)

// Status represents the lifecycle state of a payment intent.
type Status string

const (
	StatusCreated              Status = "created"
	StatusRequiresConfirmation Status = "requires_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusSettled              Status = "settled"
	StatusFailed               Status = "failed"
	StatusRefunded             Status = "refunded"
)

// transitions is the complete set of allowed edges. Anything not listed is
// rejected with InvalidTransition.
var transitions = map[Status][]Status{
	StatusCreated:              {StatusRequiresConfirmation, StatusFailed},
	StatusRequiresConfirmation: {StatusConfirmed, StatusFailed},
	StatusConfirmed:            {StatusSettled, StatusRefunded},
	StatusSettled:              {StatusRefunded},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no forward progress is possible other than a refund.
func (s Status) IsTerminal() bool {
	return s == StatusSettled || s == StatusFailed || s == StatusRefunded
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusRequiresConfirmation, StatusConfirmed, StatusSettled, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Intent is the aggregate root for a payment collected through a gateway.
type Intent struct {
	id                  uuid.UUID
	tenantID            string
	providerID          string
	gatewayID           string
	gatewayRef          string
	amountMinor         int64
	refundedMinor       int64
	currency            string
	status              Status
	idempotencyKey      string
	metadata            map[string]string
	failureReason       string
	pendingVerification bool
	version             int64
	createdAt           time.Time
	updatedAt           time.Time
	settledAt           *time.Time
	refundedAt          *time.Time
}

// NewIntent creates an intent in the created state.
func NewIntent(tenantID, providerID, gatewayID string, amountMinor int64, currency, idempotencyKey string, metadata map[string]string) (*Intent, error) {
	if tenantID == "" {
		return nil, domain.NewValidationError("tenant id is required")
	}
	if gatewayID == "" {
		return nil, domain.NewValidationError("gateway id is required")
	}
	if amountMinor <= 0 {
		return nil, domain.NewValidationError("amount must be a positive number of minor units")
	}
	if len(currency) != 3 {
		return nil, domain.NewValidationError("currency must be a three letter ISO code")
	}
	if idempotencyKey == "" {
		return nil, domain.NewValidationError("idempotency key is required")
	}

	now := time.Now().UTC()
	return &Intent{
		id:             uuid.New(),
		tenantID:       tenantID,
		providerID:     providerID,
		gatewayID:      gatewayID,
		amountMinor:    amountMinor,
		currency:       currency,
		status:         StatusCreated,
		idempotencyKey: idempotencyKey,
		metadata:       cloneMetadata(metadata),
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// --- Getters ---

func (p *Intent) ID() uuid.UUID               { return p.id }
func (p *Intent) TenantID() string            { return p.tenantID }
func (p *Intent) ProviderID() string          { return p.providerID }
func (p *Intent) GatewayID() string           { return p.gatewayID }
func (p *Intent) GatewayRef() string          { return p.gatewayRef }
func (p *Intent) AmountMinor() int64          { return p.amountMinor }
func (p *Intent) RefundedMinor() int64        { return p.refundedMinor }
func (p *Intent) Currency() string            { return p.currency }
func (p *Intent) Status() Status              { return p.status }
func (p *Intent) IdempotencyKey() string      { return p.idempotencyKey }
func (p *Intent) Metadata() map[string]string { return cloneMetadata(p.metadata) }
func (p *Intent) FailureReason() string       { return p.failureReason }
func (p *Intent) PendingVerification() bool   { return p.pendingVerification }
func (p *Intent) Version() int64              { return p.version }
func (p *Intent) CreatedAt() time.Time        { return p.createdAt }
func (p *Intent) UpdatedAt() time.Time        { return p.updatedAt }
func (p *Intent) SettledAt() *time.Time       { return p.settledAt }
func (p *Intent) RefundedAt() *time.Time      { return p.refundedAt }

// SamePayload reports whether a replayed create request matches this intent.
func (p *Intent) SamePayload(gatewayID string, amountMinor int64, currency string, metadata map[string]string) bool {
	if p.gatewayID != gatewayID || p.amountMinor != amountMinor || p.currency != currency {
		return false
	}
	if len(p.metadata) != len(metadata) {
		return false
	}
	for k, v := range metadata {
		if p.metadata[k] != v {
			return false
		}
	}
	return true
}

// NeedsGatewayReconciliation reports whether the gateway side of this intent
// is unknown: either flagged after a timeout, or still created with no
// gateway reference recorded.
func (p *Intent) NeedsGatewayReconciliation() bool {
	return p.pendingVerification || (p.status == StatusCreated && p.gatewayRef == "")
}

// --- Behavior / State Transitions ---

func (p *Intent) transition(to Status) error {
	if !CanTransition(p.status, to) {
		return domain.NewInvalidStateError(string(p.status), string(to))
	}
	p.status = to
	p.updatedAt = time.Now().UTC()
	return nil
}

// AwaitConfirmation records the gateway reference after the gateway accepted the intent.
func (p *Intent) AwaitConfirmation(gatewayRef string) error {
	if err := p.transition(StatusRequiresConfirmation); err != nil {
		return err
	}
	p.gatewayRef = gatewayRef
	p.pendingVerification = false
	return nil
}

// Confirm marks the intent confirmed after the gateway authorized and captured it.
func (p *Intent) Confirm() error {
	if err := p.transition(StatusConfirmed); err != nil {
		return err
	}
	p.pendingVerification = false
	return nil
}

// Settle marks a confirmed intent as settled.
func (p *Intent) Settle() error {
	if err := p.transition(StatusSettled); err != nil {
		return err
	}
	now := p.updatedAt
	p.settledAt = &now
	return nil
}

// Refund marks a confirmed or settled intent as refunded for amountMinor.
func (p *Intent) Refund(amountMinor int64) error {
	if !CanTransition(p.status, StatusRefunded) {
		return domain.NewInvalidStateError(string(p.status), string(StatusRefunded))
	}
	if amountMinor <= 0 || amountMinor > p.amountMinor {
		return domain.NewValidationError("refund amount must be between 1 and the intent amount")
	}
	if err := p.transition(StatusRefunded); err != nil {
		return err
	}
	now := p.updatedAt
	p.refundedMinor = amountMinor
	p.refundedAt = &now
	p.pendingVerification = false
	return nil
}

// Fail moves a created or requires_confirmation intent to failed.
func (p *Intent) Fail(reason string) error {
	if err := p.transition(StatusFailed); err != nil {
		return err
	}
	p.failureReason = reason
	p.pendingVerification = false
	return nil
}

// MarkPendingVerification flags the intent for reconciliation without
// changing its status. Used when a gateway call outcome is unknown.
func (p *Intent) MarkPendingVerification(reason string) {
	p.pendingVerification = true
	p.failureReason = reason
	p.updatedAt = time.Now().UTC()
}

// ClearPendingVerification removes the reconciliation flag.
func (p *Intent) ClearPendingVerification() {
	p.pendingVerification = false
	p.failureReason = ""
	p.updatedAt = time.Now().UTC()
}

// IncrementVersion bumps the version for optimistic locking.
func (p *Intent) IncrementVersion() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// --- Reconstitution (used by repositories to rebuild from persistence) ---

// State is the persisted shape of an Intent.
type State struct {
	ID                  uuid.UUID
	TenantID            string
	ProviderID          string
	GatewayID           string
	GatewayRef          string
	AmountMinor         int64
	RefundedMinor       int64
	Currency            string
	Status              Status
	IdempotencyKey      string
	Metadata            map[string]string
	FailureReason       string
	PendingVerification bool
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	SettledAt           *time.Time
	RefundedAt          *time.Time
}

// Reconstitute rebuilds an Intent from persisted data.
func Reconstitute(s State) *Intent {
	return &Intent{
		id:                  s.ID,
		tenantID:            s.TenantID,
		providerID:          s.ProviderID,
		gatewayID:           s.GatewayID,
		gatewayRef:          s.GatewayRef,
		amountMinor:         s.AmountMinor,
		refundedMinor:       s.RefundedMinor,
		currency:            s.Currency,
		status:              s.Status,
		idempotencyKey:      s.IdempotencyKey,
		metadata:            cloneMetadata(s.Metadata),
		failureReason:       s.FailureReason,
		pendingVerification: s.PendingVerification,
		version:             s.Version,
		createdAt:           s.CreatedAt,
		updatedAt:           s.UpdatedAt,
		settledAt:           s.SettledAt,
		refundedAt:          s.RefundedAt,
	}
}

// Snapshot returns the persisted shape of p.
func (p *Intent) Snapshot() State {
	return State{
		ID:                  p.id,
		TenantID:            p.tenantID,
		ProviderID:          p.providerID,
		GatewayID:           p.gatewayID,
		GatewayRef:          p.gatewayRef,
		AmountMinor:         p.amountMinor,
		RefundedMinor:       p.refundedMinor,
		Currency:            p.currency,
		Status:              p.status,
		IdempotencyKey:      p.idempotencyKey,
		Metadata:            cloneMetadata(p.metadata),
		FailureReason:       p.failureReason,
		PendingVerification: p.pendingVerification,
		Version:             p.version,
		CreatedAt:           p.createdAt,
		UpdatedAt:           p.updatedAt,
		SettledAt:           p.settledAt,
		RefundedAt:          p.refundedAt,
	}
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

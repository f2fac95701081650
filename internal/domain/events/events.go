// Package events defines the topics, CloudEvent types and payloads the RCM
// service publishes and consumes.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Source is the CloudEvent source for everything this service publishes.
const Source = "rcm-service"

// Kafka topics.
const (
	TopicPaymentEvents = "rcm.payment.events"
	TopicClaimEvents   = "rcm.claim.events"
)

// Payment event types.
const (
	PaymentIntentCreated       = "rcm.payment.intent_created"
	PaymentConfirmed           = "rcm.payment.confirmed"
	PaymentSettled             = "rcm.payment.settled"
	PaymentRefunded            = "rcm.payment.refunded"
	PaymentFailed              = "rcm.payment.failed"
	PaymentPendingVerification = "rcm.payment.pending_verification"
)

// Claim event types, produced by the claims system.
const (
	ClaimSubmitted = "rcm.claim.submitted"
	ClaimPaid      = "rcm.claim.paid"
	ClaimDenied    = "rcm.claim.denied"
)

// PaymentEvent is the payload of every payment event.
type PaymentEvent struct {
	IntentID      uuid.UUID `json:"intent_id"`
	TenantID      string    `json:"tenant_id"`
	ProviderID    string    `json:"provider_id,omitempty"`
	GatewayID     string    `json:"gateway_id"`
	GatewayRef    string    `json:"gateway_ref,omitempty"`
	Status        string    `json:"status"`
	AmountMinor   int64     `json:"amount_minor"`
	RefundedMinor int64     `json:"refunded_minor,omitempty"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ClaimEvent is the payload of claim events. SubmittedAt is set on paid
// claims so the time to payment can be measured.
type ClaimEvent struct {
	TenantID    string     `json:"tenant_id"`
	ClaimID     string     `json:"claim_id"`
	AmountMinor int64      `json:"amount_minor"`
	Currency    string     `json:"currency"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

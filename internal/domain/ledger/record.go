// Package ledger holds the append-only transaction records the analytics
// aggregator reads.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a transaction record.
type Kind string

const (
	KindPaymentSettled Kind = "payment_settled"
	KindPaymentRefund  Kind = "payment_refunded"
	KindClaimSubmitted Kind = "claim_submitted"
	KindClaimPaid      Kind = "claim_paid"
	KindClaimDenied    Kind = "claim_denied"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPaymentSettled, KindPaymentRefund, KindClaimSubmitted, KindClaimPaid, KindClaimDenied:
		return true
	}
	return false
}

// Record is an immutable projection of a settled/refunded intent or a claim
// event. SourceKey identifies the originating event so redeliveries append once.
type Record struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Kind        Kind       `json:"kind"`
	SourceKey   string     `json:"source_key"`
	IntentID    *uuid.UUID `json:"intent_id,omitempty"`
	ClaimID     string     `json:"claim_id,omitempty"`
	AmountMinor int64      `json:"amount_minor"`
	Currency    string     `json:"currency"`
	OccurredAt  time.Time  `json:"occurred_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// RecordRepository appends and reads transaction records.
type RecordRepository interface {
	// Append stores rec unless a record with the same SourceKey exists.
	// It reports whether a new row was written.
	Append(ctx context.Context, rec Record) (bool, error)

	// ListWindow returns a tenant's records with start <= occurred_at < end,
	// ordered by occurred_at then id.
	ListWindow(ctx context.Context, tenantID string, start, end time.Time) ([]Record, error)
}

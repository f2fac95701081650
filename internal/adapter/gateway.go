package adapter

import (
	"context"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
)

// IntentStatus is a gateway-side payment status, normalized across providers.
type IntentStatus string

const (
	IntentRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentProcessing           IntentStatus = "processing"
	IntentSucceeded            IntentStatus = "succeeded"
	IntentFailed               IntentStatus = "failed"
	IntentRefunded             IntentStatus = "refunded"
)

// Intent is a gateway's view of one payment.
type Intent struct {
	Ref           string            `json:"ref"`
	Status        IntentStatus      `json:"status"`
	AmountMinor   int64             `json:"amount_minor"`
	RefundedMinor int64             `json:"refunded_minor"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// CreateIntentRequest opens a payment at the gateway.
type CreateIntentRequest struct {
	IdempotencyKey string            `json:"-"`
	AmountMinor    int64             `json:"amount_minor"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ConfirmRequest authorizes and captures an open payment.
type ConfirmRequest struct {
	IdempotencyKey string `json:"-"`
	Ref            string `json:"ref"`
	PaymentMethod  string `json:"payment_method"`
}

// RefundRequest returns captured funds. AmountMinor zero refunds everything.
type RefundRequest struct {
	IdempotencyKey string `json:"-"`
	Ref            string `json:"ref"`
	AmountMinor    int64  `json:"amount_minor"`
}

// RemoteConfig is what a gateway reports about itself. It never carries credentials.
type RemoteConfig struct {
	GatewayID    string              `json:"gateway_id"`
	Capabilities []gateway.Operation `json:"capabilities"`
	LiveMode     bool                `json:"live_mode"`
}

// Gateway is the capability set every payment provider is normalized into.
// Implementations classify failures as domain errors: transient failures
// are GatewayUnavailable, permanent rejections are GatewayDeclined.
type Gateway interface {
	ID() string
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	Confirm(ctx context.Context, req ConfirmRequest) (*Intent, error)
	Refund(ctx context.Context, req RefundRequest) (*Intent, error)
	Retrieve(ctx context.Context, ref string) (*Intent, error)
	FetchConfig(ctx context.Context) (*RemoteConfig, error)
}

package adapter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v72"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
)

func TestClassifyStripeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.Kind
	}{
		{"server error", &stripe.Error{HTTPStatusCode: http.StatusBadGateway, Type: stripe.ErrorTypeAPI}, domain.KindGatewayUnavailable},
		{"rate limited", &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}, domain.KindGatewayUnavailable},
		{"card declined", &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripe.ErrorTypeCard, DeclineCode: "insufficient_funds"}, domain.KindGatewayDeclined},
		{"idempotency", &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeIdempotency}, domain.KindIdempotencyConflict},
		{"bad key", &stripe.Error{HTTPStatusCode: http.StatusUnauthorized, Type: stripe.ErrorTypeInvalidRequest}, domain.KindGatewayNotConfigured},
		{"missing", &stripe.Error{HTTPStatusCode: http.StatusNotFound, Type: stripe.ErrorTypeInvalidRequest}, domain.KindNotFound},
		{"invalid request", &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripe.ErrorTypeInvalidRequest}, domain.KindGatewayDeclined},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, domain.KindGatewayUnavailable},
		{"deadline", context.DeadlineExceeded, domain.KindGatewayUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.KindOf(classifyStripeError("op", tt.err)))
		})
	}

	assert.ErrorIs(t, classifyStripeError("op", context.Canceled), context.Canceled)
}

func TestFromStripeIntent(t *testing.T) {
	tests := []struct {
		name     string
		pi       *stripe.PaymentIntent
		want     IntentStatus
		refunded int64
	}{
		{"needs method", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresPaymentMethod}, IntentRequiresConfirmation, 0},
		{"needs confirmation", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresConfirmation}, IntentRequiresConfirmation, 0},
		{"processing", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusProcessing}, IntentProcessing, 0},
		{"succeeded", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}, IntentSucceeded, 0},
		{"canceled", &stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled}, IntentFailed, 0},
		{"refunded", &stripe.PaymentIntent{
			Status:  stripe.PaymentIntentStatusSucceeded,
			Charges: &stripe.ChargeList{Data: []*stripe.Charge{{AmountRefunded: 1500}}},
		}, IntentRefunded, 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.pi.ID = "pi_123"
			tt.pi.Amount = 5000
			tt.pi.Currency = "usd"
			got := fromStripeIntent(tt.pi)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.refunded, got.RefundedMinor)
			assert.Equal(t, "USD", got.Currency)
		})
	}
}

package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"go.uber.org/zap"
)

// StripeGatewayID is the registry name of the Stripe driver.
const StripeGatewayID = "stripe"

// StripeGateway adapts the Stripe PaymentIntents API. Each instance owns a
// client bound to one secret key, so tenants never share credentials.
type StripeGateway struct {
	api    *client.API
	live   bool
	logger *zap.Logger
}

// NewStripeGateway creates a Stripe adapter for secretKey.
func NewStripeGateway(secretKey string, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{
		api:    client.New(secretKey, nil),
		live:   strings.HasPrefix(secretKey, "sk_live_") || strings.HasPrefix(secretKey, "rk_live_"),
		logger: logger.Named("stripe"),
	}
}

// StripeCapabilities lists what the Stripe adapter can do.
func StripeCapabilities() []gateway.Operation {
	return gateway.AllOperations()
}

func (s *StripeGateway) ID() string { return StripeGatewayID }

func (s *StripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyStripeError("create intent", err)
	}

	s.logger.Info("stripe payment intent created", zap.String("ref", pi.ID))
	return fromStripeIntent(pi), nil
}

func (s *StripeGateway) Confirm(ctx context.Context, req ConfirmRequest) (*Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{}
	if req.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethod)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := s.api.PaymentIntents.Confirm(req.Ref, params)
	if err != nil {
		return nil, classifyStripeError("confirm", err)
	}
	if pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod || pi.Status == stripe.PaymentIntentStatusCanceled {
		return nil, domain.NewDeclinedError("payment method was declined", nil)
	}
	return fromStripeIntent(pi), nil
}

func (s *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*Intent, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(req.Ref)}
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	if _, err := s.api.Refunds.New(params); err != nil {
		return nil, classifyStripeError("refund", err)
	}
	return s.Retrieve(ctx, req.Ref)
}

func (s *StripeGateway) Retrieve(ctx context.Context, ref string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return nil, classifyStripeError("retrieve", err)
	}
	return fromStripeIntent(pi), nil
}

// FetchConfig verifies the credentials by reading the account.
func (s *StripeGateway) FetchConfig(ctx context.Context) (*RemoteConfig, error) {
	acct, err := s.api.Account.Get()
	if err != nil {
		return nil, classifyStripeError("fetch config", err)
	}
	if !acct.ChargesEnabled {
		return nil, domain.NewError(domain.KindGatewayNotConfigured, "stripe account cannot accept charges")
	}
	return &RemoteConfig{
		GatewayID:    StripeGatewayID,
		Capabilities: StripeCapabilities(),
		LiveMode:     s.live,
	}, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *Intent {
	out := &Intent{
		Ref:         pi.ID,
		AmountMinor: pi.Amount,
		Currency:    strings.ToUpper(string(pi.Currency)),
		Metadata:    pi.Metadata,
	}

	if pi.Charges != nil {
		for _, ch := range pi.Charges.Data {
			out.RefundedMinor += ch.AmountRefunded
		}
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		out.Status = IntentSucceeded
		if out.RefundedMinor > 0 {
			out.Status = IntentRefunded
		}
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresCapture:
		out.Status = IntentProcessing
	case stripe.PaymentIntentStatusCanceled:
		out.Status = IntentFailed
		out.FailureReason = string(pi.CancellationReason)
	default:
		out.Status = IntentRequiresConfirmation
	}
	if pi.LastPaymentError != nil {
		out.FailureReason = pi.LastPaymentError.Msg
	}
	return out
}

// classifyStripeError maps a Stripe SDK error onto the domain taxonomy.
// Rate limits, 5xx responses and network failures are transient.
func classifyStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode >= http.StatusInternalServerError || se.HTTPStatusCode == http.StatusTooManyRequests:
			return domain.NewTransientGatewayError("stripe is temporarily unavailable", fmt.Errorf("%s: %w", op, err))
		case se.Type == stripe.ErrorTypeCard:
			return domain.NewDeclinedError(declineMessage(se), fmt.Errorf("%s: %w", op, err))
		case se.Type == stripe.ErrorTypeIdempotency:
			return domain.Wrap(domain.KindIdempotencyConflict, "idempotency key reused with a different request", err)
		case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
			return domain.Wrap(domain.KindGatewayNotConfigured, "stripe rejected the configured credentials", err)
		case se.HTTPStatusCode == http.StatusNotFound:
			return domain.Wrap(domain.KindNotFound, "payment not found at stripe", err)
		default:
			return domain.NewDeclinedError("stripe rejected the request", fmt.Errorf("%s: %w", op, err))
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.NewTransientGatewayError("stripe did not respond", fmt.Errorf("%s: %w", op, err))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewTransientGatewayError("stripe call failed", fmt.Errorf("%s: %w", op, err))
}

func declineMessage(se *stripe.Error) string {
	if se.DeclineCode != "" {
		return "card declined: " + string(se.DeclineCode)
	}
	if se.Code != "" {
		return "card declined: " + string(se.Code)
	}
	return "card declined"
}

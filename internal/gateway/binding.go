package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Binding is a resolved gateway for one tenant. Every mutating call is
// checked against the configured capabilities and deduplicated by
// idempotency key through the call log.
type Binding struct {
	config  gwdomain.Config
	gateway adapter.Gateway
	calls   gwdomain.CallLog
	tracer  trace.Tracer
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// Config returns the public configuration this binding was resolved from.
func (b *Binding) Config() gwdomain.Config {
	return b.config.Public()
}

// GatewayID returns the bound gateway's id.
func (b *Binding) GatewayID() string {
	return b.config.GatewayID
}

// callOutcome is the stored result of a gateway call. Permanent rejections
// are stored too so a replayed request gets the same answer.
type callOutcome struct {
	Intent    *adapter.Intent `json:"intent,omitempty"`
	ErrorKind domain.Kind     `json:"error_kind,omitempty"`
	ErrorMsg  string          `json:"error_message,omitempty"`
}

func (b *Binding) CreateIntent(ctx context.Context, req adapter.CreateIntentRequest) (*adapter.Intent, error) {
	return b.dispatch(ctx, gwdomain.OpCreateIntent, req.IdempotencyKey, req, func(ctx context.Context) (*adapter.Intent, error) {
		return b.gateway.CreateIntent(ctx, req)
	})
}

func (b *Binding) Confirm(ctx context.Context, req adapter.ConfirmRequest) (*adapter.Intent, error) {
	return b.dispatch(ctx, gwdomain.OpConfirm, req.IdempotencyKey, req, func(ctx context.Context) (*adapter.Intent, error) {
		return b.gateway.Confirm(ctx, req)
	})
}

func (b *Binding) Refund(ctx context.Context, req adapter.RefundRequest) (*adapter.Intent, error) {
	return b.dispatch(ctx, gwdomain.OpRefund, req.IdempotencyKey, req, func(ctx context.Context) (*adapter.Intent, error) {
		return b.gateway.Refund(ctx, req)
	})
}

// Retrieve reads the gateway's current view of ref. Reads are not logged.
func (b *Binding) Retrieve(ctx context.Context, ref string) (*adapter.Intent, error) {
	if err := b.allow(gwdomain.OpRetrieve); err != nil {
		return nil, err
	}
	var out *adapter.Intent
	err := b.observe(ctx, gwdomain.OpRetrieve, func(ctx context.Context) error {
		var err error
		out, err = b.gateway.Retrieve(ctx, ref)
		return err
	})
	return out, err
}

// FetchConfig asks the gateway for its advertised capabilities.
func (b *Binding) FetchConfig(ctx context.Context) (*adapter.RemoteConfig, error) {
	if err := b.allow(gwdomain.OpFetchConfig); err != nil {
		return nil, err
	}
	var out *adapter.RemoteConfig
	err := b.observe(ctx, gwdomain.OpFetchConfig, func(ctx context.Context) error {
		var err error
		out, err = b.gateway.FetchConfig(ctx)
		return err
	})
	return out, err
}

func (b *Binding) allow(op gwdomain.Operation) error {
	if !b.config.Supports(op) {
		return domain.NewError(domain.KindUnsupportedOperation,
			fmt.Sprintf("gateway %s does not support %s", b.config.GatewayID, op))
	}
	return nil
}

func (b *Binding) dispatch(
	ctx context.Context,
	op gwdomain.Operation,
	idempotencyKey string,
	req any,
	call func(context.Context) (*adapter.Intent, error),
) (*adapter.Intent, error) {
	if err := b.allow(op); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		return nil, domain.NewValidationError("idempotency key is required for gateway calls")
	}

	hash, err := requestHash(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "hash gateway request", err)
	}
	logKey := fmt.Sprintf("%s:%s:%s:%s", b.config.TenantID, b.config.GatewayID, op, idempotencyKey)

	prev, err := b.calls.Find(ctx, logKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("read gateway call log: %w", err)
	}
	if prev != nil {
		if prev.RequestHash != hash {
			return nil, domain.NewError(domain.KindIdempotencyConflict,
				"idempotency key was already used with a different request")
		}
		b.logger.Debug("gateway call replayed from log", zap.String("operation", string(op)))
		return replay(prev)
	}

	var out *adapter.Intent
	callErr := b.observe(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = call(ctx)
		return err
	})

	outcome := callOutcome{Intent: out}
	switch {
	case callErr == nil:
	case domain.KindOf(callErr) == domain.KindGatewayDeclined:
		var de *domain.DomainError
		errors.As(callErr, &de)
		outcome = callOutcome{ErrorKind: de.Kind, ErrorMsg: de.Message}
	default:
		// Transient and unknown outcomes are not recorded so a retry reaches
		// the gateway again under the same key.
		return nil, callErr
	}

	body, err := json.Marshal(outcome)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "encode gateway outcome", err)
	}
	rec := gwdomain.CallRecord{Key: logKey, RequestHash: hash, Response: body, CreatedAt: time.Now().UTC()}
	if err := b.calls.Record(context.WithoutCancel(ctx), rec); err != nil {
		b.logger.Warn("failed to record gateway call", zap.String("operation", string(op)), zap.Error(err))
	}
	return out, callErr
}

func (b *Binding) observe(ctx context.Context, op gwdomain.Operation, call func(context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, "gateway."+string(op), trace.WithAttributes(
		attribute.String("gateway.id", b.config.GatewayID),
		attribute.String("tenant.id", b.config.TenantID),
	))
	defer span.End()

	start := time.Now()
	err := call(ctx)

	outcome := "ok"
	if err != nil {
		outcome = string(domain.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	b.metrics.RecordGatewayCall(ctx, b.config.GatewayID, string(op), outcome, time.Since(start))
	return err
}

func replay(rec *gwdomain.CallRecord) (*adapter.Intent, error) {
	var outcome callOutcome
	if err := json.Unmarshal(rec.Response, &outcome); err != nil {
		return nil, domain.Wrap(domain.KindInternal, "decode gateway outcome", err)
	}
	if outcome.ErrorKind != "" {
		return nil, domain.NewError(outcome.ErrorKind, outcome.ErrorMsg)
	}
	return outcome.Intent, nil
}

// requestHash fingerprints the logical request. Idempotency keys are
// excluded by the request types' json tags.
func requestHash(req any) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

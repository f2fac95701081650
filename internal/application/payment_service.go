package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/saga"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GatewayResolver resolves a tenant's configured gateway. *gateway.Registry satisfies it.
type GatewayResolver interface {
	Resolve(ctx context.Context, tenantID, gatewayID string) (*gateway.Binding, error)
}

// CreateIntentRequest is the DTO for opening a payment intent.
type CreateIntentRequest struct {
	GatewayID      string            `json:"gateway_id" binding:"required"`
	AmountMinor    int64             `json:"amount" binding:"required,gt=0"`
	Currency       string            `json:"currency" binding:"required,len=3"`
	IdempotencyKey string            `json:"idempotency_key" binding:"required,max=255"`
	Metadata       map[string]string `json:"metadata"`
}

// ConfirmRequest is the DTO for confirming an intent.
type ConfirmRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required"`
}

// RefundRequest is the DTO for refunding an intent. A zero amount refunds in full.
type RefundRequest struct {
	AmountMinor int64 `json:"amount" binding:"gte=0"`
}

// HistoryQuery filters a tenant's payment history.
type HistoryQuery struct {
	Status    string
	GatewayID string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// PaymentIntentDTO is the API response DTO for a payment intent.
type PaymentIntentDTO struct {
	ID                  uuid.UUID         `json:"id"`
	TenantID            string            `json:"tenant_id"`
	ProviderID          string            `json:"provider_id,omitempty"`
	GatewayID           string            `json:"gateway_id"`
	GatewayRef          string            `json:"gateway_ref,omitempty"`
	Status              string            `json:"status"`
	AmountMinor         int64             `json:"amount"`
	RefundedMinor       int64             `json:"refunded_amount,omitempty"`
	Currency            string            `json:"currency"`
	IdempotencyKey      string            `json:"idempotency_key"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	PendingVerification bool              `json:"pending_verification"`
	Version             int64             `json:"version"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	SettledAt           *time.Time        `json:"settled_at,omitempty"`
	RefundedAt          *time.Time        `json:"refunded_at,omitempty"`
}

// PaymentService is the application service for payment intent use cases.
// Every operation takes the caller's auth.Context explicitly.
type PaymentService struct {
	repo     payment.Repository
	gateways GatewayResolver
	sagaSvc  *saga.PaymentSagaService
	locks    *keyedMutex
	logger   *zap.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	repo payment.Repository,
	gateways GatewayResolver,
	sagaSvc *saga.PaymentSagaService,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repo:     repo,
		gateways: gateways,
		sagaSvc:  sagaSvc,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// CreateIntent opens a payment intent. Repeating a request with the same
// idempotency key returns the original intent; reusing the key with a
// different payload fails with IdempotencyConflict.
func (s *PaymentService) CreateIntent(ctx context.Context, ac *auth.Context, req CreateIntentRequest) (*PaymentIntentDTO, error) {
	if err := ac.Require(auth.ScopePaymentsWrite); err != nil {
		return nil, err
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Metadata == nil {
		req.Metadata = map[string]string{}
	}

	unlock := s.locks.Lock("idem:" + ac.TenantID + ":" + req.IdempotencyKey)
	defer unlock()

	if dto, err := s.replay(ctx, ac, req); dto != nil || err != nil {
		return dto, err
	}

	binding, err := s.gateways.Resolve(ctx, ac.TenantID, req.GatewayID)
	if err != nil {
		return nil, err
	}
	if !binding.Config().Supports(gwdomain.OpCreateIntent) {
		return nil, domain.NewError(domain.KindUnsupportedOperation, "gateway "+req.GatewayID+" does not support create_intent")
	}

	p, err := payment.NewIntent(ac.TenantID, ac.ProviderID, req.GatewayID, req.AmountMinor, req.Currency, req.IdempotencyKey, req.Metadata)
	if err != nil {
		return nil, err
	}

	s.logger.Info("creating payment intent",
		zap.String("intent_id", p.ID().String()),
		zap.String("tenant_id", ac.TenantID),
		zap.String("gateway_id", req.GatewayID),
		zap.Int64("amount_minor", req.AmountMinor),
		zap.String("currency", req.Currency),
	)

	unlockIntent := s.locks.Lock(p.ID().String())
	err = s.sagaSvc.CreateIntentSaga(ctx, p, binding)
	unlockIntent()
	if err != nil {
		// Another instance may have won the race for this idempotency key.
		if errors.Is(err, domain.ErrConflict) {
			if dto, rerr := s.replay(ctx, ac, req); dto != nil || rerr != nil {
				return dto, rerr
			}
		}
		s.logger.Warn("failed to create payment intent", zap.String("intent_id", p.ID().String()), zap.Error(err))
		return nil, err
	}

	dto := toIntentDTO(p)
	return &dto, nil
}

// replay returns the intent already created under req's idempotency key, or
// nil if there is none.
func (s *PaymentService) replay(ctx context.Context, ac *auth.Context, req CreateIntentRequest) (*PaymentIntentDTO, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, ac.TenantID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !existing.SamePayload(req.GatewayID, req.AmountMinor, req.Currency, req.Metadata) {
		return nil, domain.NewError(domain.KindIdempotencyConflict, "idempotency key was already used with a different request")
	}

	s.logger.Debug("replaying payment intent for idempotency key", zap.String("intent_id", existing.ID().String()))
	unlock := s.locks.Lock(existing.ID().String())
	defer unlock()
	existing = s.reconcileOnAccess(ctx, existing)
	dto := toIntentDTO(existing)
	return &dto, nil
}

// Confirm authorizes and captures an intent at its gateway.
func (s *PaymentService) Confirm(ctx context.Context, ac *auth.Context, id uuid.UUID, req ConfirmRequest) (*PaymentIntentDTO, error) {
	return s.mutate(ctx, ac, auth.ScopePaymentsWrite, id, func(p *payment.Intent, gw *gateway.Binding) error {
		return s.sagaSvc.ConfirmSaga(ctx, p, gw, req.PaymentMethod)
	})
}

// Settle records that a confirmed intent's funds have settled.
func (s *PaymentService) Settle(ctx context.Context, ac *auth.Context, id uuid.UUID) (*PaymentIntentDTO, error) {
	return s.mutate(ctx, ac, auth.ScopePaymentsSettle, id, func(p *payment.Intent, _ *gateway.Binding) error {
		return s.sagaSvc.SettleSaga(ctx, p)
	})
}

// Refund returns funds for a confirmed or settled intent.
func (s *PaymentService) Refund(ctx context.Context, ac *auth.Context, id uuid.UUID, req RefundRequest) (*PaymentIntentDTO, error) {
	return s.mutate(ctx, ac, auth.ScopePaymentsRefund, id, func(p *payment.Intent, gw *gateway.Binding) error {
		return s.sagaSvc.RefundSaga(ctx, p, gw, req.AmountMinor)
	})
}

// mutate loads the intent under its lock, checks ownership, resolves any
// unknown gateway outcome and runs op.
func (s *PaymentService) mutate(
	ctx context.Context,
	ac *auth.Context,
	scope auth.Scope,
	id uuid.UUID,
	op func(p *payment.Intent, gw *gateway.Binding) error,
) (*PaymentIntentDTO, error) {
	if err := ac.Require(scope); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id.String())
	defer unlock()

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ac.CheckTenant(p.TenantID()); err != nil {
		return nil, err
	}

	p = s.reconcileOnAccess(ctx, p)
	if p.NeedsGatewayReconciliation() {
		return nil, domain.NewConflictError("payment outcome is still being verified with the gateway")
	}

	binding, err := s.gateways.Resolve(ctx, p.TenantID(), p.GatewayID())
	if err != nil {
		return nil, err
	}

	if err := op(p, binding); err != nil {
		s.logger.Warn("payment operation failed",
			zap.String("intent_id", id.String()),
			zap.String("status", string(p.Status())),
			zap.Error(err),
		)
		return nil, err
	}

	dto := toIntentDTO(p)
	return &dto, nil
}

// GetIntent returns one of the caller's intents.
func (s *PaymentService) GetIntent(ctx context.Context, ac *auth.Context, id uuid.UUID) (*PaymentIntentDTO, error) {
	if err := ac.Require(auth.ScopePaymentsRead); err != nil {
		return nil, err
	}

	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ac.CheckTenant(p.TenantID()); err != nil {
		return nil, err
	}

	if p.NeedsGatewayReconciliation() {
		unlock := s.locks.Lock(id.String())
		if fresh, err := s.repo.FindByID(ctx, id); err == nil {
			p = s.reconcileOnAccess(ctx, fresh)
		}
		unlock()
	}

	dto := toIntentDTO(p)
	return &dto, nil
}

// ListHistory returns the caller's intents, newest first.
func (s *PaymentService) ListHistory(ctx context.Context, ac *auth.Context, q HistoryQuery) ([]PaymentIntentDTO, int64, error) {
	if err := ac.Require(auth.ScopePaymentsRead); err != nil {
		return nil, 0, err
	}

	filter := payment.HistoryFilter{
		Status:    payment.Status(q.Status),
		GatewayID: q.GatewayID,
		From:      q.From,
		To:        q.To,
		Page:      q.Page,
		Limit:     q.Limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.NewValidationError("unknown status " + q.Status)
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, domain.NewValidationError("from must be before to")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	intents, total, err := s.repo.List(ctx, ac.TenantID, filter)
	if err != nil {
		return nil, 0, err
	}

	dtos := make([]PaymentIntentDTO, len(intents))
	for i, p := range intents {
		dtos[i] = toIntentDTO(p)
	}
	return dtos, total, nil
}

// ReconcilePending resolves up to limit intents whose gateway outcome has
// been unknown since before olderThan. It returns how many were resolved.
func (s *PaymentService) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	candidates, err := s.repo.ListNeedingReconciliation(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}

		unlock := s.locks.Lock(candidate.ID().String())
		p, err := s.repo.FindByID(ctx, candidate.ID())
		if err == nil && p.NeedsGatewayReconciliation() {
			if p = s.reconcileOnAccess(ctx, p); !p.NeedsGatewayReconciliation() {
				resolved++
			}
		}
		unlock()
	}
	return resolved, nil
}

// reconcileOnAccess asks the gateway about an intent whose outcome is
// unknown. Failures are logged and the freshest stored state is returned.
// Callers hold the intent's lock.
func (s *PaymentService) reconcileOnAccess(ctx context.Context, p *payment.Intent) *payment.Intent {
	if !p.NeedsGatewayReconciliation() {
		return p
	}

	binding, err := s.gateways.Resolve(ctx, p.TenantID(), p.GatewayID())
	if err == nil {
		_, err = s.sagaSvc.ReconcileSaga(ctx, p, binding)
	}
	if err == nil {
		return p
	}

	s.logger.Warn("gateway reconciliation failed",
		zap.String("intent_id", p.ID().String()),
		zap.Error(err),
	)
	if fresh, ferr := s.repo.FindByID(context.WithoutCancel(ctx), p.ID()); ferr == nil {
		return fresh
	}
	return p
}

func toIntentDTO(p *payment.Intent) PaymentIntentDTO {
	return PaymentIntentDTO{
		ID:                  p.ID(),
		TenantID:            p.TenantID(),
		ProviderID:          p.ProviderID(),
		GatewayID:           p.GatewayID(),
		GatewayRef:          p.GatewayRef(),
		Status:              string(p.Status()),
		AmountMinor:         p.AmountMinor(),
		RefundedMinor:       p.RefundedMinor(),
		Currency:            p.Currency(),
		IdempotencyKey:      p.IdempotencyKey(),
		Metadata:            p.Metadata(),
		FailureReason:       p.FailureReason(),
		PendingVerification: p.PendingVerification(),
		Version:             p.Version(),
		CreatedAt:           p.CreatedAt(),
		UpdatedAt:           p.UpdatedAt(),
		SettledAt:           p.SettledAt(),
		RefundedAt:          p.RefundedAt(),
	}
}

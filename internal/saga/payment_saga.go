package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/events"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/kafka"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// EventPublisher publishes CloudEvents. *kafka.Producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, string, kafka.CloudEvent) error { return nil }

// NoopPublisher drops every event. Used when Kafka is disabled.
func NoopPublisher() EventPublisher { return noopPublisher{} }

// Invalidator drops a tenant's cached derived data. *cache.Cache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, tenant, scope string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string, string) {}

// GatewayBinding is the part of a resolved gateway the orchestrator drives.
// *gateway.Binding satisfies it.
type GatewayBinding interface {
	GatewayID() string
	CreateIntent(ctx context.Context, req adapter.CreateIntentRequest) (*adapter.Intent, error)
	Confirm(ctx context.Context, req adapter.ConfirmRequest) (*adapter.Intent, error)
	Refund(ctx context.Context, req adapter.RefundRequest) (*adapter.Intent, error)
	Retrieve(ctx context.Context, ref string) (*adapter.Intent, error)
}

// RetryPolicy bounds gateway calls. MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		CallTimeout:    10 * time.Second,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithMaxRetries(b, retries)
}

// PaymentSagaService drives payment intents through the gateway and the
// store. Callers serialize operations on one intent.
type PaymentSagaService struct {
	repo        payment.Repository
	records     ledger.RecordRepository
	invalidator Invalidator
	publisher   EventPublisher
	policy      RetryPolicy
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

// NewPaymentSagaService creates a new PaymentSagaService.
func NewPaymentSagaService(
	repo payment.Repository,
	records ledger.RecordRepository,
	invalidator Invalidator,
	publisher EventPublisher,
	policy RetryPolicy,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *PaymentSagaService {
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	if publisher == nil {
		publisher = NoopPublisher()
	}
	if metrics == nil {
		metrics = monitoring.NoopMetrics()
	}
	return &PaymentSagaService{
		repo:        repo,
		records:     records,
		invalidator: invalidator,
		publisher:   publisher,
		policy:      policy,
		metrics:     metrics,
		logger:      logger.Named("payment_saga"),
	}
}

// CreateIntentSaga persists p, opens it at the gateway and records the
// gateway reference. A decline fails the intent; an unknown outcome flags it
// for verification.
func (s *PaymentSagaService) CreateIntentSaga(ctx context.Context, p *payment.Intent, gw GatewayBinding) error {
	var remote *adapter.Intent

	saga := NewSaga("create_intent", s.logger)

	saga.AddStep(SagaStep{
		Name: "persist_intent",
		Execute: func(ctx context.Context) error {
			if err := s.repo.Save(ctx, p); err != nil {
				return err
			}
			s.metrics.RecordTransition(ctx, string(p.Status()))
			return nil
		},
		Compensate: func(ctx context.Context, cause error) error {
			return s.recordGatewayFailure(ctx, p, cause, true)
		},
	})

	saga.AddStep(SagaStep{
		Name: "create_gateway_intent",
		Execute: func(ctx context.Context) error {
			var err error
			remote, err = s.callGateway(ctx, gw, gwdomain.OpCreateIntent, func(ctx context.Context) (*adapter.Intent, error) {
				return gw.CreateIntent(ctx, createRequest(p))
			})
			return err
		},
	})

	// A failure here leaves the intent created without a gateway reference;
	// reconciliation replays the create with the same idempotency key.
	saga.AddStep(SagaStep{
		Name: "await_confirmation",
		Execute: func(ctx context.Context) error {
			prev := p.Status()
			if err := p.AwaitConfirmation(remote.Ref); err != nil {
				return err
			}
			return s.persistGatewayResult(ctx, p, prev)
		},
	})

	if err := saga.Execute(ctx); err != nil {
		return err
	}

	s.publish(ctx, events.PaymentIntentCreated, p)
	return nil
}

// ConfirmSaga authorizes and captures p at the gateway. A gateway that is
// still processing leaves p awaiting confirmation and flagged for
// verification.
func (s *PaymentSagaService) ConfirmSaga(ctx context.Context, p *payment.Intent, gw GatewayBinding, paymentMethod string) error {
	var remote *adapter.Intent

	saga := NewSaga("confirm_payment", s.logger)

	saga.AddStep(SagaStep{
		Name: "validate_transition",
		Execute: func(ctx context.Context) error {
			if !payment.CanTransition(p.Status(), payment.StatusConfirmed) {
				return domain.NewInvalidStateError(string(p.Status()), string(payment.StatusConfirmed))
			}
			return nil
		},
		Compensate: func(ctx context.Context, cause error) error {
			return s.recordGatewayFailure(ctx, p, cause, true)
		},
	})

	saga.AddStep(SagaStep{
		Name: "confirm_at_gateway",
		Execute: func(ctx context.Context) error {
			var err error
			remote, err = s.callGateway(ctx, gw, gwdomain.OpConfirm, func(ctx context.Context) (*adapter.Intent, error) {
				return gw.Confirm(ctx, adapter.ConfirmRequest{
					IdempotencyKey: gatewayKey(p, "confirm"),
					Ref:            p.GatewayRef(),
					PaymentMethod:  paymentMethod,
				})
			})
			if err == nil && remote.Status == adapter.IntentFailed {
				err = domain.NewDeclinedError(declineReason(remote), nil)
			}
			return err
		},
	})

	saga.AddStep(SagaStep{
		Name: "persist_confirmation",
		Execute: func(ctx context.Context) error {
			prev := p.Status()
			if remote.Status == adapter.IntentSucceeded {
				if err := p.Confirm(); err != nil {
					return err
				}
			} else {
				p.MarkPendingVerification("gateway is still processing the payment")
			}
			return s.persistGatewayResult(ctx, p, prev)
		},
	})

	if err := saga.Execute(ctx); err != nil {
		return err
	}

	if p.Status() == payment.StatusConfirmed {
		s.publish(ctx, events.PaymentConfirmed, p)
	} else {
		s.publish(ctx, events.PaymentPendingVerification, p)
	}
	return nil
}

// RefundSaga returns amountMinor (zero for the full amount) to the payer. A
// decline leaves p unchanged.
func (s *PaymentSagaService) RefundSaga(ctx context.Context, p *payment.Intent, gw GatewayBinding, amountMinor int64) error {
	if amountMinor == 0 {
		amountMinor = p.AmountMinor()
	}

	saga := NewSaga("refund_payment", s.logger)

	saga.AddStep(SagaStep{
		Name: "validate_refund",
		Execute: func(ctx context.Context) error {
			if !payment.CanTransition(p.Status(), payment.StatusRefunded) {
				return domain.NewInvalidStateError(string(p.Status()), string(payment.StatusRefunded))
			}
			if amountMinor < 0 || amountMinor > p.AmountMinor() {
				return domain.NewValidationError("refund amount must be between 1 and the intent amount")
			}
			return nil
		},
		Compensate: func(ctx context.Context, cause error) error {
			return s.recordGatewayFailure(ctx, p, cause, false)
		},
	})

	saga.AddStep(SagaStep{
		Name: "refund_at_gateway",
		Execute: func(ctx context.Context) error {
			_, err := s.callGateway(ctx, gw, gwdomain.OpRefund, func(ctx context.Context) (*adapter.Intent, error) {
				return gw.Refund(ctx, adapter.RefundRequest{
					IdempotencyKey: gatewayKey(p, fmt.Sprintf("refund:%d", amountMinor)),
					Ref:            p.GatewayRef(),
					AmountMinor:    amountMinor,
				})
			})
			return err
		},
	})

	saga.AddStep(SagaStep{
		Name: "persist_refund",
		Execute: func(ctx context.Context) error {
			prev := p.Status()
			if err := p.Refund(amountMinor); err != nil {
				return err
			}
			return s.persistGatewayResult(ctx, p, prev)
		},
	})

	if err := saga.Execute(ctx); err != nil {
		return err
	}

	s.projectRefund(ctx, p)
	s.publish(ctx, events.PaymentRefunded, p)
	return nil
}

// SettleSaga records that a confirmed payment's funds have settled.
func (s *PaymentSagaService) SettleSaga(ctx context.Context, p *payment.Intent) error {
	prev := p.Status()
	if err := p.Settle(); err != nil {
		return err
	}
	if err := s.persist(ctx, p, prev); err != nil {
		return err
	}

	s.project(ctx, p, ledger.KindPaymentSettled, p.AmountMinor(), *p.SettledAt())
	s.publish(ctx, events.PaymentSettled, p)
	return nil
}

// ReconcileSaga resolves an intent whose gateway outcome is unknown by
// asking the gateway. It reports whether the intent is still unresolved.
func (s *PaymentSagaService) ReconcileSaga(ctx context.Context, p *payment.Intent, gw GatewayBinding) (bool, error) {
	if !p.NeedsGatewayReconciliation() {
		return false, nil
	}
	if p.GatewayRef() == "" {
		return s.reconcileCreate(ctx, p, gw)
	}

	remote, err := s.callGateway(ctx, gw, gwdomain.OpRetrieve, func(ctx context.Context) (*adapter.Intent, error) {
		return gw.Retrieve(ctx, p.GatewayRef())
	})
	if err != nil {
		return true, err
	}

	prev := p.Status()
	var event string
	switch remote.Status {
	case adapter.IntentSucceeded:
		if p.Status() == payment.StatusRequiresConfirmation {
			if err := p.Confirm(); err != nil {
				return true, err
			}
			event = events.PaymentConfirmed
		} else {
			p.ClearPendingVerification()
		}
	case adapter.IntentRefunded:
		if !payment.CanTransition(p.Status(), payment.StatusRefunded) {
			p.ClearPendingVerification()
			break
		}
		amount := remote.RefundedMinor
		if amount <= 0 || amount > p.AmountMinor() {
			amount = p.AmountMinor()
		}
		if err := p.Refund(amount); err != nil {
			return true, err
		}
		event = events.PaymentRefunded
	case adapter.IntentFailed:
		if payment.CanTransition(p.Status(), payment.StatusFailed) {
			if err := p.Fail(declineReason(remote)); err != nil {
				return true, err
			}
			event = events.PaymentFailed
		} else {
			p.ClearPendingVerification()
		}
	case adapter.IntentRequiresConfirmation:
		// The confirm never reached the gateway; the caller may confirm again.
		p.ClearPendingVerification()
	default:
		return true, nil
	}

	if err := s.persist(ctx, p, prev); err != nil {
		return true, err
	}
	if event == events.PaymentRefunded {
		s.projectRefund(ctx, p)
	}
	if event != "" {
		s.publish(ctx, event, p)
	}
	s.logger.Info("intent reconciled",
		zap.String("intent_id", p.ID().String()),
		zap.String("status", string(p.Status())),
		zap.String("gateway_status", string(remote.Status)),
	)
	return false, nil
}

// reconcileCreate replays the create call; the gateway answers a reused
// idempotency key with the intent it already opened.
func (s *PaymentSagaService) reconcileCreate(ctx context.Context, p *payment.Intent, gw GatewayBinding) (bool, error) {
	remote, err := s.callGateway(ctx, gw, gwdomain.OpCreateIntent, func(ctx context.Context) (*adapter.Intent, error) {
		return gw.CreateIntent(ctx, createRequest(p))
	})
	if err != nil {
		if domain.IsTransient(err) {
			return true, err
		}
		if ferr := s.recordGatewayFailure(ctx, p, err, true); ferr != nil {
			return true, ferr
		}
		return p.NeedsGatewayReconciliation(), nil
	}

	prev := p.Status()
	if err := p.AwaitConfirmation(remote.Ref); err != nil {
		return true, err
	}
	if err := s.persist(ctx, p, prev); err != nil {
		return true, err
	}
	s.publish(ctx, events.PaymentIntentCreated, p)
	return false, nil
}

// recordGatewayFailure applies the outcome of a failed gateway step to p.
// Transient failures leave the outcome unknown and flag p for verification.
// Declines fail p when failOnDecline is set. Anything else leaves p as is.
func (s *PaymentSagaService) recordGatewayFailure(ctx context.Context, p *payment.Intent, cause error, failOnDecline bool) error {
	prev := p.Status()
	event := events.PaymentPendingVerification

	switch kind := domain.KindOf(cause); {
	case domain.IsTransient(cause):
		p.MarkPendingVerification(failureReason(cause))
	case failOnDecline && (kind == domain.KindGatewayDeclined || kind == domain.KindNotFound):
		if !payment.CanTransition(p.Status(), payment.StatusFailed) {
			return nil
		}
		if err := p.Fail(failureReason(cause)); err != nil {
			return err
		}
		event = events.PaymentFailed
	default:
		return nil
	}

	if err := s.persist(ctx, p, prev); err != nil {
		return err
	}
	s.publish(ctx, event, p)
	return nil
}

// callGateway runs call with a per-attempt timeout, retrying transient
// failures with exponential backoff. Context errors surface as
// GatewayUnavailable since the gateway may have acted on the request.
func (s *PaymentSagaService) callGateway(
	ctx context.Context,
	gw GatewayBinding,
	op gwdomain.Operation,
	call func(context.Context) (*adapter.Intent, error),
) (*adapter.Intent, error) {
	attempt := 0
	out, err := backoff.RetryNotifyWithData(func() (*adapter.Intent, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.policy.CallTimeout)
		defer cancel()

		res, err := call(callCtx)
		switch {
		case err == nil:
			return res, nil
		case ctx.Err() != nil:
			return nil, backoff.Permanent(err)
		case domain.IsTransient(err):
			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}, backoff.WithContext(s.policy.backOff(), ctx), func(err error, wait time.Duration) {
		s.logger.Warn("transient gateway failure, retrying",
			zap.String("gateway", gw.GatewayID()),
			zap.String("operation", string(op)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return out, nil
	}

	if (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) &&
		domain.KindOf(err) != domain.KindGatewayUnavailable {
		err = domain.NewTransientGatewayError("gateway call did not complete", err)
	}
	if domain.IsTransient(err) {
		s.logger.Warn("gateway outcome unknown",
			zap.String("gateway", gw.GatewayID()),
			zap.String("operation", string(op)),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
	}
	return nil, err
}

// persist bumps the version and writes p with optimistic locking.
func (s *PaymentSagaService) persist(ctx context.Context, p *payment.Intent, prev payment.Status) error {
	p.IncrementVersion()
	if err := s.repo.Update(ctx, p); err != nil {
		return fmt.Errorf("failed to persist intent %s: %w", p.ID(), err)
	}
	if p.Status() != prev {
		s.metrics.RecordTransition(ctx, string(p.Status()))
	}
	return nil
}

// persistGatewayResult writes p after a gateway call succeeded. When the
// write fails, the stored copy is flagged for verification so the charge is
// picked up by reconciliation instead of being lost.
func (s *PaymentSagaService) persistGatewayResult(ctx context.Context, p *payment.Intent, prev payment.Status) error {
	err := s.persist(ctx, p, prev)
	if err != nil {
		s.flagUnpersisted(ctx, p, err)
	}
	return err
}

func (s *PaymentSagaService) flagUnpersisted(ctx context.Context, p *payment.Intent, cause error) {
	ctx = context.WithoutCancel(ctx)
	var flagged *payment.Intent

	err := backoff.Retry(func() error {
		stored, err := s.repo.FindByID(ctx, p.ID())
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return backoff.Permanent(err)
			}
			return err
		}
		if stored.NeedsGatewayReconciliation() ||
			(stored.Status() == p.Status() && !p.PendingVerification()) {
			return nil
		}
		stored.MarkPendingVerification("gateway result was not recorded")
		stored.IncrementVersion()
		if err := s.repo.Update(ctx, stored); err != nil {
			return err
		}
		flagged = stored
		return nil
	}, s.policy.backOff())
	if err != nil {
		s.logger.Error("failed to flag intent for verification",
			zap.String("intent_id", p.ID().String()),
			zap.String("gateway_status", string(p.Status())),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	if flagged == nil {
		return
	}

	s.logger.Warn("gateway result not recorded, intent flagged for verification",
		zap.String("intent_id", p.ID().String()),
		zap.String("gateway_status", string(p.Status())),
		zap.Error(cause),
	)
	s.publish(ctx, events.PaymentPendingVerification, flagged)
}

// projectRefund records a refund against revenue. Refunds of intents that
// never settled are left out: their amount was never counted as revenue.
func (s *PaymentSagaService) projectRefund(ctx context.Context, p *payment.Intent) {
	if p.SettledAt() == nil {
		return
	}
	s.project(ctx, p, ledger.KindPaymentRefund, p.RefundedMinor(), *p.RefundedAt())
}

// project appends the ledger record for a settled or refunded intent and
// invalidates the tenant's analytics. The intent state is already persisted,
// so a ledger failure is logged rather than returned.
func (s *PaymentSagaService) project(ctx context.Context, p *payment.Intent, kind ledger.Kind, amountMinor int64, at time.Time) {
	ctx = context.WithoutCancel(ctx)
	intentID := p.ID()
	rec := ledger.Record{
		ID:          uuid.New(),
		TenantID:    p.TenantID(),
		Kind:        kind,
		SourceKey:   fmt.Sprintf("intent:%s:%s", intentID, kind),
		IntentID:    &intentID,
		AmountMinor: amountMinor,
		Currency:    p.Currency(),
		OccurredAt:  at,
	}

	err := backoff.Retry(func() error {
		_, err := s.records.Append(ctx, rec)
		return err
	}, s.policy.backOff())
	if err != nil {
		s.logger.Error("failed to append ledger record",
			zap.String("intent_id", intentID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	s.invalidator.Invalidate(ctx, p.TenantID(), cache.ScopeAnalytics)
}

func (s *PaymentSagaService) publish(ctx context.Context, eventType string, p *payment.Intent) {
	event := events.PaymentEvent{
		IntentID:      p.ID(),
		TenantID:      p.TenantID(),
		ProviderID:    p.ProviderID(),
		GatewayID:     p.GatewayID(),
		GatewayRef:    p.GatewayRef(),
		Status:        string(p.Status()),
		AmountMinor:   p.AmountMinor(),
		RefundedMinor: p.RefundedMinor(),
		Currency:      p.Currency(),
		Reason:        p.FailureReason(),
		OccurredAt:    time.Now().UTC(),
	}

	ce, err := kafka.NewCloudEvent(events.Source, eventType, event)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.String("type", eventType), zap.Error(err))
		return
	}
	ce.Subject = p.ID().String()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishEvent(ctx, events.TopicPaymentEvents, ce); err != nil {
		s.logger.Error("failed to publish payment event",
			zap.String("type", eventType),
			zap.String("intent_id", p.ID().String()),
			zap.Error(err),
		)
	}
}

func createRequest(p *payment.Intent) adapter.CreateIntentRequest {
	return adapter.CreateIntentRequest{
		IdempotencyKey: gatewayKey(p, "create"),
		AmountMinor:    p.AmountMinor(),
		Currency:       p.Currency(),
		Metadata:       p.Metadata(),
	}
}

// gatewayKey derives the idempotency key sent to the gateway for one
// operation on p. It is stable across retries and reconciliation.
func gatewayKey(p *payment.Intent, op string) string {
	return p.ID().String() + ":" + op
}

func declineReason(remote *adapter.Intent) string {
	if remote.FailureReason != "" {
		return remote.FailureReason
	}
	return "payment declined by gateway"
}

func failureReason(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

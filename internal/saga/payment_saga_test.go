package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/events"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/kafka"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository/memory"
	"go.uber.org/zap"
)

type mockBinding struct{ *adapter.MockGateway }

func (b mockBinding) GatewayID() string { return b.ID() }

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == events.TopicPaymentEvents {
		p.types = append(p.types, ce.Type)
	}
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tenant, scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, tenant+"/"+scope)
}

// flakyRepo fails the next failUpdates calls to Update.
type flakyRepo struct {
	*memory.PaymentRepository
	failUpdates int
}

func (r *flakyRepo) Update(ctx context.Context, p *payment.Intent) error {
	if r.failUpdates > 0 {
		r.failUpdates--
		return domain.NewError(domain.KindInternal, "store unavailable")
	}
	return r.PaymentRepository.Update(ctx, p)
}

type sagaFixture struct {
	svc         *PaymentSagaService
	repo        *flakyRepo
	records     *memory.LedgerRepository
	gw          mockBinding
	publisher   *recordingPublisher
	invalidator *recordingInvalidator
}

func newSagaFixture(t *testing.T, policy RetryPolicy) *sagaFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &sagaFixture{
		repo:        &flakyRepo{PaymentRepository: memory.NewPaymentRepository()},
		records:     memory.NewLedgerRepository(),
		gw:          mockBinding{adapter.NewMockGateway(logger)},
		publisher:   &recordingPublisher{},
		invalidator: &recordingInvalidator{},
	}
	f.svc = NewPaymentSagaService(f.repo, f.records, f.invalidator, f.publisher, policy, nil, logger)
	return f
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		CallTimeout:    50 * time.Millisecond,
	}
}

func newIntent(t *testing.T) *payment.Intent {
	t.Helper()
	p, err := payment.NewIntent("t1", "prov-1", adapter.MockGatewayID, 500000, "USD", "idem-"+t.Name(), map[string]string{"invoice": "INV-1"})
	require.NoError(t, err)
	return p
}

func (f *sagaFixture) stored(t *testing.T, p *payment.Intent) *payment.Intent {
	t.Helper()
	got, err := f.repo.FindByID(context.Background(), p.ID())
	require.NoError(t, err)
	return got
}

func (f *sagaFixture) created(t *testing.T) *payment.Intent {
	t.Helper()
	p := newIntent(t)
	require.NoError(t, f.svc.CreateIntentSaga(context.Background(), p, f.gw))
	return p
}

func (f *sagaFixture) confirmed(t *testing.T) *payment.Intent {
	t.Helper()
	p := f.created(t)
	require.NoError(t, f.svc.ConfirmSaga(context.Background(), p, f.gw, adapter.MockMethodSuccess))
	return p
}

func TestSaga_CompensatesInReverseOrder(t *testing.T) {
	var order []string
	s := NewSaga("test", zap.NewNop())
	for _, name := range []string{"a", "b"} {
		name := name
		s.AddStep(SagaStep{
			Name:    name,
			Execute: func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context, cause error) error {
				assert.ErrorIs(t, cause, domain.ErrGatewayDeclined)
				order = append(order, name)
				return nil
			},
		})
	}
	s.AddStep(SagaStep{
		Name:    "c",
		Execute: func(ctx context.Context) error { return domain.NewDeclinedError("no", nil) },
	})

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayDeclined)
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestCreateIntentSaga_Success(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.created(t)

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusRequiresConfirmation, got.Status())
	assert.NotEmpty(t, got.GatewayRef())
	assert.Equal(t, int64(2), got.Version())
	assert.Equal(t, []string{events.PaymentIntentCreated}, f.publisher.Types())
}

func TestCreateIntentSaga_RetriesTransientFailures(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	f.gw.FailNext(gwdomain.OpCreateIntent, 2, domain.NewTransientGatewayError("503", nil))

	p := f.created(t)
	assert.Equal(t, 3, f.gw.Calls(gwdomain.OpCreateIntent))
	assert.Equal(t, payment.StatusRequiresConfirmation, f.stored(t, p).Status())
}

func TestCreateIntentSaga_ExhaustedRetriesFlagPending(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	f.gw.FailNext(gwdomain.OpCreateIntent, 3, domain.NewTransientGatewayError("503", nil))
	p := newIntent(t)

	err := f.svc.CreateIntentSaga(context.Background(), p, f.gw)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, 3, f.gw.Calls(gwdomain.OpCreateIntent))

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusCreated, got.Status())
	assert.True(t, got.PendingVerification())
}

func TestCreateIntentSaga_DeclineFailsIntent(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	f.gw.FailNext(gwdomain.OpCreateIntent, 1, domain.NewDeclinedError("currency not supported", nil))
	p := newIntent(t)

	err := f.svc.CreateIntentSaga(context.Background(), p, f.gw)
	assert.ErrorIs(t, err, domain.ErrGatewayDeclined)
	assert.Equal(t, 1, f.gw.Calls(gwdomain.OpCreateIntent))

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusFailed, got.Status())
	assert.Equal(t, "currency not supported", got.FailureReason())
	assert.Contains(t, f.publisher.Types(), events.PaymentFailed)
}

func TestCreateIntentSaga_PersistFailureIsReconciled(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	f.repo.failUpdates = 1
	p := newIntent(t)

	require.Error(t, f.svc.CreateIntentSaga(context.Background(), p, f.gw))
	got := f.stored(t, p)
	assert.Equal(t, payment.StatusCreated, got.Status())
	assert.Empty(t, got.GatewayRef())
	require.True(t, got.NeedsGatewayReconciliation())

	pending, err := f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)

	got = f.stored(t, p)
	assert.Equal(t, payment.StatusRequiresConfirmation, got.Status())
	assert.NotEmpty(t, got.GatewayRef())
	assert.Equal(t, 2, f.gw.Calls(gwdomain.OpCreateIntent))

	// the replayed create returned the intent the gateway already opened
	require.NoError(t, f.svc.ConfirmSaga(context.Background(), got, f.gw, adapter.MockMethodSuccess))
}

func TestConfirmSaga_Success(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)

	assert.Equal(t, payment.StatusConfirmed, f.stored(t, p).Status())
	assert.Contains(t, f.publisher.Types(), events.PaymentConfirmed)
}

func TestConfirmSaga_DeclineFailsIntent(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.created(t)

	err := f.svc.ConfirmSaga(context.Background(), p, f.gw, adapter.MockMethodDeclined)
	assert.ErrorIs(t, err, domain.ErrGatewayDeclined)

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusFailed, got.Status())
	assert.Contains(t, got.FailureReason(), "declined")
}

func TestConfirmSaga_TimeoutFlagsPending(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 2
	policy.CallTimeout = 20 * time.Millisecond
	f := newSagaFixture(t, policy)
	p := f.created(t)

	err := f.svc.ConfirmSaga(context.Background(), p, f.gw, adapter.MockMethodTimeout)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, 2, f.gw.Calls(gwdomain.OpConfirm))

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusRequiresConfirmation, got.Status())
	assert.True(t, got.PendingVerification())
}

func TestConfirmSaga_CallerCancellationStillPersistsPending(t *testing.T) {
	policy := fastPolicy()
	policy.CallTimeout = time.Second
	f := newSagaFixture(t, policy)
	p := f.created(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := f.svc.ConfirmSaga(ctx, p, f.gw, adapter.MockMethodTimeout)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Equal(t, 1, f.gw.Calls(gwdomain.OpConfirm))
	assert.True(t, f.stored(t, p).PendingVerification())
}

func TestConfirmSaga_ProcessingResolvedByReconcile(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.created(t)

	require.NoError(t, f.svc.ConfirmSaga(context.Background(), p, f.gw, adapter.MockMethodProcessing))
	got := f.stored(t, p)
	assert.Equal(t, payment.StatusRequiresConfirmation, got.Status())
	assert.True(t, got.PendingVerification())

	pending, err := f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)

	got = f.stored(t, p)
	assert.Equal(t, payment.StatusConfirmed, got.Status())
	assert.False(t, got.PendingVerification())
}

func TestConfirmSaga_RejectsInvalidTransition(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)

	err := f.svc.ConfirmSaga(context.Background(), p, f.gw, adapter.MockMethodSuccess)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 1, f.gw.Calls(gwdomain.OpConfirm))
}

func TestSettleSaga_AppendsLedgerAndInvalidates(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)

	require.NoError(t, f.svc.SettleSaga(context.Background(), p))
	assert.Equal(t, payment.StatusSettled, f.stored(t, p).Status())

	recs, err := f.records.ListWindow(context.Background(), "t1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ledger.KindPaymentSettled, recs[0].Kind)
	assert.Equal(t, int64(500000), recs[0].AmountMinor)
	assert.Equal(t, []string{"t1/analytics"}, f.invalidator.calls)

	assert.ErrorIs(t, f.svc.SettleSaga(context.Background(), p), domain.ErrInvalidTransition)
}

func TestRefundSaga_FullRefundOfSettledIntent(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)
	require.NoError(t, f.svc.SettleSaga(context.Background(), p))

	require.NoError(t, f.svc.RefundSaga(context.Background(), p, f.gw, 0))

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusRefunded, got.Status())
	assert.Equal(t, int64(500000), got.RefundedMinor())

	recs, err := f.records.ListWindow(context.Background(), "t1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ledger.KindPaymentRefund, recs[1].Kind)
}

func TestRefundSaga_DeclineLeavesStateUnchanged(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)
	f.gw.FailNext(gwdomain.OpRefund, 1, domain.NewDeclinedError("refund window closed", nil))

	err := f.svc.RefundSaga(context.Background(), p, f.gw, 1000)
	assert.ErrorIs(t, err, domain.ErrGatewayDeclined)

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusConfirmed, got.Status())
	assert.False(t, got.PendingVerification())
}

func TestRefundSaga_TransientFlagsPendingAndReconciles(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)
	f.gw.FailNext(gwdomain.OpRefund, 3, domain.NewTransientGatewayError("503", nil))

	err := f.svc.RefundSaga(context.Background(), p, f.gw, 0)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusConfirmed, got.Status())
	require.True(t, got.PendingVerification())

	// the refund never reached the gateway, so reconciliation clears the flag
	pending, err := f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)
	got = f.stored(t, p)
	assert.Equal(t, payment.StatusConfirmed, got.Status())
	assert.False(t, got.PendingVerification())
}

func TestRefundSaga_RejectsExcessiveAmount(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)

	err := f.svc.RefundSaga(context.Background(), p, f.gw, 500001)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.Equal(t, 0, f.gw.Calls(gwdomain.OpRefund))
}

func (f *sagaFixture) ledgerRecords(t *testing.T) []ledger.Record {
	t.Helper()
	recs, err := f.records.ListWindow(context.Background(), "t1", time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return recs
}

func (f *sagaFixture) reconcileCandidates(t *testing.T) []uuid.UUID {
	t.Helper()
	pending, err := f.repo.ListNeedingReconciliation(context.Background(), time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(pending))
	for i, p := range pending {
		ids[i] = p.ID()
	}
	return ids
}

func TestRefundSaga_UnsettledRefundIsNotCountedAsRevenue(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)

	require.NoError(t, f.svc.RefundSaga(context.Background(), p, f.gw, 0))

	assert.Equal(t, payment.StatusRefunded, f.stored(t, p).Status())
	assert.Empty(t, f.ledgerRecords(t))
	assert.Contains(t, f.publisher.Types(), events.PaymentRefunded)
}

func TestConfirmSaga_PersistFailureFlagsForReconciliation(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.created(t)
	f.repo.failUpdates = 1

	err := f.svc.ConfirmSaga(context.Background(), p, f.gw, adapter.MockMethodSuccess)
	require.Error(t, err)

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusRequiresConfirmation, got.Status())
	require.True(t, got.PendingVerification())
	assert.Equal(t, []uuid.UUID{p.ID()}, f.reconcileCandidates(t))
	assert.Contains(t, f.publisher.Types(), events.PaymentPendingVerification)

	pending, err := f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)

	got = f.stored(t, p)
	assert.Equal(t, payment.StatusConfirmed, got.Status())
	assert.False(t, got.PendingVerification())
	assert.Empty(t, f.reconcileCandidates(t))
	assert.Equal(t, 1, f.gw.Calls(gwdomain.OpConfirm))
}

func TestRefundSaga_PersistFailureFlagsForReconciliation(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)
	require.NoError(t, f.svc.SettleSaga(context.Background(), p))
	f.repo.failUpdates = 1

	require.Error(t, f.svc.RefundSaga(context.Background(), p, f.gw, 0))

	got := f.stored(t, p)
	assert.Equal(t, payment.StatusSettled, got.Status())
	require.True(t, got.PendingVerification())
	require.Len(t, f.ledgerRecords(t), 1)

	pending, err := f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)

	got = f.stored(t, p)
	assert.Equal(t, payment.StatusRefunded, got.Status())
	assert.Equal(t, int64(500000), got.RefundedMinor())
	recs := f.ledgerRecords(t)
	require.Len(t, recs, 2)
	assert.Equal(t, ledger.KindPaymentRefund, recs[1].Kind)
	assert.Equal(t, 1, f.gw.Calls(gwdomain.OpRefund))
}

func TestReconcileSaga_CreatePersistFailureStaysReconcilable(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := newIntent(t)
	f.gw.FailNext(gwdomain.OpCreateIntent, 3, domain.NewTransientGatewayError("503", nil))

	assert.ErrorIs(t, f.svc.CreateIntentSaga(context.Background(), p, f.gw), domain.ErrGatewayUnavailable)
	got := f.stored(t, p)
	require.True(t, got.NeedsGatewayReconciliation())

	f.repo.failUpdates = 1
	pending, err := f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.Error(t, err)
	assert.True(t, pending)
	assert.Equal(t, []uuid.UUID{p.ID()}, f.reconcileCandidates(t))

	got = f.stored(t, p)
	pending, err = f.svc.ReconcileSaga(context.Background(), got, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)

	got = f.stored(t, p)
	assert.Equal(t, payment.StatusRequiresConfirmation, got.Status())
	assert.NotEmpty(t, got.GatewayRef())
	assert.Empty(t, f.reconcileCandidates(t))
}

func TestReconcileSaga_NoopForResolvedIntent(t *testing.T) {
	f := newSagaFixture(t, fastPolicy())
	p := f.confirmed(t)

	pending, err := f.svc.ReconcileSaga(context.Background(), p, f.gw)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, 0, f.gw.Calls(gwdomain.OpRetrieve))
}

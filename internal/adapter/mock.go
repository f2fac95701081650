package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"go.uber.org/zap"
)

// MockGatewayID is the registry name of the simulated gateway.
const MockGatewayID = "mock"

// Test payment methods understood by MockGateway. The decline methods use
// Stripe's test card names.
const (
	MockMethodSuccess           = "pm_card_visa"
	MockMethodDeclined          = "pm_card_chargeDeclined"
	MockMethodInsufficientFunds = "pm_card_chargeDeclinedInsufficientFunds"
	MockMethodProcessing        = "pm_card_processing"
	MockMethodTimeout           = "pm_card_timeout"
)

// MockGateway is an in-process gateway for development and tests. Like a
// real provider it replays the stored result for a reused idempotency key.
type MockGateway struct {
	mu       sync.Mutex
	intents  map[string]*Intent
	replies  map[string]*Intent
	failures map[gateway.Operation][]error
	calls    map[gateway.Operation]int
	logger   *zap.Logger
}

// NewMockGateway creates an empty simulator.
func NewMockGateway(logger *zap.Logger) *MockGateway {
	return &MockGateway{
		intents:  make(map[string]*Intent),
		replies:  make(map[string]*Intent),
		failures: make(map[gateway.Operation][]error),
		calls:    make(map[gateway.Operation]int),
		logger:   logger.Named("mock_gateway"),
	}
}

// MockCapabilities lists what the simulator supports.
func MockCapabilities() []gateway.Operation {
	return gateway.AllOperations()
}

// FailNext makes the next n calls of op fail with err before any side effect.
func (m *MockGateway) FailNext(op gateway.Operation, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures[op] = append(m.failures[op], err)
	}
}

// Calls returns how many times op reached the simulator.
func (m *MockGateway) Calls(op gateway.Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockGateway) ID() string { return MockGatewayID }

// begin counts the call and pops an injected failure. Callers hold m.mu.
func (m *MockGateway) begin(op gateway.Operation) error {
	m.calls[op]++
	if queued := m.failures[op]; len(queued) > 0 {
		m.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func replyKey(op gateway.Operation, key string) string {
	return string(op) + ":" + key
}

func (m *MockGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(gateway.OpCreateIntent); err != nil {
		return nil, err
	}
	if prev, ok := m.replies[replyKey(gateway.OpCreateIntent, req.IdempotencyKey)]; ok {
		return copyIntent(m.intents[prev.Ref]), nil
	}

	in := &Intent{
		Ref:         fmt.Sprintf("pi_mock_%s", uuid.New().String()[:8]),
		Status:      IntentRequiresConfirmation,
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToUpper(req.Currency),
		Metadata:    req.Metadata,
	}
	m.intents[in.Ref] = in
	m.replies[replyKey(gateway.OpCreateIntent, req.IdempotencyKey)] = in

	m.logger.Info("[MOCK GATEWAY] payment intent created",
		zap.String("ref", in.Ref),
		zap.Int64("amount_minor", req.AmountMinor),
		zap.String("currency", in.Currency),
	)
	return copyIntent(in), nil
}

func (m *MockGateway) Confirm(ctx context.Context, req ConfirmRequest) (*Intent, error) {
	if req.PaymentMethod == MockMethodTimeout {
		m.mu.Lock()
		m.calls[gateway.OpConfirm]++
		m.mu.Unlock()
		<-ctx.Done()
		return nil, domain.NewTransientGatewayError("gateway did not respond", ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(gateway.OpConfirm); err != nil {
		return nil, err
	}
	if prev, ok := m.replies[replyKey(gateway.OpConfirm, req.IdempotencyKey)]; ok {
		return copyIntent(prev), nil
	}

	in, ok := m.intents[req.Ref]
	if !ok {
		return nil, domain.NewNotFoundError("gateway intent", req.Ref)
	}
	if in.Status != IntentRequiresConfirmation {
		return nil, domain.NewDeclinedError("intent cannot be confirmed in status "+string(in.Status), nil)
	}

	switch req.PaymentMethod {
	case MockMethodDeclined, MockMethodInsufficientFunds:
		in.FailureReason = "card declined: " + strings.TrimPrefix(req.PaymentMethod, "pm_card_")
		m.logger.Info("[MOCK GATEWAY] payment declined", zap.String("ref", in.Ref))
		return nil, domain.NewDeclinedError(in.FailureReason, nil)
	case MockMethodProcessing:
		in.Status = IntentProcessing
	default:
		in.Status = IntentSucceeded
	}

	m.replies[replyKey(gateway.OpConfirm, req.IdempotencyKey)] = copyIntent(in)
	m.logger.Info("[MOCK GATEWAY] payment intent confirmed",
		zap.String("ref", in.Ref),
		zap.String("status", string(in.Status)),
	)
	return copyIntent(in), nil
}

func (m *MockGateway) Refund(ctx context.Context, req RefundRequest) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(gateway.OpRefund); err != nil {
		return nil, err
	}
	if prev, ok := m.replies[replyKey(gateway.OpRefund, req.IdempotencyKey)]; ok {
		return copyIntent(prev), nil
	}

	in, ok := m.intents[req.Ref]
	if !ok {
		return nil, domain.NewNotFoundError("gateway intent", req.Ref)
	}
	if in.Status != IntentSucceeded && in.Status != IntentRefunded {
		return nil, domain.NewDeclinedError("intent has no captured funds", nil)
	}

	amount := req.AmountMinor
	if amount == 0 {
		amount = in.AmountMinor - in.RefundedMinor
	}
	if amount <= 0 || in.RefundedMinor+amount > in.AmountMinor {
		return nil, domain.NewDeclinedError("refund exceeds captured amount", nil)
	}

	in.RefundedMinor += amount
	in.Status = IntentRefunded
	m.replies[replyKey(gateway.OpRefund, req.IdempotencyKey)] = copyIntent(in)

	m.logger.Info("[MOCK GATEWAY] refund created",
		zap.String("ref", in.Ref),
		zap.Int64("amount_minor", amount),
	)
	return copyIntent(in), nil
}

// Retrieve returns the current intent. A processing intent completes on
// retrieval, standing in for an asynchronous settlement at a real provider.
func (m *MockGateway) Retrieve(ctx context.Context, ref string) (*Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(gateway.OpRetrieve); err != nil {
		return nil, err
	}
	in, ok := m.intents[ref]
	if !ok {
		return nil, domain.NewNotFoundError("gateway intent", ref)
	}
	if in.Status == IntentProcessing {
		in.Status = IntentSucceeded
	}
	return copyIntent(in), nil
}

func (m *MockGateway) FetchConfig(ctx context.Context) (*RemoteConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.begin(gateway.OpFetchConfig); err != nil {
		return nil, err
	}
	return &RemoteConfig{GatewayID: MockGatewayID, Capabilities: MockCapabilities()}, nil
}

func copyIntent(in *Intent) *Intent {
	out := *in
	if in.Metadata != nil {
		out.Metadata = make(map[string]string, len(in.Metadata))
		for k, v := range in.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

var (
	_ Gateway = (*MockGateway)(nil)
	_ Gateway = (*StripeGateway)(nil)
)

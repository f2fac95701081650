package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository/memory"
	"go.uber.org/zap"
)

type registryFixture struct {
	registry *Registry
	mock     *adapter.MockGateway
	configs  *memory.GatewayConfigRepository
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	store, err := cache.NewLRUStore(64)
	require.NoError(t, err)
	c := cache.New(store, zap.NewNop(), monitoring.NoopMetrics())

	secrets := map[string]string{"MOCK_KEY": "anything", "STRIPE_KEY": "sk_test_123"}
	configs := memory.NewGatewayConfigRepository()
	r := NewRegistry(configs, memory.NewGatewayCallLog(),
		NewLookupResolver(func(k string) string { return secrets[k] }),
		c, time.Minute, monitoring.NoopMetrics(), zap.NewNop())

	mock := adapter.NewMockGateway(zap.NewNop())
	r.Register(MockDriver(mock))
	r.Register(StripeDriver(zap.NewNop()))
	return &registryFixture{registry: r, mock: mock, configs: configs}
}

func (f *registryFixture) configure(t *testing.T, tenant string, caps ...gwdomain.Operation) {
	t.Helper()
	_, err := f.registry.Configure(context.Background(), tenant, adapter.MockGatewayID, ConfigureRequest{
		CredentialsRef: "env:MOCK_KEY",
		Capabilities:   caps,
	})
	require.NoError(t, err)
}

func TestResolve_NotConfigured(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.Resolve(context.Background(), "t1", adapter.MockGatewayID)
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func TestResolve_Disabled(t *testing.T) {
	f := newRegistryFixture(t)
	disabled := false
	_, err := f.registry.Configure(context.Background(), "t1", adapter.MockGatewayID, ConfigureRequest{
		CredentialsRef: "env:MOCK_KEY",
		Enabled:        &disabled,
	})
	require.NoError(t, err)

	_, err = f.registry.Resolve(context.Background(), "t1", adapter.MockGatewayID)
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func TestResolve_IsTenantScoped(t *testing.T) {
	f := newRegistryFixture(t)
	f.configure(t, "t1")

	_, err := f.registry.Resolve(context.Background(), "t1", adapter.MockGatewayID)
	require.NoError(t, err)
	_, err = f.registry.Resolve(context.Background(), "t2", adapter.MockGatewayID)
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func TestConfigure_Validation(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	_, err := f.registry.Configure(ctx, "t1", "paypal", ConfigureRequest{CredentialsRef: "env:MOCK_KEY"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = f.registry.Configure(ctx, "t1", adapter.MockGatewayID, ConfigureRequest{
		CredentialsRef: "env:MOCK_KEY",
		Capabilities:   []gwdomain.Operation{"teleport"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = f.registry.Configure(ctx, "t1", adapter.MockGatewayID, ConfigureRequest{CredentialsRef: "plaintext-secret"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = f.registry.Configure(ctx, "t1", adapter.MockGatewayID, ConfigureRequest{CredentialsRef: "env:MISSING"})
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func TestConfigure_InvalidatesCachedLookups(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	f.configure(t, "t1", gwdomain.OpCreateIntent)

	list, err := f.registry.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []gwdomain.Operation{gwdomain.OpCreateIntent}, list[0].Capabilities)
	assert.Empty(t, list[0].CredentialsRef)

	f.configure(t, "t1", gwdomain.OpCreateIntent, gwdomain.OpConfirm)

	list, err = f.registry.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.ElementsMatch(t, []gwdomain.Operation{gwdomain.OpCreateIntent, gwdomain.OpConfirm}, list[0].Capabilities)
}

func TestReconfigure_ReplacesOpenedAdapter(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.configure(t, "t1")
		_, err := f.registry.Resolve(ctx, "t1", adapter.MockGatewayID)
		require.NoError(t, err)
	}
	f.configure(t, "t2")
	_, err := f.registry.Resolve(ctx, "t2", adapter.MockGatewayID)
	require.NoError(t, err)

	f.registry.mu.RLock()
	defer f.registry.mu.RUnlock()
	assert.Len(t, f.registry.opened, 2)

	stored, err := f.configs.Find(ctx, "t1", adapter.MockGatewayID)
	require.NoError(t, err)
	assert.True(t, f.registry.opened["t1|"+adapter.MockGatewayID].version.Equal(stored.UpdatedAt))
}

func TestBinding_UnsupportedOperation(t *testing.T) {
	f := newRegistryFixture(t)
	f.configure(t, "t1", gwdomain.OpCreateIntent)

	b, err := f.registry.Resolve(context.Background(), "t1", adapter.MockGatewayID)
	require.NoError(t, err)

	_, err = b.Refund(context.Background(), adapter.RefundRequest{IdempotencyKey: "k", Ref: "pi_x"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
	assert.Zero(t, f.mock.Calls(gwdomain.OpRefund))
}

func TestBinding_IdempotentDispatch(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	f.configure(t, "t1")

	b, err := f.registry.Resolve(ctx, "t1", adapter.MockGatewayID)
	require.NoError(t, err)

	req := adapter.CreateIntentRequest{IdempotencyKey: "key-1", AmountMinor: 5000, Currency: "USD"}
	first, err := b.CreateIntent(ctx, req)
	require.NoError(t, err)
	second, err := b.CreateIntent(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Ref, second.Ref)
	assert.Equal(t, 1, f.mock.Calls(gwdomain.OpCreateIntent))

	req.AmountMinor = 6000
	_, err = b.CreateIntent(ctx, req)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	assert.Equal(t, 1, f.mock.Calls(gwdomain.OpCreateIntent))
}

func TestBinding_DeclineIsReplayedTransientIsNot(t *testing.T) {
	f := newRegistryFixture(t)
	ctx := context.Background()
	f.configure(t, "t1")

	b, err := f.registry.Resolve(ctx, "t1", adapter.MockGatewayID)
	require.NoError(t, err)
	in, err := b.CreateIntent(ctx, adapter.CreateIntentRequest{IdempotencyKey: "k", AmountMinor: 100, Currency: "USD"})
	require.NoError(t, err)

	declined := adapter.ConfirmRequest{IdempotencyKey: "k:confirm", Ref: in.Ref, PaymentMethod: adapter.MockMethodDeclined}
	for i := 0; i < 2; i++ {
		_, err = b.Confirm(ctx, declined)
		assert.ErrorIs(t, err, domain.ErrGatewayDeclined)
	}
	assert.Equal(t, 1, f.mock.Calls(gwdomain.OpConfirm))

	f.mock.FailNext(gwdomain.OpRefund, 1, domain.NewTransientGatewayError("flaky", nil))
	refund := adapter.RefundRequest{IdempotencyKey: "k:refund", Ref: in.Ref}
	_, err = b.Refund(ctx, refund)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	_, err = b.Refund(ctx, refund)
	assert.ErrorIs(t, err, domain.ErrGatewayDeclined)
	assert.Equal(t, 2, f.mock.Calls(gwdomain.OpRefund))
}

func TestBinding_RequiresIdempotencyKey(t *testing.T) {
	f := newRegistryFixture(t)
	f.configure(t, "t1")
	b, err := f.registry.Resolve(context.Background(), "t1", adapter.MockGatewayID)
	require.NoError(t, err)

	_, err = b.CreateIntent(context.Background(), adapter.CreateIntentRequest{AmountMinor: 1, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestLookupResolver(t *testing.T) {
	r := NewLookupResolver(func(k string) string {
		if k == "SET" {
			return "secret"
		}
		return ""
	})

	secret, err := r.Resolve("env:SET")
	require.NoError(t, err)
	assert.Equal(t, "secret", secret)

	secret, err = r.Resolve("none")
	require.NoError(t, err)
	assert.Empty(t, secret)

	_, err = r.Resolve("env:UNSET")
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
	_, err = r.Resolve("vault:path")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestStripeDriver_RejectsNonSecretKeys(t *testing.T) {
	d := StripeDriver(zap.NewNop())
	_, err := d.Open("pk_test_publishable")
	assert.Error(t, err)

	gw, err := d.Open("sk_test_123")
	require.NoError(t, err)
	assert.Equal(t, adapter.StripeGatewayID, gw.ID())
}

package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/analytics"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/events"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository/memory"
	"go.uber.org/zap"
)

func TestIngestClaimEvent_FeedsDashboard(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()
	records := memory.NewLedgerRepository()
	claims := NewClaimService(records, f.cache, zap.NewNop())
	f.analytics.aggregator = analytics.NewAggregator(records, "USD")

	now := time.Now().UTC()
	submitted := now.Add(-72 * time.Hour)
	_, err := f.analytics.Dashboard(ctx, tenantCtx("t1"), "30d", "")
	require.NoError(t, err)

	for _, ev := range []struct {
		typ   string
		claim string
	}{
		{events.ClaimSubmitted, "C-1"},
		{events.ClaimSubmitted, "C-2"},
		{events.ClaimDenied, "C-2"},
	} {
		ok, err := claims.IngestClaimEvent(ctx, ev.typ, events.ClaimEvent{
			TenantID: "t1", ClaimID: ev.claim, AmountMinor: 10000, Currency: "usd", OccurredAt: submitted,
		})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := claims.IngestClaimEvent(ctx, events.ClaimPaid, events.ClaimEvent{
		TenantID: "t1", ClaimID: "C-1", AmountMinor: 8000, Currency: "USD", SubmittedAt: &submitted, OccurredAt: now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 8000.0, f.dashboardMetric(t, analytics.MetricClaimPayments))
	assert.Equal(t, 0.5, f.dashboardMetric(t, analytics.MetricDenialRate))
	assert.InDelta(t, 3.0, f.dashboardMetric(t, analytics.MetricAvgDaysToPayment), 0.001)
}

func TestIngestClaimEvent_Redelivery(t *testing.T) {
	records := memory.NewLedgerRepository()
	claims := NewClaimService(records, nil, zap.NewNop())
	ev := events.ClaimEvent{TenantID: "t1", ClaimID: "C-1", AmountMinor: 100, Currency: "USD", OccurredAt: time.Now()}

	first, err := claims.IngestClaimEvent(context.Background(), events.ClaimSubmitted, ev)
	require.NoError(t, err)
	again, err := claims.IngestClaimEvent(context.Background(), events.ClaimSubmitted, ev)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, again)
}

func TestIngestClaimEvent_SameClaimIDAcrossTenants(t *testing.T) {
	ctx := context.Background()
	records := memory.NewLedgerRepository()
	claims := NewClaimService(records, nil, zap.NewNop())
	at := time.Now().UTC()

	for _, tenant := range []string{"tA", "tB"} {
		ok, err := claims.IngestClaimEvent(ctx, events.ClaimSubmitted, events.ClaimEvent{
			TenantID: tenant, ClaimID: "CLM-1", AmountMinor: 2500, Currency: "USD", OccurredAt: at,
		})
		require.NoError(t, err)
		assert.True(t, ok, tenant)
	}

	for _, tenant := range []string{"tA", "tB"} {
		recs, err := records.ListWindow(ctx, tenant, at.Add(-time.Minute), at.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, recs, 1, tenant)
		assert.Equal(t, "CLM-1", recs[0].ClaimID)
	}
}

func TestIngestClaimEvent_Invalid(t *testing.T) {
	claims := NewClaimService(memory.NewLedgerRepository(), nil, zap.NewNop())
	valid := events.ClaimEvent{TenantID: "t1", ClaimID: "C-1", AmountMinor: 100, Currency: "USD", OccurredAt: time.Now()}

	tests := []struct {
		name   string
		typ    string
		mutate func(*events.ClaimEvent)
	}{
		{"unknown type", "rcm.claim.appealed", func(*events.ClaimEvent) {}},
		{"no tenant", events.ClaimSubmitted, func(e *events.ClaimEvent) { e.TenantID = "" }},
		{"negative amount", events.ClaimSubmitted, func(e *events.ClaimEvent) { e.AmountMinor = -1 }},
		{"bad currency", events.ClaimSubmitted, func(e *events.ClaimEvent) { e.Currency = "dollars" }},
		{"no timestamp", events.ClaimSubmitted, func(e *events.ClaimEvent) { e.OccurredAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.mutate(&ev)
			_, err := claims.IngestClaimEvent(context.Background(), tt.typ, ev)
			assert.ErrorIs(t, err, domain.ErrInvalidPayload)
		})
	}
	assert.True(t, IsClaimEvent(events.ClaimPaid))
	assert.False(t, IsClaimEvent(events.PaymentSettled))
}

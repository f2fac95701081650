package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
)

func newIntent(t *testing.T, tenant, key string) *payment.Intent {
	t.Helper()
	in, err := payment.NewIntent(tenant, "prov-1", "mock", 5000, "USD", key, nil)
	require.NoError(t, err)
	return in
}

func TestPaymentRepository_IdempotencyUnique(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newIntent(t, "t1", "k1")))
	assert.ErrorIs(t, repo.Save(ctx, newIntent(t, "t1", "k1")), domain.ErrConflict)
	require.NoError(t, repo.Save(ctx, newIntent(t, "t2", "k1")))

	found, err := repo.FindByIdempotencyKey(ctx, "t1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "t1", found.TenantID())

	_, err = repo.FindByIdempotencyKey(ctx, "t3", "k1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentRepository_OptimisticLock(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	in := newIntent(t, "t1", "k1")
	require.NoError(t, repo.Save(ctx, in))

	a, err := repo.FindByID(ctx, in.ID())
	require.NoError(t, err)
	b, err := repo.FindByID(ctx, in.ID())
	require.NoError(t, err)

	require.NoError(t, a.AwaitConfirmation("pi_1"))
	a.IncrementVersion()
	require.NoError(t, repo.Update(ctx, a))

	require.NoError(t, b.Fail("late writer"))
	b.IncrementVersion()
	assert.ErrorIs(t, repo.Update(ctx, b), domain.ErrConflict)

	stored, err := repo.FindByID(ctx, in.ID())
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRequiresConfirmation, stored.Status())
}

func TestPaymentRepository_ListPaginates(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, newIntent(t, "t1", key)))
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, repo.Save(ctx, newIntent(t, "t2", "z")))

	page, total, err := repo.List(ctx, "t1", payment.HistoryFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].IdempotencyKey())

	page, _, err = repo.List(ctx, "t1", payment.HistoryFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].IdempotencyKey())

	page, total, err = repo.List(ctx, "t1", payment.HistoryFilter{Status: payment.StatusSettled, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestPaymentRepository_ListNeedingReconciliation(t *testing.T) {
	repo := NewPaymentRepository()
	ctx := context.Background()

	orphan := newIntent(t, "t1", "orphan")
	require.NoError(t, repo.Save(ctx, orphan))

	healthy := newIntent(t, "t1", "healthy")
	require.NoError(t, healthy.AwaitConfirmation("pi_2"))
	require.NoError(t, repo.Save(ctx, healthy))

	flagged := newIntent(t, "t1", "flagged")
	require.NoError(t, flagged.AwaitConfirmation("pi_3"))
	flagged.MarkPendingVerification("confirm timed out")
	require.NoError(t, repo.Save(ctx, flagged))

	got, err := repo.ListNeedingReconciliation(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	keys := make([]string, len(got))
	for i, in := range got {
		keys[i] = in.IdempotencyKey()
	}
	assert.ElementsMatch(t, []string{"orphan", "flagged"}, keys)

	got, err = repo.ListNeedingReconciliation(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLedgerRepository_AppendOnceAndWindow(t *testing.T) {
	repo := NewLedgerRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	rec := ledger.Record{TenantID: "t1", Kind: ledger.KindPaymentSettled, SourceKey: "s1", AmountMinor: 100, Currency: "USD", OccurredAt: base}
	added, err := repo.Append(ctx, rec)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.Append(ctx, rec)
	require.NoError(t, err)
	assert.False(t, added)

	_, err = repo.Append(ctx, ledger.Record{TenantID: "t1", Kind: ledger.KindClaimPaid, SourceKey: "s2", AmountMinor: 50, Currency: "USD", OccurredAt: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	_, err = repo.Append(ctx, ledger.Record{TenantID: "t2", Kind: ledger.KindClaimPaid, SourceKey: "s3", AmountMinor: 50, Currency: "USD", OccurredAt: base})
	require.NoError(t, err)

	window, err := repo.ListWindow(ctx, "t1", base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "s1", window[0].SourceKey)
}

// Package analytics derives dashboard snapshots from the transaction ledger.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
)

// Metric names exposed on a snapshot.
const (
	MetricGrossRevenue     = "gross_revenue"
	MetricRefunds          = "refunds"
	MetricNetRevenue       = "net_revenue"
	MetricClaimPayments    = "claim_payments"
	MetricNetCollections   = "net_collections"
	MetricChargesBilled    = "charges_billed"
	MetricClaimsSubmitted  = "claims_submitted"
	MetricClaimsPaid       = "claims_paid"
	MetricClaimsDenied     = "claims_denied"
	MetricPaymentsSettled  = "payments_settled"
	MetricPaymentsRefunded = "payments_refunded"
	MetricDenialRate       = "denial_rate"
	MetricCollectionRate   = "collection_rate"
	MetricAvgDaysToPayment = "avg_days_to_payment"
)

// Bucket carries the amount sums for one slice of the timeframe.
type Bucket struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	GrossRevenue  int64     `json:"gross_revenue"`
	Refunds       int64     `json:"refunds"`
	NetRevenue    int64     `json:"net_revenue"`
	ClaimPayments int64     `json:"claim_payments"`
	ChargesBilled int64     `json:"charges_billed"`
}

// Snapshot is a computed dashboard for one tenant and timeframe. Amounts are
// minor units of Currency; records in other currencies are counted in
// ExcludedRecords and left out of every sum.
type Snapshot struct {
	TenantID        string            `json:"tenant_id"`
	Currency        string            `json:"currency"`
	Timeframe       Timeframe         `json:"timeframe"`
	Metrics         map[string]Metric `json:"metrics"`
	Buckets         []Bucket          `json:"buckets"`
	RecordCount     int               `json:"record_count"`
	ExcludedRecords int               `json:"excluded_records"`
	ComputedAt      time.Time         `json:"computed_at"`
}

// Aggregator reads the ledger and computes snapshots.
type Aggregator struct {
	records  ledger.RecordRepository
	currency string
	now      func() time.Time
}

// NewAggregator creates an Aggregator reporting in currency.
func NewAggregator(records ledger.RecordRepository, currency string) *Aggregator {
	return &Aggregator{
		records:  records,
		currency: strings.ToUpper(currency),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Currency returns the reporting currency.
func (a *Aggregator) Currency() string { return a.currency }

// ComputeDashboard loads the tenant's records inside tf and aggregates them.
func (a *Aggregator) ComputeDashboard(ctx context.Context, tenantID string, tf Timeframe) (*Snapshot, error) {
	records, err := a.records.ListWindow(ctx, tenantID, tf.Start, tf.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger window: %w", err)
	}
	snap := Compute(tenantID, a.currency, tf, records, a.now())
	return &snap, nil
}

type totals struct {
	gross, refunds, claimPayments, chargesBilled int64
	settled, refunded, submitted, paid, denied   int64
	paidWithSubmission                           int64
	daysToPaymentSeconds                         int64
}

// Compute is the pure aggregation over records. Sums are integer; each ratio
// is a single final division rounded to four decimal places, so the result
// does not depend on record order.
//
// Refund records exist only for intents that settled, so refunds are always
// counted against revenue that gross_revenue included.
func Compute(tenantID, currency string, tf Timeframe, records []ledger.Record, computedAt time.Time) Snapshot {
	buckets := newBuckets(tf)
	var t totals
	snap := Snapshot{
		TenantID:   tenantID,
		Currency:   currency,
		Timeframe:  tf,
		ComputedAt: computedAt,
	}

	for _, rec := range records {
		if rec.TenantID != tenantID || !tf.Contains(rec.OccurredAt) {
			continue
		}
		if !strings.EqualFold(rec.Currency, currency) {
			snap.ExcludedRecords++
			continue
		}
		snap.RecordCount++
		b := buckets.find(rec.OccurredAt)

		switch rec.Kind {
		case ledger.KindPaymentSettled:
			t.settled++
			t.gross += rec.AmountMinor
			b.GrossRevenue += rec.AmountMinor
		case ledger.KindPaymentRefund:
			t.refunded++
			t.refunds += rec.AmountMinor
			b.Refunds += rec.AmountMinor
		case ledger.KindClaimSubmitted:
			t.submitted++
			t.chargesBilled += rec.AmountMinor
			b.ChargesBilled += rec.AmountMinor
		case ledger.KindClaimPaid:
			t.paid++
			t.claimPayments += rec.AmountMinor
			b.ClaimPayments += rec.AmountMinor
			if rec.SubmittedAt != nil && !rec.OccurredAt.Before(*rec.SubmittedAt) {
				t.paidWithSubmission++
				t.daysToPaymentSeconds += int64(rec.OccurredAt.Sub(*rec.SubmittedAt) / time.Second)
			}
		case ledger.KindClaimDenied:
			t.denied++
		}
	}

	for i := range buckets {
		buckets[i].NetRevenue = buckets[i].GrossRevenue - buckets[i].Refunds
	}
	snap.Buckets = buckets

	net := t.gross - t.refunds
	snap.Metrics = map[string]Metric{
		MetricGrossRevenue:     Value(float64(t.gross)),
		MetricRefunds:          Value(float64(t.refunds)),
		MetricNetRevenue:       Value(float64(net)),
		MetricClaimPayments:    Value(float64(t.claimPayments)),
		MetricNetCollections:   Value(float64(net + t.claimPayments)),
		MetricChargesBilled:    Value(float64(t.chargesBilled)),
		MetricClaimsSubmitted:  Value(float64(t.submitted)),
		MetricClaimsPaid:       Value(float64(t.paid)),
		MetricClaimsDenied:     Value(float64(t.denied)),
		MetricPaymentsSettled:  Value(float64(t.settled)),
		MetricPaymentsRefunded: Value(float64(t.refunded)),
		MetricDenialRate:       ratio(t.denied, t.paid+t.denied),
		MetricCollectionRate:   ratio(t.claimPayments, t.chargesBilled),
		MetricAvgDaysToPayment: ratio(t.daysToPaymentSeconds, t.paidWithSubmission*86400),
	}
	return snap
}

type bucketList []Bucket

// newBuckets covers tf with contiguous buckets, the first and last clipped to
// the window edges.
func newBuckets(tf Timeframe) bucketList {
	var out bucketList
	for start := bucketStart(tf.Start, tf.Granularity); start.Before(tf.End); start = nextBucket(start, tf.Granularity) {
		b := Bucket{Start: start, End: nextBucket(start, tf.Granularity)}
		if b.Start.Before(tf.Start) {
			b.Start = tf.Start
		}
		if b.End.After(tf.End) {
			b.End = tf.End
		}
		out = append(out, b)
	}
	return out
}

func (bl bucketList) find(t time.Time) *Bucket {
	lo, hi := 0, len(bl)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Before(bl[mid].End) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return &bl[lo]
}

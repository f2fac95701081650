package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/events"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/saga"
	"go.uber.org/zap"
)

var claimKinds = map[string]ledger.Kind{
	events.ClaimSubmitted: ledger.KindClaimSubmitted,
	events.ClaimPaid:      ledger.KindClaimPaid,
	events.ClaimDenied:    ledger.KindClaimDenied,
}

// ClaimService projects claim events from the claims system into the ledger.
type ClaimService struct {
	records     ledger.RecordRepository
	invalidator saga.Invalidator
	logger      *zap.Logger
}

// NewClaimService creates a new ClaimService.
func NewClaimService(records ledger.RecordRepository, invalidator saga.Invalidator, logger *zap.Logger) *ClaimService {
	if invalidator == nil {
		invalidator = (*cache.Cache)(nil)
	}
	return &ClaimService{records: records, invalidator: invalidator, logger: logger}
}

// IsClaimEvent reports whether eventType is handled by IngestClaimEvent.
func IsClaimEvent(eventType string) bool {
	_, ok := claimKinds[strings.ToLower(eventType)]
	return ok
}

// IngestClaimEvent appends the record for one claim event and invalidates
// the tenant's analytics. A redelivered event is a no-op. It reports whether
// a record was written.
func (s *ClaimService) IngestClaimEvent(ctx context.Context, eventType string, event events.ClaimEvent) (bool, error) {
	kind, ok := claimKinds[strings.ToLower(eventType)]
	if !ok {
		return false, domain.NewValidationError("unsupported claim event type " + eventType)
	}
	if event.TenantID == "" || event.ClaimID == "" {
		return false, domain.NewValidationError("claim event requires tenant_id and claim_id")
	}
	if event.AmountMinor < 0 {
		return false, domain.NewValidationError("claim amount must not be negative")
	}
	if len(event.Currency) != 3 {
		return false, domain.NewValidationError("claim currency must be a three letter ISO code")
	}
	if event.OccurredAt.IsZero() {
		return false, domain.NewValidationError("claim event requires occurred_at")
	}

	rec := ledger.Record{
		ID:          uuid.New(),
		TenantID:    event.TenantID,
		Kind:        kind,
		SourceKey:   fmt.Sprintf("claim:%s:%s:%s", event.TenantID, event.ClaimID, kind),
		ClaimID:     event.ClaimID,
		AmountMinor: event.AmountMinor,
		Currency:    strings.ToUpper(event.Currency),
		OccurredAt:  event.OccurredAt.UTC(),
	}
	if kind == ledger.KindClaimPaid && event.SubmittedAt != nil {
		submitted := event.SubmittedAt.UTC()
		rec.SubmittedAt = &submitted
	}

	appended, err := s.records.Append(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("failed to append claim record: %w", err)
	}
	if !appended {
		s.logger.Debug("duplicate claim event ignored", zap.String("source_key", rec.SourceKey))
		return false, nil
	}

	s.invalidator.Invalidate(ctx, event.TenantID, cache.ScopeAnalytics)
	s.logger.Info("claim event recorded",
		zap.String("tenant_id", event.TenantID),
		zap.String("claim_id", event.ClaimID),
		zap.String("kind", string(kind)),
	)
	return true, nil
}

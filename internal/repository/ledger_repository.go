package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRecordModel is the GORM persistence model for the transaction_records table.
type TransactionRecordModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID    string     `gorm:"type:varchar(64);not null;index:idx_records_window,priority:1"`
	Kind        string     `gorm:"type:varchar(32);not null"`
	SourceKey   string     `gorm:"type:varchar(255);not null;uniqueIndex"`
	IntentID    *uuid.UUID `gorm:"type:uuid"`
	ClaimID     string     `gorm:"type:varchar(128);not null;default:''"`
	AmountMinor int64      `gorm:"not null"`
	Currency    string     `gorm:"type:varchar(3);not null"`
	OccurredAt  time.Time  `gorm:"type:timestamptz;not null;index:idx_records_window,priority:2"`
	SubmittedAt *time.Time `gorm:"type:timestamptz"`
}

// TableName specifies the table name for GORM.
func (TransactionRecordModel) TableName() string {
	return "transaction_records"
}

// LedgerRepositoryImpl is the GORM-based implementation of ledger.RecordRepository.
type LedgerRepositoryImpl struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new GORM-based ledger repository.
func NewLedgerRepository(db *gorm.DB) *LedgerRepositoryImpl {
	return &LedgerRepositoryImpl{db: db}
}

// Append inserts rec unless its source key was already recorded.
func (r *LedgerRepositoryImpl) Append(ctx context.Context, rec ledger.Record) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	model := TransactionRecordModel{
		ID:          rec.ID,
		TenantID:    rec.TenantID,
		Kind:        string(rec.Kind),
		SourceKey:   rec.SourceKey,
		IntentID:    rec.IntentID,
		ClaimID:     rec.ClaimID,
		AmountMinor: rec.AmountMinor,
		Currency:    rec.Currency,
		OccurredAt:  rec.OccurredAt.UTC(),
		SubmittedAt: rec.SubmittedAt,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_key"}}, DoNothing: true}).
		Create(&model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListWindow returns a tenant's records with start <= occurred_at < end.
func (r *LedgerRepositoryImpl) ListWindow(ctx context.Context, tenantID string, start, end time.Time) ([]ledger.Record, error) {
	var models []TransactionRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND occurred_at >= ? AND occurred_at < ?", tenantID, start, end).
		Order("occurred_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]ledger.Record, len(models))
	for i, m := range models {
		records[i] = ledger.Record{
			ID:          m.ID,
			TenantID:    m.TenantID,
			Kind:        ledger.Kind(m.Kind),
			SourceKey:   m.SourceKey,
			IntentID:    m.IntentID,
			ClaimID:     m.ClaimID,
			AmountMinor: m.AmountMinor,
			Currency:    m.Currency,
			OccurredAt:  m.OccurredAt.UTC(),
			SubmittedAt: m.SubmittedAt,
		}
	}
	return records, nil
}

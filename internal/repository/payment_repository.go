package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	paymentDomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentIntentModel is the GORM persistence model for the payment_intents table.
type PaymentIntentModel struct {
	ID                  uuid.UUID                             `gorm:"type:uuid;primaryKey"`
	TenantID            string                                `gorm:"type:varchar(64);not null;uniqueIndex:idx_intent_idempotency,priority:1"`
	ProviderID          string                                `gorm:"type:varchar(64);not null"`
	GatewayID           string                                `gorm:"type:varchar(32);not null"`
	GatewayRef          string                                `gorm:"type:varchar(255);not null;default:''"`
	AmountMinor         int64                                 `gorm:"not null"`
	RefundedMinor       int64                                 `gorm:"not null;default:0"`
	Currency            string                                `gorm:"type:varchar(3);not null"`
	Status              string                                `gorm:"type:varchar(32);not null"`
	IdempotencyKey      string                                `gorm:"type:varchar(255);not null;uniqueIndex:idx_intent_idempotency,priority:2"`
	Metadata            datatypes.JSONType[map[string]string] `gorm:"type:jsonb;not null"`
	FailureReason       string                                `gorm:"type:text;not null;default:''"`
	PendingVerification bool                                  `gorm:"not null;default:false"`
	Version             int64                                 `gorm:"not null;default:1"`
	CreatedAt           time.Time                             `gorm:"type:timestamptz;not null"`
	UpdatedAt           time.Time                             `gorm:"type:timestamptz;not null"`
	SettledAt           *time.Time                            `gorm:"type:timestamptz"`
	RefundedAt          *time.Time                            `gorm:"type:timestamptz"`
}

// TableName specifies the table name for GORM.
func (PaymentIntentModel) TableName() string {
	return "payment_intents"
}

// PaymentRepositoryImpl is the GORM-based implementation of payment.Repository.
type PaymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new GORM-based payment intent repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: db}
}

// FindByID retrieves an intent by its unique ID.
func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*paymentDomain.Intent, error) {
	var model PaymentIntentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("payment intent", id.String())
		}
		return nil, err
	}
	return toDomain(&model), nil
}

// FindByIdempotencyKey retrieves the intent a tenant created under key.
func (r *PaymentRepositoryImpl) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*paymentDomain.Intent, error) {
	var model PaymentIntentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("payment intent", key)
		}
		return nil, err
	}
	return toDomain(&model), nil
}

// List returns a tenant's intents matching filter, newest first.
func (r *PaymentRepositoryImpl) List(ctx context.Context, tenantID string, filter paymentDomain.HistoryFilter) ([]*paymentDomain.Intent, int64, error) {
	query := r.db.WithContext(ctx).Model(&PaymentIntentModel{}).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.GatewayID != "" {
		query = query.Where("gateway_id = ?", filter.GatewayID)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []PaymentIntentModel
	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(filter.Limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}

	intents := make([]*paymentDomain.Intent, len(models))
	for i := range models {
		intents[i] = toDomain(&models[i])
	}
	return intents, total, nil
}

// ListNeedingReconciliation returns intents with an unknown gateway outcome
// last touched before olderThan, oldest first.
func (r *PaymentRepositoryImpl) ListNeedingReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]*paymentDomain.Intent, error) {
	var models []PaymentIntentModel
	err := r.db.WithContext(ctx).
		Where("(pending_verification = ? OR (status = ? AND gateway_ref = ''))", true, string(paymentDomain.StatusCreated)).
		Where("updated_at < ?", olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	intents := make([]*paymentDomain.Intent, len(models))
	for i := range models {
		intents[i] = toDomain(&models[i])
	}
	return intents, nil
}

// Save persists a new intent. A duplicate (tenant, idempotency key) is a Conflict.
func (r *PaymentRepositoryImpl) Save(ctx context.Context, intent *paymentDomain.Intent) error {
	if err := r.db.WithContext(ctx).Create(toModel(intent)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError("an intent with this idempotency key already exists")
		}
		return err
	}
	return nil
}

// Update persists changes to an existing intent with optimistic locking.
func (r *PaymentRepositoryImpl) Update(ctx context.Context, intent *paymentDomain.Intent) error {
	model := toModel(intent)
	previousVersion := intent.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&PaymentIntentModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select("*").
		Omit("id", "tenant_id", "idempotency_key", "created_at").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("payment intent was modified by another transaction")
	}

	return nil
}

// toDomain maps a PaymentIntentModel to the domain Intent aggregate.
func toDomain(model *PaymentIntentModel) *paymentDomain.Intent {
	return paymentDomain.Reconstitute(paymentDomain.State{
		ID:                  model.ID,
		TenantID:            model.TenantID,
		ProviderID:          model.ProviderID,
		GatewayID:           model.GatewayID,
		GatewayRef:          model.GatewayRef,
		AmountMinor:         model.AmountMinor,
		RefundedMinor:       model.RefundedMinor,
		Currency:            model.Currency,
		Status:              paymentDomain.Status(model.Status),
		IdempotencyKey:      model.IdempotencyKey,
		Metadata:            model.Metadata.Data(),
		FailureReason:       model.FailureReason,
		PendingVerification: model.PendingVerification,
		Version:             model.Version,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
		SettledAt:           model.SettledAt,
		RefundedAt:          model.RefundedAt,
	})
}

// toModel maps a domain Intent aggregate to a PaymentIntentModel for persistence.
func toModel(p *paymentDomain.Intent) *PaymentIntentModel {
	s := p.Snapshot()
	return &PaymentIntentModel{
		ID:                  s.ID,
		TenantID:            s.TenantID,
		ProviderID:          s.ProviderID,
		GatewayID:           s.GatewayID,
		GatewayRef:          s.GatewayRef,
		AmountMinor:         s.AmountMinor,
		RefundedMinor:       s.RefundedMinor,
		Currency:            s.Currency,
		Status:              string(s.Status),
		IdempotencyKey:      s.IdempotencyKey,
		Metadata:            datatypes.NewJSONType(s.Metadata),
		FailureReason:       s.FailureReason,
		PendingVerification: s.PendingVerification,
		Version:             s.Version,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
		SettledAt:           s.SettledAt,
		RefundedAt:          s.RefundedAt,
	}
}

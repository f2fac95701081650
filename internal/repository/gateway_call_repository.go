package repository

import (
	"context"
	"errors"
	"time"

	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatewayCallModel is the GORM persistence model for the gateway_calls table.
type GatewayCallModel struct {
	Key         string         `gorm:"type:varchar(512);primaryKey"`
	RequestHash string         `gorm:"type:char(64);not null"`
	Response    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;not null"`
}

// TableName specifies the table name for GORM.
func (GatewayCallModel) TableName() string {
	return "gateway_calls"
}

// GatewayCallLogImpl is the GORM-based implementation of gateway.CallLog.
type GatewayCallLogImpl struct {
	db *gorm.DB
}

// NewGatewayCallLog creates a new GORM-based gateway call log.
func NewGatewayCallLog(db *gorm.DB) *GatewayCallLogImpl {
	return &GatewayCallLogImpl{db: db}
}

// Find returns the recorded call for key, or nil when none exists.
func (r *GatewayCallLogImpl) Find(ctx context.Context, key string) (*gwdomain.CallRecord, error) {
	var model GatewayCallModel
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gwdomain.CallRecord{
		Key:         model.Key,
		RequestHash: model.RequestHash,
		Response:    []byte(model.Response),
		CreatedAt:   model.CreatedAt,
	}, nil
}

// Record stores rec. The first record for a key wins.
func (r *GatewayCallLogImpl) Record(ctx context.Context, rec gwdomain.CallRecord) error {
	model := GatewayCallModel{
		Key:         rec.Key,
		RequestHash: rec.RequestHash,
		Response:    datatypes.JSON(rec.Response),
		CreatedAt:   rec.CreatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&model).Error
}

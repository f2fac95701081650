package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatewayConfigModel is the GORM persistence model for the gateway_configs table.
type GatewayConfigModel struct {
	TenantID       string                      `gorm:"type:varchar(64);primaryKey"`
	GatewayID      string                      `gorm:"type:varchar(32);primaryKey"`
	CredentialsRef string                      `gorm:"type:varchar(255);not null"`
	Capabilities   datatypes.JSONSlice[string] `gorm:"type:jsonb;not null"`
	Enabled        bool                        `gorm:"not null;default:true"`
	UpdatedAt      time.Time                   `gorm:"type:timestamptz;not null"`
}

// TableName specifies the table name for GORM.
func (GatewayConfigModel) TableName() string {
	return "gateway_configs"
}

// GatewayConfigRepositoryImpl is the GORM-based implementation of gateway.ConfigRepository.
type GatewayConfigRepositoryImpl struct {
	db *gorm.DB
}

// NewGatewayConfigRepository creates a new GORM-based gateway config repository.
func NewGatewayConfigRepository(db *gorm.DB) *GatewayConfigRepositoryImpl {
	return &GatewayConfigRepositoryImpl{db: db}
}

// Find retrieves one tenant's configuration of a gateway.
func (r *GatewayConfigRepositoryImpl) Find(ctx context.Context, tenantID, gatewayID string) (*gwdomain.Config, error) {
	var model GatewayConfigModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND gateway_id = ?", tenantID, gatewayID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("gateway config", gatewayID)
		}
		return nil, err
	}
	cfg := configToDomain(&model)
	return &cfg, nil
}

// ListByTenant returns every gateway a tenant has configured.
func (r *GatewayConfigRepositoryImpl) ListByTenant(ctx context.Context, tenantID string) ([]gwdomain.Config, error) {
	var models []GatewayConfigModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("gateway_id").Find(&models).Error; err != nil {
		return nil, err
	}
	cfgs := make([]gwdomain.Config, len(models))
	for i := range models {
		cfgs[i] = configToDomain(&models[i])
	}
	return cfgs, nil
}

// Upsert inserts or replaces a tenant's gateway configuration.
func (r *GatewayConfigRepositoryImpl) Upsert(ctx context.Context, cfg gwdomain.Config) error {
	caps := make([]string, len(cfg.Capabilities))
	for i, op := range cfg.Capabilities {
		caps[i] = string(op)
	}
	model := GatewayConfigModel{
		TenantID:       cfg.TenantID,
		GatewayID:      cfg.GatewayID,
		CredentialsRef: cfg.CredentialsRef,
		Capabilities:   datatypes.NewJSONSlice(caps),
		Enabled:        cfg.Enabled,
		UpdatedAt:      cfg.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "gateway_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"credentials_ref", "capabilities", "enabled", "updated_at"}),
		}).
		Create(&model).Error
}

func configToDomain(model *GatewayConfigModel) gwdomain.Config {
	caps := make([]gwdomain.Operation, len(model.Capabilities))
	for i, op := range model.Capabilities {
		caps[i] = gwdomain.Operation(op)
	}
	return gwdomain.Config{
		TenantID:       model.TenantID,
		GatewayID:      model.GatewayID,
		CredentialsRef: model.CredentialsRef,
		Capabilities:   caps,
		Enabled:        model.Enabled,
		UpdatedAt:      model.UpdatedAt,
	}
}

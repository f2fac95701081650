package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryFilter narrows a tenant's payment history.
type HistoryFilter struct {
	Status    Status
	GatewayID string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// Repository defines the persistence contract for Intent aggregates.
type Repository interface {
	// FindByID retrieves an intent by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Intent, error)

	// FindByIdempotencyKey retrieves the intent created under a tenant's idempotency key.
	FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*Intent, error)

	// List returns a tenant's intents, newest first, with the total match count.
	List(ctx context.Context, tenantID string, filter HistoryFilter) ([]*Intent, int64, error)

	// ListNeedingReconciliation returns intents whose gateway outcome is unknown.
	ListNeedingReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]*Intent, error)

	// Save persists a new intent.
	Save(ctx context.Context, intent *Intent) error

	// Update persists changes with optimistic locking on version.
	Update(ctx context.Context, intent *Intent) error
}

// Package memory provides in-process implementations of the repository
// contracts for local development and tests. They honor the same
// uniqueness and optimistic-locking rules as the Postgres repositories.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain"
	gwdomain "github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/ledger"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/domain/payment"
)

// PaymentRepository stores intents as snapshots.
type PaymentRepository struct {
	mu          sync.RWMutex
	intents     map[uuid.UUID]payment.State
	idempotency map[string]uuid.UUID
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		intents:     make(map[uuid.UUID]payment.State),
		idempotency: make(map[string]uuid.UUID),
	}
}

func idempotencyIndex(tenantID, key string) string {
	return tenantID + "|" + key
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.intents[id]
	if !ok {
		return nil, domain.NewNotFoundError("payment intent", id.String())
	}
	return payment.Reconstitute(s), nil
}

func (r *PaymentRepository) FindByIdempotencyKey(ctx context.Context, tenantID, key string) (*payment.Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idempotency[idempotencyIndex(tenantID, key)]
	if !ok {
		return nil, domain.NewNotFoundError("payment intent", key)
	}
	return payment.Reconstitute(r.intents[id]), nil
}

func (r *PaymentRepository) List(ctx context.Context, tenantID string, filter payment.HistoryFilter) ([]*payment.Intent, int64, error) {
	r.mu.RLock()
	var matched []payment.State
	for _, s := range r.intents {
		if s.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.GatewayID != "" && s.GatewayID != filter.GatewayID {
			continue
		}
		if filter.From != nil && s.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !s.CreatedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, s)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.Limit
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}

	out := make([]*payment.Intent, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, payment.Reconstitute(s))
	}
	return out, total, nil
}

func (r *PaymentRepository) ListNeedingReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Intent, error) {
	r.mu.RLock()
	var matched []payment.State
	for _, s := range r.intents {
		in := payment.Reconstitute(s)
		if in.NeedsGatewayReconciliation() && s.UpdatedAt.Before(olderThan) {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.Before(matched[j].UpdatedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*payment.Intent, len(matched))
	for i, s := range matched {
		out[i] = payment.Reconstitute(s)
	}
	return out, nil
}

func (r *PaymentRepository) Save(ctx context.Context, intent *payment.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := idempotencyIndex(intent.TenantID(), intent.IdempotencyKey())
	if _, exists := r.idempotency[idx]; exists {
		return domain.NewConflictError("an intent with this idempotency key already exists")
	}
	if _, exists := r.intents[intent.ID()]; exists {
		return domain.NewConflictError("payment intent already exists")
	}
	r.intents[intent.ID()] = intent.Snapshot()
	r.idempotency[idx] = intent.ID()
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, intent *payment.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.intents[intent.ID()]
	if !ok || current.Version != intent.Version()-1 {
		return domain.NewConflictError("payment intent was modified by another transaction")
	}
	r.intents[intent.ID()] = intent.Snapshot()
	return nil
}

// GatewayConfigRepository stores gateway configurations by tenant.
type GatewayConfigRepository struct {
	mu      sync.RWMutex
	configs map[string]gwdomain.Config
}

func NewGatewayConfigRepository() *GatewayConfigRepository {
	return &GatewayConfigRepository{configs: make(map[string]gwdomain.Config)}
}

func (r *GatewayConfigRepository) Find(ctx context.Context, tenantID, gatewayID string) (*gwdomain.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tenantID+"|"+gatewayID]
	if !ok {
		return nil, domain.NewNotFoundError("gateway config", gatewayID)
	}
	cfg.Capabilities = append([]gwdomain.Operation(nil), cfg.Capabilities...)
	return &cfg, nil
}

func (r *GatewayConfigRepository) ListByTenant(ctx context.Context, tenantID string) ([]gwdomain.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []gwdomain.Config
	for _, cfg := range r.configs {
		if cfg.TenantID == tenantID {
			cfg.Capabilities = append([]gwdomain.Operation(nil), cfg.Capabilities...)
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GatewayID < out[j].GatewayID })
	return out, nil
}

func (r *GatewayConfigRepository) Upsert(ctx context.Context, cfg gwdomain.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg.Capabilities = append([]gwdomain.Operation(nil), cfg.Capabilities...)
	r.configs[cfg.TenantID+"|"+cfg.GatewayID] = cfg
	return nil
}

// GatewayCallLog stores gateway call outcomes.
type GatewayCallLog struct {
	mu      sync.RWMutex
	records map[string]gwdomain.CallRecord
}

func NewGatewayCallLog() *GatewayCallLog {
	return &GatewayCallLog{records: make(map[string]gwdomain.CallRecord)}
}

func (l *GatewayCallLog) Find(ctx context.Context, key string) (*gwdomain.CallRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *GatewayCallLog) Record(ctx context.Context, rec gwdomain.CallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.records[rec.Key]; !exists {
		l.records[rec.Key] = rec
	}
	return nil
}

// LedgerRepository stores transaction records.
type LedgerRepository struct {
	mu      sync.RWMutex
	records []ledger.Record
	sources map[string]struct{}
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{sources: make(map[string]struct{})}
}

func (r *LedgerRepository) Append(ctx context.Context, rec ledger.Record) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.sources[rec.SourceKey]; seen {
		return false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.OccurredAt = rec.OccurredAt.UTC()
	r.records = append(r.records, rec)
	r.sources[rec.SourceKey] = struct{}{}
	return true, nil
}

func (r *LedgerRepository) ListWindow(ctx context.Context, tenantID string, start, end time.Time) ([]ledger.Record, error) {
	r.mu.RLock()
	var out []ledger.Record
	for _, rec := range r.records {
		if rec.TenantID == tenantID && !rec.OccurredAt.Before(start) && rec.OccurredAt.Before(end) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

var (
	_ payment.Repository        = (*PaymentRepository)(nil)
	_ gwdomain.ConfigRepository = (*GatewayConfigRepository)(nil)
	_ gwdomain.CallLog          = (*GatewayCallLog)(nil)
	_ ledger.RecordRepository   = (*LedgerRepository)(nil)
)

package application

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler periodically resolves intents whose gateway outcome is unknown.
type Reconciler struct {
	payments  *PaymentService
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewReconciler creates a new Reconciler. Intents younger than minAge are
// left to the request that is still working on them.
func NewReconciler(payments *PaymentService, interval, minAge time.Duration, batchSize int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		payments:  payments,
		interval:  interval,
		minAge:    minAge,
		batchSize: batchSize,
		logger:    logger.Named("reconciler"),
	}
}

// RunOnce reconciles one batch.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	resolved, err := r.payments.ReconcilePending(ctx, time.Now().UTC().Add(-r.minAge), r.batchSize)
	if err != nil {
		r.logger.Error("reconciliation pass failed", zap.Error(err))
		return resolved, err
	}
	if resolved > 0 {
		r.logger.Info("reconciliation pass resolved intents", zap.Int("resolved", resolved))
	}
	return resolved, nil
}

// Start runs RunOnce every interval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}

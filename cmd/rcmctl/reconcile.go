package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/adapter"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/cache"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/monitoring"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/database"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/repository"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/saga"
)

func reconcileCmd() *cobra.Command {
	var (
		minAge    time.Duration
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resolve payment intents whose gateway outcome is unknown",
		Long: `Runs one reconciliation pass against Postgres. Every intent flagged as
pending verification, or created without a gateway reference, is checked
against its gateway and moved to the state the gateway reports.

Examples:
  rcmctl reconcile
  rcmctl reconcile --min-age 10m --batch 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := loadConfig()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := database.Connect(cfg.DBConfig, zapLogger)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}

			metrics := monitoring.NoopMetrics()
			lru, err := cache.NewLRUStore(cfg.CacheConfig.Size)
			if err != nil {
				return err
			}
			c := cache.New(lru, zapLogger, metrics)

			registry := gateway.NewRegistry(
				repository.NewGatewayConfigRepository(db),
				repository.NewGatewayCallLog(db),
				gateway.NewLookupResolver(cfg.Lookup),
				c, cfg.CacheConfig.GatewayTTL, metrics, zapLogger,
			)
			registry.Register(gateway.StripeDriver(zapLogger))
			registry.Register(gateway.MockDriver(adapter.NewMockGateway(zapLogger)))

			payments := repository.NewPaymentRepository(db)
			sagaService := saga.NewPaymentSagaService(
				payments,
				repository.NewLedgerRepository(db),
				nil,
				nil,
				saga.RetryPolicy{
					MaxAttempts:    cfg.GatewayConfig.MaxAttempts,
					InitialBackoff: cfg.GatewayConfig.InitialBackoff,
					MaxBackoff:     cfg.GatewayConfig.MaxBackoff,
					CallTimeout:    cfg.GatewayConfig.CallTimeout,
				},
				metrics,
				zapLogger,
			)
			paymentService := application.NewPaymentService(payments, registry, sagaService, zapLogger)

			resolved, err := application.NewReconciler(paymentService, time.Minute, minAge, batchSize, zapLogger).RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d payment intents\n", resolved)
			return nil
		},
	}

	cmd.Flags().DurationVar(&minAge, "min-age", time.Minute, "skip intents updated more recently than this")
	cmd.Flags().IntVar(&batchSize, "batch", 100, "maximum intents to check")
	return cmd
}

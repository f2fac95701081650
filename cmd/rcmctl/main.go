// Command rcmctl runs operational tasks against the RCM service's storage.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/config"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/logger"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "rcmctl",
		Short:         "Operational tooling for the RCM service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.ServiceConfig, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	zapLogger, err := logger.NewNamed(cfg.AppEnv, "rcmctl")
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, zapLogger, nil
}

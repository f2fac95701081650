package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		tenantID   string
		providerID string
		scopes     []string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zapLogger, err := loadConfig()
			if err != nil {
				return err
			}
			defer zapLogger.Sync()

			if !cfg.IsDevelopment() {
				return fmt.Errorf("token minting is only available in development (APP_ENV=%s)", cfg.AppEnv)
			}

			granted := auth.AllScopes()
			if len(scopes) > 0 {
				granted = make([]auth.Scope, len(scopes))
				for i, s := range scopes {
					granted[i] = auth.Scope(s)
				}
			}

			tok, err := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.Issuer).
				GenerateToken(tenantID, providerID, granted, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant the token is issued for")
	cmd.Flags().StringVar(&providerID, "provider", "", "provider id carried in the token")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "granted scopes (default: all)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

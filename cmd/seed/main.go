// Command seed issues promo codes and API tokens against a configured deployment.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"telegram-generation-billing/internal/config"
	"telegram-generation-billing/internal/infra/api"
	pg "telegram-generation-billing/internal/infra/db/postgres"
	"telegram-generation-billing/internal/infra/logging"
	"telegram-generation-billing/internal/usecase"
)

var version = "dev"

func main() {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:          "seed",
		Short:        "Operator tooling for the generation billing service",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to YAML config file")

	rootCmd.AddCommand(tokenCmd(&cfgPath))
	rootCmd.AddCommand(promoCmd(&cfgPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func tokenCmd(cfgPath *string) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Mint an /api/v1 bearer token (subject is the telegram id for role user)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath, false)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tok, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Mint(args[0], role, ttl)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", api.RoleService, "token role: user|service|admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func promoCmd(cfgPath *string) *cobra.Command {
	var (
		generations int64
		uses        int
		count       int
	)
	cmd := &cobra.Command{
		Use:   "promo",
		Short: "Create promo codes in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if generations <= 0 || uses <= 0 || count <= 0 {
				return fmt.Errorf("--generations, --uses and --count must be positive")
			}
			cfg, err := config.LoadConfig(*cfgPath, false)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := logging.New(cfg.Log, false)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			users := pg.NewUserRepo(pool)
			tm := pg.NewTxManager(pool)
			balanceUC := usecase.NewBalanceUseCase(users, tm, logger)
			promoUC := usecase.NewPromoUseCase(pg.NewPromoCodeRepo(pool), balanceUC, tm, nil, logger)

			for i := 0; i < count; i++ {
				pc, err := promoUC.Create(ctx, generations, uses)
				if err != nil {
					return fmt.Errorf("create promo code: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tgenerations=%d\tuses=%d\n", pc.Code, pc.Generations, pc.UsageLimit)
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&generations, "generations", "g", 0, "generations granted by each code")
	cmd.Flags().IntVarP(&uses, "uses", "u", 1, "usage limit of each code")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "how many codes to create")
	return cmd
}

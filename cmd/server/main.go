package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/config"
	"github.com/RichardoC/leadline/internal/db"
	"github.com/RichardoC/leadline/internal/llm"
	"github.com/RichardoC/leadline/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "leadline",
		Short:         "Website chat assistant with lead capture and an admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "leadline.yaml", "path to the YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(askCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger every command starts from.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer database.Close()

			ctx, stop := signalContext()
			defer stop()
			if err := database.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("Schema is up to date", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}

// askCmd sends one prompt to the configured model, handy for checking
// provider settings without starting the server.
func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send a single prompt to the configured chat model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			service, err := llm.New(cfg.LLM, nil, logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			completion, err := service.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), completion)
			return nil
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/and161185/contacts-keeper/internal/config"
)

// NewRootCmd creates the root command with the serve and migrate subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ck-server",
		Short:        "contacts-keeper authentication API",
		SilenceUsage: true,
	}

	// Settings are shared by all subcommands; see config.Load for precedence.
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	return cmd
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return migrateWithRetry(cmd.Context(), logger, cfg.DatabaseDSN, startupBackoff())
		},
	}
}

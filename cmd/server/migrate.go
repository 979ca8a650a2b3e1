package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/migrate"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	steps := []struct {
		use, short string
		run        func(*cobra.Command, string) error
	}{
		{"up", "Apply all pending migrations", func(c *cobra.Command, dsn string) error { return migrate.Up(c.Context(), dsn) }},
		{"down", "Roll back the most recent migration", func(c *cobra.Command, dsn string) error { return migrate.Down(c.Context(), dsn) }},
		{"status", "Print the state of every migration", func(c *cobra.Command, dsn string) error { return migrate.Status(c.Context(), dsn) }},
	}
	for _, st := range steps {
		cmd.AddCommand(&cobra.Command{
			Use:   st.use,
			Short: st.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = log.Sync() }()
				if err := st.run(cmd, cfg.DatabaseDSN); err != nil {
					return err
				}
				log.Info("migrate done", zap.String("step", st.use))
				return nil
			},
		})
	}
	return cmd
}

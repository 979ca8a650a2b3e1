package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/audit"
	pkgcrypto "github.com/and161185/console-auth/internal/crypto"
	"github.com/and161185/console-auth/internal/model"
)

func newBootstrapAdminCommand() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the initial admin account unless it already exists",
		Long: "Creates an admin from ADMIN_USERNAME, ADMIN_EMAIL and ADMIN_PASSWORD.\n" +
			"Flags override the environment. Running it again is a no-op.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			in, _ := cfg.BootstrapAdmin()
			if username != "" {
				in.Username = username
			}
			if email != "" {
				in.Email = email
			}
			if password != "" {
				in.Password = password
			}
			if in.Username == "" || in.Password == "" {
				return errors.New("admin username and password are required")
			}
			in.Role = model.RoleAdmin

			if cfg.JWTSecret == "" {
				// nothing is signed by this command
				raw, err := pkgcrypto.RandBytes(32)
				if err != nil {
					return err
				}
				cfg.JWTSecret = string(raw)
			}

			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, false, false, log)
			if err != nil {
				return err
			}
			defer b.close()

			svc, err := buildServices(cfg, b, audit.Multi(audit.NewZapRecorder(log), b.audit), log)
			if err != nil {
				return err
			}
			created, err := svc.accounts.EnsureAdmin(ctx, in)
			if err != nil {
				return err
			}
			log.Info("bootstrap admin", zap.String("username", in.Username), zap.Bool("created", created))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username (overrides ADMIN_USERNAME)")
	cmd.Flags().StringVar(&email, "email", "", "admin email (overrides ADMIN_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "admin password (overrides ADMIN_PASSWORD)")
	return cmd
}

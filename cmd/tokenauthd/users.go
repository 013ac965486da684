package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/internal/config"
	"github.com/MrEthical07/tokenauth/internal/logging"
	"github.com/MrEthical07/tokenauth/userstore/postgres"
)

// roleSetter is the part of the postgres repository the users command needs.
type roleSetter interface {
	FindByEmail(ctx context.Context, email string) (*tokenauth.User, error)
	SetRole(ctx context.Context, id, role string) error
}

// NewUsersCmd creates the users subcommand tree.
func NewUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Administer accounts in the PostgreSQL user store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Change the role of an account, e.g. to admin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if cfg.UserStore != config.StorePostgres {
				return oops.Code("CONFIG_INVALID").Errorf("users set-role requires USER_STORE=postgres")
			}

			ctx := cmd.Context()
			logger := logging.Setup(cfg.AppName, version, cfg.LogFormat, cfg.LogLevel, os.Stderr)
			pool, err := connectPostgres(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := setRole(ctx, postgres.New(pool), args[0], args[1]); err != nil {
				return err
			}
			cmd.Printf("%s is now %s\n", strings.ToLower(strings.TrimSpace(args[0])), args[1])
			return nil
		},
	})

	return cmd
}

func setRole(ctx context.Context, repo roleSetter, email, role string) error {
	if role != tokenauth.RoleUser && role != tokenauth.RoleAdmin {
		return oops.Code("INVALID_ARGUMENT").With("role", role).Errorf("role must be %q or %q", tokenauth.RoleUser, tokenauth.RoleAdmin)
	}
	user, err := repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, tokenauth.ErrUserNotFound) {
		return oops.Code("USER_NOT_FOUND").With("email", email).Errorf("no account for %s", email)
	}
	if err != nil {
		return err
	}
	return repo.SetRole(ctx, user.ID, role)
}

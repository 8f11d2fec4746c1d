package seed

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/auth"
)

// Options names the default accounts to create.
type Options struct {
	AdminID       string
	AdminPassword string
}

// CreateDefaultData creates the default admin account if it does not exist.
// Callers log a failure and carry on.
func CreateDefaultData(ctx context.Context, database *db.DB, adminRepo *repositories.AdminRepository, opts Options, lgr zerolog.Logger) error {
	lgr.Info().Msg("Checking/Creating default admin...")

	if opts.AdminID == "" || opts.AdminPassword == "" {
		lgr.Warn().Msg("Default admin credentials not configured, skipping")
		return nil
	}

	hash, err := auth.HashPassword(opts.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash default admin password: %w", err)
	}

	err = database.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		created, err := adminRepo.InsertIgnore(ctx, conn, &models.Admin{ID: opts.AdminID, Password: hash})
		if err != nil {
			return err
		}
		if created {
			lgr.Info().Str("adminID", opts.AdminID).Msg("Default admin created")
		} else {
			lgr.Debug().Str("adminID", opts.AdminID).Msg("Default admin already exists")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}
	return nil
}

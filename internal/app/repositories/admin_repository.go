package repositories

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
)

// AdminRepository handles database operations for admins
type AdminRepository struct {
	logger zerolog.Logger
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(lgr zerolog.Logger) *AdminRepository {
	return &AdminRepository{logger: lgr}
}

// GetByID retrieves an admin by ID
func (r *AdminRepository) GetByID(ctx context.Context, conn *db.Conn, id string) (*models.Admin, error) {
	query, args, err := psql.Select("id", "password").
		From("admin").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	row, ok := cur.FetchOne()
	if !ok {
		return nil, apperrors.ErrAdminNotFound
	}
	return &models.Admin{ID: row.String("id"), Password: row.String("password")}, nil
}

// InsertIgnore stores an admin unless the id is taken. It reports whether a
// row was written.
func (r *AdminRepository) InsertIgnore(ctx context.Context, conn *db.Conn, a *models.Admin) (bool, error) {
	query, args, err := psql.Insert("admin").
		Columns("id", "password").
		Values(a.ID, a.Password).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("adminID", a.ID).Msg("Error inserting admin")
		return false, err
	}
	return cur.RowsAffected() > 0, nil
}

// SetPassword stores a new password hash
func (r *AdminRepository) SetPassword(ctx context.Context, conn *db.Conn, id, hash string) error {
	query, args, err := psql.Update("admin").
		Set("password", hash).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		return err
	}
	if cur.RowsAffected() == 0 {
		return apperrors.ErrAdminNotFound
	}
	return nil
}

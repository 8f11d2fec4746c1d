package repositories

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/helpers"
)

// problemColumns is the full problems projection, in mirror order.
var problemColumns = []string{
	"id", "title", "description", "skill", "category", "branch", "external_link",
	"created_by_name", "created_by_roll", "created_by_branch", "created_by_batch",
	"synopsis_path", "certificate_path", "report_path", "status", "created_at",
	"rejection_reason", "student_id",
}

// ProblemFilter narrows a problem listing. Zero values match everything.
type ProblemFilter struct {
	Status models.ProblemStatus
	// AuthorRoll keeps problems authored by this roll number.
	AuthorRoll string
	// ExcludeRoll drops problems authored by this roll number.
	ExcludeRoll string
	// Ascending orders by id ascending instead of newest first.
	Ascending bool
}

// ProblemRepository handles database operations for problems. It runs on
// the connection the caller borrowed so that an operation's statements share
// one transaction.
type ProblemRepository struct {
	logger zerolog.Logger
}

// NewProblemRepository creates a new problem repository
func NewProblemRepository(lgr zerolog.Logger) *ProblemRepository {
	return &ProblemRepository{logger: lgr}
}

// Insert stores a new problem and returns its id. Backends that do not
// report the inserted key get a follow-up lookup by title.
func (r *ProblemRepository) Insert(ctx context.Context, conn *db.Conn, p *models.Problem) (int64, error) {
	query, args, err := r.insertBuilder(p).ToSql()
	if err != nil {
		r.logger.Error().Err(err).Msg("Error building insert problem SQL")
		return 0, err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		if conn.Dialect().IsUniqueViolation(err) {
			return 0, apperrors.ErrTitleExists
		}
		r.logger.Error().Err(err).Msg("Error executing insert problem query")
		return 0, err
	}

	if id, ok := cur.LastRowID(); ok {
		return id, nil
	}

	cur, err = conn.Execute(ctx, "SELECT id FROM problems WHERE title = ?", p.Title)
	if err != nil {
		return 0, err
	}
	row, ok := cur.FetchOne()
	if !ok {
		return 0, fmt.Errorf("inserted problem %q not found on lookup", p.Title)
	}
	return row.Int64("id"), nil
}

func (r *ProblemRepository) insertBuilder(p *models.Problem) squirrel.InsertBuilder {
	return psql.Insert("problems").
		Columns(
			"title", "description", "skill", "category", "branch", "external_link",
			"created_by_name", "created_by_roll", "created_by_branch", "created_by_batch",
			"synopsis_path", "certificate_path", "report_path",
			"status", "created_at", "rejection_reason", "student_id",
		).
		Values(
			p.Title, p.Description, p.Skill, p.Category, p.Branch, helpers.NullString(p.ExternalLink),
			p.CreatedByName, p.CreatedByRoll, p.CreatedByBranch, p.CreatedByBatch,
			helpers.NullString(p.SynopsisPath), helpers.NullString(p.CertificatePath), helpers.NullString(p.ReportPath),
			string(p.Status), p.CreatedAt, helpers.NullString(p.RejectionReason), p.StudentID,
		)
}

// GetByID retrieves a problem by ID
func (r *ProblemRepository) GetByID(ctx context.Context, conn *db.Conn, id int64) (*models.Problem, error) {
	query, args, err := psql.Select(problemColumns...).
		From("problems").
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
		return nil, apperrors.ErrProblemNotFound
	}
	return scanProblem(row), nil
}

// List returns problems matching filter, newest first unless Ascending.
func (r *ProblemRepository) List(ctx context.Context, conn *db.Conn, filter ProblemFilter) ([]*models.Problem, error) {
	builder := psql.Select(problemColumns...).From("problems")
	if filter.Status != "" {
		builder = builder.Where(squirrel.Expr("LOWER(status) = ?", string(filter.Status)))
	}
	if filter.AuthorRoll != "" {
		builder = builder.Where(squirrel.Or{
			squirrel.Eq{"created_by_roll": filter.AuthorRoll},
			squirrel.Eq{"student_id": filter.AuthorRoll},
		})
	}
	if filter.ExcludeRoll != "" {
		for _, col := range []string{"created_by_roll", "student_id"} {
			builder = builder.Where(squirrel.Or{
				squirrel.NotEq{col: filter.ExcludeRoll},
				squirrel.Eq{col: nil},
			})
		}
	}
	if filter.Ascending {
		builder = builder.OrderBy("id ASC")
	} else {
		builder = builder.OrderBy("id DESC")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		r.logger.Error().Err(err).Msg("Error building list problems SQL")
		return nil, err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	rows := cur.FetchAll()
	problems := make([]*models.Problem, 0, len(rows))
	for _, row := range rows {
		problems = append(problems, scanProblem(row))
	}
	return problems, nil
}

// Update applies column changes to one problem. It reports
// ErrProblemNotFound when no row matched.
func (r *ProblemRepository) Update(ctx context.Context, conn *db.Conn, id int64, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}

	query, args, err := psql.Update("problems").
		SetMap(changes).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		r.logger.Error().Err(err).Msg("Error building update problem SQL")
		return err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		if conn.Dialect().IsUniqueViolation(err) {
			return apperrors.ErrTitleExists
		}
		r.logger.Error().Err(err).Int64("problemID", id).Msg("Error executing update problem query")
		return err
	}
	if cur.RowsAffected() == 0 {
		return apperrors.ErrProblemNotFound
	}
	return nil
}

// Delete deletes a problem by its ID.
func (r *ProblemRepository) Delete(ctx context.Context, conn *db.Conn, id int64) error {
	query, args, err := psql.Delete("problems").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Int64("problemID", id).Msg("Error executing delete problem query")
		return err
	}
	if cur.RowsAffected() == 0 {
		return apperrors.ErrProblemNotFound
	}
	return nil
}

// InsertIgnore stores an imported problem unless its title already exists.
// It reports whether a row was written.
func (r *ProblemRepository) InsertIgnore(ctx context.Context, conn *db.Conn, p *models.Problem) (bool, error) {
	query, args, err := r.insertBuilder(p).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cur.RowsAffected() > 0, nil
}

// FieldChanges maps editable fields onto their columns.
func FieldChanges(f models.ProblemFields) map[string]interface{} {
	return map[string]interface{}{
		"title":         f.Title,
		"description":   f.Description,
		"skill":         f.Skill,
		"category":      f.Category,
		"branch":        f.Branch,
		"external_link": helpers.NullIfEmpty(f.ExternalLink),
	}
}

func scanProblem(row db.Row) *models.Problem {
	return &models.Problem{
		ID:              row.Int64("id"),
		Title:           row.String("title"),
		Description:     row.String("description"),
		Skill:           row.String("skill"),
		Category:        row.String("category"),
		Branch:          row.String("branch"),
		ExternalLink:    emptyToNil(row.NullString("external_link")),
		CreatedByName:   row.String("created_by_name"),
		CreatedByRoll:   row.String("created_by_roll"),
		CreatedByBranch: row.String("created_by_branch"),
		CreatedByBatch:  row.String("created_by_batch"),
		SynopsisPath:    emptyToNil(row.NullString("synopsis_path")),
		CertificatePath: emptyToNil(row.NullString("certificate_path")),
		ReportPath:      emptyToNil(row.NullString("report_path")),
		Status:          models.ParseStatus(row.String("status")),
		CreatedAt:       row.String("created_at"),
		RejectionReason: row.NullString("rejection_reason"),
		StudentID:       row.String("student_id"),
	}
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

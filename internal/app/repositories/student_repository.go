package repositories

import (
	"context"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/dberrors"
)

var studentColumns = []string{
	"roll_no", "name", "branch", "batch", "dob", "email", "password", "password_changed",
}

// StudentRepository handles database operations for students
type StudentRepository struct {
	logger zerolog.Logger
}

// NewStudentRepository creates a new student repository
func NewStudentRepository(lgr zerolog.Logger) *StudentRepository {
	return &StudentRepository{logger: lgr}
}

// GetByRoll retrieves a student by roll number
func (r *StudentRepository) GetByRoll(ctx context.Context, conn *db.Conn, roll string) (*models.Student, error) {
	return r.getOne(ctx, conn, squirrel.Eq{"roll_no": roll}, apperrors.ErrStudentNotFound)
}

// GetByEmail retrieves a student by email
func (r *StudentRepository) GetByEmail(ctx context.Context, conn *db.Conn, email string) (*models.Student, error) {
	return r.getOne(ctx, conn, squirrel.Eq{"email": email}, apperrors.ErrStudentNotFound)
}

func (r *StudentRepository) getOne(ctx context.Context, conn *db.Conn, where squirrel.Sqlizer, notFound error) (*models.Student, error) {
	query, args, err := psql.Select(studentColumns...).
		From("students").
		Where(where).
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
		return nil, notFound
	}
	return scanStudent(row), nil
}

// RollExists reports whether a student with roll is stored
func (r *StudentRepository) RollExists(ctx context.Context, conn *db.Conn, roll string) (bool, error) {
	return r.exists(ctx, conn, squirrel.Eq{"roll_no": roll})
}

// EmailExists reports whether another student already uses email. exceptRoll
// may be empty.
func (r *StudentRepository) EmailExists(ctx context.Context, conn *db.Conn, email, exceptRoll string) (bool, error) {
	where := squirrel.And{squirrel.Eq{"email": email}}
	if exceptRoll != "" {
		where = append(where, squirrel.NotEq{"roll_no": exceptRoll})
	}
	return r.exists(ctx, conn, where)
}

func (r *StudentRepository) exists(ctx context.Context, conn *db.Conn, where squirrel.Sqlizer) (bool, error) {
	query, args, err := psql.Select("1").From("students").Where(where).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		return false, err
	}
	_, ok := cur.FetchOne()
	return ok, nil
}

// List returns every student ordered by roll number
func (r *StudentRepository) List(ctx context.Context, conn *db.Conn) ([]*models.Student, error) {
	query, args, err := psql.Select(studentColumns...).
		From("students").
		OrderBy("roll_no ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Msg("Error listing students")
		return nil, err
	}

	rows := cur.FetchAll()
	students := make([]*models.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, scanStudent(row))
	}
	return students, nil
}

// Insert stores a new student. Duplicate keys become ErrRollNoExists or
// ErrEmailExists.
func (r *StudentRepository) Insert(ctx context.Context, conn *db.Conn, s *models.Student) error {
	query, args, err := r.insertBuilder(s).ToSql()
	if err != nil {
		return err
	}

	if _, err := conn.Execute(ctx, query, args...); err != nil {
		if conn.Dialect().IsUniqueViolation(err) {
			return duplicateStudentError(err)
		}
		r.logger.Error().Err(err).Str("rollNo", s.RollNo).Msg("Error inserting student")
		return err
	}
	return nil
}

// InsertIgnore stores an imported student unless the roll number or email
// is already taken. It reports whether a row was written.
func (r *StudentRepository) InsertIgnore(ctx context.Context, conn *db.Conn, s *models.Student) (bool, error) {
	query, args, err := r.insertBuilder(s).
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

func (r *StudentRepository) insertBuilder(s *models.Student) squirrel.InsertBuilder {
	return psql.Insert("students").
		Columns(studentColumns...).
		Values(s.RollNo, s.Name, s.Branch, s.Batch, s.DOB, s.Email, s.Password, boolToInt(s.PasswordChanged))
}

// Update rewrites the profile columns of the student stored under roll. The
// roll number itself may change.
func (r *StudentRepository) Update(ctx context.Context, conn *db.Conn, roll string, s *models.Student) error {
	query, args, err := psql.Update("students").
		SetMap(map[string]interface{}{
			"roll_no": s.RollNo,
			"name":    s.Name,
			"branch":  s.Branch,
			"batch":   s.Batch,
			"dob":     s.DOB,
			"email":   s.Email,
		}).
		Where(squirrel.Eq{"roll_no": roll}).
		ToSql()
	if err != nil {
		return err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		if conn.Dialect().IsUniqueViolation(err) {
			return duplicateStudentError(err)
		}
		r.logger.Error().Err(err).Str("rollNo", roll).Msg("Error updating student")
		return err
	}
	if cur.RowsAffected() == 0 {
		return apperrors.ErrStudentNotFound
	}
	return nil
}

// SetPassword stores a new password hash and the changed flag
func (r *StudentRepository) SetPassword(ctx context.Context, conn *db.Conn, roll, hash string, changed bool) error {
	query, args, err := psql.Update("students").
		Set("password", hash).
		Set("password_changed", boolToInt(changed)).
		Where(squirrel.Eq{"roll_no": roll}).
		ToSql()
	if err != nil {
		return err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		return err
	}
	if cur.RowsAffected() == 0 {
		return apperrors.ErrStudentNotFound
	}
	return nil
}

// Delete removes a student. Problems they authored are left in place.
func (r *StudentRepository) Delete(ctx context.Context, conn *db.Conn, roll string) error {
	query, args, err := psql.Delete("students").
		Where(squirrel.Eq{"roll_no": roll}).
		ToSql()
	if err != nil {
		return err
	}

	cur, err := conn.Execute(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("rollNo", roll).Msg("Error deleting student")
		return err
	}
	if cur.RowsAffected() == 0 {
		return apperrors.ErrStudentNotFound
	}
	return nil
}

// duplicateStudentError picks the conflict message from the violated key.
// PostgreSQL names the constraint; SQLite puts the column in the message.
func duplicateStudentError(err error) error {
	name := dberrors.ConstraintName(err)
	if name == "" {
		name = err.Error()
	}
	if strings.Contains(strings.ToLower(name), "email") {
		return apperrors.ErrEmailExists
	}
	return apperrors.ErrRollNoExists
}

func scanStudent(row db.Row) *models.Student {
	return &models.Student{
		RollNo:          row.String("roll_no"),
		Name:            row.String("name"),
		Branch:          row.String("branch"),
		Batch:           row.String("batch"),
		DOB:             row.String("dob"),
		Email:           row.String("email"),
		Password:        row.String("password"),
		PasswordChanged: row.Bool("password_changed"),
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

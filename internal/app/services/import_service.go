package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/auth"
	"github.com/yigit/problemportal/internal/pkg/csvmirror"
)

// ImportService loads mirror-format CSV files into the tables
type ImportService interface {
	Import(ctx context.Context, studentsPath, problemsPath string) (*dto.ImportResponse, error)
}

type importServiceImpl struct {
	db          *db.DB
	studentRepo *repositories.StudentRepository
	problemRepo *repositories.ProblemRepository
	mirror      MirrorService
	logger      zerolog.Logger
}

// NewImportService creates a new ImportService
func NewImportService(
	database *db.DB,
	studentRepo *repositories.StudentRepository,
	problemRepo *repositories.ProblemRepository,
	mirror MirrorService,
	lgr zerolog.Logger,
) ImportService {
	return &importServiceImpl{
		db:          database,
		studentRepo: studentRepo,
		problemRepo: problemRepo,
		mirror:      mirror,
		logger:      lgr,
	}
}

// Import inserts every row whose key is not stored yet and skips the rest.
// A missing file imports nothing for its table. Rows are committed together.
func (s *importServiceImpl) Import(ctx context.Context, studentsPath, problemsPath string) (*dto.ImportResponse, error) {
	students, err := s.readMirror(studentsPath)
	if err != nil {
		return nil, err
	}
	problems, err := s.readMirror(problemsPath)
	if err != nil {
		return nil, err
	}

	// Hash outside the transaction; bcrypt is slow.
	prepared := make([]*models.Student, 0, len(students))
	for _, rec := range students {
		st, err := studentFromRecord(rec)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, st)
	}

	resp := &dto.ImportResponse{}
	err = s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		for _, st := range prepared {
			if st == nil {
				resp.StudentsSkipped++
				continue
			}
			inserted, err := s.studentRepo.InsertIgnore(ctx, conn, st)
			if err != nil {
				return fmt.Errorf("failed to import student %s: %w", st.RollNo, err)
			}
			if inserted {
				resp.StudentsInserted++
			} else {
				resp.StudentsSkipped++
			}
		}

		for _, rec := range problems {
			p := problemFromRecord(rec)
			if p == nil {
				resp.ProblemsSkipped++
				continue
			}
			inserted, err := s.problemRepo.InsertIgnore(ctx, conn, p)
			if err != nil {
				return fmt.Errorf("failed to import problem %q: %w", p.Title, err)
			}
			if inserted {
				resp.ProblemsInserted++
			} else {
				resp.ProblemsSkipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("studentsInserted", resp.StudentsInserted).
		Int("studentsSkipped", resp.StudentsSkipped).
		Int("problemsInserted", resp.ProblemsInserted).
		Int("problemsSkipped", resp.ProblemsSkipped).
		Msg("CSV import finished")

	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)
	return resp, nil
}

func (s *importServiceImpl) readMirror(path string) ([]csvmirror.Record, error) {
	if path == "" {
		return nil, nil
	}
	records, err := csvmirror.ReadFile(path)
	if errors.Is(err, csvmirror.ErrNoMirror) {
		s.logger.Warn().Str("path", path).Msg("Import file not found, skipping")
		return nil, nil
	}
	return records, err
}

// studentFromRecord builds an insertable student. It returns nil for rows
// without a roll number or name. Plaintext passwords are hashed; rows
// without one get the initial password.
func studentFromRecord(rec csvmirror.Record) (*models.Student, error) {
	st := &models.Student{
		RollNo:          rec.Get("roll_no"),
		Name:            rec.Get("name"),
		Branch:          rec.Get("branch"),
		Batch:           rec.Get("batch"),
		DOB:             rec.Get("dob"),
		Email:           rec.Get("email"),
		PasswordChanged: db.ParseFlag(rec.Get("password_changed")),
	}
	normalizeStudent(st)
	if st.RollNo == "" || st.Name == "" {
		return nil, nil
	}

	password := rec.Get("password")
	if password == "" {
		password = initialPassword(st)
	}
	if auth.IsHashed(password) {
		st.Password = password
		return st, nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	st.Password = hash
	return st, nil
}

// problemFromRecord builds an insertable problem, or nil when the row has
// no title.
func problemFromRecord(rec csvmirror.Record) *models.Problem {
	title := rec.Get("title")
	if title == "" {
		return nil
	}
	return &models.Problem{
		Title:           title,
		Description:     rec.Get("description"),
		Skill:           rec.Get("skill"),
		Category:        rec.Get("category"),
		Branch:          rec.Get("branch"),
		ExternalLink:    optional(rec.Get("external_link")),
		CreatedByName:   rec.Get("created_by_name"),
		CreatedByRoll:   rec.Get("created_by_roll"),
		CreatedByBranch: rec.Get("created_by_branch"),
		CreatedByBatch:  rec.Get("created_by_batch"),
		SynopsisPath:    optional(rec.Get("synopsis_path")),
		CertificatePath: optional(rec.Get("certificate_path")),
		ReportPath:      optional(rec.Get("report_path")),
		Status:          models.ParseStatus(rec.Get("status")),
		CreatedAt:       rec.Get("created_at"),
		RejectionReason: optional(rec.Get("rejection_reason")),
		StudentID:       rec.Get("student_id"),
	}
}

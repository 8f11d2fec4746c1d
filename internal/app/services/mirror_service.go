package services

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/csvmirror"
)

// MirrorService keeps the CSV mirrors in step with the tables
type MirrorService interface {
	RefreshProblems(ctx context.Context) error
	RefreshStudents(ctx context.Context) error
	ProblemsPath() string
	StudentsPath() string
}

type mirrorServiceImpl struct {
	db          *db.DB
	problemRepo *repositories.ProblemRepository
	studentRepo *repositories.StudentRepository
	exporter    *csvmirror.Exporter
	logger      zerolog.Logger
}

// NewMirrorService creates a new MirrorService
func NewMirrorService(
	database *db.DB,
	problemRepo *repositories.ProblemRepository,
	studentRepo *repositories.StudentRepository,
	exporter *csvmirror.Exporter,
	lgr zerolog.Logger,
) MirrorService {
	return &mirrorServiceImpl{
		db:          database,
		problemRepo: problemRepo,
		studentRepo: studentRepo,
		exporter:    exporter,
		logger:      lgr,
	}
}

func (s *mirrorServiceImpl) ProblemsPath() string { return s.exporter.ProblemsPath() }

func (s *mirrorServiceImpl) StudentsPath() string { return s.exporter.StudentsPath() }

// RefreshProblems rewrites the problems mirror from a full table read.
func (s *mirrorServiceImpl) RefreshProblems(ctx context.Context) error {
	var problems []*models.Problem
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		problems, err = s.problemRepo.List(ctx, conn, repositories.ProblemFilter{Ascending: true})
		return err
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(problems))
	for _, p := range problems {
		rows = append(rows, problemRecord(p))
	}
	return s.exporter.WriteProblems(rows)
}

// RefreshStudents rewrites the students mirror.
func (s *mirrorServiceImpl) RefreshStudents(ctx context.Context) error {
	var students []*models.Student
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		students, err = s.studentRepo.List(ctx, conn)
		return err
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(students))
	for _, st := range students {
		rows = append(rows, []string{st.RollNo, st.Name, st.Branch, st.Batch, st.DOB, st.Email})
	}
	return s.exporter.WriteStudents(rows)
}

// problemRecord flattens p in csvmirror.ProblemColumns order.
func problemRecord(p *models.Problem) []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.Title,
		p.Description,
		p.Skill,
		p.Category,
		p.Branch,
		deref(p.ExternalLink),
		p.CreatedByName,
		p.CreatedByRoll,
		p.CreatedByBranch,
		p.CreatedByBatch,
		deref(p.SynopsisPath),
		deref(p.CertificatePath),
		deref(p.ReportPath),
		string(p.Status),
		p.CreatedAt,
		deref(p.RejectionReason),
		p.StudentID,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// logRefresh runs a mirror refresh and logs instead of returning failures.
// A failed refresh leaves the previous mirror in place.
func logRefresh(ctx context.Context, lgr zerolog.Logger, name string, refresh func(context.Context) error) {
	if err := refresh(ctx); err != nil {
		lgr.Error().Err(err).Str("mirror", name).Msg("Failed to refresh CSV mirror")
	}
}

// RefreshAll regenerates both mirrors, logging failures.
func RefreshAll(ctx context.Context, mirror MirrorService, lgr zerolog.Logger) {
	logRefresh(ctx, lgr, "problems", mirror.RefreshProblems)
	logRefresh(ctx, lgr, "students", mirror.RefreshStudents)
}

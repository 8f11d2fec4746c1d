package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/auth"
	"github.com/yigit/problemportal/internal/pkg/validation"
)

// StudentService defines the admin student management operations
type StudentService interface {
	List(ctx context.Context) ([]*models.Student, error)
	Get(ctx context.Context, roll string) (*models.Student, error)
	Create(ctx context.Context, req *dto.CreateStudentRequest) (*models.Student, error)
	Update(ctx context.Context, roll string, req *dto.UpdateStudentRequest) (*models.Student, error)
	Delete(ctx context.Context, roll string) error
	SetPassword(ctx context.Context, roll, newPassword string) error
}

// studentServiceImpl implements StudentService
type studentServiceImpl struct {
	db          *db.DB
	studentRepo *repositories.StudentRepository
	mirror      MirrorService
	logger      zerolog.Logger
}

// NewStudentService creates a new StudentService
func NewStudentService(
	database *db.DB,
	studentRepo *repositories.StudentRepository,
	mirror MirrorService,
	lgr zerolog.Logger,
) StudentService {
	return &studentServiceImpl{
		db:          database,
		studentRepo: studentRepo,
		mirror:      mirror,
		logger:      lgr,
	}
}

// NormalizeRoll canonicalizes a roll number for storage and lookup.
func NormalizeRoll(roll string) string {
	return strings.ToUpper(strings.TrimSpace(roll))
}

// normalizeStudent upper-cases roll and name and lower-cases the email.
func normalizeStudent(s *models.Student) {
	s.RollNo = NormalizeRoll(s.RollNo)
	s.Name = strings.ToUpper(strings.TrimSpace(s.Name))
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Branch = strings.TrimSpace(s.Branch)
	s.Batch = strings.TrimSpace(s.Batch)
	s.DOB = strings.TrimSpace(s.DOB)
}

func validateStudent(s *models.Student) error {
	missing := validation.MissingFields(
		validation.Field{Name: "roll_no", Value: s.RollNo},
		validation.Field{Name: "name", Value: s.Name},
		validation.Field{Name: "email", Value: s.Email},
	)
	if len(missing) > 0 {
		return apperrors.NewValidationError("Missing required fields: " + strings.Join(missing, ", "))
	}
	if !validation.IsEmail(s.Email) {
		return apperrors.NewValidationError("Invalid email address")
	}
	return nil
}

// initialPassword is what a new student logs in with before changing it:
// their date of birth, or the roll number when none is on record.
func initialPassword(s *models.Student) string {
	if s.DOB != "" {
		return s.DOB
	}
	return s.RollNo
}

// List returns all students ordered by roll number
func (s *studentServiceImpl) List(ctx context.Context) ([]*models.Student, error) {
	var students []*models.Student
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		students, err = s.studentRepo.List(ctx, conn)
		return err
	})
	return students, err
}

// Get retrieves a student by roll number
func (s *studentServiceImpl) Get(ctx context.Context, roll string) (*models.Student, error) {
	var student *models.Student
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		student, err = s.studentRepo.GetByRoll(ctx, conn, NormalizeRoll(roll))
		return err
	})
	return student, err
}

// Create adds a student with a hashed initial password
func (s *studentServiceImpl) Create(ctx context.Context, req *dto.CreateStudentRequest) (*models.Student, error) {
	student := &models.Student{
		RollNo: req.RollNo,
		Name:   req.Name,
		Branch: req.Branch,
		Batch:  req.Batch,
		DOB:    req.DOB,
		Email:  req.Email,
	}
	normalizeStudent(student)
	if err := validateStudent(student); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(initialPassword(student))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash initial password")
		return nil, err
	}
	student.Password = hash

	err = s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		exists, err := s.studentRepo.RollExists(ctx, conn, student.RollNo)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.ErrRollNoExists
		}
		taken, err := s.studentRepo.EmailExists(ctx, conn, student.Email, "")
		if err != nil {
			return err
		}
		if taken {
			return apperrors.ErrEmailExists
		}
		return s.studentRepo.Insert(ctx, conn, student)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("rollNo", student.RollNo).Msg("Student created")
	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	return student, nil
}

// Update rewrites a student's profile. The password is left untouched.
func (s *studentServiceImpl) Update(ctx context.Context, roll string, req *dto.UpdateStudentRequest) (*models.Student, error) {
	student := &models.Student{
		RollNo: roll,
		Name:   req.Name,
		Branch: req.Branch,
		Batch:  req.Batch,
		DOB:    req.DOB,
		Email:  req.Email,
	}
	normalizeStudent(student)
	if err := validateStudent(student); err != nil {
		return nil, err
	}

	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		taken, err := s.studentRepo.EmailExists(ctx, conn, student.Email, student.RollNo)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.ErrEmailExists
		}
		if err := s.studentRepo.Update(ctx, conn, student.RollNo, student); err != nil {
			return err
		}
		student, err = s.studentRepo.GetByRoll(ctx, conn, student.RollNo)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("rollNo", student.RollNo).Msg("Student updated")
	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	return student, nil
}

// Delete removes a student unconditionally. Their problems stay.
func (s *studentServiceImpl) Delete(ctx context.Context, roll string) error {
	roll = NormalizeRoll(roll)
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		return s.studentRepo.Delete(ctx, conn, roll)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("rollNo", roll).Msg("Student deleted")
	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	return nil
}

// SetPassword replaces a student's password on an admin's behalf. The
// password_changed flag is cleared so the student is asked to pick their own.
func (s *studentServiceImpl) SetPassword(ctx context.Context, roll, newPassword string) error {
	if !validation.NewStringValidation(newPassword).WithMinLength(validation.PasswordMinLength).Validate() {
		return apperrors.NewValidationError(fmt.Sprintf("Password must be at least %d characters", validation.PasswordMinLength))
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		return err
	}

	roll = NormalizeRoll(roll)
	err = s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		return s.studentRepo.SetPassword(ctx, conn, roll, hash, false)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("rollNo", roll).Msg("Student password set by admin")
	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/auth"
	"github.com/yigit/problemportal/internal/pkg/email"
	"github.com/yigit/problemportal/internal/pkg/otp"
	"github.com/yigit/problemportal/internal/pkg/validation"
)

// ErrNoMatchingStudent is returned by the forgot-password flow when the roll
// number and date of birth do not identify a student.
var ErrNoMatchingStudent = apperrors.NewResourceNotFoundError("No student found with that roll number and date of birth")

// LoginResult is a freshly issued session
type LoginResult struct {
	Token   string
	Session dto.SessionResponse
}

// AuthService handles authentication operations
type AuthService struct {
	db           *db.DB
	studentRepo  *repositories.StudentRepository
	adminRepo    *repositories.AdminRepository
	sessions     *auth.SessionService
	otpManager   *otp.Manager
	emailService email.EmailService
	mirror       MirrorService
	logger       zerolog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	database *db.DB,
	studentRepo *repositories.StudentRepository,
	adminRepo *repositories.AdminRepository,
	sessions *auth.SessionService,
	otpManager *otp.Manager,
	emailService email.EmailService,
	mirror MirrorService,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		db:           database,
		studentRepo:  studentRepo,
		adminRepo:    adminRepo,
		sessions:     sessions,
		otpManager:   otpManager,
		emailService: emailService,
		mirror:       mirror,
		logger:       logger,
	}
}

// validateNewPassword checks a new password and its confirmation
func (s *AuthService) validateNewPassword(password, confirm string) error {
	if password != confirm {
		return apperrors.NewValidationError("Passwords do not match")
	}
	if !validation.NewStringValidation(password).WithMinLength(validation.PasswordMinLength).Validate() {
		return apperrors.NewValidationError(fmt.Sprintf("Password must be at least %d characters", validation.PasswordMinLength))
	}
	return nil
}

// LoginStudent verifies a student's credentials and issues a session.
// Legacy plaintext passwords are replaced by a hash on first login.
func (s *AuthService) LoginStudent(ctx context.Context, req *dto.StudentLoginRequest) (*LoginResult, error) {
	roll := NormalizeRoll(req.RollNo)

	var student *models.Student
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		student, err = s.studentRepo.GetByRoll(ctx, conn, roll)
		if errors.Is(err, apperrors.ErrStudentNotFound) {
			return apperrors.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}

		ok, needsRehash := auth.CheckPassword(student.Password, req.Password)
		if !ok {
			return apperrors.ErrInvalidCredentials
		}
		if needsRehash {
			return s.rehashStudent(ctx, conn, student, req.Password)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.logger.Warn().Str("rollNo", roll).Msg("Failed student login")
		}
		return nil, err
	}

	token, expiresAt, err := s.sessions.Issue(auth.RoleStudent, student.RollNo)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info().Str("rollNo", student.RollNo).Msg("Student logged in")
	return &LoginResult{
		Token:   token,
		Session: studentSession(student, &expiresAt),
	}, nil
}

func (s *AuthService) rehashStudent(ctx context.Context, conn *db.Conn, student *models.Student, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	s.logger.Info().Str("rollNo", student.RollNo).Msg("Upgrading plaintext password to hash")
	return s.studentRepo.SetPassword(ctx, conn, student.RollNo, hash, student.PasswordChanged)
}

// LoginAdmin verifies an admin's credentials and issues a session
func (s *AuthService) LoginAdmin(ctx context.Context, req *dto.AdminLoginRequest) (*LoginResult, error) {
	id := strings.TrimSpace(req.ID)

	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		admin, err := s.adminRepo.GetByID(ctx, conn, id)
		if errors.Is(err, apperrors.ErrAdminNotFound) {
			return apperrors.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}

		ok, needsRehash := auth.CheckPassword(admin.Password, req.Password)
		if !ok {
			return apperrors.ErrInvalidCredentials
		}
		if needsRehash {
			hash, err := auth.HashPassword(req.Password)
			if err != nil {
				return err
			}
			return s.adminRepo.SetPassword(ctx, conn, admin.ID, hash)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidCredentials) {
			s.logger.Warn().Str("adminID", id).Msg("Failed admin login")
		}
		return nil, err
	}

	token, expiresAt, err := s.sessions.Issue(auth.RoleAdmin, id)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	s.logger.Info().Str("adminID", id).Msg("Admin logged in")
	return &LoginResult{
		Token: token,
		Session: dto.SessionResponse{
			Role:      string(auth.RoleAdmin),
			Subject:   id,
			ExpiresAt: &expiresAt,
		},
	}, nil
}

// Session describes the identity behind a parsed session token
func (s *AuthService) Session(ctx context.Context, claims *auth.Claims) (*dto.SessionResponse, error) {
	var expiresAt *time.Time
	if claims.ExpiresAt != nil {
		expiresAt = &claims.ExpiresAt.Time
	}
	if claims.Role == auth.RoleAdmin {
		return &dto.SessionResponse{Role: string(auth.RoleAdmin), Subject: claims.Subject, ExpiresAt: expiresAt}, nil
	}

	var student *models.Student
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		student, err = s.studentRepo.GetByRoll(ctx, conn, claims.Subject)
		return err
	})
	if errors.Is(err, apperrors.ErrStudentNotFound) {
		return nil, apperrors.ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}

	resp := studentSession(student, expiresAt)
	return &resp, nil
}

func studentSession(student *models.Student, expiresAt *time.Time) dto.SessionResponse {
	changed := student.PasswordChanged
	return dto.SessionResponse{
		Role:            string(auth.RoleStudent),
		Subject:         student.RollNo,
		Name:            student.Name,
		PasswordChanged: &changed,
		ExpiresAt:       expiresAt,
	}
}

// ChangeStudentPassword replaces a student's password after checking the
// current one, and marks it as changed.
func (s *AuthService) ChangeStudentPassword(ctx context.Context, roll string, req *dto.ChangePasswordRequest) error {
	if err := s.validateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	err = s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		student, err := s.studentRepo.GetByRoll(ctx, conn, roll)
		if err != nil {
			return err
		}
		if ok, _ := auth.CheckPassword(student.Password, req.CurrentPassword); !ok {
			return apperrors.NewCustomError(apperrors.ErrInvalidCredentials, "Current password is incorrect")
		}
		return s.studentRepo.SetPassword(ctx, conn, roll, hash, true)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("rollNo", roll).Msg("Student password changed")
	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	return nil
}

// ChangeAdminPassword replaces an admin's password after checking the
// current one.
func (s *AuthService) ChangeAdminPassword(ctx context.Context, id string, req *dto.ChangePasswordRequest) error {
	if err := s.validateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	err = s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		admin, err := s.adminRepo.GetByID(ctx, conn, id)
		if err != nil {
			return err
		}
		if ok, _ := auth.CheckPassword(admin.Password, req.CurrentPassword); !ok {
			return apperrors.NewCustomError(apperrors.ErrInvalidCredentials, "Current password is incorrect")
		}
		return s.adminRepo.SetPassword(ctx, conn, id, hash)
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("adminID", id).Msg("Admin password changed")
	return nil
}

// ForgotPassword mails a one-time code to the student identified by roll
// number and date of birth.
func (s *AuthService) ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) (*dto.OTPSentResponse, error) {
	roll := NormalizeRoll(req.RollNo)

	var student *models.Student
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		student, err = s.studentRepo.GetByRoll(ctx, conn, roll)
		return err
	})
	if errors.Is(err, apperrors.ErrStudentNotFound) || (err == nil && !sameDOB(student.DOB, req.DOB)) {
		return nil, ErrNoMatchingStudent
	}
	if err != nil {
		return nil, err
	}
	if student.Email == "" {
		return nil, apperrors.NewValidationError("No email address on record for this student")
	}

	code, err := s.otpManager.Issue(ctx, roll)
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification code: %w", err)
	}
	if err := s.emailService.SendOTPEmail(student.Email, student.Name, code, s.otpManager.TTL()); err != nil {
		s.logger.Error().Err(err).Str("rollNo", roll).Msg("Failed to send OTP email")
		return nil, fmt.Errorf("failed to send verification code: %w", err)
	}

	s.logger.Info().Str("rollNo", roll).Msg("Password reset code issued")
	return &dto.OTPSentResponse{ExpiresInSeconds: int(s.otpManager.TTL().Seconds())}, nil
}

// VerifyOTP checks the mailed code and unlocks a password reset
func (s *AuthService) VerifyOTP(ctx context.Context, req *dto.VerifyOTPRequest) error {
	roll := NormalizeRoll(req.RollNo)
	if err := s.otpManager.Verify(ctx, roll, strings.TrimSpace(req.OTP)); err != nil {
		s.logger.Warn().Err(err).Str("rollNo", roll).Msg("OTP verification failed")
		return err
	}
	return nil
}

// ResetPassword sets a new password once the reset has been verified
func (s *AuthService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	roll := NormalizeRoll(req.RollNo)
	if err := s.validateNewPassword(req.NewPassword, req.ConfirmPassword); err != nil {
		return err
	}

	verified, err := s.otpManager.IsVerified(ctx, roll)
	if err != nil {
		return err
	}
	if !verified {
		return apperrors.ErrResetNotVerified
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	err = s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		return s.studentRepo.SetPassword(ctx, conn, roll, hash, true)
	})
	if err != nil {
		return err
	}
	if err := s.otpManager.ConsumeVerified(ctx, roll); err != nil {
		s.logger.Warn().Err(err).Str("rollNo", roll).Msg("Failed to clear reset verification")
	}

	s.logger.Info().Str("rollNo", roll).Msg("Password reset completed")
	logRefresh(ctx, s.logger, "students", s.mirror.RefreshStudents)
	return nil
}

// sameDOB compares dates of birth as entered. Deployments stored either
// ISO dates or DDMMYYYY, so a digits-only match is accepted too.
func sameDOB(stored, given string) bool {
	stored, given = strings.TrimSpace(stored), strings.TrimSpace(given)
	if stored == "" {
		return false
	}
	if stored == given {
		return true
	}
	digits := func(s string) string {
		return strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) {
				return r
			}
			return -1
		}, s)
	}
	return digits(stored) != "" && digits(stored) == digits(given)
}

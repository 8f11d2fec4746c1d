package services

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/app/auth"
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/app/repositories"
	"github.com/yigit/problemportal/internal/db"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/filestorage"
	"github.com/yigit/problemportal/internal/pkg/validation"
)

// AdminAuthorName is the attribution used when an admin submits a problem
// without naming an author.
const AdminAuthorName = "Admin"

// Uploads maps an attachment slot to the file submitted for it. Slots
// without a file keep whatever path they had.
type Uploads map[filestorage.Slot]*multipart.FileHeader

// ProblemService defines the problem lifecycle operations
type ProblemService interface {
	Create(ctx context.Context, fields models.ProblemFields, author models.Author, uploads Uploads) (*dto.ProblemSubmitResponse, error)
	CreateByAdmin(ctx context.Context, adminID string, author models.Author, fields models.ProblemFields, uploads Uploads) (*dto.ProblemSubmitResponse, error)
	Approve(ctx context.Context, id int64) error
	Reject(ctx context.Context, id int64, reason string) error
	EditByStudent(ctx context.Context, id int64, roll string, fields models.ProblemFields, uploads Uploads) (*dto.ProblemSubmitResponse, error)
	EditByAdmin(ctx context.Context, id int64, fields models.ProblemFields) (*models.Problem, error)
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*models.Problem, error)
	GetVisible(ctx context.Context, id int64, identity auth.Identity) (*models.Problem, error)
	ListApproved(ctx context.Context) ([]*models.Problem, error)
	ListForStudent(ctx context.Context, roll string) ([]*models.Problem, error)
	ListOthersApproved(ctx context.Context, excludingRoll string) ([]*models.Problem, error)
	ListAll(ctx context.Context) ([]*models.Problem, error)
}

// problemServiceImpl implements ProblemService
type problemServiceImpl struct {
	db          *db.DB
	problemRepo *repositories.ProblemRepository
	storage     filestorage.FileStorage
	mirror      MirrorService
	logger      zerolog.Logger
	now         func() time.Time
}

// NewProblemService creates a new ProblemService
func NewProblemService(
	database *db.DB,
	problemRepo *repositories.ProblemRepository,
	storage filestorage.FileStorage,
	mirror MirrorService,
	lgr zerolog.Logger,
) ProblemService {
	return &problemServiceImpl{
		db:          database,
		problemRepo: problemRepo,
		storage:     storage,
		mirror:      mirror,
		logger:      lgr,
		now:         time.Now,
	}
}

// Create stores a student submission as pending. Files that fail to save are
// reported per slot; the submission itself still succeeds.
func (s *problemServiceImpl) Create(ctx context.Context, fields models.ProblemFields, author models.Author, uploads Uploads) (*dto.ProblemSubmitResponse, error) {
	return s.insert(ctx, fields, author, author.Roll, models.StatusPending, uploads)
}

// CreateByAdmin stores an admin submission, already approved. The creator
// snapshot is optional: the name defaults to "Admin" and the roll to the
// acting admin's id.
func (s *problemServiceImpl) CreateByAdmin(ctx context.Context, adminID string, author models.Author, fields models.ProblemFields, uploads Uploads) (*dto.ProblemSubmitResponse, error) {
	author = models.Author{
		Name:   strings.TrimSpace(author.Name),
		Roll:   NormalizeRoll(author.Roll),
		Branch: strings.TrimSpace(author.Branch),
		Batch:  strings.TrimSpace(author.Batch),
	}
	if author.Name == "" {
		author.Name = AdminAuthorName
	}
	if author.Roll == "" {
		author.Roll = adminID
	}
	return s.insert(ctx, fields, author, adminID, models.StatusApproved, uploads)
}

func (s *problemServiceImpl) insert(
	ctx context.Context,
	fields models.ProblemFields,
	author models.Author,
	studentID string,
	status models.ProblemStatus,
	uploads Uploads,
) (*dto.ProblemSubmitResponse, error) {
	fields = fields.Trimmed()
	if err := validateProblemFields(fields); err != nil {
		return nil, err
	}

	p := &models.Problem{
		Title:           fields.Title,
		Description:     fields.Description,
		Skill:           fields.Skill,
		Category:        fields.Category,
		Branch:          fields.Branch,
		ExternalLink:    optional(fields.ExternalLink),
		CreatedByName:   author.Name,
		CreatedByRoll:   author.Roll,
		CreatedByBranch: author.Branch,
		CreatedByBatch:  author.Batch,
		StudentID:       studentID,
		Status:          status,
		CreatedAt:       s.now().UTC().Format(time.RFC3339),
	}

	var result uploadResult
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		id, err := s.problemRepo.Insert(ctx, conn, p)
		if err != nil {
			return err
		}
		p.ID = id

		result = s.saveUploads(p, uploads)
		return s.problemRepo.Update(ctx, conn, id, result.changes)
	})
	if err != nil {
		s.discard(result.saved)
		return nil, err
	}

	s.logger.Info().Int64("problemID", p.ID).Str("status", string(p.Status)).Str("author", author.Roll).Msg("Problem created")
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)

	return &dto.ProblemSubmitResponse{Problem: p, UploadIssues: result.issues}, nil
}

// Approve marks a problem approved. Approving twice is a no-op success.
func (s *problemServiceImpl) Approve(ctx context.Context, id int64) error {
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		return s.problemRepo.Update(ctx, conn, id, map[string]interface{}{
			"status": string(models.StatusApproved),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int64("problemID", id).Msg("Problem approved")
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)
	return nil
}

// Reject marks a problem rejected and stores the reason.
func (s *problemServiceImpl) Reject(ctx context.Context, id int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperrors.NewValidationError("Rejection reason is required")
	}

	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		return s.problemRepo.Update(ctx, conn, id, map[string]interface{}{
			"status":           string(models.StatusRejected),
			"rejection_reason": reason,
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int64("problemID", id).Msg("Problem rejected")
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)
	return nil
}

// EditByStudent lets the author resubmit their problem. Fields are
// overwritten, submitted files replace their slot, and the problem goes back
// to pending. A previous rejection reason is kept.
func (s *problemServiceImpl) EditByStudent(ctx context.Context, id int64, roll string, fields models.ProblemFields, uploads Uploads) (*dto.ProblemSubmitResponse, error) {
	fields = fields.Trimmed()
	if err := validateProblemFields(fields); err != nil {
		return nil, err
	}

	var (
		p          *models.Problem
		result     uploadResult
		superseded []string
	)
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		p, err = s.problemRepo.GetByID(ctx, conn, id)
		if errors.Is(err, apperrors.ErrProblemNotFound) {
			return auth.ErrNotOwner
		}
		if err != nil {
			return err
		}
		if err := auth.AuthorizeProblemEdit(p, roll); err != nil {
			s.logger.Warn().Int64("problemID", id).Str("roll", roll).Msg("Rejected edit by non-author")
			return err
		}

		old := p.Paths()
		result = s.saveUploads(p, uploads)
		superseded = unreferenced(old, p.Paths())

		changes := repositories.FieldChanges(fields)
		for col, v := range result.changes {
			changes[col] = v
		}
		changes["status"] = string(models.StatusPending)
		return s.problemRepo.Update(ctx, conn, id, changes)
	})
	if err != nil {
		s.discard(result.saved)
		return nil, err
	}

	applyFields(p, fields)
	p.Status = models.StatusPending
	s.discard(superseded)

	s.logger.Info().Int64("problemID", id).Str("roll", roll).Msg("Problem resubmitted by author")
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)

	return &dto.ProblemSubmitResponse{Problem: p, UploadIssues: result.issues}, nil
}

// EditByAdmin overwrites the text fields only. Status and files are left as
// they are.
func (s *problemServiceImpl) EditByAdmin(ctx context.Context, id int64, fields models.ProblemFields) (*models.Problem, error) {
	fields = fields.Trimmed()
	if err := validateProblemFields(fields); err != nil {
		return nil, err
	}

	var p *models.Problem
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		if err := s.problemRepo.Update(ctx, conn, id, repositories.FieldChanges(fields)); err != nil {
			return err
		}
		var err error
		p, err = s.problemRepo.GetByID(ctx, conn, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("problemID", id).Msg("Problem edited by admin")
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)
	return p, nil
}

// Delete removes a problem and then its files. File removal failures are
// logged; the row delete stands.
func (s *problemServiceImpl) Delete(ctx context.Context, id int64) error {
	var p *models.Problem
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		p, err = s.problemRepo.GetByID(ctx, conn, id)
		if err != nil {
			return err
		}
		return s.problemRepo.Delete(ctx, conn, id)
	})
	if err != nil {
		return err
	}

	for _, path := range p.Paths() {
		if path == nil {
			continue
		}
		if err := s.storage.DeleteFile(*path); err != nil {
			s.logger.Warn().Err(err).Int64("problemID", id).Str("path", *path).Msg("Could not delete problem file")
		}
	}
	if err := s.storage.RemoveProblemDir(id); err != nil {
		s.logger.Warn().Err(err).Int64("problemID", id).Msg("Could not remove problem directory")
	}

	s.logger.Info().Int64("problemID", id).Msg("Problem deleted")
	logRefresh(ctx, s.logger, "problems", s.mirror.RefreshProblems)
	return nil
}

// GetByID retrieves a problem by ID
func (s *problemServiceImpl) GetByID(ctx context.Context, id int64) (*models.Problem, error) {
	var p *models.Problem
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		p, err = s.problemRepo.GetByID(ctx, conn, id)
		return err
	})
	return p, err
}

// GetVisible retrieves a problem the identity is allowed to read. Hidden
// problems answer as not found.
func (s *problemServiceImpl) GetVisible(ctx context.Context, id int64, identity auth.Identity) (*models.Problem, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanViewProblem(p, identity) {
		return nil, apperrors.ErrProblemNotFound
	}
	return p, nil
}

// ListApproved returns approved problems, newest first
func (s *problemServiceImpl) ListApproved(ctx context.Context) ([]*models.Problem, error) {
	return s.list(ctx, repositories.ProblemFilter{Status: models.StatusApproved})
}

// ListForStudent returns every problem roll authored, newest first
func (s *problemServiceImpl) ListForStudent(ctx context.Context, roll string) ([]*models.Problem, error) {
	if roll == "" {
		return []*models.Problem{}, nil
	}
	return s.list(ctx, repositories.ProblemFilter{AuthorRoll: roll})
}

// ListOthersApproved returns approved problems not authored by excludingRoll
func (s *problemServiceImpl) ListOthersApproved(ctx context.Context, excludingRoll string) ([]*models.Problem, error) {
	return s.list(ctx, repositories.ProblemFilter{Status: models.StatusApproved, ExcludeRoll: excludingRoll})
}

// ListAll returns every problem, newest first
func (s *problemServiceImpl) ListAll(ctx context.Context) ([]*models.Problem, error) {
	return s.list(ctx, repositories.ProblemFilter{})
}

func (s *problemServiceImpl) list(ctx context.Context, filter repositories.ProblemFilter) ([]*models.Problem, error) {
	var problems []*models.Problem
	err := s.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		var err error
		problems, err = s.problemRepo.List(ctx, conn, filter)
		return err
	})
	return problems, err
}

// uploadResult collects what saveUploads did.
type uploadResult struct {
	changes map[string]interface{}
	saved   []string
	issues  []dto.UploadIssueResponse
}

// saveUploads stores each submitted file under the problem's directory and
// records the new paths on p. Failures become per-slot issues.
func (s *problemServiceImpl) saveUploads(p *models.Problem, uploads Uploads) uploadResult {
	result := uploadResult{changes: map[string]interface{}{}}
	for _, slot := range filestorage.Slots {
		header := uploads[slot]
		if header == nil {
			continue
		}

		rel, err := s.storage.SaveProblemFile(header, p.ID, slot)
		if err != nil {
			s.logger.Warn().Err(err).Int64("problemID", p.ID).Str("slot", string(slot)).Msg("Upload not stored")
			result.issues = append(result.issues, dto.UploadIssueResponse{
				Slot:    string(slot),
				Message: apperrors.Message(err, "file could not be saved"),
			})
			continue
		}

		setPath(p, slot, rel)
		result.changes[string(slot)+"_path"] = rel
		result.saved = append(result.saved, rel)
	}
	return result
}

// unreferenced returns the paths in before that no slot in after still
// points to. Slots may share a path in rows written before uploads got
// unique names.
func unreferenced(before, after [3]*string) []string {
	live := make(map[string]bool, len(after))
	for _, path := range after {
		if path != nil {
			live[*path] = true
		}
	}

	var out []string
	for _, path := range before {
		if path != nil && !live[*path] {
			live[*path] = true
			out = append(out, *path)
		}
	}
	return out
}

// discard removes files best-effort.
func (s *problemServiceImpl) discard(paths []string) {
	for _, path := range paths {
		if err := s.storage.DeleteFile(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Could not remove file")
		}
	}
}

func validateProblemFields(f models.ProblemFields) error {
	missing := validation.MissingFields(
		validation.Field{Name: "title", Value: f.Title},
		validation.Field{Name: "description", Value: f.Description},
		validation.Field{Name: "skill", Value: f.Skill},
		validation.Field{Name: "category", Value: f.Category},
		validation.Field{Name: "branch", Value: f.Branch},
	)
	if len(missing) > 0 {
		return apperrors.NewValidationError("Missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

func applyFields(p *models.Problem, f models.ProblemFields) {
	p.Title = f.Title
	p.Description = f.Description
	p.Skill = f.Skill
	p.Category = f.Category
	p.Branch = f.Branch
	p.ExternalLink = optional(f.ExternalLink)
}

func setPath(p *models.Problem, slot filestorage.Slot, rel string) {
	switch slot {
	case filestorage.SlotSynopsis:
		p.SynopsisPath = &rel
	case filestorage.SlotCertificate:
		p.CertificatePath = &rel
	case filestorage.SlotReport:
		p.ReportPath = &rel
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

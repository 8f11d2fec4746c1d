package dto

import (
	"mime/multipart"

	"github.com/yigit/problemportal/internal/app/models"
)

// ProblemForm is the multipart body for creating or editing a problem.
// Required text fields are checked by the service after trimming.
type ProblemForm struct {
	Title        string                `form:"title"`
	Description  string                `form:"description"`
	Skill        string                `form:"skill"`
	Category     string                `form:"category"`
	Branch       string                `form:"branch"`
	ExternalLink string                `form:"external_link" binding:"omitempty,url"`
	AuthorName   string                `form:"created_by_name"`
	AuthorRoll   string                `form:"created_by_roll"`
	AuthorBranch string                `form:"created_by_branch"`
	AuthorBatch  string                `form:"created_by_batch"`
	Synopsis     *multipart.FileHeader `form:"synopsis"`
	Certificate  *multipart.FileHeader `form:"certificate"`
	Report       *multipart.FileHeader `form:"report"`
}

// Fields returns the editable text fields of the form.
func (f *ProblemForm) Fields() models.ProblemFields {
	return models.ProblemFields{
		Title:        f.Title,
		Description:  f.Description,
		Skill:        f.Skill,
		Category:     f.Category,
		Branch:       f.Branch,
		ExternalLink: f.ExternalLink,
	}
}

// Author returns the creator snapshot an admin may attach to a submission.
func (f *ProblemForm) Author() models.Author {
	return models.Author{
		Name:   f.AuthorName,
		Roll:   f.AuthorRoll,
		Branch: f.AuthorBranch,
		Batch:  f.AuthorBatch,
	}
}

// ProblemUpdateRequest is the JSON body for an admin edit
type ProblemUpdateRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description" binding:"required"`
	Skill        string `json:"skill" binding:"required"`
	Category     string `json:"category" binding:"required"`
	Branch       string `json:"branch" binding:"required"`
	ExternalLink string `json:"external_link" binding:"omitempty,url"`
}

// Fields returns the request as editable fields.
func (r *ProblemUpdateRequest) Fields() models.ProblemFields {
	return models.ProblemFields{
		Title:        r.Title,
		Description:  r.Description,
		Skill:        r.Skill,
		Category:     r.Category,
		Branch:       r.Branch,
		ExternalLink: r.ExternalLink,
	}
}

// RejectRequest carries the reason for a rejection
type RejectRequest struct {
	Reason string `json:"reason"`
}

// UploadIssueResponse reports a file that was not stored
type UploadIssueResponse struct {
	Slot    string `json:"slot" example:"report"`
	Message string `json:"message" example:"file type not allowed"`
}

// ProblemSubmitResponse is returned after a create or edit
type ProblemSubmitResponse struct {
	Problem      *models.Problem       `json:"problem"`
	UploadIssues []UploadIssueResponse `json:"uploadIssues,omitempty"`
}

// StudentProblemsResponse is the student dashboard listing
type StudentProblemsResponse struct {
	Mine   []*models.Problem `json:"mine"`
	Others []*models.Problem `json:"others"`
}

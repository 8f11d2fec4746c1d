// Package models holds the persisted record types.
package models

import "strings"

// ProblemStatus is the review state of a problem.
type ProblemStatus string

const (
	StatusPending  ProblemStatus = "pending"
	StatusApproved ProblemStatus = "approved"
	StatusRejected ProblemStatus = "rejected"
)

// ParseStatus normalizes a stored status. Older rows used capitalized
// spellings such as "Pending".
func ParseStatus(s string) ProblemStatus {
	st := ProblemStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == "" {
		return StatusPending
	}
	return st
}

// Problem defines the problem model based on the 'problems' table
type Problem struct {
	ID           int64   `json:"id" db:"id"`
	Title        string  `json:"title" db:"title"`
	Description  string  `json:"description" db:"description"`
	Skill        string  `json:"skill" db:"skill"`
	Category     string  `json:"category" db:"category"`
	Branch       string  `json:"branch" db:"branch"`
	ExternalLink *string `json:"externalLink,omitempty" db:"external_link"`

	// Author snapshot taken at submission time
	CreatedByName   string `json:"createdByName" db:"created_by_name"`
	CreatedByRoll   string `json:"createdByRoll" db:"created_by_roll"`
	CreatedByBranch string `json:"createdByBranch" db:"created_by_branch"`
	CreatedByBatch  string `json:"createdByBatch" db:"created_by_batch"`
	StudentID       string `json:"studentId" db:"student_id"`

	SynopsisPath    *string `json:"synopsisPath,omitempty" db:"synopsis_path"`
	CertificatePath *string `json:"certificatePath,omitempty" db:"certificate_path"`
	ReportPath      *string `json:"reportPath,omitempty" db:"report_path"`

	Status          ProblemStatus `json:"status" db:"status"`
	RejectionReason *string       `json:"rejectionReason,omitempty" db:"rejection_reason"`
	// CreatedAt is ISO-8601 UTC text as stored.
	CreatedAt string `json:"createdAt" db:"created_at"`
}

// OwnedBy reports whether roll authored the problem.
func (p *Problem) OwnedBy(roll string) bool {
	if roll == "" {
		return false
	}
	return strings.EqualFold(p.CreatedByRoll, roll) || strings.EqualFold(p.StudentID, roll)
}

// Paths returns the three upload paths in slot order (synopsis,
// certificate, report).
func (p *Problem) Paths() [3]*string {
	return [3]*string{p.SynopsisPath, p.CertificatePath, p.ReportPath}
}

// ProblemFields are the editable text fields of a problem.
type ProblemFields struct {
	Title        string
	Description  string
	Skill        string
	Category     string
	Branch       string
	ExternalLink string
}

// Trimmed returns a copy with surrounding whitespace removed.
func (f ProblemFields) Trimmed() ProblemFields {
	return ProblemFields{
		Title:        strings.TrimSpace(f.Title),
		Description:  strings.TrimSpace(f.Description),
		Skill:        strings.TrimSpace(f.Skill),
		Category:     strings.TrimSpace(f.Category),
		Branch:       strings.TrimSpace(f.Branch),
		ExternalLink: strings.TrimSpace(f.ExternalLink),
	}
}

// Author is the denormalized attribution copied onto a problem.
type Author struct {
	Name   string
	Roll   string
	Branch string
	Batch  string
}

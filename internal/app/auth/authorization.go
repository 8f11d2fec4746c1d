package auth

import (
	"github.com/yigit/problemportal/internal/app/models"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	pkgauth "github.com/yigit/problemportal/internal/pkg/auth"
)

// ErrNotOwner is returned when a student edits a problem authored by someone
// else. It answers like a missing problem so existence is not confirmed.
var ErrNotOwner = apperrors.NewForbiddenError("problem not found")

// Identity is the authenticated caller an operation runs for.
type Identity struct {
	Role    pkgauth.Role
	Subject string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == pkgauth.RoleAdmin }

// AuthorizeProblemEdit allows a student edit only on their own problem.
func AuthorizeProblemEdit(p *models.Problem, roll string) error {
	if p == nil || roll == "" || !p.OwnedBy(roll) {
		return ErrNotOwner
	}
	return nil
}

// CanViewProblem reports whether id may read p: admins see everything,
// students see approved problems and their own.
func CanViewProblem(p *models.Problem, id Identity) bool {
	if p == nil {
		return false
	}
	if id.IsAdmin() {
		return true
	}
	return p.Status == models.StatusApproved || (id.Role == pkgauth.RoleStudent && p.OwnedBy(id.Subject))
}

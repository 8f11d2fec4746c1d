package repositories

import (
	"github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// psql builds statements with `?` placeholders; the db adapter rebinds them
// for the active backend.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// Repositories holds all the repository instances
type Repositories struct {
	ProblemRepository *ProblemRepository
	StudentRepository *StudentRepository
	AdminRepository   *AdminRepository
}

// NewRepositories initializes all repositories
func NewRepositories(lgr zerolog.Logger) *Repositories {
	return &Repositories{
		ProblemRepository: NewProblemRepository(lgr),
		StudentRepository: NewStudentRepository(lgr),
		AdminRepository:   NewAdminRepository(lgr),
	}
}

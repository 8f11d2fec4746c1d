// Command importdata loads students.csv and problems.csv into the database.
// Rows whose roll number or title already exist are left untouched.
package main

import (
	"context"
	"flag"
	"os"

	appRepos "github.com/yigit/problemportal/internal/app/repositories"
	appServices "github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/bootstrap"
	"github.com/yigit/problemportal/internal/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger()
	if err != nil {
		return 1
	}

	studentsPath := flag.String("students", cfg.Mirror.StudentsCSV, "students CSV to import")
	problemsPath := flag.String("problems", cfg.Mirror.ProblemsCSV, "problems CSV to import")
	flag.Parse()

	ctx := context.Background()
	database, err := bootstrap.SetupDatabase(ctx, cfg, lgr)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to setup database")
		return 1
	}
	defer database.Close()

	repos := appRepos.NewRepositories(logger.Component("repositories"))
	mirror := bootstrap.NewMirrorService(cfg, database, repos)
	importer := appServices.NewImportService(database, repos.StudentRepository, repos.ProblemRepository, mirror, logger.Component("import"))

	result, err := importer.Import(ctx, *studentsPath, *problemsPath)
	if err != nil {
		lgr.Error().Err(err).Msg("Import failed")
		return 1
	}

	lgr.Info().
		Int("studentsInserted", result.StudentsInserted).
		Int("studentsSkipped", result.StudentsSkipped).
		Int("problemsInserted", result.ProblemsInserted).
		Int("problemsSkipped", result.ProblemsSkipped).
		Msg("Import finished")
	return 0
}

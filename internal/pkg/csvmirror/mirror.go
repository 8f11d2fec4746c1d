// Package csvmirror keeps flat CSV projections of the problems and students
// tables on disk. The files are read-only artifacts for external consumers
// and are rewritten wholesale on every refresh.
package csvmirror

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ProblemColumns is the problems mirror header, in column order.
var ProblemColumns = []string{
	"id", "title", "description", "skill", "category", "branch", "external_link",
	"created_by_name", "created_by_roll", "created_by_branch", "created_by_batch",
	"synopsis_path", "certificate_path", "report_path", "status", "created_at",
	"rejection_reason", "student_id",
}

// StudentColumns is the students mirror header. Passwords are never exported.
var StudentColumns = []string{"roll_no", "name", "branch", "batch", "dob", "email"}

// Exporter writes the two mirror files. Writes are serialized and each file
// is replaced atomically, so readers see either the old or the new content.
type Exporter struct {
	problemsPath string
	studentsPath string
	mu           sync.Mutex
	logger       zerolog.Logger
}

// NewExporter creates an Exporter for the given file paths.
func NewExporter(problemsPath, studentsPath string, lgr zerolog.Logger) *Exporter {
	return &Exporter{
		problemsPath: problemsPath,
		studentsPath: studentsPath,
		logger:       lgr,
	}
}

// ProblemsPath returns the problems mirror location.
func (e *Exporter) ProblemsPath() string { return e.problemsPath }

// StudentsPath returns the students mirror location.
func (e *Exporter) StudentsPath() string { return e.studentsPath }

// WriteProblems replaces the problems mirror with rows.
func (e *Exporter) WriteProblems(rows [][]string) error {
	return e.replace(e.problemsPath, ProblemColumns, rows)
}

// WriteStudents replaces the students mirror with rows.
func (e *Exporter) WriteStudents(rows [][]string) error {
	return e.replace(e.studentsPath, StudentColumns, rows)
}

func (e *Exporter) replace(path string, header []string, rows [][]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary mirror file: %w", err)
	}
	tmpName := tmp.Name()

	if err := Write(tmp, header, rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary mirror file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace mirror %s: %w", path, err)
	}

	e.logger.Debug().Str("path", path).Int("rows", len(rows)).Msg("Mirror refreshed")
	return nil
}

// Write encodes header and rows as CSV to w. Short rows are padded and long
// rows truncated to the header width.
func Write(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write mirror header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = row[i]
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write mirror row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush mirror: %w", err)
	}
	return nil
}

// Record is one CSV row keyed by its header names.
type Record map[string]string

// Get returns the trimmed value for column, or "" when absent.
func (r Record) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// ErrNoMirror is returned by ReadFile when the file does not exist.
var ErrNoMirror = errors.New("mirror file not found")

// ReadFile reads a mirror-format file from disk.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoMirror, path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes CSV from r, using the first row as header. Header names are
// lower-cased and trimmed; a UTF-8 byte order mark is ignored. Rows may be
// shorter or longer than the header.
func Read(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("failed to read row %d: %w", len(records)+2, err)
		}

		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

package filestorage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// ErrPathEscapes is returned for relative paths that leave the storage root.
var ErrPathEscapes = errors.New("path escapes storage root")

// LocalStorage saves problem attachments on the local filesystem.
type LocalStorage struct {
	basePath string
	logger   zerolog.Logger
}

var _ FileStorage = (*LocalStorage)(nil)

// NewLocalStorage creates basePath if needed.
func NewLocalStorage(basePath string, lgr zerolog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		lgr.Error().Err(err).Str("path", basePath).Msg("Failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	lgr.Info().Str("path", basePath).Msg("Local storage directory ensured")

	return &LocalStorage{basePath: basePath, logger: lgr}, nil
}

// BasePath returns the storage root.
func (ls *LocalStorage) BasePath() string { return ls.basePath }

// ProblemDir is the subdirectory that holds a problem's files.
func ProblemDir(problemID int64) string {
	return "problem_" + strconv.FormatInt(problemID, 10)
}

// SaveProblemFile validates the extension against the slot's allow-list and
// writes the file to problem_<id>/<sanitized-name>. An existing file is never
// overwritten; a taken name gets a numeric suffix.
func (ls *LocalStorage) SaveProblemFile(fileHeader *multipart.FileHeader, problemID int64, slot Slot) (string, error) {
	if fileHeader == nil {
		return "", nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		ls.logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("Failed to open uploaded file")
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	return ls.Save(file, fileHeader.Filename, problemID, slot)
}

// Save writes r as a problem attachment. See SaveProblemFile.
func (ls *LocalStorage) Save(r io.Reader, originalName string, problemID int64, slot Slot) (string, error) {
	if !slot.Valid() {
		return "", fmt.Errorf("unknown upload slot %q", slot)
	}

	name := SanitizeFilename(originalName)
	if !IsAllowed(name, slot.Kind()) {
		ls.logger.Warn().Str("filename", originalName).Str("slot", string(slot)).Msg("Rejected upload with disallowed extension")
		return "", disallowed(slot, originalName)
	}

	dir, err := ls.Resolve(ProblemDir(problemID))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		ls.logger.Error().Err(err).Str("path", dir).Msg("Failed to create problem directory")
		return "", fmt.Errorf("failed to create problem directory: %w", err)
	}

	dst, name, err := createUnique(dir, name)
	if err != nil {
		ls.logger.Error().Err(err).Str("dir", dir).Str("filename", name).Msg("Failed to create destination file")
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	relPath := path.Join(ProblemDir(problemID), name)
	dstPath := filepath.Join(dir, name)

	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		_ = os.Remove(dstPath)
		ls.logger.Error().Err(err).Str("path", dstPath).Msg("Failed to copy uploaded file content")
		return "", fmt.Errorf("failed to save file content: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("failed to save file content: %w", err)
	}

	ls.logger.Info().Str("filename", originalName).Str("path", relPath).Str("slot", string(slot)).Msg("File saved successfully")
	return relPath, nil
}

// maxNameAttempts bounds the collision suffixes tried by createUnique.
const maxNameAttempts = 1000

// createUnique creates name inside dir without touching an existing file. On
// a collision it tries <stem>_1<ext>, <stem>_2<ext> and so on, and returns the
// name it actually used.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := extOf(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; n <= maxNameAttempts; n++ {
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, candidate, err
		}
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
	return nil, name, fmt.Errorf("no free name for %q after %d attempts", name, maxNameAttempts)
}

// DeleteFile removes a stored file. Missing files count as deleted.
func (ls *LocalStorage) DeleteFile(relPath string) error {
	if relPath == "" {
		return nil
	}

	physicalPath, err := ls.Resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(physicalPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ls.logger.Debug().Str("path", physicalPath).Msg("File to delete does not exist")
			return nil
		}
		ls.logger.Error().Err(err).Str("path", physicalPath).Msg("Failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}

	ls.logger.Info().Str("path", physicalPath).Msg("File deleted successfully")
	return nil
}

// RemoveProblemDir removes problem_<id>/ when it is empty.
func (ls *LocalStorage) RemoveProblemDir(problemID int64) error {
	dir := filepath.Join(ls.basePath, ProblemDir(problemID))
	if err := os.Remove(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove problem directory: %w", err)
	}
	return nil
}

// Resolve maps a storage-relative slash path to a filesystem path.
func (ls *LocalStorage) Resolve(relPath string) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(relPath, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, relPath)
	}
	return filepath.Join(ls.basePath, rel), nil
}

// SanitizeFilename reduces an uploaded name to a safe ASCII base name. Any
// client-supplied directory is dropped, whitespace becomes underscores, other
// unsafe characters are removed and leading or trailing dots and underscores
// are trimmed. A stem that sanitizes to nothing is transliterated, or else
// replaced by a random name; the extension is kept either way.
func SanitizeFilename(name string) string {
	// strip any client-supplied directory
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	ext := extOf(name)
	stem := strings.TrimSuffix(name, ext)
	if cleanExt := asciiSafe(ext); cleanExt != "" {
		ext = "." + cleanExt
	} else {
		ext = ""
	}

	cleanStem := asciiSafe(stem)
	if cleanStem == "" {
		cleanStem = slug.Make(stem)
	}
	if cleanStem == "" {
		cleanStem = uuid.New().String()
	}
	return cleanStem + ext
}

func asciiSafe(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	joined := strings.Join(strings.Fields(b.String()), "_")
	return strings.Trim(unsafeFilenameChars.ReplaceAllString(joined, ""), "._")
}

func extOf(name string) string {
	return filepath.Ext(name)
}

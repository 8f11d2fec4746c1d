package filestorage

import (
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/yigit/problemportal/internal/pkg/apperrors"
)

// Kind groups upload slots by the file types they accept.
type Kind string

const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
)

// AllowedKinds is the extension allow-list per kind.
var AllowedKinds = map[Kind]map[string]struct{}{
	KindDocument: {".pdf": {}},
	KindImage:    {".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {}},
}

// Slot names one of the three attachments a problem can carry.
type Slot string

const (
	SlotSynopsis    Slot = "synopsis"
	SlotCertificate Slot = "certificate"
	SlotReport      Slot = "report"
)

// Slots lists every slot in storage order.
var Slots = []Slot{SlotSynopsis, SlotCertificate, SlotReport}

// Kind returns the allow-list a slot is checked against.
func (s Slot) Kind() Kind {
	if s == SlotCertificate {
		return KindImage
	}
	return KindDocument
}

// Valid reports whether s is a known slot.
func (s Slot) Valid() bool {
	switch s {
	case SlotSynopsis, SlotCertificate, SlotReport:
		return true
	}
	return false
}

// ErrDisallowedExtension is returned when a file's extension is outside its
// slot's allow-list. It is a validation failure, never fatal to a submission.
var ErrDisallowedExtension = apperrors.NewValidationError("file type not allowed")

// IsAllowed reports whether filename's extension is accepted for kind.
func IsAllowed(filename string, kind Kind) bool {
	ext := strings.ToLower(extOf(filename))
	_, ok := AllowedKinds[kind][ext]
	return ok
}

func disallowed(slot Slot, filename string) error {
	return fmt.Errorf("%w: %q is not accepted for %s", ErrDisallowedExtension, filename, slot)
}

// FileStorage is the upload manager used by the problem lifecycle.
type FileStorage interface {
	// SaveProblemFile stores fileHeader under problem_<problemID>/ and
	// returns the storage-relative path.
	SaveProblemFile(fileHeader *multipart.FileHeader, problemID int64, slot Slot) (string, error)

	// DeleteFile removes a stored file; a missing file is not an error.
	DeleteFile(relPath string) error

	// RemoveProblemDir removes problem_<problemID>/ if it is empty.
	RemoveProblemDir(problemID int64) error

	// Resolve maps a storage-relative path to a filesystem path, refusing
	// anything that escapes the storage root.
	Resolve(relPath string) (string, error)
}

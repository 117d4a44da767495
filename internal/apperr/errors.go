// Package apperr defines the error taxonomy shared across the core.
package apperr

import (
	"errors"
	"fmt"

	"github.com/specbook-dev/specbook/internal/models"
)

var (
	// ErrNotFound means the referenced path has no known document.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a save carried a stale expected version.
	ErrConflict = errors.New("version conflict")
	// ErrAlreadyExists means a create targeted an existing path.
	ErrAlreadyExists = errors.New("already exists")
	// ErrWriteUnavailable means repeated disk failures have left the
	// document read-only until a write succeeds again.
	ErrWriteUnavailable = errors.New("writes unavailable")
)

// ConflictError carries the authoritative state back to a caller whose
// expected version did not match, so it can reconcile instead of
// silently overwriting.
type ConflictError struct {
	Path            string
	ExpectedVersion int64
	CurrentVersion  int64
	CurrentContent  string
	CurrentStatus   models.Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, current %d",
		e.Path, e.ExpectedVersion, e.CurrentVersion)
}

// Is makes errors.Is(err, ErrConflict) match a *ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

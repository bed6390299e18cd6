package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrSessionNotFound struct {
	error
}

func NewErrSessionNotFound(id uuid.UUID) *ErrSessionNotFound {
	return &ErrSessionNotFound{fmt.Errorf("import session %s not found", id)}
}

// ErrSessionConflict is raised at creation time when the owner already has a
// live import. Nothing is persisted for the rejected attempt.
type ErrSessionConflict struct {
	error
}

func NewErrSessionConflict(username string) *ErrSessionConflict {
	return &ErrSessionConflict{fmt.Errorf("user %s already has an active import session", username)}
}

// ErrStaleCheckpoint tells the driver its slice no longer matches the
// committed checkpoint. The driver re-fetches progress and retries with the
// corrected slice; the stale slice is never applied.
type ErrStaleCheckpoint struct {
	error
	RowsProcessed int
}

func NewErrStaleCheckpoint(id uuid.UUID, expected, actual int) *ErrStaleCheckpoint {
	return &ErrStaleCheckpoint{
		error:         fmt.Errorf("import session %s checkpoint is at row %d, caller assumed %d", id, actual, expected),
		RowsProcessed: actual,
	}
}

type ErrSessionAccessForbidden struct {
	error
}

func NewErrSessionAccessForbidden(id uuid.UUID, username string) *ErrSessionAccessForbidden {
	return &ErrSessionAccessForbidden{fmt.Errorf("import session %s does not belong to user %s", id, username)}
}

type ErrInvalidTransition struct {
	error
}

func NewErrInvalidTransition(id uuid.UUID, from, to string) *ErrInvalidTransition {
	return &ErrInvalidTransition{fmt.Errorf("import session %s cannot go from %s to %s", id, from, to)}
}

type ErrInvalidMapping struct {
	error
}

func NewErrInvalidMapping(message string) *ErrInvalidMapping {
	return &ErrInvalidMapping{fmt.Errorf("invalid column mapping: %s", message)}
}

type ErrInvalidSlice struct {
	error
}

func NewErrInvalidSlice(id uuid.UUID, startRow int) *ErrInvalidSlice {
	return &ErrInvalidSlice{fmt.Errorf("import session %s received an empty slice at row %d", id, startRow)}
}

type ErrSessionFailed struct {
	error
}

func NewErrSessionFailed(id uuid.UUID, cause error) *ErrSessionFailed {
	return &ErrSessionFailed{fmt.Errorf("import session %s failed: %v", id, cause)}
}

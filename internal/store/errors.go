package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")
	// ErrStaleCheckpoint is returned when a compare-and-set checkpoint
	// update finds that the session moved past the caller's assumed
	// offset. The caller must re-read the session and retry with the
	// corrected slice.
	ErrStaleCheckpoint = errors.New("stale checkpoint")
	// ErrStorageUnavailable marks infrastructure-level failures that must
	// abort the whole session rather than a single row.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrPreconditionFailed is returned by guarded status updates when the
	// record exists but is not in any of the expected source states.
	ErrPreconditionFailed = errors.New("precondition failed")
)

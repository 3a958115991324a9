package lifecycle

import "errors"

var (
	// ErrUnauthenticated means the ownership proof did not verify.
	ErrUnauthenticated = errors.New("authentication failed")
	// ErrUnauthorized means the proof verified but the caller does not own
	// the record.
	ErrUnauthorized = errors.New("caller does not own record")
	ErrNotFound     = errors.New("record not found")
	// ErrConflict covers duplicate signed intent and terminal record state.
	ErrConflict = errors.New("conflicting record state")
)

package domain

import "errors"

// Failure classes. Every pipeline error wraps exactly one of these and
// aborts the run; nothing is retried.
var (
	// ErrSourceUnavailable: file missing, network failure, non-success status, markup without the expected table.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSchemaMismatch: missing or extra columns, unequal row widths, append to an incompatible table.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrParseFailure: a value that should be numeric is not.
	ErrParseFailure = errors.New("parse failure")
	// ErrSinkWrite: I/O or database write error.
	ErrSinkWrite = errors.New("sink write failure")
)

// Package huberrors defines the error taxonomy shared by every Hub
// component, per spec.md §7. Components classify failures into one of these
// sentinels and wrap them with fmt.Errorf("...: %w", ...); callers test for
// them with errors.Is. The API layer maps each sentinel to an HTTP status
// and a stable machine-readable code — see internal/api/response.go.
package huberrors

import "errors"

var (
	// ErrValidation marks malformed input or a schema mismatch. Never
	// retried; always returned to the caller.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an invalid state transition, a duplicate slug or
	// port, or an approval that has already been decided.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks a missing aggregate.
	ErrNotFound = errors.New("not found")

	// ErrDependencyUnavailable marks the store or bus being unreachable.
	// Internal components retry with bounded exponential backoff; the API
	// returns 503 once the retry budget is exhausted.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrDriverFailure marks the container driver rejecting or crashing on
	// a call. A project moves to ERROR; a node run moves to FAILED or is
	// retried per its retry policy.
	ErrDriverFailure = errors.New("driver failure")

	// ErrTimeout marks an operation exceeding its wall-clock budget.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled marks an explicit cancellation.
	ErrCancelled = errors.New("cancelled")

	// ErrAlreadyInProgress marks a lifecycle operation rejected because
	// another lifecycle operation is already in flight for the same
	// project (spec.md §4.1 concurrency policy).
	ErrAlreadyInProgress = errors.New("already in progress")

	// ErrPortsInUse marks a Start rejected because one or more of the four
	// stack ports could not be reserved.
	ErrPortsInUse = errors.New("ports in use")
)

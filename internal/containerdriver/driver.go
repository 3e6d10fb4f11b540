// Package containerdriver abstracts the underlying container orchestrator
// behind a narrow contract: start/stop a project's multi-container stack,
// and run a single agent container to completion. It is grounded on the
// teacher's agent/internal/docker package, extended from read-only volume
// discovery to full stack and one-shot container lifecycle management.
package containerdriver

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks the underlying orchestrator as unreachable. The
// project orchestrator and workflow engine treat it like any other driver
// error: a project start moves to ERROR, and a node run is retried per its
// RetryPolicy and then marked FAILED.
var ErrUnavailable = errors.New("containerdriver: orchestrator unavailable")

// ErrNotFound marks a handle the driver has no record of (already reaped,
// or never existed). The shipped drivers do not return it: StopStack on an
// unknown handle returns nil.
var ErrNotFound = errors.New("containerdriver: handle not found")

// StackSpec describes the multi-container stack to bring up for a project.
type StackSpec struct {
	ProjectSlug string
	Path        string // filesystem path to the project's compose definition
	BackendPort int
	FrontendPort int
	DBPort      int
	CachePort   int
	Env         map[string]string
}

// Handle is the driver-opaque identifier for a running stack. Persisted
// verbatim in Project.HandleOpaque; the driver is the only component that
// interprets its contents.
type Handle string

// Limits bounds a single agent container's execution.
type Limits struct {
	Timeout   time.Duration
	MemoryMB  int64
	CPUShares int64
}

// RunResult is what RunAgent returns after a container exits or is killed.
type RunResult struct {
	Stdout   string
	ExitCode int
	LogsRef  string // opaque reference the driver can later resolve to full logs
}

// Driver abstracts the container orchestrator. The docker-backed
// implementation lives in this package's docker.go; a fake implementation
// for tests lives in fake.go.
type Driver interface {
	// StartStack brings up a project's stack and returns a handle used for
	// later StopStack calls. Errors wrapping ErrUnavailable are transient.
	StartStack(ctx context.Context, spec StackSpec) (Handle, error)

	// StopStack tears down a previously started stack. Idempotent: stopping
	// an already-stopped handle returns nil.
	StopStack(ctx context.Context, handle Handle) error

	// RunAgent runs a single container to completion (or until ctx is
	// cancelled, in which case the container is sent a terminate signal and
	// ctx.Err() is returned once the container has exited).
	RunAgent(ctx context.Context, image string, inputJSON []byte, limits Limits) (RunResult, error)
}

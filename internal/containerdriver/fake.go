package containerdriver

import (
	"context"
	"sync"
)

// FakeDriver is an in-memory Driver for unit tests that exercises the
// orchestrator and workflow engine state machines without a real Docker
// daemon. Behavior is scripted by setting the exported fields before use.
type FakeDriver struct {
	mu sync.Mutex

	StartErr error
	StopErr  error
	RunErr   error
	RunResult RunResult

	started map[Handle]StackSpec
	calls   []string
}

// NewFakeDriver returns a ready-to-use FakeDriver with no scripted errors.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{started: make(map[Handle]StackSpec)}
}

func (f *FakeDriver) StartStack(ctx context.Context, spec StackSpec) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "StartStack:"+spec.ProjectSlug)
	if f.StartErr != nil {
		return "", f.StartErr
	}
	h := Handle(spec.ProjectSlug)
	f.started[h] = spec
	return h, nil
}

func (f *FakeDriver) StopStack(ctx context.Context, handle Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "StopStack:"+string(handle))
	if f.StopErr != nil {
		return f.StopErr
	}
	delete(f.started, handle)
	return nil
}

func (f *FakeDriver) RunAgent(ctx context.Context, image string, inputJSON []byte, limits Limits) (RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "RunAgent:"+image)
	if f.RunErr != nil {
		return RunResult{}, f.RunErr
	}
	if f.RunResult.Stdout == "" && f.RunResult.ExitCode == 0 {
		return RunResult{Stdout: "{}", ExitCode: 0, LogsRef: "fake"}, nil
	}
	return f.RunResult, nil
}

// Calls returns every method invocation recorded so far, in order, for
// assertions in tests.
func (f *FakeDriver) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// IsStarted reports whether handle currently has a recorded running stack.
func (f *FakeDriver) IsStarted(handle Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.started[handle]
	return ok
}

package containerdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerDriver wraps a Driver with a gobreaker circuit breaker per
// operation, realizing spec.md §4.1's transient/non-transient failure
// classification: once StartStack/StopStack/RunAgent calls fail
// consecutively past the ReadyToTrip threshold, the breaker opens and
// further calls fail fast with ErrUnavailable instead of hanging on a dead
// orchestrator.
type BreakerDriver struct {
	inner    Driver
	start    *gobreaker.CircuitBreaker
	stop     *gobreaker.CircuitBreaker
	runAgent *gobreaker.CircuitBreaker
}

// NewBreakerDriver wraps inner with three independent breakers, one per
// operation, so a string of RunAgent failures does not also trip
// StartStack/StopStack.
func NewBreakerDriver(inner Driver) *BreakerDriver {
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}

	return &BreakerDriver{
		inner:    inner,
		start:    gobreaker.NewCircuitBreaker(settings("containerdriver.start_stack")),
		stop:     gobreaker.NewCircuitBreaker(settings("containerdriver.stop_stack")),
		runAgent: gobreaker.NewCircuitBreaker(settings("containerdriver.run_agent")),
	}
}

func (b *BreakerDriver) StartStack(ctx context.Context, spec StackSpec) (Handle, error) {
	result, err := b.start.Execute(func() (interface{}, error) {
		return b.inner.StartStack(ctx, spec)
	})
	if err != nil {
		return "", classify(err)
	}
	return result.(Handle), nil
}

func (b *BreakerDriver) StopStack(ctx context.Context, handle Handle) error {
	_, err := b.stop.Execute(func() (interface{}, error) {
		return nil, b.inner.StopStack(ctx, handle)
	})
	return classify(err)
}

func (b *BreakerDriver) RunAgent(ctx context.Context, image string, inputJSON []byte, limits Limits) (RunResult, error) {
	result, err := b.runAgent.Execute(func() (interface{}, error) {
		return b.inner.RunAgent(ctx, image, inputJSON, limits)
	})
	if err != nil {
		return RunResult{}, classify(err)
	}
	return result.(RunResult), nil
}

// classify folds gobreaker's own open-circuit error into the same
// ErrUnavailable sentinel the underlying driver returns for transient
// failures, so callers only ever need to check one error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open: %s", ErrUnavailable, err)
	}
	return err
}

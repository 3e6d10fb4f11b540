package containerdriver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerDriverPassesThroughOnSuccess(t *testing.T) {
	fake := NewFakeDriver()
	b := NewBreakerDriver(fake)

	handle, err := b.StartStack(context.Background(), StackSpec{ProjectSlug: "demo"})
	require.NoError(t, err)
	assert.Equal(t, Handle("demo"), handle)
	assert.True(t, fake.IsStarted(handle))
}

func TestBreakerDriverTripsAfterConsecutiveFailures(t *testing.T) {
	fake := NewFakeDriver()
	fake.StartErr = errors.New("daemon unreachable")
	b := NewBreakerDriver(fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := b.StartStack(ctx, StackSpec{ProjectSlug: "demo"})
		assert.ErrorIs(t, err, fake.StartErr)
	}

	// The 6th call should fail fast from the open breaker rather than
	// reaching the inner driver, and classify into ErrUnavailable.
	_, err := b.StartStack(ctx, StackSpec{ProjectSlug: "demo"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerDriverIndependentPerOperation(t *testing.T) {
	fake := NewFakeDriver()
	fake.RunErr = errors.New("agent crashed")
	b := NewBreakerDriver(fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := b.RunAgent(ctx, "image", nil, Limits{})
		assert.ErrorIs(t, err, fake.RunErr)
	}
	_, err := b.RunAgent(ctx, "image", nil, Limits{})
	assert.ErrorIs(t, err, ErrUnavailable)

	// StartStack's breaker is independent and should still succeed.
	handle, err := b.StartStack(ctx, StackSpec{ProjectSlug: "demo"})
	require.NoError(t, err)
	assert.Equal(t, Handle("demo"), handle)
}

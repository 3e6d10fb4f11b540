package containerdriver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeDriverStartStopLifecycle(t *testing.T) {
	f := NewFakeDriver()
	ctx := context.Background()

	handle, err := f.StartStack(ctx, StackSpec{ProjectSlug: "demo"})
	require.NoError(t, err)
	assert.Equal(t, Handle("demo"), handle)
	assert.True(t, f.IsStarted(handle))

	require.NoError(t, f.StopStack(ctx, handle))
	assert.False(t, f.IsStarted(handle))

	assert.Equal(t, []string{"StartStack:demo", "StopStack:demo"}, f.Calls())
}

func TestFakeDriverScriptedErrors(t *testing.T) {
	f := NewFakeDriver()
	f.StartErr = errors.New("boom")
	ctx := context.Background()

	_, err := f.StartStack(ctx, StackSpec{ProjectSlug: "demo"})
	assert.ErrorIs(t, err, f.StartErr)
	assert.False(t, f.IsStarted(Handle("demo")))
}

func TestFakeDriverRunAgentDefaultResult(t *testing.T) {
	f := NewFakeDriver()
	result, err := f.RunAgent(context.Background(), "image:latest", []byte(`{}`), Limits{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "{}", result.Stdout)
}

func TestFakeDriverRunAgentScriptedResult(t *testing.T) {
	f := NewFakeDriver()
	f.RunResult = RunResult{Stdout: `{"ok":true}`, ExitCode: 0, LogsRef: "ref-1"}
	result, err := f.RunAgent(context.Background(), "image:latest", []byte(`{}`), Limits{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, result.Stdout)
	assert.Equal(t, "ref-1", result.LogsRef)
}

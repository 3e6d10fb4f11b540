package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	assert.Equal(t, time.Second, retryDelay(base, max, 1))
	assert.Equal(t, 2*time.Second, retryDelay(base, max, 2))
	assert.Equal(t, 4*time.Second, retryDelay(base, max, 3))
	assert.Equal(t, 8*time.Second, retryDelay(base, max, 4))
}

func TestRetryDelayCapsAtMax(t *testing.T) {
	base := time.Second
	max := 5 * time.Second

	assert.Equal(t, max, retryDelay(base, max, 10))
}

func TestRetryDelayClampsBelowOne(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(time.Second, 30*time.Second, 0))
	assert.Equal(t, time.Second, retryDelay(time.Second, 30*time.Second, -3))
}

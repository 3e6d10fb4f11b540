package workflow

import "time"

// retryDelay computes base * 2^(attempt-1), capped at maxDelay, per
// spec.md §4.2's retry schedule. attempt is 1-indexed (the first retry is
// attempt 1).
func retryDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

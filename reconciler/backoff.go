package reconciler

import "time"

// backoffDelay returns the wait before the next provider mutation given
// how many attempts already failed. Doubles from one second, capped so a
// long outage retries at a bounded rate.
func backoffDelay(failures int, limit time.Duration) time.Duration {
	delay := time.Second
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

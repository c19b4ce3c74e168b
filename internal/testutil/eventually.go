package testutil

import (
	"testing"
	"time"
)

const maxPollInterval = 200 * time.Millisecond

// Eventually polls fn until it returns nil or timeout passes. Polling
// starts at 10ms and backs off to maxPollInterval.
func Eventually(tb testing.TB, timeout time.Duration, fn func() error) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	interval := 10 * time.Millisecond
	attempts := 0

	for {
		attempts++
		err := fn()
		if err == nil {
			return
		}
		if !time.Now().Before(deadline) {
			tb.Fatalf("condition not met after %d attempts in %v: %v", attempts, timeout, err)
			return
		}
		time.Sleep(interval)
		if interval < maxPollInterval {
			interval *= 2
		}
	}
}

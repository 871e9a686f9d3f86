// Package testutil provides testing utilities for resmon packages.
package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds tests that drive real goroutines and timers.
const DefaultTimeout = 30 * time.Second

// NewTestContext creates a context that is cancelled after DefaultTimeout or
// when the test finishes, whichever comes first.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// Eventually polls cond every 5ms until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}

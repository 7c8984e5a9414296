// Package testutil provides helpers for tests that wait on goroutines,
// timers and file events.
package testutil

import (
	"fmt"
	"testing"
	"time"
)

// DefaultTimeout bounds every wait in the helpers below that takes no
// explicit timeout.
const DefaultTimeout = 3 * time.Second

// pollInterval is how often Eventually re-checks its condition.
const pollInterval = 5 * time.Millisecond

// Eventually polls condition until it holds or timeout elapses.
//
// Example:
//
//	err := testutil.Eventually(time.Second, func() bool {
//	    return sched.Stats().Runs == 2
//	})
func Eventually(timeout time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return nil
		}
		time.Sleep(pollInterval)
	}
	if condition() {
		return nil
	}
	return fmt.Errorf("condition not met within %v", timeout)
}

// WaitFor fails the test if condition does not hold within DefaultTimeout.
func WaitFor(t testing.TB, condition func() bool) {
	t.Helper()
	if err := Eventually(DefaultTimeout, condition); err != nil {
		t.Fatal(err)
	}
}

// WithTimeout runs fn and returns its error, or a timeout error if fn has
// not returned after timeout. fn keeps running in the background on timeout.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}

// Receive returns the next value from ch, failing the test if none arrives
// within DefaultTimeout or ch is closed.
func Receive[T any](t testing.TB, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(DefaultTimeout):
		t.Fatalf("nothing received within %v", DefaultTimeout)
	}
	var zero T
	return zero
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// Fataler is the subset of testing.TB the helpers in this package
// need. Accepting it instead of *testing.T lets the helpers run from
// inside other helpers and fakes.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout (DefaultTimeout
// when zero), or fails the test. A closed channel fails too.
//
//	env := testutil.RequireReceive(t, conn.Notifications(), 0, "waiting for %s", op)
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	timer := time.NewTimer(orDefault(timeout))
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before delivering: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-timer.C:
		t.Fatalf("nothing received after %v: %s", orDefault(timeout), formatMessage(msgAndArgs))
	}
	var zero T
	return zero
}

// RequireClosed waits for a done-style channel to close within
// timeout, or fails the test.
//
//	testutil.RequireClosed(t, client.Done(), 0, "client shutdown")
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	timer := time.NewTimer(orDefault(timeout))
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("channel still open after %v: %s", orDefault(timeout), formatMessage(msgAndArgs))
	}
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}

// formatMessage renders the trailing message arguments: nothing, a
// single value, or a format string with its operands.
func formatMessage(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "(no message)"
	case 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	format, ok := msgAndArgs[0].(string)
	if !ok {
		return fmt.Sprint(msgAndArgs...)
	}
	return fmt.Sprintf(format, msgAndArgs[1:]...)
}

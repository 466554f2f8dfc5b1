// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds every helper that does not take an explicit
// timeout.
const DefaultTimeout = 10 * time.Second

// Context returns a context that expires after timeout (DefaultTimeout
// when zero) and is cancelled when the test completes.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), orDefault(timeout))
	t.Cleanup(cancel)
	return ctx
}

// RequireEventually calls step until done reports true, or fails the
// test when step errors or ctx expires first. step should block for
// some progress (for example one notification) so the loop does not
// spin.
//
//	testutil.RequireEventually(t, ctx, peer.WaitNotification,
//		func() bool { return manager.ConnectedClients() == 2 }, "roster update")
func RequireEventually(t Fataler, ctx context.Context, step func(context.Context) error, done func() bool, msgAndArgs ...any) {
	t.Helper()
	for !done() {
		if err := ctx.Err(); err != nil {
			t.Fatalf("condition not reached: %s: %v", formatMessage(msgAndArgs), err)
		}
		if err := step(ctx); err != nil {
			t.Fatalf("condition not reached: %s: %v", formatMessage(msgAndArgs), err)
		}
	}
}

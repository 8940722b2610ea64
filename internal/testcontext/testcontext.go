// Copyright 2026 The luaugo Authors
// SPDX-License-Identifier: MIT

// Package testcontext provides a context for tests
// that carries the test logger.
package testcontext

import (
	"context"
	"testing"
	"time"

	"zombiezen.com/go/log/testlog"
)

// New returns a context that associates the test logger with the test
// and obeys the test's deadline if present.
// The context is canceled when cancel is called or the test ends.
func New(tb testing.TB) (ctx context.Context, cancel context.CancelFunc) {
	ctx, cancel = context.WithCancel(tb.Context())
	if d, ok := deadline(tb); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, d)
		prevCancel := cancel
		cancel = func() {
			cancelDeadline()
			prevCancel()
		}
	}
	ctx = testlog.WithTB(ctx, tb)
	return ctx, cancel
}

func deadline(x any) (deadline time.Time, ok bool) {
	d, ok := x.(interface {
		Deadline() (deadline time.Time, ok bool)
	})
	if !ok {
		return time.Time{}, false
	}
	return d.Deadline()
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package goroutineUtil

// Recovery recovers a panic in the calling goroutine and hands the
// recovered value to each non-nil callback. Without callbacks the default
// recovery log is emitted. Must be deferred directly.
func Recovery(callbacks ...func(r interface{})) {
	r := recover()
	if r == nil {
		return
	}

	called := false
	for _, cb := range callbacks {
		if cb == nil {
			continue
		}
		cb(r)
		called = true
	}
	if !called {
		DefaultRecoveryFunc(r)
	}
}

// SafeGoroutine runs fn in a new goroutine; a panic is swallowed after the
// callbacks (or the default log) have seen it, so one bad item can never
// take the process down.
func SafeGoroutine(fn func(), callbacks ...func(r interface{})) {
	go func() {
		defer Recovery(callbacks...)
		fn()
	}()
}

// SafeGoroutineWithLog runs fn in a new goroutine, logging any panic.
func SafeGoroutineWithLog(fn func()) {
	SafeGoroutine(fn)
}

// RunGoroutineWithLog is an alias kept for call-site readability in long
// Init sequences.
func RunGoroutineWithLog(fn func()) {
	SafeGoroutineWithLog(fn)
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package goroutineUtil

import (
	"fmt"
	"runtime"

	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/logger/log"
)

// RecoverFunc returns a deferrable that recovers a panic, hands it to hook
// when one is given, and always emits the default recovery log.
func RecoverFunc(hook func(r any)) func() {
	return func() {
		r := recover()
		if r == nil {
			return
		}
		if hook != nil {
			hook(r)
		}
		DefaultRecoveryFunc(r)
	}
}

// DefaultRecoveryFunc logs a recovered panic with the goroutine stack so a
// crashing worker leaves a usable trail.
func DefaultRecoveryFunc(r interface{}) {
	buf := make([]byte, 64<<10)
	buf = buf[:runtime.Stack(buf, false)]

	panicErr := errors.NewError().WithCode(errors.InternalError).WithMessage(fmt.Sprintf("%v", r))
	if err, ok := r.(error); ok {
		panicErr = panicErr.WithError(err)
	}
	log.GlobalLogger().Errorf("Panic %v\n%s", panicErr, buf)
}

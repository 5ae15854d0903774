// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package sql

import (
	"context"
	"time"

	"gorm.io/gorm/logger"
)

// NullLogger silences gorm's built-in logging; query failures surface as
// returned errors and are logged where they are handled.
type NullLogger struct{}

func (NullLogger) LogMode(logger.LogLevel) logger.Interface {
	return NullLogger{}
}

func (NullLogger) Info(ctx context.Context, msg string, data ...interface{}) {}

func (NullLogger) Warn(ctx context.Context, msg string, data ...interface{}) {}

func (NullLogger) Error(ctx context.Context, msg string, data ...interface{}) {}

func (NullLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
}

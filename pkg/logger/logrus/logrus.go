// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package logrus

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wildsight/antler/pkg/logger"
	"github.com/wildsight/antler/pkg/logger/conf"
)

// LogrusWrapper adapts a logrus logger to the logger.Logger interface.
type LogrusWrapper struct {
	entry *logrus.Entry
}

func NewLogrusWrapper(cfg *conf.LogConfig) (logger.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetLevel(toLogrusLevel(cfg.Level))
	l.SetReportCaller(cfg.ReportCaller)

	switch cfg.Formatter {
	case conf.FormatterJSON:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	var out io.Writer = os.Stdout
	if cfg.FileName != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	l.SetOutput(out)

	return &LogrusWrapper{entry: logrus.NewEntry(l)}, nil
}

func toLogrusLevel(level conf.Level) logrus.Level {
	switch level {
	case conf.TraceLevel:
		return logrus.TraceLevel
	case conf.DebugLevel:
		return logrus.DebugLevel
	case conf.InfoLevel:
		return logrus.InfoLevel
	case conf.WarnLevel:
		return logrus.WarnLevel
	case conf.ErrorLevel:
		return logrus.ErrorLevel
	case conf.FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func (w *LogrusWrapper) Log(level conf.Level, args ...interface{}) {
	w.entry.Log(toLogrusLevel(level), args...)
}

func (w *LogrusWrapper) Logf(level conf.Level, format string, args ...interface{}) {
	w.entry.Logf(toLogrusLevel(level), format, args...)
}

func (w *LogrusWrapper) Trace(args ...interface{}) { w.entry.Trace(args...) }
func (w *LogrusWrapper) Tracef(format string, args ...interface{}) {
	w.entry.Tracef(format, args...)
}
func (w *LogrusWrapper) Debug(args ...interface{}) { w.entry.Debug(args...) }
func (w *LogrusWrapper) Debugf(format string, args ...interface{}) {
	w.entry.Debugf(format, args...)
}
func (w *LogrusWrapper) Info(args ...interface{}) { w.entry.Info(args...) }
func (w *LogrusWrapper) Infof(format string, args ...interface{}) {
	w.entry.Infof(format, args...)
}
func (w *LogrusWrapper) Warn(args ...interface{}) { w.entry.Warn(args...) }
func (w *LogrusWrapper) Warnf(format string, args ...interface{}) {
	w.entry.Warnf(format, args...)
}
func (w *LogrusWrapper) Error(args ...interface{}) { w.entry.Error(args...) }
func (w *LogrusWrapper) Errorf(format string, args ...interface{}) {
	w.entry.Errorf(format, args...)
}

// Fatal and Fatalf only log at fatal level; process exit is owned by the
// log facade so tests can install a non-exiting logger.
func (w *LogrusWrapper) Fatal(args ...interface{}) {
	w.entry.Log(logrus.FatalLevel, args...)
}
func (w *LogrusWrapper) Fatalf(format string, args ...interface{}) {
	w.entry.Logf(logrus.FatalLevel, format, args...)
}

func (w *LogrusWrapper) WithFields(fields map[string]interface{}) logger.Logger {
	return &LogrusWrapper{entry: w.entry.WithFields(logrus.Fields(fields))}
}

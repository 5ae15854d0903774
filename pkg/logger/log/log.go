// Package log is the process-wide logging facade. Code logs through the
// package functions; bootstrap swaps in the configured backend before any
// worker starts.
package log

import (
	"os"

	"github.com/wildsight/antler/pkg/logger"
	"github.com/wildsight/antler/pkg/logger/conf"
	"github.com/wildsight/antler/pkg/logger/logrus"
)

// Fields names the structured payload attached with WithFields.
type Fields map[string]interface{}

// global is never nil: init installs a console logger so code that runs
// before InitGlobalLogger, tests included, still logs.
var global logger.Logger

func init() {
	_ = InitGlobalLogger(conf.DefaultConfig())
}

// InitGlobalLogger replaces the process logger with one built from the
// given configuration. On error the previous logger stays in place.
func InitGlobalLogger(cfg *conf.LogConfig) error {
	l, err := logrus.NewLogrusWrapper(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

// GlobalLogger hands out the backing logger for callers that keep one.
func GlobalLogger() logger.Logger {
	return global
}

// WithFields returns a derived logger carrying the given fields on every
// entry.
func WithFields(fields Fields) logger.Logger {
	return global.WithFields(fields)
}

func Debug(args ...interface{}) {
	global.Debug(args...)
}

func Debugf(format string, args ...interface{}) {
	global.Debugf(format, args...)
}

func Info(args ...interface{}) {
	global.Info(args...)
}

func Infof(format string, args ...interface{}) {
	global.Infof(format, args...)
}

func Warn(args ...interface{}) {
	global.Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	global.Warnf(format, args...)
}

func Error(args ...interface{}) {
	global.Error(args...)
}

func Errorf(format string, args ...interface{}) {
	global.Errorf(format, args...)
}

// Fatal logs and exits; the backend only writes the entry.
func Fatal(args ...interface{}) {
	global.Fatal(args...)
	os.Exit(1)
}

func Fatalf(format string, args ...interface{}) {
	global.Fatalf(format, args...)
	os.Exit(1)
}

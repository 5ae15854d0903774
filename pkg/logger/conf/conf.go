// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package conf

import "fmt"

type Level int

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// LogConfig controls the global logger. Zero values fall back to the
// defaults from DefaultConfig.
type LogConfig struct {
	Level     Level     `json:"level" yaml:"level"`
	Formatter Formatter `json:"formatter" yaml:"formatter"`

	// FileName enables file output when non-empty; rotation is handled by
	// lumberjack with the limits below.
	FileName   string `json:"fileName" yaml:"fileName"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"maxAgeDays"`
	Compress   bool   `json:"compress" yaml:"compress"`

	ReportCaller bool `json:"reportCaller" yaml:"reportCaller"`
}

func DefaultConfig() *LogConfig {
	return &LogConfig{
		Level:      InfoLevel,
		Formatter:  FormatterConsole,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

func (c *LogConfig) Validate() error {
	if c.Formatter == "" {
		c.Formatter = FormatterConsole
	}
	if !isValidFormatter(c.Formatter) {
		return fmt.Errorf("invalid log formatter %q", c.Formatter)
	}
	if c.Level < TraceLevel || c.Level > FatalLevel {
		return fmt.Errorf("invalid log level %d", c.Level)
	}
	return nil
}

// ParseLevel maps a textual level from configuration to a Level. Unknown
// strings map to InfoLevel.
func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "info", "":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func (l Level) String() string {
	switch l {
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

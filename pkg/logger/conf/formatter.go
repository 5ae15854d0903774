// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package conf

// Formatter selects the log line encoding.
type Formatter string

const (
	// FormatterJSON emits one JSON object per line for log shippers.
	FormatterJSON Formatter = "json"
	// FormatterConsole emits human readable text, the default for
	// development and the CLI tools.
	FormatterConsole Formatter = "console"
)

func isValidFormatter(f Formatter) bool {
	switch f {
	case FormatterJSON, FormatterConsole:
		return true
	}
	return false
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package stringUtil

import "strconv"

// IsNumeric reports whether s parses as a base-10 integer, sign included.
func IsNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

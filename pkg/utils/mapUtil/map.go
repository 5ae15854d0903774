// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package mapUtil decodes the generic maps JSON unmarshalling produces
// into typed values.
package mapUtil

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// DecodeFromMap decodes a generic value (typically a map produced by JSON
// unmarshalling) into target, which must be a non-nil pointer. The decode
// is a JSON round trip, so json tags and nesting are honored and numbers
// arrive as whatever the target field declares.
func DecodeFromMap(data interface{}, target interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal map")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errors.Wrap(err, "unmarshal map to target")
	}
	return nil
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package sliceUtil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	data := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	t.Run("first page", func(t *testing.T) {
		page, total := Paginate(data, 1, 5)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, page)
		assert.Equal(t, 12, total)
	})

	t.Run("trailing partial page", func(t *testing.T) {
		page, total := Paginate(data, 3, 5)
		assert.Equal(t, []int{11, 12}, page)
		assert.Equal(t, 12, total)
	})

	t.Run("page past the end is empty", func(t *testing.T) {
		page, total := Paginate(data, 9, 5)
		assert.Empty(t, page)
		assert.Equal(t, 12, total)
	})

	t.Run("empty input", func(t *testing.T) {
		page, total := Paginate([]string{}, 1, 10)
		assert.Empty(t, page)
		assert.Zero(t, total)
	})

	t.Run("non-positive inputs use the defaults", func(t *testing.T) {
		page, total := Paginate(data, 0, 0)
		assert.Equal(t, data[:10], page)
		assert.Equal(t, 12, total)
	})
}

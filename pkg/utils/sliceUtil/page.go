// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package sliceUtil has helpers for in-memory slices backing paginated
// list endpoints.
package sliceUtil

// Paginate returns the 1-based page of data and the total element count.
// An out-of-range page yields an empty page, never an error; non-positive
// inputs fall back to the first page of ten.
func Paginate[T any](data []T, page, pageSize int) ([]T, int) {
	total := len(data)
	if pageSize <= 0 {
		pageSize = 10
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []T{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return data[start:end], total
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package detect

import (
	"sort"

	"github.com/wildsight/antler/pkg/geometry"
	"github.com/wildsight/antler/pkg/inference"
)

// markDuplicates flags every detection whose box overlaps an already-kept,
// higher-confidence box in the same image at IoU >= threshold. The scan
// runs confidence-descending with a stable sort, so detector order breaks
// ties; duplicates are compared against kept boxes only, which means two
// overlapping boxes yield one keeper and one duplicate, never zero.
func markDuplicates(dets []inference.Detection, threshold float64) []bool {
	idx := make([]int, len(dets))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return dets[idx[a]].Confidence > dets[idx[b]].Confidence
	})

	dup := make([]bool, len(dets))
	kept := make([]geometry.Rect, 0, len(dets))
	for _, i := range idx {
		isDup := false
		for _, k := range kept {
			if geometry.IoU(dets[i].Box, k) >= threshold {
				isDup = true
				break
			}
		}
		dup[i] = isDup
		if !isDup {
			kept = append(kept, dets[i].Box)
		}
	}
	return dup
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wildsight/antler/pkg/geometry"
	"github.com/wildsight/antler/pkg/inference"
)

func det(x, y, w, h int, conf float64) inference.Detection {
	return inference.Detection{
		Box:        geometry.Rect{X: x, Y: y, W: w, H: h},
		Confidence: conf,
		Class:      "doe",
	}
}

func TestMarkDuplicatesKeepsHighestConfidence(t *testing.T) {
	// two 9x10 boxes shifted one pixel apart overlap at IoU 0.8; confidence
	// decides the winner regardless of slice order
	dets := []inference.Detection{
		det(1, 0, 9, 10, 0.7),
		det(0, 0, 9, 10, 0.9),
	}
	assert.Equal(t, []bool{true, false}, markDuplicates(dets, 0.5))
}

func TestMarkDuplicatesThresholdBoundary(t *testing.T) {
	// a 2x1 and a 1x1 box at the same origin share exactly half their union
	at := []inference.Detection{
		det(0, 0, 2, 1, 0.9),
		det(0, 0, 1, 1, 0.8),
	}
	assert.Equal(t, []bool{false, true}, markDuplicates(at, 0.5),
		"overlap equal to the threshold is a duplicate")

	below := []inference.Detection{
		det(0, 0, 2, 1, 0.9),
		det(1, 0, 2, 1, 0.8),
	}
	assert.Equal(t, []bool{false, false}, markDuplicates(below, 0.5),
		"overlap below the threshold survives")
}

func TestMarkDuplicatesComparesAgainstKeptOnly(t *testing.T) {
	// B duplicates A. C overlaps the discarded B heavily but A only a
	// little, so C survives: suppression compares against kept boxes, not
	// against other duplicates.
	dets := []inference.Detection{
		det(0, 0, 10, 10, 0.9),
		det(2, 0, 10, 10, 0.8),
		det(4, 0, 10, 10, 0.7),
	}
	assert.Equal(t, []bool{false, true, false}, markDuplicates(dets, 0.5))
}

func TestMarkDuplicatesEmpty(t *testing.T) {
	assert.Empty(t, markDuplicates(nil, 0.5))
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package inference runs the model roles of the pipeline, the deer
// detector and the appearance embedders, behind one Engine contract with
// interchangeable backends: in-process ONNX Runtime sessions, an HTTP
// sidecar, and a static engine for tests. A process-wide device semaphore
// caps concurrent model calls regardless of worker pool sizes.
package inference

import (
	"context"
	"fmt"

	"github.com/wildsight/antler/pkg/geometry"
)

// Model roles the registry constructs. Auxiliary embedders extend the
// scoring ensemble and are keyed aux0..auxN-1 in ensemble weight order.
const (
	RoleDetector = "detector"
	RoleEmbedder = "embedder"
)

// AuxRole names the i-th auxiliary embedder role.
func AuxRole(i int) string {
	return fmt.Sprintf("aux%d", i)
}

// Detection is one raw model hit in original image pixel space. Engines
// apply no NMS and no operator threshold; overlap dedup and the confidence
// cut belong to the pipeline.
type Detection struct {
	Box        geometry.Rect
	Confidence float64
	Class      string
}

// Engine is one loaded model role. Implementations are safe for concurrent
// use; construction is the expensive part and the registry memoises it.
// Results are deterministic for a given model version and input.
type Engine interface {
	// Detect returns raw candidate boxes for an encoded image.
	Detect(ctx context.Context, imageBytes []byte) ([]Detection, error)

	// Embed returns the embedding vector for an encoded crop. The vector
	// is not normalised; callers own that.
	Embed(ctx context.Context, cropBytes []byte) ([]float32, error)

	// Dim is the embedding dimensionality, zero for detector-only roles.
	Dim() int

	// Version identifies the loaded model for reproducibility stamps.
	Version() string

	// Close releases backend resources.
	Close() error
}

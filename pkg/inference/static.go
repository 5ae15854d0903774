// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"context"
	"sync/atomic"
)

// StaticEngine returns canned results. Tests and local dry runs wire it in
// through NewModelRegistryWithFactory; it never touches a device.
type StaticEngine struct {
	// DetectFunc and EmbedFunc take precedence when set; otherwise the
	// fixed fields answer every call.
	DetectFunc func(ctx context.Context, imageBytes []byte) ([]Detection, error)
	EmbedFunc  func(ctx context.Context, cropBytes []byte) ([]float32, error)

	FixedDetections []Detection
	FixedEmbedding  []float32
	DimValue        int
	ModelVersion    string

	detectCalls atomic.Int64
	embedCalls  atomic.Int64
	closed      atomic.Bool
}

func (s *StaticEngine) Detect(ctx context.Context, imageBytes []byte) ([]Detection, error) {
	s.detectCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.DetectFunc != nil {
		return s.DetectFunc(ctx, imageBytes)
	}
	return append([]Detection(nil), s.FixedDetections...), nil
}

func (s *StaticEngine) Embed(ctx context.Context, cropBytes []byte) ([]float32, error) {
	s.embedCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.EmbedFunc != nil {
		return s.EmbedFunc(ctx, cropBytes)
	}
	return append([]float32(nil), s.FixedEmbedding...), nil
}

func (s *StaticEngine) Dim() int {
	if s.DimValue > 0 {
		return s.DimValue
	}
	return len(s.FixedEmbedding)
}

func (s *StaticEngine) Version() string {
	if s.ModelVersion == "" {
		return "static"
	}
	return s.ModelVersion
}

func (s *StaticEngine) Close() error {
	s.closed.Store(true)
	return nil
}

// DetectCalls reports how many Detect calls the engine served.
func (s *StaticEngine) DetectCalls() int64 { return s.detectCalls.Load() }

// EmbedCalls reports how many Embed calls the engine served.
func (s *StaticEngine) EmbedCalls() int64 { return s.embedCalls.Load() }

// Closed reports whether Close was called.
func (s *StaticEngine) Closed() bool { return s.closed.Load() }

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/trace"
)

// guardedEngine wraps a backend engine with the device semaphore, the
// package metrics and a span per call so no caller can bypass them.
type guardedEngine struct {
	inner Engine
	sem   *DeviceSemaphore
	role  string
}

func newGuardedEngine(inner Engine, sem *DeviceSemaphore, role string) Engine {
	return &guardedEngine{inner: inner, sem: sem, role: role}
}

func (g *guardedEngine) Detect(ctx context.Context, imageBytes []byte) ([]Detection, error) {
	if err := g.sem.Acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()
	deviceSlotsInUse.Set(float64(g.sem.InUse()))

	span, ctx := trace.StartSpanFromContext(ctx, "inference.Detect")
	defer trace.FinishSpan(span)
	span.SetAttributes(attribute.String("model.role", g.role))

	start := time.Now()
	dets, err := g.inner.Detect(ctx, imageBytes)
	g.observe("detect", start, err)
	if err != nil {
		trace.RecordError(ctx, err)
	}
	return dets, err
}

func (g *guardedEngine) Embed(ctx context.Context, cropBytes []byte) ([]float32, error) {
	if err := g.sem.Acquire(ctx); err != nil {
		return nil, err
	}
	defer g.release()
	deviceSlotsInUse.Set(float64(g.sem.InUse()))

	span, ctx := trace.StartSpanFromContext(ctx, "inference.Embed")
	defer trace.FinishSpan(span)
	span.SetAttributes(attribute.String("model.role", g.role))

	start := time.Now()
	vec, err := g.inner.Embed(ctx, cropBytes)
	g.observe("embed", start, err)
	if err != nil {
		trace.RecordError(ctx, err)
	}
	return vec, err
}

func (g *guardedEngine) release() {
	g.sem.Release()
	deviceSlotsInUse.Set(float64(g.sem.InUse()))
}

func (g *guardedEngine) observe(op string, start time.Time, err error) {
	inferenceDuration.WithLabelValues(g.role, op).Observe(time.Since(start).Seconds())
	if err != nil {
		inferenceErrorsTotal.WithLabelValues(g.role, op, antlererrors.Classify(err).String()).Inc()
	}
}

func (g *guardedEngine) Dim() int        { return g.inner.Dim() }
func (g *guardedEngine) Version() string { return g.inner.Version() }
func (g *guardedEngine) Close() error    { return g.inner.Close() }

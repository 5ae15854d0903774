package trace

import (
	"context"
	"math/rand"
	"sync"
	"time"

	log "github.com/wildsight/antler/pkg/logger/log"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type TraceMode string

const (
	// TraceModeErrorOnly exports only traces that saw an error-status span.
	TraceModeErrorOnly TraceMode = "error_only"
	// TraceModeAlways exports a sampled share of all traces.
	TraceModeAlways TraceMode = "always"
)

type TraceOptions struct {
	Mode               TraceMode
	SamplingRatio      float64
	ErrorSamplingRatio float64
}

func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		Mode:               TraceModeErrorOnly,
		SamplingRatio:      0.1,
		ErrorSamplingRatio: 1.0,
	}
}

// Entries older than this are dropped wholesale to bound memory; a reset
// loses marks for still-open traces, which only costs their later spans.
const maxTrackedTraces = 8192

// ErrorOnlySpanProcessor forwards a span to the exporter only when its
// trace has been marked by an error-status span. Spans that ended before
// the first error of their trace are not recovered.
type ErrorOnlySpanProcessor struct {
	exporter           sdktrace.SpanExporter
	errorSamplingRatio float64
	traces             map[string]struct{}
	rand               *rand.Rand
	mu                 sync.Mutex
}

func NewErrorOnlySpanProcessor(exporter sdktrace.SpanExporter, errorSamplingRatio float64) *ErrorOnlySpanProcessor {
	return &ErrorOnlySpanProcessor{
		exporter:           exporter,
		errorSamplingRatio: errorSamplingRatio,
		traces:             make(map[string]struct{}),
		rand:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *ErrorOnlySpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
}

func (p *ErrorOnlySpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if s == nil {
		return
	}
	traceID := s.SpanContext().TraceID().String()

	p.mu.Lock()
	_, marked := p.traces[traceID]
	p.mu.Unlock()

	if !marked {
		if s.Status().Code != codes.Error {
			return
		}
		if !p.shouldSample() {
			return
		}
		p.mu.Lock()
		if len(p.traces) >= maxTrackedTraces {
			p.traces = make(map[string]struct{})
		}
		p.traces[traceID] = struct{}{}
		p.mu.Unlock()
	}

	if err := p.exporter.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{s}); err != nil {
		log.Warnf("Failed to export span %s: %v", s.Name(), err)
	}
}

func (p *ErrorOnlySpanProcessor) shouldSample() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rand.Float64() < p.errorSamplingRatio
}

func (p *ErrorOnlySpanProcessor) Shutdown(ctx context.Context) error {
	return p.exporter.Shutdown(ctx)
}

func (p *ErrorOnlySpanProcessor) ForceFlush(ctx context.Context) error {
	return nil
}

// SampledSpanProcessor drops a share of ended spans before handing the
// remainder to the wrapped processor.
type SampledSpanProcessor struct {
	processor     sdktrace.SpanProcessor
	samplingRatio float64
	rand          *rand.Rand
	mu            sync.Mutex
}

func NewSampledSpanProcessor(processor sdktrace.SpanProcessor, samplingRatio float64) *SampledSpanProcessor {
	return &SampledSpanProcessor{
		processor:     processor,
		samplingRatio: samplingRatio,
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SampledSpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	p.processor.OnStart(parent, s)
}

func (p *SampledSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	p.mu.Lock()
	sampled := p.rand.Float64() < p.samplingRatio
	p.mu.Unlock()
	if sampled {
		p.processor.OnEnd(s)
	}
}

func (p *SampledSpanProcessor) Shutdown(ctx context.Context) error {
	return p.processor.Shutdown(ctx)
}

func (p *SampledSpanProcessor) ForceFlush(ctx context.Context) error {
	return p.processor.ForceFlush(ctx)
}

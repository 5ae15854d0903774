// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/config"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/logger/log"
)

// Factory constructs the backend engine for one model role.
type Factory func(role string) (Engine, error)

// ModelRegistry lazily constructs and memoises one engine per model role.
// Construction failures are memoised too: a missing model file fails every
// caller identically instead of re-running a broken load.
type ModelRegistry struct {
	mu      sync.Mutex
	factory Factory
	sem     *DeviceSemaphore
	entries map[string]*registryEntry
	aux     int
}

type registryEntry struct {
	once sync.Once
	eng  Engine
	err  error
}

// NewModelRegistry builds a registry for the configured backend.
func NewModelRegistry(settings config.InferenceSettings, pipeline config.PipelineSettings) (*ModelRegistry, error) {
	var factory Factory
	switch settings.GetBackend() {
	case config.InferenceBackendOnnx:
		factory = func(role string) (Engine, error) { return NewOnnxEngine(role, settings) }
	case config.InferenceBackendHttp:
		factory = func(role string) (Engine, error) { return NewHTTPEngine(role, settings) }
	default:
		return nil, errors.Wrapf(antlererrors.ErrFatal, "unknown inference backend %q", settings.Backend)
	}
	sem := NewDeviceSemaphore(pipeline.GetGpuMaxConcurrent())
	return NewModelRegistryWithFactory(factory, sem, len(settings.AuxEmbedderPaths)), nil
}

// NewModelRegistryWithFactory wires a custom factory; tests inject static
// engines this way.
func NewModelRegistryWithFactory(factory Factory, sem *DeviceSemaphore, auxCount int) *ModelRegistry {
	return &ModelRegistry{
		factory: factory,
		sem:     sem,
		entries: make(map[string]*registryEntry),
		aux:     auxCount,
	}
}

// Engine returns the memoised engine for a role, constructing it on first
// use. Exactly one goroutine constructs; the rest wait on the result.
func (r *ModelRegistry) Engine(role string) (Engine, error) {
	r.mu.Lock()
	e, ok := r.entries[role]
	if !ok {
		e = &registryEntry{}
		r.entries[role] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		eng, err := r.factory(role)
		if err != nil {
			e.err = err
			engineReady.WithLabelValues(role).Set(0)
			return
		}
		e.eng = newGuardedEngine(eng, r.sem, role)
		engineReady.WithLabelValues(role).Set(1)
	})
	return e.eng, e.err
}

// EmbedderRoles lists the embedding roles in ensemble weight order, the
// primary embedder first.
func (r *ModelRegistry) EmbedderRoles() []string {
	roles := []string{RoleEmbedder}
	for i := 0; i < r.aux; i++ {
		roles = append(roles, AuxRole(i))
	}
	return roles
}

// Warm constructs every required role up front so a broken model surfaces
// at startup instead of on the first queue item.
func (r *ModelRegistry) Warm() error {
	roles := append([]string{RoleDetector}, r.EmbedderRoles()...)
	for _, role := range roles {
		if _, err := r.Engine(role); err != nil {
			return errors.Wrapf(antlererrors.ErrFatal, "load model role %s: %v", role, err)
		}
	}
	return nil
}

// Close releases every constructed engine.
func (r *ModelRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for role, e := range r.entries {
		if e.eng != nil {
			if err := e.eng.Close(); err != nil {
				log.Warnf("close %s engine: %v", role, err)
			}
			engineReady.WithLabelValues(role).Set(0)
		}
	}
	r.entries = make(map[string]*registryEntry)
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package imagestore

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	antlererrors "github.com/wildsight/antler/pkg/errors"
)

// MemorySource serves bytes from a map; the worker tests feed it. A miss
// behaves like the real backends: the bytes will never appear.
type MemorySource struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemorySource creates a MemorySource holding the given files.
func NewMemorySource(files map[string][]byte) *MemorySource {
	copied := make(map[string][]byte, len(files))
	for k, v := range files {
		copied[k] = v
	}
	return &MemorySource{files: copied}
}

// Put adds or replaces one entry.
func (m *MemorySource) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
}

func (m *MemorySource) Fetch(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, errors.Wrapf(antlererrors.ErrCorruptInput, "image bytes missing at %s", path)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemorySource) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path]
	return ok, nil
}

// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package imagestore resolves the path column on an image row back into
// bytes. Rows written by the filesystem ingest carry absolute paths; rows
// written by the object-store ingest carry bucket keys shaped
// location/filename. The pipeline only ever reads.
package imagestore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/config"
	antlererrors "github.com/wildsight/antler/pkg/errors"
)

// Source hands out stored image bytes.
type Source interface {
	// Fetch returns the bytes behind an image row's path.
	Fetch(ctx context.Context, path string) ([]byte, error)
	// Exists reports whether bytes are present without reading them.
	Exists(ctx context.Context, path string) (bool, error)
}

// NewSource builds the backend named by storage.backend.
func NewSource(settings config.StorageSettings) (Source, error) {
	switch settings.GetBackend() {
	case config.StorageBackendFilesystem:
		return NewFilesystemSource(settings.Root), nil
	case config.StorageBackendS3:
		return NewMinioSource(settings.S3)
	default:
		return nil, errors.Wrapf(antlererrors.ErrFatal, "unknown storage backend %q", settings.Backend)
	}
}

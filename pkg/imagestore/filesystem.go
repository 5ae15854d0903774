// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package imagestore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	antlererrors "github.com/wildsight/antler/pkg/errors"
)

// FilesystemSource reads from a local or network-mounted tree. Ingest lays
// files out as <root>/<location_name>/<filename> and stores the absolute
// path on the row; relative paths are resolved against root so fixture
// databases stay portable.
type FilesystemSource struct {
	root string
}

// NewFilesystemSource creates a FilesystemSource rooted at root.
func NewFilesystemSource(root string) *FilesystemSource {
	return &FilesystemSource{root: root}
}

func (f *FilesystemSource) resolve(path string) string {
	if filepath.IsAbs(path) || f.root == "" {
		return path
	}
	return filepath.Join(f.root, path)
}

func (f *FilesystemSource) Fetch(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(f.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(antlererrors.ErrCorruptInput, "image bytes missing at %s", path)
		}
		return nil, errors.Wrapf(err, "read image %s", path)
	}
	return data, nil
}

func (f *FilesystemSource) Exists(_ context.Context, path string) (bool, error) {
	info, err := os.Stat(f.resolve(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat image %s", path)
	}
	return !info.IsDir(), nil
}

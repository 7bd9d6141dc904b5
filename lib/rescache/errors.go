// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package rescache

import (
	"errors"
	"fmt"
)

// ErrAssetNotFound is returned for operations on a path the cache has
// not loaded.
var ErrAssetNotFound = errors.New("rescache: asset not loaded")

// LoadError reports a failure reading or decoding an asset file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rescache: loading %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// UploadError reports a failure creating GPU resources for an asset.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("rescache: uploading %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// BuildError reports a failed pipeline build. The cache entry keeps
// its previous pipeline when one exists.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("rescache: building pipeline for %s: %v", e.Path, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// OverlayError reports a failure loading or applying an overlay.
type OverlayError struct {
	AssetPath   string
	OverlayPath string
	Err         error
}

func (e *OverlayError) Error() string {
	return fmt.Sprintf("rescache: applying overlay %s to %s: %v", e.OverlayPath, e.AssetPath, e.Err)
}

func (e *OverlayError) Unwrap() error { return e.Err }

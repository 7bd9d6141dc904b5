// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package rescache

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/tremor-engine/taffy/lib/gpu"
	"github.com/tremor-engine/taffy/lib/overlay"
	"github.com/tremor-engine/taffy/lib/taf"
)

// Config configures a Cache. Device, Uploader and Pipelines are
// required.
type Config struct {
	Device    gpu.Device
	Uploader  *gpu.MeshUploader
	Pipelines *gpu.PipelineBuilder

	// ReadFile loads file bytes by path. Defaults to os.ReadFile;
	// tests and archive-backed deployments inject their own.
	ReadFile func(name string) ([]byte, error)

	// Decode controls container decoding (checksum strictness).
	// Nil means the relaxed defaults.
	Decode *taf.DecodeOptions

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// entry is all loaded state for one asset path. The three tiers —
// decoded asset, GPU mesh resources, pipeline — are swapped together
// under the cache lock so they never disagree about which overlay
// generation they belong to.
type entry struct {
	// master is the pristine decoded on-disk container. Never
	// mutated; overlays patch a clone.
	master *taf.Asset

	// active is what the GPU tiers were built from: master, or an
	// overlay-patched clone of it.
	active      *taf.Asset
	overlayPath string

	resources *gpu.ResourceRecord
	pipeline  *gpu.PipelineRecord

	// shaderDigest is the content hash of the shader chunk the
	// current pipeline was built from. Lets the flush skip rebuilds
	// when an overlay only touched other chunks.
	shaderDigest taf.Digest

	// rebuildPending marks the pipeline stale relative to active.
	// Draws keep using the old pipeline until FlushPendingRebuilds.
	rebuildPending bool
}

// Cache is the three-tier resource cache. Safe for concurrent use.
type Cache struct {
	device    gpu.Device
	uploader  *gpu.MeshUploader
	pipelines *gpu.PipelineBuilder
	readFile  func(name string) ([]byte, error)
	decode    *taf.DecodeOptions
	logger    *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New validates the configuration and returns an empty cache.
func New(config Config) (*Cache, error) {
	if config.Device == nil {
		return nil, fmt.Errorf("rescache: config requires a device")
	}
	if config.Uploader == nil {
		return nil, fmt.Errorf("rescache: config requires an uploader")
	}
	if config.Pipelines == nil {
		return nil, fmt.Errorf("rescache: config requires a pipeline builder")
	}

	readFile := config.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		device:    config.Device,
		uploader:  config.Uploader,
		pipelines: config.Pipelines,
		readFile:  readFile,
		decode:    config.Decode,
		logger:    logger,
		entries:   make(map[string]*entry),
	}, nil
}

// loadAsset reads and decodes a container from disk. Decode warnings
// are logged, not returned — the relaxed checksum policy treats them
// as advisory.
func (c *Cache) loadAsset(path string) (*taf.Asset, error) {
	data, err := c.readFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	asset, err := taf.Decode(data, c.decode)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	for _, warning := range asset.Warnings {
		c.logger.Warn("asset decode warning", "path", path, "warning", warning.String())
	}
	return asset, nil
}

// loadOverlay reads and parses a .tafo file.
func (c *Cache) loadOverlay(path string) (*overlay.Overlay, error) {
	data, err := c.readFile(path)
	if err != nil {
		return nil, err
	}
	return overlay.Decode(data, c.decode)
}

// EnsureLoaded loads an asset and uploads its geometry if the path is
// not already cached. Pipelines are built lazily on first draw.
func (c *Cache) EnsureLoaded(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("rescache: cache is closed")
	}
	if _, ok := c.entries[path]; ok {
		return nil
	}

	master, err := c.loadAsset(path)
	if err != nil {
		return err
	}
	record, err := c.uploader.Upload(master)
	if err != nil {
		return &UploadError{Path: path, Err: err}
	}

	c.entries[path] = &entry{
		master:    master,
		active:    master,
		resources: record,
	}
	c.logger.Info("asset loaded", "path", path, "chunks", master.ChunkCount())
	return nil
}

// commitActive swaps an entry's active asset, re-uploading geometry
// only when its content digest changed. The superseded buffer is
// released after a device idle wait so no in-flight frame can still
// reference it. Called with the cache lock held; on error the entry is
// untouched.
func (c *Cache) commitActive(path string, e *entry, active *taf.Asset, overlayPath string) error {
	record := e.resources

	reupload := true
	if chunk, ok := active.Chunk(taf.ChunkGeometry); ok && record != nil &&
		taf.ChunkDigest(chunk) == record.GeometryDigest {
		reupload = false
	}

	if reupload {
		fresh, err := c.uploader.Upload(active)
		if err != nil {
			return &UploadError{Path: path, Err: err}
		}
		if e.resources != nil {
			if err := c.device.WaitIdle(); err != nil {
				c.uploader.Release(fresh)
				return &UploadError{Path: path, Err: fmt.Errorf("waiting for device idle: %w", err)}
			}
			c.uploader.Release(e.resources)
		}
		record = fresh
	}

	e.active = active
	e.overlayPath = overlayPath
	e.resources = record
	e.rebuildPending = true
	return nil
}

// LoadWithOverlay loads an asset (if needed) and applies an overlay to
// it. Applying the already-active overlay is a no-op. Switching
// overlays re-reads the master from disk and applies the new overlay
// to those pristine bytes — overlays never stack.
func (c *Cache) LoadWithOverlay(assetPath, overlayPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("rescache: cache is closed")
	}

	e := c.entries[assetPath]
	if e != nil && e.overlayPath == overlayPath {
		return nil
	}

	// The master the overlay applies to: freshly decoded on first
	// load or when replacing a previous overlay, cached otherwise.
	var master *taf.Asset
	var err error
	switch {
	case e == nil || e.overlayPath != "":
		master, err = c.loadAsset(assetPath)
		if err != nil {
			return err
		}
	default:
		master = e.master
	}

	o, err := c.loadOverlay(overlayPath)
	if err != nil {
		return &OverlayError{AssetPath: assetPath, OverlayPath: overlayPath, Err: err}
	}
	active, err := overlay.Apply(o, master)
	if err != nil {
		return &OverlayError{AssetPath: assetPath, OverlayPath: overlayPath, Err: err}
	}

	if e == nil {
		record, err := c.uploader.Upload(active)
		if err != nil {
			return &UploadError{Path: assetPath, Err: err}
		}
		c.entries[assetPath] = &entry{
			master:         master,
			active:         active,
			overlayPath:    overlayPath,
			resources:      record,
			rebuildPending: true,
		}
	} else {
		if err := c.commitActive(assetPath, e, active, overlayPath); err != nil {
			return err
		}
		e.master = master
	}

	c.logger.Info("overlay applied", "asset", assetPath, "overlay", overlayPath)
	return nil
}

// ClearOverlays restores an asset to its on-disk state. The master is
// re-read from disk rather than restored from memory, so the result is
// the true file contents. Clearing a path with no overlay applied —
// including one that is not loaded at all — is a no-op.
func (c *Cache) ClearOverlays(assetPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("rescache: cache is closed")
	}

	e := c.entries[assetPath]
	if e == nil || e.overlayPath == "" {
		return nil
	}

	master, err := c.loadAsset(assetPath)
	if err != nil {
		return err
	}
	if err := c.commitActive(assetPath, e, master, ""); err != nil {
		return err
	}
	e.master = master

	c.logger.Info("overlays cleared", "asset", assetPath)
	return nil
}

// ReloadAsset re-reads an asset from disk, re-applies its active
// overlay if one is set, and refreshes the GPU tiers. The editor's
// file watcher calls this when the master changes on disk.
func (c *Cache) ReloadAsset(assetPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("rescache: cache is closed")
	}

	e := c.entries[assetPath]
	if e == nil {
		return ErrAssetNotFound
	}

	master, err := c.loadAsset(assetPath)
	if err != nil {
		return err
	}

	active := master
	if e.overlayPath != "" {
		o, err := c.loadOverlay(e.overlayPath)
		if err != nil {
			return &OverlayError{AssetPath: assetPath, OverlayPath: e.overlayPath, Err: err}
		}
		active, err = overlay.Apply(o, master)
		if err != nil {
			return &OverlayError{AssetPath: assetPath, OverlayPath: e.overlayPath, Err: err}
		}
	}

	if err := c.commitActive(assetPath, e, active, e.overlayPath); err != nil {
		return err
	}
	e.master = master

	c.logger.Info("asset reloaded", "path", assetPath, "overlay", e.overlayPath)
	return nil
}

// CheckForPipelineUpdates reports whether the asset's pipeline is
// stale relative to its active content.
func (c *Cache) CheckForPipelineUpdates(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	return e != nil && e.rebuildPending
}

// FlushPendingRebuilds rebuilds every stale pipeline. Per entry the
// new pipeline is built before the old one is destroyed, so a build
// failure leaves the previous pipeline usable; the first failure is
// returned and later entries are not attempted. Rebuilds whose shader
// chunk content is unchanged are skipped, and entries whose active
// asset has no shader chunk are marked clean without building.
func (c *Cache) FlushPendingRebuilds() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("rescache: cache is closed")
	}

	for _, path := range c.sortedPathsLocked() {
		e := c.entries[path]
		if !e.rebuildPending {
			continue
		}
		if err := c.rebuildPipelineLocked(path, e); err != nil {
			return err
		}
	}
	return nil
}

// rebuildPipelineLocked brings an entry's pipeline up to date with its
// active asset. A shaderless asset has no pipeline to build: the entry
// is marked clean, and any pipeline left over from a shader-bearing
// generation is retired. Called with the cache lock held.
func (c *Cache) rebuildPipelineLocked(path string, e *entry) error {
	chunk, ok := e.active.Chunk(taf.ChunkShader)
	if !ok {
		if e.pipeline != nil {
			if err := c.device.WaitIdle(); err != nil {
				return &BuildError{Path: path, Err: fmt.Errorf("waiting for device idle: %w", err)}
			}
			c.pipelines.Destroy(e.pipeline)
			e.pipeline = nil
			e.shaderDigest = taf.Digest{}
		}
		e.rebuildPending = false
		return nil
	}
	if e.pipeline != nil && taf.ChunkDigest(chunk) == e.shaderDigest {
		e.rebuildPending = false
		return nil
	}

	fresh, err := c.pipelines.Build(e.active)
	if err != nil {
		return &BuildError{Path: path, Err: err}
	}
	if e.pipeline != nil {
		if err := c.device.WaitIdle(); err != nil {
			c.pipelines.Destroy(fresh)
			return &BuildError{Path: path, Err: fmt.Errorf("waiting for device idle: %w", err)}
		}
		c.pipelines.Destroy(e.pipeline)
	}

	e.pipeline = fresh
	e.shaderDigest = taf.ChunkDigest(chunk)
	e.rebuildPending = false
	c.logger.Debug("pipeline rebuilt", "path", path, "mesh_shading", fresh.UsesMeshShading)
	return nil
}

// GetOrCreatePipeline returns the asset's pipeline, building one on
// first use. An existing pipeline is returned even when a rebuild is
// pending — staleness is resolved by FlushPendingRebuilds, not by
// draws.
func (c *Cache) GetOrCreatePipeline(path string) (*gpu.PipelineRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getOrCreatePipelineLocked(path)
}

func (c *Cache) getOrCreatePipelineLocked(path string) (*gpu.PipelineRecord, error) {
	e := c.entries[path]
	if e == nil {
		return nil, ErrAssetNotFound
	}
	if e.pipeline != nil {
		return e.pipeline, nil
	}
	if err := c.rebuildPipelineLocked(path, e); err != nil {
		return nil, err
	}
	if e.pipeline == nil {
		return nil, &BuildError{Path: path, Err: gpu.ErrNoShaders}
	}
	return e.pipeline, nil
}

// Unload releases all three tiers for an asset after a device idle
// wait. Unloading an unknown path is a no-op.
func (c *Cache) Unload(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	if e == nil {
		return nil
	}
	if err := c.device.WaitIdle(); err != nil {
		return fmt.Errorf("rescache: waiting for device idle: %w", err)
	}

	c.releaseEntryLocked(e)
	delete(c.entries, path)
	c.logger.Info("asset unloaded", "path", path)
	return nil
}

// Close releases every entry after a single device idle wait.
// Idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.device.WaitIdle(); err != nil {
		return fmt.Errorf("rescache: waiting for device idle: %w", err)
	}
	for _, e := range c.entries {
		c.releaseEntryLocked(e)
	}
	c.entries = nil
	return nil
}

func (c *Cache) releaseEntryLocked(e *entry) {
	if e.pipeline != nil {
		c.pipelines.Destroy(e.pipeline)
		e.pipeline = nil
	}
	if e.resources != nil {
		c.uploader.Release(e.resources)
		e.resources = nil
	}
}

// Asset returns the active (possibly overlay-patched) asset for a
// loaded path.
func (c *Cache) Asset(path string) (*taf.Asset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	if e == nil {
		return nil, false
	}
	return e.active, true
}

// OverlayFor returns the overlay path applied to an asset, or "" when
// the asset is loaded without one. The second result reports whether
// the asset is loaded at all.
func (c *Cache) OverlayFor(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	if e == nil {
		return "", false
	}
	return e.overlayPath, true
}

// Loaded returns the sorted list of loaded asset paths.
func (c *Cache) Loaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedPathsLocked()
}

func (c *Cache) sortedPathsLocked() []string {
	paths := make([]string, 0, len(c.entries))
	for path := range c.entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

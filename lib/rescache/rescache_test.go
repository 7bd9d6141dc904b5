// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package rescache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/tremor-engine/taffy/lib/gpu"
	"github.com/tremor-engine/taffy/lib/overlay"
	"github.com/tremor-engine/taffy/lib/taf"
)

// memFS is the injected file loader: a map of path to file bytes.
type memFS map[string][]byte

func (fs memFS) ReadFile(name string) ([]byte, error) {
	data, ok := fs[name]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", name)
	}
	return append([]byte(nil), data...), nil
}

func spirvModule(words int) []byte {
	code := make([]byte, (5+words)*4)
	binary.LittleEndian.PutUint32(code[0:], 0x07230203)
	return code
}

// quadGeometry encodes a two-triangle quad with the standard 60-byte
// vertex layout. fill seeds the vertex bytes so callers can produce
// distinguishable geometry content.
func quadGeometry(t *testing.T, fill byte) []byte {
	t.Helper()

	vertexData := make([]byte, 4*taf.StandardVertexStride)
	for i := range vertexData {
		vertexData[i] = fill
	}
	indexData := make([]byte, 6*4)
	for i, index := range []uint32{0, 1, 2, 0, 2, 3} {
		binary.LittleEndian.PutUint32(indexData[i*4:], index)
	}

	chunk, err := taf.EncodeGeometry(&taf.Geometry{
		GeometryHeader: taf.GeometryHeader{
			VertexCount:  4,
			IndexCount:   6,
			VertexStride: taf.StandardVertexStride,
			VertexFormat: taf.VertexHasPosition,
			RenderMode:   taf.RenderModeMeshShader,
		},
		VertexData: vertexData,
		IndexData:  indexData,
	})
	if err != nil {
		t.Fatalf("EncodeGeometry failed: %v", err)
	}
	return chunk
}

func meshShaders(t *testing.T, words int) []byte {
	t.Helper()
	return taf.EncodeShaders([]taf.Shader{
		{
			NameHash:       taf.HashName("quad_mesh"),
			EntryPointHash: taf.HashName("main"),
			Stage:          taf.StageMesh,
			MaxVertices:    64,
			MaxPrimitives:  32,
			WorkgroupSize:  [3]uint32{32, 1, 1},
			Code:           spirvModule(words),
		},
		{
			NameHash:       taf.HashName("quad_frag"),
			EntryPointHash: taf.HashName("main"),
			Stage:          taf.StageFragment,
			Code:           spirvModule(words + 1),
		},
	})
}

// quadAsset encodes a complete .taf master: quad geometry, mesh
// shaders, and a script chunk.
func quadAsset(t *testing.T, geometryFill byte) []byte {
	t.Helper()

	asset := taf.New()
	asset.SetCreator("rescache test")
	asset.SetChunk(taf.ChunkGeometry, quadGeometry(t, geometryFill))
	asset.SetChunk(taf.ChunkShader, meshShaders(t, 2))
	asset.SetChunk(taf.ChunkScript, []byte("master behavior"))

	encoded, err := taf.Encode(asset)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return encoded
}

func encodeOverlay(t *testing.T, o *overlay.Overlay) []byte {
	t.Helper()
	container, err := overlay.Build(o)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	encoded, err := taf.Encode(container)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return encoded
}

type harness struct {
	device *gpu.SoftwareDevice
	fs     memFS
	cache  *Cache
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	device := gpu.NewSoftwareDevice()
	pool, err := gpu.NewDescriptorPool(device, 16)
	if err != nil {
		t.Fatalf("NewDescriptorPool failed: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	fs := memFS{}
	cache, err := New(Config{
		Device:    device,
		Uploader:  &gpu.MeshUploader{Device: device, Pool: pool},
		Pipelines: &gpu.PipelineBuilder{Device: device},
		ReadFile:  fs.ReadFile,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	return &harness{device: device, fs: fs, cache: cache}
}

// fakeRecorder captures the draw calls the cache records.
type fakeRecorder struct {
	pipeline  gpu.PipelineHandle
	set       gpu.DescriptorSetHandle
	constants []byte
	meshDraws [][3]uint32
	draws     [][2]uint32
}

func (r *fakeRecorder) BindPipeline(pipeline gpu.PipelineHandle) { r.pipeline = pipeline }
func (r *fakeRecorder) BindDescriptorSet(_ gpu.PipelineLayoutHandle, set gpu.DescriptorSetHandle) {
	r.set = set
}
func (r *fakeRecorder) PushConstants(_ gpu.PipelineLayoutHandle, data []byte) { r.constants = data }
func (r *fakeRecorder) DrawMeshTasks(x, y, z uint32) {
	r.meshDraws = append(r.meshDraws, [3]uint32{x, y, z})
}
func (r *fakeRecorder) Draw(vertexCount, instanceCount uint32) {
	r.draws = append(r.draws, [2]uint32{vertexCount, instanceCount})
}

func TestEnsureLoadedUploadsOnce(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("second EnsureLoaded failed: %v", err)
	}

	if h.device.LiveBuffers() != 1 {
		t.Errorf("live buffers = %d, want 1", h.device.LiveBuffers())
	}
	if got := h.cache.Loaded(); len(got) != 1 || got[0] != "crate.taf" {
		t.Errorf("Loaded() = %v", got)
	}
}

func TestEnsureLoadedMissingFile(t *testing.T) {
	h := newHarness(t)

	err := h.cache.EnsureLoaded("missing.taf")
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want LoadError", err)
	}
	if h.device.LiveBuffers() != 0 {
		t.Errorf("failed load leaked %d buffers", h.device.LiveBuffers())
	}
}

func TestLoadWithOverlayPatchesGeometry(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["crate_edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkGeometry, Data: quadGeometry(t, 9)},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	if err := h.cache.LoadWithOverlay("crate.taf", "crate_edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	active, ok := h.cache.Asset("crate.taf")
	if !ok {
		t.Fatal("asset not loaded")
	}
	if !active.HasFeature(taf.FeatureEditorModified) {
		t.Error("patched asset lacks the editor-modified flag")
	}
	chunk, _ := active.Chunk(taf.ChunkGeometry)
	geometry, err := taf.ParseGeometry(chunk)
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if geometry.VertexData[0] != 9 {
		t.Error("active geometry is not the overlay's")
	}

	// The superseded buffer must be gone, and its release preceded by
	// an idle wait.
	if h.device.LiveBuffers() != 1 {
		t.Errorf("live buffers = %d, want 1", h.device.LiveBuffers())
	}
	if h.device.IdleWaits() == 0 {
		t.Error("superseded buffer released without a device idle wait")
	}

	if applied, _ := h.cache.OverlayFor("crate.taf"); applied != "crate_edit.tafo" {
		t.Errorf("OverlayFor = %q", applied)
	}
}

func TestLoadWithOverlayColdPathUploadsOnce(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkGeometry, Data: quadGeometry(t, 5)},
		},
	})

	// Applying an overlay to an unloaded asset must not upload the
	// master geometry first and then replace it.
	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}
	if h.device.LiveBuffers() != 1 {
		t.Errorf("live buffers = %d, want 1", h.device.LiveBuffers())
	}
	if h.device.IdleWaits() != 0 {
		t.Errorf("cold-path apply waited for idle %d times, want 0", h.device.IdleWaits())
	}
}

func TestLoadWithOverlaySameOverlayIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkGeometry, Data: quadGeometry(t, 5)},
		},
	})

	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}
	before := h.device.LiveBuffers()
	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	if h.device.LiveBuffers() != before {
		t.Error("re-applying the active overlay touched GPU state")
	}
}

func TestLoadWithOverlaySkipsUploadWhenGeometryUnchanged(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["script.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkScript, Data: []byte("patched behavior")},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	waitsBefore := h.device.IdleWaits()

	if err := h.cache.LoadWithOverlay("crate.taf", "script.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	// Geometry digest unchanged: same buffer, no idle wait, no
	// re-upload.
	if h.device.LiveBuffers() != 1 {
		t.Errorf("live buffers = %d, want 1", h.device.LiveBuffers())
	}
	if h.device.IdleWaits() != waitsBefore {
		t.Error("script-only overlay triggered a geometry re-upload")
	}
}

func TestOverlaysNeverStack(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["a.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpAdd, Type: taf.ChunkProperty, Data: []byte("from overlay a")},
		},
	})
	h.fs["b.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkScript, Data: []byte("from overlay b")},
		},
	})

	if err := h.cache.LoadWithOverlay("crate.taf", "a.tafo"); err != nil {
		t.Fatalf("applying a failed: %v", err)
	}
	if err := h.cache.LoadWithOverlay("crate.taf", "b.tafo"); err != nil {
		t.Fatalf("applying b failed: %v", err)
	}

	active, _ := h.cache.Asset("crate.taf")
	if active.HasChunk(taf.ChunkProperty) {
		t.Error("overlay a's chunk survived the switch to overlay b")
	}
	if data, _ := active.Chunk(taf.ChunkScript); string(data) != "from overlay b" {
		t.Errorf("script = %q, want overlay b's", data)
	}
}

func TestClearOverlaysReloadsFromDisk(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkScript, Data: []byte("patched")},
		},
	})

	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	// The file changes on disk while the overlay is active. Clearing
	// must surface the new disk bytes, not a stale in-memory master.
	h.fs["crate.taf"] = quadAsset(t, 7)

	if err := h.cache.ClearOverlays("crate.taf"); err != nil {
		t.Fatalf("ClearOverlays failed: %v", err)
	}

	active, _ := h.cache.Asset("crate.taf")
	if active.HasFeature(taf.FeatureEditorModified) {
		t.Error("cleared asset still carries the editor-modified flag")
	}
	if data, _ := active.Chunk(taf.ChunkScript); string(data) != "master behavior" {
		t.Errorf("script = %q, want master's", data)
	}
	chunk, _ := active.Chunk(taf.ChunkGeometry)
	geometry, _ := taf.ParseGeometry(chunk)
	if geometry.VertexData[0] != 7 {
		t.Error("cleared asset does not reflect the current disk bytes")
	}
	if applied, _ := h.cache.OverlayFor("crate.taf"); applied != "" {
		t.Errorf("OverlayFor = %q after clear", applied)
	}
}

func TestClearOverlaysWithoutOverlayIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)

	// Not loaded at all.
	if err := h.cache.ClearOverlays("crate.taf"); err != nil {
		t.Fatalf("ClearOverlays on unloaded asset failed: %v", err)
	}

	// Loaded, no overlay.
	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	waits := h.device.IdleWaits()
	if err := h.cache.ClearOverlays("crate.taf"); err != nil {
		t.Fatalf("ClearOverlays failed: %v", err)
	}
	if h.device.IdleWaits() != waits {
		t.Error("no-op clear touched the device")
	}
}

func TestOverlayFailureLeavesEntryIntact(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	// Add colliding with an existing chunk type fails on apply.
	h.fs["bad.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpAdd, Type: taf.ChunkScript, Data: []byte("collision")},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}

	err := h.cache.LoadWithOverlay("crate.taf", "bad.tafo")
	var overlayErr *OverlayError
	if !errors.As(err, &overlayErr) {
		t.Fatalf("err = %v, want OverlayError", err)
	}

	if applied, _ := h.cache.OverlayFor("crate.taf"); applied != "" {
		t.Errorf("failed apply recorded overlay %q", applied)
	}
	active, _ := h.cache.Asset("crate.taf")
	if active.HasFeature(taf.FeatureEditorModified) {
		t.Error("failed apply left the asset marked modified")
	}
	if h.device.LiveBuffers() != 1 {
		t.Errorf("live buffers = %d, want 1", h.device.LiveBuffers())
	}
}

func TestPipelineStaleUntilFlush(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["shaders.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkShader, Data: meshShaders(t, 8)},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	before, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	if err := h.cache.LoadWithOverlay("crate.taf", "shaders.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}
	if !h.cache.CheckForPipelineUpdates("crate.taf") {
		t.Error("shader overlay did not mark the pipeline stale")
	}

	// Draws before the flush use the previous pipeline.
	during, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if during.Pipeline != before.Pipeline {
		t.Error("stale window returned a different pipeline than the pre-overlay one")
	}

	if err := h.cache.FlushPendingRebuilds(); err != nil {
		t.Fatalf("FlushPendingRebuilds failed: %v", err)
	}
	if h.cache.CheckForPipelineUpdates("crate.taf") {
		t.Error("flush left the pipeline marked stale")
	}

	after, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if after.Pipeline == before.Pipeline {
		t.Error("flush did not produce a new pipeline")
	}
	if h.device.LivePipelines() != 1 {
		t.Errorf("live pipelines = %d, want 1", h.device.LivePipelines())
	}
}

func TestFlushSkipsUnchangedShaders(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["geometry.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkGeometry, Data: quadGeometry(t, 3)},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	before, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}

	if err := h.cache.LoadWithOverlay("crate.taf", "geometry.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}
	if err := h.cache.FlushPendingRebuilds(); err != nil {
		t.Fatalf("FlushPendingRebuilds failed: %v", err)
	}

	after, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if after.Pipeline != before.Pipeline {
		t.Error("geometry-only overlay rebuilt the pipeline")
	}
}

func TestFlushFailureKeepsOldPipeline(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["shaders.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkShader, Data: meshShaders(t, 8)},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	before, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if err := h.cache.LoadWithOverlay("crate.taf", "shaders.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	h.device.FailCreatePipeline = 1
	err = h.cache.FlushPendingRebuilds()
	var buildErr *BuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("err = %v, want BuildError", err)
	}

	// Old pipeline still bound, rebuild still pending for retry.
	current, err := h.cache.GetOrCreatePipeline("crate.taf")
	if err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if current.Pipeline != before.Pipeline {
		t.Error("failed flush lost the previous pipeline")
	}
	if !h.cache.CheckForPipelineUpdates("crate.taf") {
		t.Error("failed flush cleared the pending flag")
	}

	// Retry succeeds once the injected failure is spent.
	if err := h.cache.FlushPendingRebuilds(); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if h.device.LivePipelines() != 1 {
		t.Errorf("live pipelines = %d, want 1", h.device.LivePipelines())
	}
}

func TestFlushPassesShaderlessAssets(t *testing.T) {
	h := newHarness(t)

	plain := taf.New()
	plain.SetChunk(taf.ChunkGeometry, quadGeometry(t, 1))
	encoded, err := taf.Encode(plain)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	h.fs["a_plain.taf"] = encoded
	h.fs["z_shaded.taf"] = quadAsset(t, 2)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkGeometry, Data: quadGeometry(t, 7)},
		},
	})

	for _, path := range []string{"a_plain.taf", "z_shaded.taf"} {
		if err := h.cache.LoadWithOverlay(path, "edit.tafo"); err != nil {
			t.Fatalf("LoadWithOverlay(%s) failed: %v", path, err)
		}
	}

	// The shaderless entry sorts first and must not starve the one
	// behind it: a geometry-only asset has no pipeline to rebuild.
	if err := h.cache.FlushPendingRebuilds(); err != nil {
		t.Fatalf("FlushPendingRebuilds failed: %v", err)
	}
	for _, path := range []string{"a_plain.taf", "z_shaded.taf"} {
		if h.cache.CheckForPipelineUpdates(path) {
			t.Errorf("%s still pending after flush", path)
		}
	}

	if _, err := h.cache.GetOrCreatePipeline("z_shaded.taf"); err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if _, err := h.cache.GetOrCreatePipeline("a_plain.taf"); !errors.Is(err, gpu.ErrNoShaders) {
		t.Fatalf("err = %v, want ErrNoShaders", err)
	}
}

func TestFlushRetiresPipelineWhenOverlayRemovesShaders(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["strip.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpRemove, Type: taf.ChunkShader},
		},
	})

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	if _, err := h.cache.GetOrCreatePipeline("crate.taf"); err != nil {
		t.Fatalf("GetOrCreatePipeline failed: %v", err)
	}
	if err := h.cache.LoadWithOverlay("crate.taf", "strip.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	if err := h.cache.FlushPendingRebuilds(); err != nil {
		t.Fatalf("FlushPendingRebuilds failed: %v", err)
	}
	if h.device.LivePipelines() != 0 {
		t.Errorf("live pipelines = %d, want 0", h.device.LivePipelines())
	}
	if h.cache.CheckForPipelineUpdates("crate.taf") {
		t.Error("still pending after flush")
	}
}

func TestClosedCacheRejectsOperations(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	if err := h.cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := h.cache.ClearOverlays("crate.taf"); err == nil {
		t.Error("ClearOverlays succeeded on a closed cache")
	}
	if err := h.cache.ReloadAsset("crate.taf"); err == nil {
		t.Error("ReloadAsset succeeded on a closed cache")
	}
	if err := h.cache.FlushPendingRebuilds(); err == nil {
		t.Error("FlushPendingRebuilds succeeded on a closed cache")
	}
}

func TestRenderMeshAsset(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)

	if err := h.cache.EnsureLoaded("crate.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}

	recorder := &fakeRecorder{}
	if err := h.cache.RenderMeshAsset(recorder, "crate.taf", gpu.IdentityTransform()); err != nil {
		t.Fatalf("RenderMeshAsset failed: %v", err)
	}

	if recorder.pipeline == 0 {
		t.Error("no pipeline bound")
	}
	if recorder.set == 0 {
		t.Error("no descriptor set bound")
	}
	if len(recorder.constants) != gpu.PushConstantsSize {
		t.Fatalf("push constants size = %d, want %d", len(recorder.constants), gpu.PushConstantsSize)
	}
	if len(recorder.meshDraws) != 1 {
		t.Fatalf("mesh draws = %d, want 1", len(recorder.meshDraws))
	}
	// 2 primitives fit in one workgroup.
	if recorder.meshDraws[0] != [3]uint32{1, 1, 1} {
		t.Errorf("mesh draw groups = %v", recorder.meshDraws[0])
	}

	if binary.LittleEndian.Uint32(recorder.constants[64:]) != 4 {
		t.Error("vertex count not in push constants")
	}
	overlayFlags := binary.LittleEndian.Uint32(recorder.constants[80:])
	if overlayFlags&uint32(taf.FeatureEditorModified) != 0 {
		t.Error("unmodified asset carries the editor-modified bit")
	}
}

func TestRenderShowsOverlayFlag(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkScript, Data: []byte("patched")},
		},
	})

	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	recorder := &fakeRecorder{}
	if err := h.cache.RenderMeshAsset(recorder, "crate.taf", gpu.IdentityTransform()); err != nil {
		t.Fatalf("RenderMeshAsset failed: %v", err)
	}
	overlayFlags := binary.LittleEndian.Uint32(recorder.constants[80:])
	if overlayFlags&uint32(taf.FeatureEditorModified) == 0 {
		t.Error("patched asset does not carry the editor-modified bit")
	}
}

func TestRenderUnknownAsset(t *testing.T) {
	h := newHarness(t)
	err := h.cache.RenderMeshAsset(&fakeRecorder{}, "nope.taf", gpu.IdentityTransform())
	if !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("err = %v, want ErrAssetNotFound", err)
	}
}

func TestReloadAssetReappliesOverlay(t *testing.T) {
	h := newHarness(t)
	h.fs["crate.taf"] = quadAsset(t, 1)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkScript, Data: []byte("patched")},
		},
	})

	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	// Master changes on disk; reload must pick it up and re-apply the
	// active overlay on top.
	h.fs["crate.taf"] = quadAsset(t, 7)
	if err := h.cache.ReloadAsset("crate.taf"); err != nil {
		t.Fatalf("ReloadAsset failed: %v", err)
	}

	active, _ := h.cache.Asset("crate.taf")
	chunk, _ := active.Chunk(taf.ChunkGeometry)
	geometry, _ := taf.ParseGeometry(chunk)
	if geometry.VertexData[0] != 7 {
		t.Error("reload did not pick up new disk geometry")
	}
	if data, _ := active.Chunk(taf.ChunkScript); string(data) != "patched" {
		t.Error("reload dropped the active overlay")
	}
	if applied, _ := h.cache.OverlayFor("crate.taf"); applied != "edit.tafo" {
		t.Errorf("OverlayFor = %q after reload", applied)
	}
}

func TestUnloadAndCloseReleaseEverything(t *testing.T) {
	h := newHarness(t)
	h.fs["a.taf"] = quadAsset(t, 1)
	h.fs["b.taf"] = quadAsset(t, 2)

	for _, path := range []string{"a.taf", "b.taf"} {
		if err := h.cache.EnsureLoaded(path); err != nil {
			t.Fatalf("EnsureLoaded(%s) failed: %v", path, err)
		}
		if _, err := h.cache.GetOrCreatePipeline(path); err != nil {
			t.Fatalf("GetOrCreatePipeline(%s) failed: %v", path, err)
		}
	}

	if err := h.cache.Unload("a.taf"); err != nil {
		t.Fatalf("Unload failed: %v", err)
	}
	if h.device.LiveBuffers() != 1 || h.device.LivePipelines() != 1 {
		t.Errorf("after unload: %d buffers, %d pipelines, want 1 each",
			h.device.LiveBuffers(), h.device.LivePipelines())
	}
	if err := h.cache.Unload("a.taf"); err != nil {
		t.Fatalf("repeated Unload failed: %v", err)
	}

	if err := h.cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if h.device.LiveBuffers() != 0 || h.device.LivePipelines() != 0 || h.device.LiveModules() != 0 {
		t.Errorf("after close: %d buffers, %d pipelines, %d modules, want 0",
			h.device.LiveBuffers(), h.device.LivePipelines(), h.device.LiveModules())
	}
	if err := h.cache.EnsureLoaded("b.taf"); err == nil {
		t.Error("EnsureLoaded succeeded on a closed cache")
	}
}

func TestSaveRestoreState(t *testing.T) {
	h := newHarness(t)
	h.fs["a.taf"] = quadAsset(t, 1)
	h.fs["b.taf"] = quadAsset(t, 2)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkScript, Data: []byte("patched")},
		},
	})

	if err := h.cache.EnsureLoaded("a.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}
	if err := h.cache.LoadWithOverlay("b.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}

	state, err := h.cache.SaveState()
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	// Restore into a fresh cache sharing the same files.
	device := gpu.NewSoftwareDevice()
	pool, err := gpu.NewDescriptorPool(device, 16)
	if err != nil {
		t.Fatalf("NewDescriptorPool failed: %v", err)
	}
	defer pool.Close()
	restored, err := New(Config{
		Device:    device,
		Uploader:  &gpu.MeshUploader{Device: device, Pool: pool},
		Pipelines: &gpu.PipelineBuilder{Device: device},
		ReadFile:  h.fs.ReadFile,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer restored.Close()

	if err := restored.RestoreState(state); err != nil {
		t.Fatalf("RestoreState failed: %v", err)
	}

	if got := restored.Loaded(); len(got) != 2 {
		t.Fatalf("restored %d assets, want 2: %v", len(got), got)
	}
	if applied, _ := restored.OverlayFor("b.taf"); applied != "edit.tafo" {
		t.Errorf("restored OverlayFor(b.taf) = %q", applied)
	}
	if applied, _ := restored.OverlayFor("a.taf"); applied != "" {
		t.Errorf("restored OverlayFor(a.taf) = %q", applied)
	}

	active, _ := restored.Asset("b.taf")
	if data, _ := active.Chunk(taf.ChunkScript); string(data) != "patched" {
		t.Error("restored asset lost its overlay content")
	}
}

func TestStateIsDeterministic(t *testing.T) {
	h := newHarness(t)
	h.fs["a.taf"] = quadAsset(t, 1)
	if err := h.cache.EnsureLoaded("a.taf"); err != nil {
		t.Fatalf("EnsureLoaded failed: %v", err)
	}

	first, err := h.cache.SaveState()
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	second, err := h.cache.SaveState()
	if err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("saving the same session twice produced different bytes")
	}
}

func TestMasterFileBytesNeverChange(t *testing.T) {
	h := newHarness(t)
	original := quadAsset(t, 1)
	h.fs["crate.taf"] = append([]byte(nil), original...)
	h.fs["edit.tafo"] = encodeOverlay(t, &overlay.Overlay{
		Edits: []overlay.Edit{
			{Op: overlay.OpReplace, Type: taf.ChunkGeometry, Data: quadGeometry(t, 9)},
		},
	})

	if err := h.cache.LoadWithOverlay("crate.taf", "edit.tafo"); err != nil {
		t.Fatalf("LoadWithOverlay failed: %v", err)
	}
	if err := h.cache.ClearOverlays("crate.taf"); err != nil {
		t.Fatalf("ClearOverlays failed: %v", err)
	}

	if !bytes.Equal(h.fs["crate.taf"], original) {
		t.Error("master file bytes changed")
	}
}

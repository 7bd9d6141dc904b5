// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/tremor-engine/taffy/lib/overlay"
	"github.com/tremor-engine/taffy/lib/taf"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func spirvFixture() []byte {
	code := make([]byte, 20)
	binary.LittleEndian.PutUint32(code[0:], 0x07230203)
	return code
}

const assetManifest = `
name: quad
description: editor test quad
creator: asset pipeline
features: [embedded_scripts]
geometry:
  render_mode: mesh_shader
  lod_distance: 50
  vertices:
    - position: [0, 0, 0]
      normal: [0, 0, 1]
    - position: [1, 0, 0]
      normal: [0, 0, 1]
      uv: [1, 0]
    - position: [1, 1, 0]
      normal: [0, 0, 1]
      uv: [1, 1]
    - position: [0, 1, 0]
      normal: [0, 0, 1]
      uv: [0, 1]
  indices: [0, 1, 2, 0, 2, 3]
shaders:
  - name: quad_mesh
    stage: mesh
    file: quad.mesh.spv
    max_vertices: 64
    max_primitives: 32
    workgroup_size: [32, 1, 1]
  - name: quad_frag
    stage: fragment
    file: quad.frag.spv
materials:
  - name: default
    albedo: [0.5, 0.5, 0.5, 1]
    roughness: 0.8
dependencies:
  - name: core/shared-shaders
    version: "^1.0.0"
    kind: optional
chunks:
  - type: SCPT
    data: "boot script"
    compression: zstd
`

func TestBuildAssetFromManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quad.mesh.spv", spirvFixture())
	writeFile(t, dir, "quad.frag.spv", spirvFixture())
	path := writeFile(t, dir, "quad.yaml", []byte(assetManifest))

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Name != "quad" {
		t.Errorf("name = %q", m.Name)
	}

	asset, err := m.Build(dir)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !asset.HasFeature(taf.FeatureEmbeddedScripts) {
		t.Error("listed feature missing")
	}
	if !asset.HasFeature(taf.FeatureQuantizedCoords) {
		t.Error("geometry did not imply quantized coords")
	}
	if !asset.HasFeature(taf.FeatureDependencySystem) {
		t.Error("dependencies did not imply the dependency feature")
	}

	chunk, _ := asset.Chunk(taf.ChunkGeometry)
	geometry, err := taf.ParseGeometry(chunk)
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if geometry.VertexCount != 4 || geometry.IndexCount != 6 {
		t.Errorf("counts = %d/%d, want 4/6", geometry.VertexCount, geometry.IndexCount)
	}
	if geometry.VertexStride != taf.StandardVertexStride {
		t.Errorf("stride = %d, want %d", geometry.VertexStride, taf.StandardVertexStride)
	}
	if geometry.RenderMode != taf.RenderModeMeshShader {
		t.Errorf("render mode = %s", geometry.RenderMode)
	}
	if x, y, _ := geometry.BoundsMax.Meters(); x != 1 || y != 1 {
		t.Errorf("bounds max = (%g, %g)", x, y)
	}
	info, _ := asset.ChunkInfo(taf.ChunkGeometry)
	if info.Compression != taf.CompressionBG4LZ4 {
		t.Errorf("geometry compression = %s, want bg4_lz4 default", info.Compression)
	}

	shaderChunk, _ := asset.Chunk(taf.ChunkShader)
	shaders, err := taf.ParseShaders(shaderChunk)
	if err != nil {
		t.Fatalf("ParseShaders failed: %v", err)
	}
	if len(shaders) != 2 {
		t.Fatalf("shader count = %d, want 2", len(shaders))
	}
	if shaders[0].NameHash != taf.HashName("quad_mesh") || shaders[0].Stage != taf.StageMesh {
		t.Error("mesh shader descriptor wrong")
	}
	if shaders[0].MaxVertices != 64 || shaders[0].WorkgroupSize != [3]uint32{32, 1, 1} {
		t.Error("mesh limits lost")
	}

	materialChunk, _ := asset.Chunk(taf.ChunkMaterial)
	materials, err := taf.ParseMaterials(materialChunk)
	if err != nil {
		t.Fatalf("ParseMaterials failed: %v", err)
	}
	if len(materials) != 1 || materials[0].Name != "default" {
		t.Errorf("materials = %+v", materials)
	}
	if materials[0].AlbedoTexture != taf.TextureNone {
		t.Error("unused texture slot not TextureNone")
	}

	depChunk, _ := asset.Chunk(taf.ChunkDependency)
	dependencies, err := taf.ParseDependencies(depChunk)
	if err != nil {
		t.Fatalf("ParseDependencies failed: %v", err)
	}
	if len(dependencies) != 1 || dependencies[0].Kind != taf.DependencyOptional {
		t.Errorf("dependencies = %+v", dependencies)
	}

	if data, _ := asset.Chunk(taf.ChunkScript); string(data) != "boot script" {
		t.Errorf("script chunk = %q", data)
	}

	// The whole thing must survive a container round trip.
	encoded, err := taf.Encode(asset)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := taf.Decode(encoded, nil); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
}

func TestBuildRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
	}{
		{"no vertices", Manifest{Geometry: &GeometrySpec{}}},
		{"partial triangle", Manifest{Geometry: &GeometrySpec{
			Vertices: []VertexSpec{{}, {}, {}},
			Indices:  []uint32{0, 1},
		}}},
		{"index out of range", Manifest{Geometry: &GeometrySpec{
			Vertices: []VertexSpec{{}, {}, {}},
			Indices:  []uint32{0, 1, 9},
		}}},
		{"bad render mode", Manifest{Geometry: &GeometrySpec{
			RenderMode: "raytraced",
			Vertices:   []VertexSpec{{}},
		}}},
		{"bad feature", Manifest{Features: []string{"time_travel"}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := test.m.Build(t.TempDir()); err == nil {
				t.Error("Build accepted an invalid manifest")
			}
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", []byte("name: x\ngeomtery: {}\n"))
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a manifest with a misspelled section")
	}
}

const overlayManifest = `
target: quad.taf
description: script hotfix
edits:
  - op: replace
    chunk: SCPT
    data: "patched script"
  - op: add
    chunk: PROP
    data: "difficulty=hard"
  - op: remove
    chunk: PART
`

func TestBuildOverlayFromManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "patch.yaml", []byte(overlayManifest))

	m, err := LoadOverlay(path)
	if err != nil {
		t.Fatalf("LoadOverlay failed: %v", err)
	}
	o, err := m.BuildOverlay(dir)
	if err != nil {
		t.Fatalf("BuildOverlay failed: %v", err)
	}

	if len(o.Edits) != 3 {
		t.Fatalf("edits = %d, want 3", len(o.Edits))
	}
	if o.Edits[0].Op != overlay.OpReplace || string(o.Edits[0].Data) != "patched script" {
		t.Errorf("edit 0 = %+v", o.Edits[0])
	}
	if o.Edits[1].Op != overlay.OpAdd {
		t.Errorf("edit 1 op = %s", o.Edits[1].Op)
	}
	if o.Edits[2].Op != overlay.OpRemove || o.Edits[2].Data != nil {
		t.Errorf("edit 2 = %+v", o.Edits[2])
	}

	// Must produce an encodable .tafo.
	container, err := overlay.Build(o)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := taf.Encode(container); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
}

func TestBuildOverlayRemoveWithPayloadFails(t *testing.T) {
	m := &OverlayManifest{
		Edits: []EditSpec{{Op: "remove", Chunk: "SCPT", Data: "x"}},
	}
	if _, err := m.BuildOverlay(t.TempDir()); err == nil {
		t.Error("BuildOverlay accepted a remove edit with payload")
	}
}

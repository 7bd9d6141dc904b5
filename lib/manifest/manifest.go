// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tremor-engine/taffy/lib/overlay"
	"github.com/tremor-engine/taffy/lib/taf"
)

// Manifest describes a .taf container to build.
type Manifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Creator     string   `yaml:"creator,omitempty"`
	Features    []string `yaml:"features,omitempty"`

	Geometry     *GeometrySpec    `yaml:"geometry,omitempty"`
	Shaders      []ShaderSpec     `yaml:"shaders,omitempty"`
	Materials    []MaterialSpec   `yaml:"materials,omitempty"`
	Dependencies []DependencySpec `yaml:"dependencies,omitempty"`

	// Chunks carries raw payloads for chunk types the manifest schema
	// has no structured section for.
	Chunks []RawChunkSpec `yaml:"chunks,omitempty"`
}

// GeometrySpec is the mesh section. Vertices use the standard 60-byte
// layout: quantized position, normal, texcoord, tangent.
type GeometrySpec struct {
	RenderMode  string       `yaml:"render_mode,omitempty"` // "traditional" (default) or "mesh_shader"
	LODLevel    uint32       `yaml:"lod_level,omitempty"`
	LODDistance float32      `yaml:"lod_distance,omitempty"`
	Compression string       `yaml:"compression,omitempty"` // defaults to bg4_lz4
	Vertices    []VertexSpec `yaml:"vertices"`
	Indices     []uint32     `yaml:"indices,omitempty"`
}

// VertexSpec is one vertex in meters. Missing attributes are zero.
type VertexSpec struct {
	Position [3]float64 `yaml:"position"`
	Normal   [3]float32 `yaml:"normal,omitempty"`
	UV       [2]float32 `yaml:"uv,omitempty"`
	Tangent  [4]float32 `yaml:"tangent,omitempty"`
}

// ShaderSpec references a compiled SPIR-V file.
type ShaderSpec struct {
	Name          string    `yaml:"name"`
	Stage         string    `yaml:"stage"`
	EntryPoint    string    `yaml:"entry_point,omitempty"` // defaults to "main"
	File          string    `yaml:"file"`
	MaxVertices   uint32    `yaml:"max_vertices,omitempty"`
	MaxPrimitives uint32    `yaml:"max_primitives,omitempty"`
	WorkgroupSize [3]uint32 `yaml:"workgroup_size,omitempty"`
}

// MaterialSpec is one PBR material.
type MaterialSpec struct {
	Name            string     `yaml:"name"`
	Albedo          [4]float32 `yaml:"albedo,omitempty"`
	Metallic        float32    `yaml:"metallic,omitempty"`
	Roughness       float32    `yaml:"roughness,omitempty"`
	NormalIntensity float32    `yaml:"normal_intensity,omitempty"`
	Emission        [3]float32 `yaml:"emission,omitempty"`
}

// DependencySpec is one asset dependency.
type DependencySpec struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version,omitempty"`
	Kind        string `yaml:"kind,omitempty"` // "required" (default) or "optional"
	Description string `yaml:"description,omitempty"`
}

// RawChunkSpec is an arbitrary chunk: a 4-character type tag plus a
// payload, either inline or from a file.
type RawChunkSpec struct {
	Type        string `yaml:"type"`
	File        string `yaml:"file,omitempty"`
	Data        string `yaml:"data,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Compression string `yaml:"compression,omitempty"`
}

// OverlayManifest describes a .tafo overlay to build.
type OverlayManifest struct {
	Target      string     `yaml:"target,omitempty"` // informational
	Description string     `yaml:"description,omitempty"`
	Creator     string     `yaml:"creator,omitempty"`
	Features    []string   `yaml:"features,omitempty"`
	Edits       []EditSpec `yaml:"edits"`
}

// EditSpec is one overlay edit.
type EditSpec struct {
	Op          string `yaml:"op,omitempty"` // "replace" (default), "add", "remove"
	Chunk       string `yaml:"chunk"`
	File        string `yaml:"file,omitempty"`
	Data        string `yaml:"data,omitempty"`
	Name        string `yaml:"name,omitempty"`
	Compression string `yaml:"compression,omitempty"`
}

// decodeStrict unmarshals YAML rejecting unknown fields, so manifest
// typos fail loudly instead of silently dropping a section.
func decodeStrict(data []byte, v any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(v)
}

// Load reads an asset manifest from a YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	var m Manifest
	if err := decodeStrict(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	return &m, nil
}

// LoadOverlay reads an overlay manifest from a YAML file.
func LoadOverlay(path string) (*OverlayManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	var m OverlayManifest
	if err := decodeStrict(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	return &m, nil
}

// Build assembles the manifest into an asset. Referenced files are
// resolved relative to baseDir.
func (m *Manifest) Build(baseDir string) (*taf.Asset, error) {
	asset := taf.New()
	asset.SetCreator(m.Creator)
	asset.SetDescription(m.Description)

	for _, name := range m.Features {
		feature, err := taf.ParseFeature(name)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		asset.AddFeature(feature)
	}

	if m.Geometry != nil {
		if err := m.Geometry.build(asset); err != nil {
			return nil, err
		}
	}
	if len(m.Shaders) > 0 {
		if err := buildShaders(asset, m.Shaders, baseDir); err != nil {
			return nil, err
		}
	}
	if len(m.Materials) > 0 {
		buildMaterials(asset, m.Materials)
	}
	if len(m.Dependencies) > 0 {
		if err := buildDependencies(asset, m.Dependencies); err != nil {
			return nil, err
		}
	}
	for _, spec := range m.Chunks {
		if err := buildRawChunk(asset, spec, baseDir); err != nil {
			return nil, err
		}
	}
	return asset, nil
}

func (g *GeometrySpec) build(asset *taf.Asset) error {
	if len(g.Vertices) == 0 {
		return fmt.Errorf("manifest: geometry section has no vertices")
	}
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("manifest: %d indices do not form whole triangles", len(g.Indices))
	}

	var mode taf.RenderMode
	switch g.RenderMode {
	case "", "traditional":
		mode = taf.RenderModeTraditional
	case "mesh_shader":
		mode = taf.RenderModeMeshShader
	default:
		return fmt.Errorf("manifest: unknown render mode %q", g.RenderMode)
	}

	compression := taf.CompressionBG4LZ4
	if g.Compression != "" {
		var err error
		compression, err = taf.ParseCompressionTag(g.Compression)
		if err != nil {
			return fmt.Errorf("manifest: geometry: %w", err)
		}
	}

	vertexData := make([]byte, 0, len(g.Vertices)*taf.StandardVertexStride)
	boundsMin := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	boundsMax := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range g.Vertices {
		vertexData = append(vertexData, packVertex(v)...)
		for axis := 0; axis < 3; axis++ {
			boundsMin[axis] = math.Min(boundsMin[axis], v.Position[axis])
			boundsMax[axis] = math.Max(boundsMax[axis], v.Position[axis])
		}
	}

	indexData := make([]byte, len(g.Indices)*4)
	for i, index := range g.Indices {
		if int(index) >= len(g.Vertices) {
			return fmt.Errorf("manifest: index %d out of range for %d vertices", index, len(g.Vertices))
		}
		putU32(indexData[i*4:], index)
	}

	min := taf.Vec3QFromMeters(boundsMin[0], boundsMin[1], boundsMin[2])
	max := taf.Vec3QFromMeters(boundsMax[0], boundsMax[1], boundsMax[2])
	chunk, err := taf.EncodeGeometry(&taf.Geometry{
		GeometryHeader: taf.GeometryHeader{
			VertexCount:  uint32(len(g.Vertices)),
			IndexCount:   uint32(len(g.Indices)),
			VertexStride: taf.StandardVertexStride,
			VertexFormat: taf.VertexHasPosition | taf.VertexHasNormal | taf.VertexHasTexCoord | taf.VertexHasTangent,
			BoundsMin:    min,
			BoundsMax:    max,
			LODDistance:  g.LODDistance,
			LODLevel:     g.LODLevel,
			RenderMode:   mode,
		},
		VertexData: vertexData,
		IndexData:  indexData,
	})
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	asset.SetChunkOptions(taf.ChunkGeometry, chunk, taf.ChunkOptions{Compression: compression})
	asset.AddFeature(taf.FeatureQuantizedCoords)
	asset.Header.WorldMin = min
	asset.Header.WorldMax = max
	return nil
}

// packVertex encodes the standard 60-byte vertex: Vec3Q position,
// f32 normal, f32 uv, f32 tangent.
func packVertex(v VertexSpec) []byte {
	out := make([]byte, taf.StandardVertexStride)
	q := taf.Vec3QFromMeters(v.Position[0], v.Position[1], v.Position[2])
	putU64(out[0:], uint64(q.X))
	putU64(out[8:], uint64(q.Y))
	putU64(out[16:], uint64(q.Z))
	putF32(out[24:], v.Normal[0])
	putF32(out[28:], v.Normal[1])
	putF32(out[32:], v.Normal[2])
	putF32(out[36:], v.UV[0])
	putF32(out[40:], v.UV[1])
	putF32(out[44:], v.Tangent[0])
	putF32(out[48:], v.Tangent[1])
	putF32(out[52:], v.Tangent[2])
	putF32(out[56:], v.Tangent[3])
	return out
}

func buildShaders(asset *taf.Asset, specs []ShaderSpec, baseDir string) error {
	shaders := make([]taf.Shader, 0, len(specs))
	for _, spec := range specs {
		stage, err := taf.ParseShaderStage(spec.Stage)
		if err != nil {
			return fmt.Errorf("manifest: shader %q: %w", spec.Name, err)
		}
		code, err := os.ReadFile(filepath.Join(baseDir, spec.File))
		if err != nil {
			return fmt.Errorf("manifest: shader %q: %w", spec.Name, err)
		}
		if err := taf.ValidateSPIRV(code); err != nil {
			return fmt.Errorf("manifest: shader %q: %w", spec.Name, err)
		}

		entryPoint := spec.EntryPoint
		if entryPoint == "" {
			entryPoint = "main"
		}
		shaders = append(shaders, taf.Shader{
			NameHash:       taf.HashName(spec.Name),
			EntryPointHash: taf.HashName(entryPoint),
			Stage:          stage,
			MaxVertices:    spec.MaxVertices,
			MaxPrimitives:  spec.MaxPrimitives,
			WorkgroupSize:  spec.WorkgroupSize,
			Code:           code,
		})
	}
	asset.SetChunk(taf.ChunkShader, taf.EncodeShaders(shaders))
	return nil
}

func buildMaterials(asset *taf.Asset, specs []MaterialSpec) {
	materials := make([]taf.Material, 0, len(specs))
	for _, spec := range specs {
		materials = append(materials, taf.Material{
			Name:            spec.Name,
			Albedo:          spec.Albedo,
			Metallic:        spec.Metallic,
			Roughness:       spec.Roughness,
			NormalIntensity: spec.NormalIntensity,
			Emission:        spec.Emission,
			AlbedoTexture:   taf.TextureNone,
			NormalTexture:   taf.TextureNone,
			ORMTexture:      taf.TextureNone,
			EmissionTexture: taf.TextureNone,
		})
	}
	asset.SetChunk(taf.ChunkMaterial, taf.EncodeMaterials(materials))
}

func buildDependencies(asset *taf.Asset, specs []DependencySpec) error {
	dependencies := make([]taf.Dependency, 0, len(specs))
	for _, spec := range specs {
		var kind taf.DependencyKind
		switch spec.Kind {
		case "", "required":
			kind = taf.DependencyRequired
		case "optional":
			kind = taf.DependencyOptional
		default:
			return fmt.Errorf("manifest: dependency %q: unknown kind %q", spec.Name, spec.Kind)
		}
		dependencies = append(dependencies, taf.Dependency{
			Name:        spec.Name,
			VersionSpec: spec.Version,
			Kind:        kind,
			Description: spec.Description,
		})
	}
	asset.SetChunk(taf.ChunkDependency, taf.EncodeDependencies(dependencies))
	asset.AddFeature(taf.FeatureDependencySystem)
	asset.Header.DependencyCount = uint32(len(dependencies))
	return nil
}

func buildRawChunk(asset *taf.Asset, spec RawChunkSpec, baseDir string) error {
	chunkType, err := taf.MakeChunkType(spec.Type)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	payload, err := resolvePayload(spec.File, spec.Data, baseDir)
	if err != nil {
		return fmt.Errorf("manifest: chunk %s: %w", spec.Type, err)
	}
	compression, err := taf.ParseCompressionTag(spec.Compression)
	if err != nil {
		return fmt.Errorf("manifest: chunk %s: %w", spec.Type, err)
	}
	asset.SetChunkOptions(chunkType, payload, taf.ChunkOptions{
		Name:        spec.Name,
		Compression: compression,
	})
	return nil
}

// BuildOverlay assembles the manifest into an overlay.
func (m *OverlayManifest) BuildOverlay(baseDir string) (*overlay.Overlay, error) {
	o := &overlay.Overlay{
		Creator:     m.Creator,
		Description: m.Description,
	}
	for _, name := range m.Features {
		feature, err := taf.ParseFeature(name)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		o.Features |= feature
	}

	for _, spec := range m.Edits {
		op, err := overlay.ParseOp(spec.Op)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		chunkType, err := taf.MakeChunkType(spec.Chunk)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		compression, err := taf.ParseCompressionTag(spec.Compression)
		if err != nil {
			return nil, fmt.Errorf("manifest: edit %s: %w", spec.Chunk, err)
		}

		edit := overlay.Edit{
			Op:          op,
			Type:        chunkType,
			Name:        spec.Name,
			Compression: compression,
		}
		if op != overlay.OpRemove {
			payload, err := resolvePayload(spec.File, spec.Data, baseDir)
			if err != nil {
				return nil, fmt.Errorf("manifest: edit %s: %w", spec.Chunk, err)
			}
			edit.Data = payload
		} else if spec.File != "" || spec.Data != "" {
			return nil, fmt.Errorf("manifest: remove edit %s must not carry a payload", spec.Chunk)
		}
		o.Edits = append(o.Edits, edit)
	}
	return o, nil
}

// resolvePayload returns a chunk payload from either an inline data
// string or a referenced file, exactly one of which must be set.
func resolvePayload(file, data, baseDir string) ([]byte, error) {
	switch {
	case file != "" && data != "":
		return nil, fmt.Errorf("both file and data set")
	case file != "":
		payload, err := os.ReadFile(filepath.Join(baseDir, file))
		if err != nil {
			return nil, err
		}
		return payload, nil
	case data != "":
		return []byte(data), nil
	default:
		return nil, fmt.Errorf("neither file nor data set")
	}
}

func putU32(out []byte, v uint32) {
	binary.LittleEndian.PutUint32(out, v)
}

func putU64(out []byte, v uint64) {
	binary.LittleEndian.PutUint64(out, v)
}

func putF32(out []byte, v float32) {
	binary.LittleEndian.PutUint32(out, math.Float32bits(v))
}

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// GeometryHeaderSize is the encoded size of the geometry chunk
// header. Vertex bytes follow immediately, then index bytes.
const GeometryHeaderSize = 80

// RenderMode selects how a geometry chunk reaches the GPU.
type RenderMode uint32

const (
	// RenderModeTraditional uses the classic vertex/index path.
	RenderModeTraditional RenderMode = 0

	// RenderModeMeshShader feeds the uploaded buffers to a mesh
	// shader that synthesizes primitives itself.
	RenderModeMeshShader RenderMode = 1
)

func (m RenderMode) String() string {
	switch m {
	case RenderModeTraditional:
		return "traditional"
	case RenderModeMeshShader:
		return "mesh_shader"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(m))
	}
}

// Vertex format bitmask values for GeometryHeader.VertexFormat.
const (
	VertexHasPosition uint32 = 1 << 0 // quantized Vec3Q position
	VertexHasNormal   uint32 = 1 << 1 // 3 × f32
	VertexHasTexCoord uint32 = 1 << 2 // 2 × f32
	VertexHasTangent  uint32 = 1 << 3 // 4 × f32
	VertexHasColor    uint32 = 1 << 4 // 4 × f32
)

// StandardVertexStride is the stride of the engine's standard vertex:
// quantized position (24) + normal (12) + texcoord (8) + tangent (16).
const StandardVertexStride = 60

// GeometryHeader is the fixed-size prefix of a GEOM chunk.
type GeometryHeader struct {
	VertexCount  uint32
	IndexCount   uint32
	VertexStride uint32
	VertexFormat uint32

	BoundsMin Vec3Q
	BoundsMax Vec3Q

	LODDistance float32
	LODLevel    uint32

	RenderMode RenderMode
}

// Geometry is a parsed GEOM chunk. VertexData and IndexData alias the
// chunk payload — treat them as read-only.
type Geometry struct {
	GeometryHeader
	VertexData []byte // VertexCount * VertexStride bytes
	IndexData  []byte // IndexCount * 4 bytes, little-endian u32
}

// GeometryBoundsError reports a geometry chunk whose declared vertex
// and index ranges exceed the actual payload. Decode and upload both
// reject this — the declared counts must never cause a read past the
// payload.
type GeometryBoundsError struct {
	VertexCount  uint32
	VertexStride uint32
	IndexCount   uint32
	Payload      int // payload bytes available after the header
}

func (e *GeometryBoundsError) Error() string {
	return fmt.Sprintf("taf: geometry declares %d vertices × %d bytes + %d indices (%d bytes) but payload has %d",
		e.VertexCount, e.VertexStride, e.IndexCount,
		uint64(e.VertexCount)*uint64(e.VertexStride)+uint64(e.IndexCount)*4, e.Payload)
}

// ParseGeometry parses a GEOM chunk payload.
func ParseGeometry(data []byte) (*Geometry, error) {
	if len(data) < GeometryHeaderSize {
		return nil, fmt.Errorf("taf: geometry chunk of %d bytes is shorter than its %d-byte header",
			len(data), GeometryHeaderSize)
	}

	g := &Geometry{
		GeometryHeader: GeometryHeader{
			VertexCount:  binary.LittleEndian.Uint32(data[0:]),
			IndexCount:   binary.LittleEndian.Uint32(data[4:]),
			VertexStride: binary.LittleEndian.Uint32(data[8:]),
			VertexFormat: binary.LittleEndian.Uint32(data[12:]),
			BoundsMin:    decodeVec3Q(data[16:]),
			BoundsMax:    decodeVec3Q(data[40:]),
			LODDistance:  math.Float32frombits(binary.LittleEndian.Uint32(data[64:])),
			LODLevel:     binary.LittleEndian.Uint32(data[68:]),
			RenderMode:   RenderMode(binary.LittleEndian.Uint32(data[72:])),
		},
	}

	payload := len(data) - GeometryHeaderSize
	vertexBytes := uint64(g.VertexCount) * uint64(g.VertexStride)
	indexBytes := uint64(g.IndexCount) * 4
	if vertexBytes+indexBytes > uint64(payload) {
		return nil, &GeometryBoundsError{
			VertexCount:  g.VertexCount,
			VertexStride: g.VertexStride,
			IndexCount:   g.IndexCount,
			Payload:      payload,
		}
	}

	vertexEnd := GeometryHeaderSize + int(vertexBytes)
	g.VertexData = data[GeometryHeaderSize:vertexEnd]
	g.IndexData = data[vertexEnd : vertexEnd+int(indexBytes)]
	return g, nil
}

// Indices decodes the index data into a fresh slice.
func (g *Geometry) Indices() []uint32 {
	indices := make([]uint32, g.IndexCount)
	for i := range indices {
		indices[i] = binary.LittleEndian.Uint32(g.IndexData[i*4:])
	}
	return indices
}

// EncodeGeometry serializes a geometry chunk payload. The data slice
// lengths must match the declared counts exactly.
func EncodeGeometry(g *Geometry) ([]byte, error) {
	if uint64(len(g.VertexData)) != uint64(g.VertexCount)*uint64(g.VertexStride) {
		return nil, fmt.Errorf("taf: geometry vertex data is %d bytes, header declares %d × %d",
			len(g.VertexData), g.VertexCount, g.VertexStride)
	}
	if uint64(len(g.IndexData)) != uint64(g.IndexCount)*4 {
		return nil, fmt.Errorf("taf: geometry index data is %d bytes, header declares %d indices",
			len(g.IndexData), g.IndexCount)
	}

	out := make([]byte, GeometryHeaderSize+len(g.VertexData)+len(g.IndexData))
	binary.LittleEndian.PutUint32(out[0:], g.VertexCount)
	binary.LittleEndian.PutUint32(out[4:], g.IndexCount)
	binary.LittleEndian.PutUint32(out[8:], g.VertexStride)
	binary.LittleEndian.PutUint32(out[12:], g.VertexFormat)
	encodeVec3Q(out[16:], g.BoundsMin)
	encodeVec3Q(out[40:], g.BoundsMax)
	binary.LittleEndian.PutUint32(out[64:], math.Float32bits(g.LODDistance))
	binary.LittleEndian.PutUint32(out[68:], g.LODLevel)
	binary.LittleEndian.PutUint32(out[72:], uint32(g.RenderMode))
	copy(out[GeometryHeaderSize:], g.VertexData)
	copy(out[GeometryHeaderSize+len(g.VertexData):], g.IndexData)
	return out, nil
}

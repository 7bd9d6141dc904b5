// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"encoding/binary"
	"math"

	"github.com/tremor-engine/taffy/lib/taf"
)

// ResourceRecord is the GPU-resident state for one uploaded mesh
// asset: the combined vertex+index buffer, its descriptor set, and the
// draw parameters derived from the geometry header.
type ResourceRecord struct {
	Buffer        *BufferResource
	DescriptorSet DescriptorSetHandle

	VertexCount     uint32
	IndexCount      uint32
	PrimitiveCount  uint32
	VertexStride    uint32
	IndexByteOffset uint64

	UsesMeshShader bool

	// GeometryDigest is the content hash of the geometry chunk the
	// buffer was uploaded from. Cache reload paths compare digests to
	// skip re-uploading unchanged geometry.
	GeometryDigest taf.Digest
}

// PipelineRecord is the GPU-resident pipeline state for one asset: the
// pipeline, its layout, and the shader modules it was built from.
type PipelineRecord struct {
	Pipeline PipelineHandle
	Layout   PipelineLayoutHandle
	Modules  []ShaderModuleHandle

	UsesMeshShading bool
}

// PushConstantsSize is the byte size of the packed PushConstants
// block. Shaders declare a push constant range of exactly this size.
const PushConstantsSize = 84

// PushConstants is the per-draw constant block handed to shaders:
// the object transform plus the mesh layout parameters a mesh shader
// needs to read the combined buffer.
type PushConstants struct {
	// Transform is a column-major 4×4 model matrix.
	Transform [16]float32

	VertexCount     uint32
	PrimitiveCount  uint32
	VertexStride    uint32
	IndexByteOffset uint32

	// OverlayFlags carries the low 32 bits of the asset's feature
	// flags, letting shaders render patched content differently.
	OverlayFlags uint32
}

// Encode packs the block little-endian for CommandRecorder.PushConstants.
func (pc *PushConstants) Encode() []byte {
	out := make([]byte, PushConstantsSize)
	for i, v := range pc.Transform {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(out[64:], pc.VertexCount)
	binary.LittleEndian.PutUint32(out[68:], pc.PrimitiveCount)
	binary.LittleEndian.PutUint32(out[72:], pc.VertexStride)
	binary.LittleEndian.PutUint32(out[76:], pc.IndexByteOffset)
	binary.LittleEndian.PutUint32(out[80:], pc.OverlayFlags)
	return out
}

// IdentityTransform returns a column-major identity matrix for draws
// without an object transform.
func IdentityTransform() [16]float32 {
	return [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tremor-engine/taffy/lib/taf"
)

// ErrNoGeometry is returned by Upload for assets without a geometry
// chunk.
var ErrNoGeometry = errors.New("gpu: asset has no geometry chunk")

// MeshUploader turns an asset's geometry chunk into a GPU-resident
// ResourceRecord: one combined storage buffer holding vertex data
// followed by 4-byte-aligned index data, plus a descriptor set binding
// the whole buffer at binding 0.
type MeshUploader struct {
	Device Device
	Pool   *DescriptorPool

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (u *MeshUploader) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

// Upload parses the asset's geometry and uploads it. On any failure
// every resource created so far is destroyed before returning — a
// failed upload leaks nothing.
func (u *MeshUploader) Upload(asset *taf.Asset) (*ResourceRecord, error) {
	chunk, ok := asset.Chunk(taf.ChunkGeometry)
	if !ok {
		return nil, ErrNoGeometry
	}
	geometry, err := taf.ParseGeometry(chunk)
	if err != nil {
		return nil, fmt.Errorf("gpu: parsing geometry: %w", err)
	}
	if geometry.VertexCount == 0 {
		return nil, fmt.Errorf("gpu: geometry has no vertices")
	}

	indexOffset := align4(uint64(len(geometry.VertexData)))
	totalSize := indexOffset + uint64(len(geometry.IndexData))

	buffer, err := NewBufferResource(u.Device, totalSize,
		BufferUsageStorage|BufferUsageVertex|BufferUsageIndex)
	if err != nil {
		return nil, err
	}
	if err := buffer.Write(0, geometry.VertexData); err != nil {
		buffer.Close()
		return nil, fmt.Errorf("gpu: uploading vertex data: %w", err)
	}
	if len(geometry.IndexData) > 0 {
		if err := buffer.Write(indexOffset, geometry.IndexData); err != nil {
			buffer.Close()
			return nil, fmt.Errorf("gpu: uploading index data: %w", err)
		}
	}

	set, err := u.Pool.Allocate()
	if err != nil {
		buffer.Close()
		return nil, err
	}
	if err := u.Device.UpdateDescriptorSet(set, 0, buffer.Handle(), 0, totalSize); err != nil {
		buffer.Close()
		return nil, fmt.Errorf("gpu: updating descriptor set: %w", err)
	}

	record := &ResourceRecord{
		Buffer:          buffer,
		DescriptorSet:   set,
		VertexCount:     geometry.VertexCount,
		IndexCount:      geometry.IndexCount,
		PrimitiveCount:  primitiveCount(geometry),
		VertexStride:    geometry.VertexStride,
		IndexByteOffset: indexOffset,
		UsesMeshShader:  geometry.RenderMode == taf.RenderModeMeshShader,
		GeometryDigest:  taf.ChunkDigest(chunk),
	}

	u.logger().Debug("uploaded mesh geometry",
		"vertices", record.VertexCount,
		"indices", record.IndexCount,
		"bytes", totalSize,
		"mesh_shader", record.UsesMeshShader)
	return record, nil
}

// Release frees a record's GPU resources. The caller is responsible
// for any WaitIdle the frame pacing requires; Release itself does not
// synchronize.
func (u *MeshUploader) Release(record *ResourceRecord) {
	if record == nil || record.Buffer == nil {
		return
	}
	// Descriptor sets are pool-owned; they die with the pool.
	record.Buffer.Close()
}

func primitiveCount(g *taf.Geometry) uint32 {
	if g.IndexCount > 0 {
		return g.IndexCount / 3
	}
	return g.VertexCount / 3
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}

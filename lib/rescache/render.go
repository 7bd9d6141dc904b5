// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package rescache

import (
	"github.com/tremor-engine/taffy/lib/gpu"
)

// meshGroupPrimitives is how many primitives one mesh shader workgroup
// emits. Matches the MaxPrimitives the standard mesh shaders declare.
const meshGroupPrimitives = 32

// RenderMeshAsset records the draw for one asset: bind its pipeline
// and descriptor set, push the per-draw constants, and issue the draw.
// The pipeline may be stale when a rebuild is pending; the previous
// pipeline is used until the next flush.
func (c *Cache) RenderMeshAsset(recorder gpu.CommandRecorder, path string, transform [16]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[path]
	if e == nil {
		return ErrAssetNotFound
	}

	pipeline, err := c.getOrCreatePipelineLocked(path)
	if err != nil {
		return err
	}
	record := e.resources

	constants := gpu.PushConstants{
		Transform:       transform,
		VertexCount:     record.VertexCount,
		PrimitiveCount:  record.PrimitiveCount,
		VertexStride:    record.VertexStride,
		IndexByteOffset: uint32(record.IndexByteOffset),

		// Low word of the feature flags; overlay-patched assets carry
		// the editor-modified bit here so shaders can tint them.
		OverlayFlags: uint32(e.active.Header.FeatureFlags),
	}

	recorder.BindPipeline(pipeline.Pipeline)
	recorder.BindDescriptorSet(pipeline.Layout, record.DescriptorSet)
	recorder.PushConstants(pipeline.Layout, constants.Encode())

	if pipeline.UsesMeshShading {
		groups := (record.PrimitiveCount + meshGroupPrimitives - 1) / meshGroupPrimitives
		if groups == 0 {
			groups = 1
		}
		recorder.DrawMeshTasks(groups, 1, 1)
	} else {
		vertices := record.IndexCount
		if vertices == 0 {
			vertices = record.VertexCount
		}
		recorder.Draw(vertices, 1)
	}
	return nil
}

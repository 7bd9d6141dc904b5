// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"errors"

	"github.com/tremor-engine/taffy/lib/taf"
)

// Opaque device object handles. Zero is never a valid handle.
type (
	BufferHandle         uint64
	MemoryHandle         uint64
	DescriptorPoolHandle uint64
	DescriptorSetHandle  uint64
	ShaderModuleHandle   uint64
	PipelineHandle       uint64
	PipelineLayoutHandle uint64
)

// BufferUsage is a bitmask of buffer usage flags.
type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << 0
	BufferUsageVertex  BufferUsage = 1 << 1
	BufferUsageIndex   BufferUsage = 1 << 2
	BufferUsageUniform BufferUsage = 1 << 3
)

// Format identifies a render target pixel format. Values match the
// Vulkan VkFormat enumeration so real device backends can pass them
// through unmapped.
type Format uint32

const (
	FormatBGRA8Unorm Format = 44  // VK_FORMAT_B8G8R8A8_UNORM
	FormatD32Float   Format = 126 // VK_FORMAT_D32_SFLOAT
)

// StageSpec names one shader stage of a pipeline.
type StageSpec struct {
	Stage      taf.ShaderStage
	Module     ShaderModuleHandle
	EntryPoint string
}

// PipelineSpec describes a graphics pipeline to create.
type PipelineSpec struct {
	Stages           []StageSpec
	PushConstantSize uint32
	UsesMeshShading  bool

	ColorFormat Format
	DepthFormat Format
	SampleCount uint32
}

// ErrPoolOutOfMemory is returned by AllocateDescriptorSet when the
// pool has no capacity left. DescriptorPool reacts by growing; see
// pool.go.
var ErrPoolOutOfMemory = errors.New("gpu: descriptor pool out of memory")

// Device is the narrow interface between the asset pipeline and the
// GPU. Implementations must be safe for concurrent use.
//
// Destroy methods take the handles they free rather than returning
// errors: freeing is unconditional, and a handle that is already gone
// is an invariant violation an implementation may panic on.
type Device interface {
	// CreateBuffer allocates a device buffer and its backing memory.
	CreateBuffer(size uint64, usage BufferUsage) (BufferHandle, MemoryHandle, error)

	// WriteBuffer copies data into a buffer at the given offset.
	WriteBuffer(buffer BufferHandle, offset uint64, data []byte) error

	// DestroyBuffer frees a buffer and its memory.
	DestroyBuffer(buffer BufferHandle, memory MemoryHandle)

	// CreateDescriptorPool allocates a pool with capacity for maxSets
	// descriptor sets.
	CreateDescriptorPool(maxSets uint32) (DescriptorPoolHandle, error)

	// DestroyDescriptorPool frees a pool and every set allocated from
	// it.
	DestroyDescriptorPool(pool DescriptorPoolHandle)

	// AllocateDescriptorSet carves a set out of a pool. Returns
	// ErrPoolOutOfMemory when the pool is full.
	AllocateDescriptorSet(pool DescriptorPoolHandle) (DescriptorSetHandle, error)

	// UpdateDescriptorSet points a set's binding at a buffer range.
	UpdateDescriptorSet(set DescriptorSetHandle, binding uint32, buffer BufferHandle, offset, size uint64) error

	// CreateShaderModule uploads SPIR-V bytecode.
	CreateShaderModule(code []byte) (ShaderModuleHandle, error)

	// DestroyShaderModule frees a shader module.
	DestroyShaderModule(module ShaderModuleHandle)

	// CreatePipeline builds a graphics pipeline and its layout.
	CreatePipeline(spec PipelineSpec) (PipelineHandle, PipelineLayoutHandle, error)

	// DestroyPipeline frees a pipeline and its layout.
	DestroyPipeline(pipeline PipelineHandle, layout PipelineLayoutHandle)

	// WaitIdle blocks until the device has finished all submitted
	// work. Resource release paths call this before freeing anything
	// a frame in flight might still reference.
	WaitIdle() error
}

// CommandRecorder records draw state for one frame. The render loop
// owns the command buffer; the cache only records binds and push
// constants through this interface.
type CommandRecorder interface {
	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSet(layout PipelineLayoutHandle, set DescriptorSetHandle)
	PushConstants(layout PipelineLayoutHandle, data []byte)
	DrawMeshTasks(groupCountX, groupCountY, groupCountZ uint32)
	Draw(vertexCount, instanceCount uint32)
}

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"fmt"
	"sync"

	"github.com/tremor-engine/taffy/lib/taf"
)

// SoftwareDevice is an in-memory Device for tests and offline
// validation (dry-running an asset through upload and pipeline build
// without a GPU). Buffers are real byte slices, handles are counters,
// and the Fail* fields inject errors into upcoming calls.
type SoftwareDevice struct {
	mu   sync.Mutex
	next uint64

	buffers   map[BufferHandle]*softwareBuffer
	memories  map[MemoryHandle]bool
	pools     map[DescriptorPoolHandle]*softwarePool
	sets      map[DescriptorSetHandle]DescriptorPoolHandle
	modules   map[ShaderModuleHandle][]byte
	pipelines map[PipelineHandle]PipelineSpec
	layouts   map[PipelineLayoutHandle]bool

	idleWaits int

	// Error injection: each counts down per matching call and fires
	// when it reaches 1. Zero disables.
	FailCreateBuffer   int
	FailCreatePipeline int
	FailAllocateSet    int
}

type softwareBuffer struct {
	data  []byte
	usage BufferUsage
}

type softwarePool struct {
	capacity  uint32
	allocated uint32
}

// NewSoftwareDevice returns an empty software device.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{
		buffers:   make(map[BufferHandle]*softwareBuffer),
		memories:  make(map[MemoryHandle]bool),
		pools:     make(map[DescriptorPoolHandle]*softwarePool),
		sets:      make(map[DescriptorSetHandle]DescriptorPoolHandle),
		modules:   make(map[ShaderModuleHandle][]byte),
		pipelines: make(map[PipelineHandle]PipelineSpec),
		layouts:   make(map[PipelineLayoutHandle]bool),
	}
}

func (d *SoftwareDevice) handle() uint64 {
	d.next++
	return d.next
}

// fire decrements an injection counter and reports whether it hit.
func fire(counter *int) bool {
	if *counter == 0 {
		return false
	}
	*counter--
	return *counter == 0
}

func (d *SoftwareDevice) CreateBuffer(size uint64, usage BufferUsage) (BufferHandle, MemoryHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fire(&d.FailCreateBuffer) {
		return 0, 0, fmt.Errorf("gpu: injected buffer allocation failure")
	}

	buffer := BufferHandle(d.handle())
	memory := MemoryHandle(d.handle())
	d.buffers[buffer] = &softwareBuffer{data: make([]byte, size), usage: usage}
	d.memories[memory] = true
	return buffer, memory, nil
}

func (d *SoftwareDevice) WriteBuffer(buffer BufferHandle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[buffer]
	if !ok {
		return fmt.Errorf("gpu: write to unknown buffer %d", buffer)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("gpu: write of %d bytes at %d exceeds buffer size %d",
			len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *SoftwareDevice) DestroyBuffer(buffer BufferHandle, memory MemoryHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.buffers[buffer]; !ok {
		panic(fmt.Sprintf("gpu: double free of buffer %d", buffer))
	}
	delete(d.buffers, buffer)
	delete(d.memories, memory)
}

func (d *SoftwareDevice) CreateDescriptorPool(maxSets uint32) (DescriptorPoolHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pool := DescriptorPoolHandle(d.handle())
	d.pools[pool] = &softwarePool{capacity: maxSets}
	return pool, nil
}

func (d *SoftwareDevice) DestroyDescriptorPool(pool DescriptorPoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.pools, pool)
	for set, owner := range d.sets {
		if owner == pool {
			delete(d.sets, set)
		}
	}
}

func (d *SoftwareDevice) AllocateDescriptorSet(pool DescriptorPoolHandle) (DescriptorSetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fire(&d.FailAllocateSet) {
		return 0, fmt.Errorf("gpu: injected descriptor allocation failure")
	}

	p, ok := d.pools[pool]
	if !ok {
		return 0, fmt.Errorf("gpu: allocate from unknown pool %d", pool)
	}
	if p.allocated >= p.capacity {
		return 0, ErrPoolOutOfMemory
	}
	p.allocated++
	set := DescriptorSetHandle(d.handle())
	d.sets[set] = pool
	return set, nil
}

func (d *SoftwareDevice) UpdateDescriptorSet(set DescriptorSetHandle, binding uint32, buffer BufferHandle, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sets[set]; !ok {
		return fmt.Errorf("gpu: update of unknown descriptor set %d", set)
	}
	b, ok := d.buffers[buffer]
	if !ok {
		return fmt.Errorf("gpu: descriptor set %d references unknown buffer %d", set, buffer)
	}
	if offset+size > uint64(len(b.data)) {
		return fmt.Errorf("gpu: descriptor range %d+%d exceeds buffer size %d", offset, size, len(b.data))
	}
	return nil
}

func (d *SoftwareDevice) CreateShaderModule(code []byte) (ShaderModuleHandle, error) {
	if err := taf.ValidateSPIRV(code); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	module := ShaderModuleHandle(d.handle())
	d.modules[module] = append([]byte(nil), code...)
	return module, nil
}

func (d *SoftwareDevice) DestroyShaderModule(module ShaderModuleHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.modules, module)
}

func (d *SoftwareDevice) CreatePipeline(spec PipelineSpec) (PipelineHandle, PipelineLayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fire(&d.FailCreatePipeline) {
		return 0, 0, fmt.Errorf("gpu: injected pipeline creation failure")
	}
	if len(spec.Stages) == 0 {
		return 0, 0, fmt.Errorf("gpu: pipeline spec has no stages")
	}
	for _, stage := range spec.Stages {
		if _, ok := d.modules[stage.Module]; !ok {
			return 0, 0, fmt.Errorf("gpu: pipeline stage %s references unknown module %d",
				stage.Stage, stage.Module)
		}
	}

	pipeline := PipelineHandle(d.handle())
	layout := PipelineLayoutHandle(d.handle())
	d.pipelines[pipeline] = spec
	d.layouts[layout] = true
	return pipeline, layout, nil
}

func (d *SoftwareDevice) DestroyPipeline(pipeline PipelineHandle, layout PipelineLayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pipelines[pipeline]; !ok {
		panic(fmt.Sprintf("gpu: double free of pipeline %d", pipeline))
	}
	delete(d.pipelines, pipeline)
	delete(d.layouts, layout)
}

func (d *SoftwareDevice) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.idleWaits++
	return nil
}

// BufferContents returns a copy of a live buffer's bytes, for test
// assertions.
func (d *SoftwareDevice) BufferContents(buffer BufferHandle) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[buffer]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}

// Live resource counts, for leak assertions in tests.

func (d *SoftwareDevice) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

func (d *SoftwareDevice) LivePools() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pools)
}

func (d *SoftwareDevice) LiveSets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sets)
}

func (d *SoftwareDevice) LiveModules() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.modules)
}

func (d *SoftwareDevice) LivePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

// IdleWaits returns how many times WaitIdle has been called.
func (d *SoftwareDevice) IdleWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleWaits
}

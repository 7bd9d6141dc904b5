// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import "fmt"

// BufferResource owns a buffer and its backing memory as a unit.
// Close frees both; closing twice is a no-op.
type BufferResource struct {
	device Device
	buffer BufferHandle
	memory MemoryHandle
	size   uint64
	closed bool
}

// NewBufferResource allocates a buffer of the given size and usage.
func NewBufferResource(device Device, size uint64, usage BufferUsage) (*BufferResource, error) {
	if size == 0 {
		return nil, fmt.Errorf("gpu: buffer size must be positive")
	}
	buffer, memory, err := device.CreateBuffer(size, usage)
	if err != nil {
		return nil, fmt.Errorf("gpu: creating %d-byte buffer: %w", size, err)
	}
	return &BufferResource{device: device, buffer: buffer, memory: memory, size: size}, nil
}

// Write copies data into the buffer at offset.
func (b *BufferResource) Write(offset uint64, data []byte) error {
	if b.closed {
		return fmt.Errorf("gpu: write to closed buffer")
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("gpu: write of %d bytes at offset %d exceeds buffer size %d",
			len(data), offset, b.size)
	}
	return b.device.WriteBuffer(b.buffer, offset, data)
}

// Handle returns the underlying buffer handle for descriptor updates
// and binds.
func (b *BufferResource) Handle() BufferHandle {
	return b.buffer
}

// Size returns the buffer's byte size.
func (b *BufferResource) Size() uint64 {
	return b.size
}

// Close frees the buffer and its memory. Idempotent.
func (b *BufferResource) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.device.DestroyBuffer(b.buffer, b.memory)
	return nil
}

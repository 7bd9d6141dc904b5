// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPoolExhausted is returned by DescriptorPool.Allocate when the
// grow-and-retry for that allocation also fails. The failure is
// scoped to the allocation that hit it: the next exhaustion gets its
// own growth attempt.
var ErrPoolExhausted = errors.New("gpu: descriptor pool exhausted after growth")

// DescriptorPool allocates descriptor sets with a grow-on-exhaustion
// policy: when the device reports the active pool out of memory, a
// replacement pool of twice the previous capacity is created and the
// allocation retried once; a retry that also exhausts fails only that
// allocation. Earlier pools are kept until Close — descriptor sets
// cannot move between pools, so freeing a drained pool would
// invalidate live sets.
type DescriptorPool struct {
	device Device

	mu       sync.Mutex
	pools    []DescriptorPoolHandle
	capacity uint32
	closed   bool
}

// NewDescriptorPool creates a pool with the given initial set
// capacity.
func NewDescriptorPool(device Device, initialSets uint32) (*DescriptorPool, error) {
	if initialSets == 0 {
		return nil, fmt.Errorf("gpu: descriptor pool capacity must be positive")
	}
	handle, err := device.CreateDescriptorPool(initialSets)
	if err != nil {
		return nil, fmt.Errorf("gpu: creating descriptor pool: %w", err)
	}
	return &DescriptorPool{
		device:   device,
		pools:    []DescriptorPoolHandle{handle},
		capacity: initialSets,
	}, nil
}

// Allocate carves a descriptor set out of the active pool, growing
// once and retrying once when the pool is exhausted.
func (p *DescriptorPool) Allocate() (DescriptorSetHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, fmt.Errorf("gpu: allocate from closed descriptor pool")
	}

	active := p.pools[len(p.pools)-1]
	set, err := p.device.AllocateDescriptorSet(active)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, ErrPoolOutOfMemory) {
		return 0, fmt.Errorf("gpu: allocating descriptor set: %w", err)
	}

	grown := p.capacity * 2
	replacement, err := p.device.CreateDescriptorPool(grown)
	if err != nil {
		return 0, fmt.Errorf("gpu: growing descriptor pool to %d sets: %w", grown, err)
	}
	p.pools = append(p.pools, replacement)
	p.capacity = grown

	set, err = p.device.AllocateDescriptorSet(replacement)
	if err != nil {
		if errors.Is(err, ErrPoolOutOfMemory) {
			return 0, ErrPoolExhausted
		}
		return 0, fmt.Errorf("gpu: allocating descriptor set after growth: %w", err)
	}
	return set, nil
}

// Close destroys every pool and all sets allocated from them.
// Idempotent.
func (p *DescriptorPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, handle := range p.pools {
		p.device.DestroyDescriptorPool(handle)
	}
	p.pools = nil
	return nil
}

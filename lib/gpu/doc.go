// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package gpu abstracts the device operations the asset pipeline
// needs: buffer upload, descriptor management, shader modules and
// pipelines. The Device interface is the narrow waist — production
// builds back it with Vulkan, tests and offline tooling use
// SoftwareDevice, an in-memory implementation with error injection.
//
// Handles are opaque; ownership is explicit. BufferResource pairs a
// buffer with its memory allocation and frees both on Close.
// DescriptorPool grows by doubling each time the device reports pool
// exhaustion, retrying the allocation once; superseded pools stay
// alive, since descriptor sets cannot migrate between pools.
package gpu

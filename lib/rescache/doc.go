// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package rescache coordinates the three tiers of loaded asset state:
// the decoded container (CPU), the uploaded mesh resources (GPU
// buffers and descriptor sets), and the built pipelines. Every tier
// for one asset path lives in a single cache entry, updated as a unit,
// so a render loop can never observe a buffer from one overlay
// generation paired with a pipeline from another — except for the one
// deliberate staleness window: pipeline rebuilds are deferred until
// FlushPendingRebuilds, and draws issued before the flush use the
// previous pipeline against the new buffers.
//
// Overlay edits never touch disk or the decoded master. Applying an
// overlay patches a clone; clearing overlays reloads the master from
// disk, guaranteeing the restored state is the true on-disk bytes and
// not an in-memory reconstruction.
//
// All mutations are build-then-commit: new GPU state is created first,
// the entry is swapped after, and the superseded resources are
// released only after a device WaitIdle. A failure anywhere leaves the
// entry exactly as it was.
package rescache

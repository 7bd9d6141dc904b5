// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package overlay implements .tafo overlay patches for .taf asset
// containers.
//
// An overlay is itself a chunked container with the same wire format
// as a .taf file. Each chunk in the overlay is an edit against the
// target asset, with the edit operation encoded in the low two bits of
// the chunk directory entry's flags: replace the target chunk, add a
// chunk the target must not already have, or remove one (a remove edit
// carries no payload). Overlay feature flags are OR'd into the target
// on apply.
//
// Applying an overlay never mutates the master asset: Apply deep
// clones the master and patches the clone, so the on-disk bytes and
// the decoded master stay pristine. The result carries the
// editor-modified feature flag so downstream consumers can tell
// patched state from master state.
package overlay

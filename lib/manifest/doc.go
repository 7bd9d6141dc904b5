// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest builds .taf containers and .tafo overlays from YAML
// manifests. The manifest is the human-editable side of the asset
// pipeline: it names the geometry, materials, shader SPIR-V files and
// feature flags, and the builder packs them into chunks.
//
// Referenced files (SPIR-V bytecode, raw payloads) are resolved
// relative to the manifest's directory.
package manifest

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package taf implements the Taffy chunked asset container format.
//
// A .taf file is a little-endian binary container: a fixed-size,
// 8-byte-aligned header, followed by a directory of fixed-size chunk
// entries, followed by the chunk payloads. Payloads are located via
// each directory entry's absolute offset and size — they need not be
// contiguous or directory-ordered. Every chunk carries a four-byte
// type tag (FourCC), so producers can add new chunk kinds without
// breaking older consumers: unknown tags survive a decode→edit→encode
// round trip as opaque bytes.
//
// The package has three layers:
//
//   - Container codec: [Decode] and [Encode] convert between raw file
//     bytes and an [Asset], the in-memory header + chunk map.
//   - Chunk compression: per-chunk lz4/zstd codecs with a byte-group
//     transform for float32-heavy vertex payloads (see
//     [CompressionTag]).
//   - Typed chunk views: [ParseGeometry], [ParseShaders],
//     [ParseMaterials], [ParseDependencies], [ParseFont] and
//     [ParseAudio] give structured access to the known chunk kinds.
//
// Checksum verification is relaxed by default: CRC32 mismatches are
// recorded as [Warning] values on the decoded asset rather than
// failing the decode. Content that renders today should not stop
// rendering because a tool forgot to refresh a checksum. Pass
// [DecodeOptions] with StrictChecksums to opt into hard failures.
package taf

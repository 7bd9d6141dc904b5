// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the engine's standard CBOR encoding
// configuration.
//
// Binary asset payloads live in .taf containers; CBOR is for the
// metadata around them: cache state files (which overlay is applied to
// which asset), tool output in machine-readable form, and editor
// session state. This package provides the shared encoding and
// decoding modes so every package encodes identically without
// duplicating configuration. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, so state files diff cleanly and content
// hashes over encoded state are stable.
//
// For buffer-oriented operations (files, digests):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR.
//     Examples: cache state files, editor session snapshots.
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: types used in CLI
//     --json output.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec

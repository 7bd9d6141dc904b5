// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/hex"
	"fmt"
	"hash/crc32"

	"github.com/zeebo/blake3"
)

// Container checksums are CRC32 (IEEE) because the field is a
// protocol-level uint32: cheap corruption detection, not content
// identity. For identity — "did this overlay actually change the
// bytes the GPU sees?" — the cache layer compares BLAKE3 digests.

// chunkChecksum returns the CRC32 of an uncompressed chunk payload.
func chunkChecksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// fileChecksum returns the CRC32 of an encoded container with the
// header checksum field treated as zero. The caller passes the full
// file bytes; the field at headerChecksumOffset is skipped.
func fileChecksum(file []byte) uint32 {
	crc := crc32.Update(0, crc32.IEEETable, file[:headerChecksumOffset])
	crc = crc32.Update(crc, crc32.IEEETable, []byte{0, 0, 0, 0})
	return crc32.Update(crc, crc32.IEEETable, file[headerChecksumOffset+4:])
}

// Digest is a 32-byte BLAKE3 digest of chunk content. Digests are
// computed over uncompressed payload bytes, so they are stable across
// compression tag changes.
type Digest [32]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the zero value (no content
// hashed).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler so digests serialize
// as hex strings in state files and tool output.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("taf: parsing digest: %w", err)
	}
	if len(decoded) != len(d) {
		return fmt.Errorf("taf: digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return nil
}

// ChunkDigest computes the BLAKE3 digest of a chunk payload.
func ChunkDigest(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

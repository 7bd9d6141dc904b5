// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Header field offsets. The layout mirrors the C ABI struct the
// format was born with, including alignment padding, so offsets are
// spelled out rather than accumulated.
const (
	headerMagicOffset       = 0
	headerVersionOffset     = 4   // major u16, minor u16, patch u16, reserved u16
	headerFeatureOffset     = 16  // u64, preceded by 4 bytes of alignment padding
	headerChunkCountOffset  = 24  // u32
	headerDepCountOffset    = 28  // u32
	headerTotalSizeOffset   = 32  // u64
	headerWorldMinOffset    = 40  // 3 × i64
	headerWorldMaxOffset    = 64  // 3 × i64
	headerCreatedOffset     = 88  // u64
	headerModifiedOffset    = 96  // u64
	headerCreatorOffset     = 104 // 64 bytes, NUL padded
	headerDescriptionOffset = 168 // 128 bytes, NUL padded
	headerChecksumOffset    = 296 // u32, followed by 4 bytes of padding
)

// Chunk directory entry field offsets.
const (
	chunkTypeOffset        = 0  // u32 FourCC
	chunkSizeOffset        = 4  // u32 stored payload size
	chunkOffsetOffset      = 8  // u64 absolute file offset
	chunkChecksumOffset    = 16 // u32 CRC32 of uncompressed payload
	chunkCompressionOffset = 20 // u32
	chunkVersionOffset     = 24 // u32
	chunkFlagsOffset       = 28 // u32
	chunkNameOffset        = 32 // 32 bytes, NUL padded
)

// DecodeOptions adjusts decode behavior. The zero value is the
// default relaxed policy.
type DecodeOptions struct {
	// StrictChecksums turns CRC32 mismatches (file or chunk) into
	// hard decode failures instead of warnings.
	StrictChecksums bool
}

// Decode errors. VersionError, TruncatedError and ChecksumError are
// returned as typed values usable with errors.As; the sentinels below
// are wrapped with context.
var (
	// ErrTooShort indicates the input ends before the container
	// header or chunk directory does.
	ErrTooShort = errors.New("taf: input shorter than container structures")

	// ErrBadMagic indicates the input does not start with "TAF!".
	ErrBadMagic = errors.New("taf: bad magic")
)

// VersionError reports a container version outside the supported
// window. No chunk data is decoded when this is returned.
type VersionError struct {
	Major, Minor, Patch uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("taf: unsupported container version %d.%d.%d (supported: %d.0 through %d.%d)",
		e.Major, e.Minor, e.Patch, VersionMajor, VersionMajor, VersionMinor)
}

// TruncatedError reports a chunk whose declared extent lies outside
// the file.
type TruncatedError struct {
	Type     ChunkType
	Offset   uint64
	Size     uint32
	FileSize int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("taf: chunk %s at offset %d with size %d exceeds file size %d",
		e.Type, e.Offset, e.Size, e.FileSize)
}

// ChecksumError reports a CRC32 mismatch. Only returned in strict
// mode; the relaxed default records a Warning instead.
type ChecksumError struct {
	Context string // "file" or the chunk tag
	Want    uint32
	Got     uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("taf: %s checksum mismatch: stored %08x, computed %08x", e.Context, e.Want, e.Got)
}

// Decode parses a .taf container. options may be nil for defaults.
//
// The decode is strict about structure (magic, version window,
// directory bounds, chunk extents, decompression) and relaxed about
// checksums: mismatches become warnings on the returned asset unless
// StrictChecksums is set. Duplicate directory entries for the same
// chunk type are tolerated — the last entry wins — and recorded as a
// warning.
func Decode(data []byte, options *DecodeOptions) (*Asset, error) {
	if options == nil {
		options = &DecodeOptions{}
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrTooShort, len(data), HeaderSize)
	}
	if got := binary.LittleEndian.Uint32(data[headerMagicOffset:]); got != Magic {
		return nil, fmt.Errorf("%w: %08x", ErrBadMagic, got)
	}

	header := Header{
		VersionMajor:    binary.LittleEndian.Uint16(data[headerVersionOffset:]),
		VersionMinor:    binary.LittleEndian.Uint16(data[headerVersionOffset+2:]),
		VersionPatch:    binary.LittleEndian.Uint16(data[headerVersionOffset+4:]),
		FeatureFlags:    FeatureFlags(binary.LittleEndian.Uint64(data[headerFeatureOffset:])),
		ChunkCount:      binary.LittleEndian.Uint32(data[headerChunkCountOffset:]),
		DependencyCount: binary.LittleEndian.Uint32(data[headerDepCountOffset:]),
		TotalSize:       binary.LittleEndian.Uint64(data[headerTotalSizeOffset:]),
		WorldMin:        decodeVec3Q(data[headerWorldMinOffset:]),
		WorldMax:        decodeVec3Q(data[headerWorldMaxOffset:]),
		Created:         binary.LittleEndian.Uint64(data[headerCreatedOffset:]),
		Modified:        binary.LittleEndian.Uint64(data[headerModifiedOffset:]),
		Creator:         decodeFixedString(data[headerCreatorOffset : headerCreatorOffset+CreatorSize]),
		Description:     decodeFixedString(data[headerDescriptionOffset : headerDescriptionOffset+DescriptionSize]),
		Checksum:        binary.LittleEndian.Uint32(data[headerChecksumOffset:]),
	}

	if header.VersionMajor != VersionMajor || header.VersionMinor > VersionMinor {
		return nil, &VersionError{Major: header.VersionMajor, Minor: header.VersionMinor, Patch: header.VersionPatch}
	}

	directoryEnd := HeaderSize + int(header.ChunkCount)*ChunkHeaderSize
	if directoryEnd > len(data) || directoryEnd < HeaderSize {
		return nil, fmt.Errorf("%w: directory of %d entries needs %d bytes, file has %d",
			ErrTooShort, header.ChunkCount, directoryEnd, len(data))
	}

	asset := &Asset{
		Header: header,
		chunks: make(map[ChunkType]chunkState, header.ChunkCount),
	}

	if computed := fileChecksum(data); computed != header.Checksum {
		mismatch := &ChecksumError{Context: "file", Want: header.Checksum, Got: computed}
		if options.StrictChecksums {
			return nil, mismatch
		}
		asset.Warnings = append(asset.Warnings, Warning{Message: mismatch.Error()})
	}

	for i := 0; i < int(header.ChunkCount); i++ {
		entry, err := decodeChunkHeader(data[HeaderSize+i*ChunkHeaderSize:])
		if err != nil {
			return nil, fmt.Errorf("taf: directory entry %d: %w", i, err)
		}
		asset.Directory = append(asset.Directory, entry)

		end := entry.Offset + uint64(entry.Size)
		if end < entry.Offset || end > uint64(len(data)) {
			return nil, &TruncatedError{Type: entry.Type, Offset: entry.Offset, Size: entry.Size, FileSize: len(data)}
		}
		stored := data[entry.Offset:end]

		payload, err := decodeChunkPayload(stored, entry)
		if err != nil {
			return nil, fmt.Errorf("taf: chunk %s: %w", entry.Type, err)
		}

		if computed := chunkChecksum(payload); computed != entry.Checksum {
			mismatch := &ChecksumError{Context: entry.Type.String(), Want: entry.Checksum, Got: computed}
			if options.StrictChecksums {
				return nil, mismatch
			}
			asset.Warnings = append(asset.Warnings, Warning{Type: entry.Type, Message: mismatch.Error()})
		}

		if _, duplicate := asset.chunks[entry.Type]; duplicate {
			asset.Warnings = append(asset.Warnings, Warning{
				Type:    entry.Type,
				Message: "duplicate directory entry, keeping the later one",
			})
		}
		asset.chunks[entry.Type] = chunkState{
			data:        payload,
			name:        entry.Name,
			flags:       entry.Flags,
			version:     entry.Version,
			compression: entry.Compression,
		}
	}

	return asset, nil
}

// decodeChunkPayload undoes storage compression. Compressed payloads
// carry a u32 uncompressed-size prefix.
func decodeChunkPayload(stored []byte, entry ChunkHeader) ([]byte, error) {
	if entry.Compression == CompressionNone {
		// Copy so the asset does not alias the input buffer.
		return append([]byte(nil), stored...), nil
	}
	if len(stored) < 4 {
		return nil, fmt.Errorf("compressed payload of %d bytes lacks size prefix", len(stored))
	}
	uncompressedSize := int(binary.LittleEndian.Uint32(stored))
	return decompressChunk(stored[4:], entry.Compression, uncompressedSize)
}

func decodeChunkHeader(data []byte) (ChunkHeader, error) {
	entry := ChunkHeader{
		Type:        ChunkType(binary.LittleEndian.Uint32(data[chunkTypeOffset:])),
		Size:        binary.LittleEndian.Uint32(data[chunkSizeOffset:]),
		Offset:      binary.LittleEndian.Uint64(data[chunkOffsetOffset:]),
		Checksum:    binary.LittleEndian.Uint32(data[chunkChecksumOffset:]),
		Compression: CompressionTag(binary.LittleEndian.Uint32(data[chunkCompressionOffset:])),
		Version:     binary.LittleEndian.Uint32(data[chunkVersionOffset:]),
		Flags:       binary.LittleEndian.Uint32(data[chunkFlagsOffset:]),
		Name:        decodeFixedString(data[chunkNameOffset : chunkNameOffset+ChunkNameSize]),
	}
	if entry.Compression > CompressionBG4LZ4 {
		return ChunkHeader{}, fmt.Errorf("unknown compression tag %d", uint32(entry.Compression))
	}
	return entry, nil
}

// Encode serializes an asset. Chunk count, total size, offsets and
// checksums are recomputed from the chunk map; chunks are written in
// ascending tag order at 8-byte-aligned offsets, so encoding the same
// logical asset always produces identical bytes. The input asset is
// not modified.
//
// A chunk whose compression tag turns out to be ineffective (output
// not smaller than input) is stored uncompressed with its directory
// tag reset to none.
func Encode(a *Asset) ([]byte, error) {
	types := a.Types()

	type pending struct {
		entry  ChunkHeader
		stored []byte
	}
	chunks := make([]pending, 0, len(types))

	offset := uint64(HeaderSize + len(types)*ChunkHeaderSize)
	for _, t := range types {
		state := a.chunks[t]

		stored, tag, err := encodeChunkPayload(state.data, state.compression)
		if err != nil {
			return nil, fmt.Errorf("taf: chunk %s: %w", t, err)
		}

		offset = align8(offset)
		chunks = append(chunks, pending{
			entry: ChunkHeader{
				Type:        t,
				Size:        uint32(len(stored)),
				Offset:      offset,
				Checksum:    chunkChecksum(state.data),
				Compression: tag,
				Version:     state.version,
				Flags:       state.flags,
				Name:        state.name,
			},
			stored: stored,
		})
		offset += uint64(len(stored))
	}
	totalSize := offset

	out := make([]byte, totalSize)
	encodeHeader(out, a.Header, uint32(len(types)), totalSize)
	for i, chunk := range chunks {
		encodeChunkHeader(out[HeaderSize+i*ChunkHeaderSize:], chunk.entry)
		copy(out[chunk.entry.Offset:], chunk.stored)
	}

	// The checksum field is still zero here, so the CRC over the
	// buffer matches what Decode will compute with the field masked.
	binary.LittleEndian.PutUint32(out[headerChecksumOffset:], fileChecksum(out))
	return out, nil
}

// encodeChunkPayload applies storage compression, falling back to
// CompressionNone when the payload is incompressible. Compressed
// payloads are prefixed with their uncompressed size.
func encodeChunkPayload(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	if tag == CompressionNone {
		return data, CompressionNone, nil
	}
	compressed, err := compressChunk(data, tag)
	if err != nil {
		if IsIncompressible(err) {
			return data, CompressionNone, nil
		}
		return nil, 0, err
	}
	stored := make([]byte, 4+len(compressed))
	binary.LittleEndian.PutUint32(stored, uint32(len(data)))
	copy(stored[4:], compressed)
	return stored, tag, nil
}

func encodeHeader(out []byte, h Header, chunkCount uint32, totalSize uint64) {
	binary.LittleEndian.PutUint32(out[headerMagicOffset:], Magic)
	binary.LittleEndian.PutUint16(out[headerVersionOffset:], h.VersionMajor)
	binary.LittleEndian.PutUint16(out[headerVersionOffset+2:], h.VersionMinor)
	binary.LittleEndian.PutUint16(out[headerVersionOffset+4:], h.VersionPatch)
	binary.LittleEndian.PutUint64(out[headerFeatureOffset:], uint64(h.FeatureFlags))
	binary.LittleEndian.PutUint32(out[headerChunkCountOffset:], chunkCount)
	binary.LittleEndian.PutUint32(out[headerDepCountOffset:], h.DependencyCount)
	binary.LittleEndian.PutUint64(out[headerTotalSizeOffset:], totalSize)
	encodeVec3Q(out[headerWorldMinOffset:], h.WorldMin)
	encodeVec3Q(out[headerWorldMaxOffset:], h.WorldMax)
	binary.LittleEndian.PutUint64(out[headerCreatedOffset:], h.Created)
	binary.LittleEndian.PutUint64(out[headerModifiedOffset:], h.Modified)
	encodeFixedString(out[headerCreatorOffset:headerCreatorOffset+CreatorSize], h.Creator)
	encodeFixedString(out[headerDescriptionOffset:headerDescriptionOffset+DescriptionSize], h.Description)
	// Checksum is written by Encode after the full buffer exists.
}

func encodeChunkHeader(out []byte, entry ChunkHeader) {
	binary.LittleEndian.PutUint32(out[chunkTypeOffset:], uint32(entry.Type))
	binary.LittleEndian.PutUint32(out[chunkSizeOffset:], entry.Size)
	binary.LittleEndian.PutUint64(out[chunkOffsetOffset:], entry.Offset)
	binary.LittleEndian.PutUint32(out[chunkChecksumOffset:], entry.Checksum)
	binary.LittleEndian.PutUint32(out[chunkCompressionOffset:], uint32(entry.Compression))
	binary.LittleEndian.PutUint32(out[chunkVersionOffset:], entry.Version)
	binary.LittleEndian.PutUint32(out[chunkFlagsOffset:], entry.Flags)
	encodeFixedString(out[chunkNameOffset:chunkNameOffset+ChunkNameSize], entry.Name)
}

func decodeVec3Q(data []byte) Vec3Q {
	return Vec3Q{
		X: int64(binary.LittleEndian.Uint64(data[0:])),
		Y: int64(binary.LittleEndian.Uint64(data[8:])),
		Z: int64(binary.LittleEndian.Uint64(data[16:])),
	}
}

func encodeVec3Q(out []byte, v Vec3Q) {
	binary.LittleEndian.PutUint64(out[0:], uint64(v.X))
	binary.LittleEndian.PutUint64(out[8:], uint64(v.Y))
	binary.LittleEndian.PutUint64(out[16:], uint64(v.Z))
}

// decodeFixedString reads a NUL-padded fixed-width field.
func decodeFixedString(data []byte) string {
	for i, c := range data {
		if c == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

// encodeFixedString writes s into a zeroed fixed-width field,
// truncating to leave at least one trailing NUL.
func encodeFixedString(out []byte, s string) {
	limit := len(out) - 1
	if len(s) > limit {
		s = s[:limit]
	}
	copy(out, s)
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

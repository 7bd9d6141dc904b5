// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a
// chunk payload. Tags are stored in chunk directory entries. These
// values are protocol constants — changing them breaks container
// format compatibility.
type CompressionTag uint32

const (
	// CompressionNone indicates uncompressed data. The default, and
	// the right choice for already-compressed payloads (textures,
	// audio) where recompression adds CPU cost without shrinking
	// anything.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. Fast default
	// for mixed binary chunk data; decode speed matters more than
	// ratio on the asset hot-load path.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd at its default level. Better
	// ratios for text-like payloads: dialogue trees, scene graphs,
	// localization tables.
	CompressionZstd CompressionTag = 2

	// CompressionBG4LZ4 indicates ByteGrouping4 + LZ4. The payload
	// is transposed in 4-byte groups before LZ4 so that float32
	// values with similar magnitudes have their exponent bytes
	// adjacent. Effective for vertex attribute streams, where
	// neighboring positions and normals are numerically close.
	CompressionBG4LZ4 CompressionTag = 3
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionBG4LZ4:
		return "bg4_lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(tag))
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "bg4_lz4":
		return CompressionBG4LZ4, nil
	default:
		return 0, fmt.Errorf("taf: unknown compression tag: %q", name)
	}
}

// compressChunk compresses a payload with the given algorithm. For
// CompressionNone the input is returned unchanged (no copy). Returns
// errIncompressible when the output would not be smaller than the
// input; the encoder falls back to storing the chunk uncompressed.
func compressChunk(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	case CompressionBG4LZ4:
		transposed := bg4Transpose(data)
		return compressLZ4(transposed)
	default:
		return nil, fmt.Errorf("taf: unsupported compression tag: %d", uint32(tag))
	}
}

// decompressChunk reverses compressChunk. The uncompressedSize must
// match the original payload length exactly — a mismatch is an error,
// never a short read.
func decompressChunk(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("taf: uncompressed chunk: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)
	case CompressionBG4LZ4:
		transposed, err := decompressLZ4(compressed, uncompressedSize)
		if err != nil {
			return nil, err
		}
		return bg4Untranspose(transposed), nil
	default:
		return nil, fmt.Errorf("taf: unsupported compression tag: %d", uint32(tag))
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("taf: lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Also reject output that is not actually
	// smaller than the input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("taf: lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("taf: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("taf: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("taf: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("taf: zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("taf: zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// bg4Transpose rearranges data so that all byte-position-0 values
// come first, then all byte-position-1 values, and so on in groups of
// 4. Trailing bytes that do not fill a group are appended unchanged.
func bg4Transpose(data []byte) []byte {
	length := len(data)
	groupCount := length / 4
	remainder := length % 4

	output := make([]byte, length)
	for i := 0; i < groupCount; i++ {
		output[i] = data[i*4]
		output[groupCount+i] = data[i*4+1]
		output[groupCount*2+i] = data[i*4+2]
		output[groupCount*3+i] = data[i*4+3]
	}
	for i := 0; i < remainder; i++ {
		output[groupCount*4+i] = data[groupCount*4+i]
	}
	return output
}

// bg4Untranspose reverses bg4Transpose.
func bg4Untranspose(data []byte) []byte {
	length := len(data)
	groupCount := length / 4
	remainder := length % 4

	output := make([]byte, length)
	for i := 0; i < groupCount; i++ {
		output[i*4] = data[i]
		output[i*4+1] = data[groupCount+i]
		output[i*4+2] = data[groupCount*2+i]
		output[i*4+3] = data[groupCount*3+i]
	}
	for i := 0; i < remainder; i++ {
		output[groupCount*4+i] = data[groupCount*4+i]
	}
	return output
}

// errIncompressible is returned by the compressors when output would
// not be smaller than input. The encoder falls back to
// CompressionNone.
var errIncompressible = fmt.Errorf("taf: data is incompressible")

// IsIncompressible reports whether the error indicates that data
// could not be compressed smaller than its original size.
func IsIncompressible(err error) bool {
	return err == errIncompressible
}

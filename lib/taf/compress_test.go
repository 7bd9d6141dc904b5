// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestCompressionTagString(t *testing.T) {
	tests := []struct {
		tag  CompressionTag
		want string
	}{
		{CompressionNone, "none"},
		{CompressionLZ4, "lz4"},
		{CompressionZstd, "zstd"},
		{CompressionBG4LZ4, "bg4_lz4"},
		{CompressionTag(99), "unknown(99)"},
	}
	for _, test := range tests {
		if got := test.tag.String(); got != test.want {
			t.Errorf("CompressionTag(%d).String() = %q, want %q", uint32(test.tag), got, test.want)
		}
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd, CompressionBG4LZ4} {
		got, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Errorf("ParseCompressionTag(%q) failed: %v", tag.String(), err)
		}
		if got != tag {
			t.Errorf("ParseCompressionTag(%q) = %d, want %d", tag.String(), got, tag)
		}
	}
	if got, err := ParseCompressionTag(""); err != nil || got != CompressionNone {
		t.Errorf("ParseCompressionTag(\"\") = %d, %v", got, err)
	}
	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("ParseCompressionTag accepted an unknown name")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("chunk payload with plenty of redundancy "), 256)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd, CompressionBG4LZ4} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, err := compressChunk(payload, tag)
			if err != nil {
				t.Fatalf("compressChunk failed: %v", err)
			}
			if len(compressed) >= len(payload) {
				t.Errorf("compressed size %d >= input size %d", len(compressed), len(payload))
			}

			restored, err := decompressChunk(compressed, tag, len(payload))
			if err != nil {
				t.Fatalf("decompressChunk failed: %v", err)
			}
			if !bytes.Equal(restored, payload) {
				t.Error("round trip corrupted the payload")
			}
		})
	}
}

func TestCompressNoneIsIdentity(t *testing.T) {
	payload := []byte("as-is")
	compressed, err := compressChunk(payload, CompressionNone)
	if err != nil {
		t.Fatalf("compressChunk failed: %v", err)
	}
	if &compressed[0] != &payload[0] {
		t.Error("CompressionNone copied the payload")
	}
	if _, err := decompressChunk(compressed, CompressionNone, len(payload)+1); err == nil {
		t.Error("size mismatch accepted for uncompressed chunk")
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	payload := bytes.Repeat([]byte{7}, 1024)
	compressed, err := compressChunk(payload, CompressionLZ4)
	if err != nil {
		t.Fatalf("compressChunk failed: %v", err)
	}
	if _, err := decompressChunk(compressed, CompressionLZ4, len(payload)-1); err == nil {
		t.Error("lz4 size mismatch accepted")
	}
}

func TestBG4TransposeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{"empty", 0},
		{"under one group", 3},
		{"exact groups", 64},
		{"with remainder", 67},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := make([]byte, test.length)
			for i := range data {
				data[i] = byte(i * 31)
			}
			restored := bg4Untranspose(bg4Transpose(data))
			if !bytes.Equal(restored, data) {
				t.Error("transpose round trip corrupted data")
			}
		})
	}
}

func TestBG4GroupsExponentBytes(t *testing.T) {
	// Float32 values of similar magnitude share high bytes; after the
	// transpose those bytes are adjacent. Verify the layout directly.
	data := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(i)+100))
	}
	transposed := bg4Transpose(data)
	for i := 0; i < 4; i++ {
		if transposed[12+i] != data[i*4+3] {
			t.Fatalf("byte position 3 of group %d not in final quarter", i)
		}
	}
}

func TestIsIncompressible(t *testing.T) {
	if !IsIncompressible(errIncompressible) {
		t.Error("IsIncompressible(errIncompressible) = false")
	}
	if IsIncompressible(nil) {
		t.Error("IsIncompressible(nil) = true")
	}

	// A tiny high-entropy payload cannot shrink.
	_, err := compressChunk([]byte{0x12, 0x73, 0xF1, 0x9C, 0x55}, CompressionLZ4)
	if !IsIncompressible(err) {
		t.Errorf("err = %v, want errIncompressible", err)
	}
}

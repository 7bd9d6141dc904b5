// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// sampleEntry is a representative cache state record using cbor struct
// tags (the convention for purely-internal types).
type sampleEntry struct {
	AssetPath   string `cbor:"asset_path"`
	OverlayPath string `cbor:"overlay_path,omitempty"`
	Generation  int    `cbor:"generation"`
}

// sampleReport uses json struct tags (the convention for types that
// serve both JSON and CBOR, relying on fxamacker's fallback).
type sampleReport struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleEntry{
		AssetPath:   "assets/props/crate.taf",
		OverlayPath: "edits/crate_hotfix.tafo",
		Generation:  42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	entry := sampleEntry{
		AssetPath:   "assets/levels/hub.taf",
		OverlayPath: "edits/hub.tafo",
		Generation:  7,
	}

	first, err := Marshal(entry)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(entry)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	entries := []sampleEntry{
		{AssetPath: "a.taf", OverlayPath: "a.tafo", Generation: 1},
		{AssetPath: "b.taf", OverlayPath: "b.tafo", Generation: 2},
		{AssetPath: "c.taf", Generation: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range entries {
		var got sampleEntry
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode entry %d: %v", i, err)
		}
		if got != want {
			t.Errorf("entry %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	// Types with json tags (no cbor tags) should encode/decode
	// correctly through our modes, using json tag names as CBOR map
	// keys.
	original := sampleReport{Version: 3, Name: "inspect"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleReport
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	withOverlay := sampleEntry{AssetPath: "a.taf", OverlayPath: "x.tafo", Generation: 1}
	withoutOverlay := sampleEntry{AssetPath: "a.taf", Generation: 1}

	dataWith, err := Marshal(withOverlay)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutOverlay)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the overlay field should be shorter
	// because the omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var entry sampleEntry
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &entry); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Verify that []byte fields encode as CBOR byte strings (major
	// type 2), not text strings. This matters for carrying digests
	// and raw chunk payloads.
	type envelope struct {
		Payload []byte `cbor:"payload"`
	}

	original := envelope{Payload: []byte{0x21, 0x46, 0x41, 0x54, 0x00, 0xFF}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(decoded.Payload, original.Payload) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Payload, original.Payload)
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"asset": "crate.taf"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"asset"`) {
		t.Errorf("notation %q does not contain \"asset\"", notation)
	}
	if !strings.Contains(notation, `"crate.taf"`) {
		t.Errorf("notation %q does not contain \"crate.taf\"", notation)
	}
}

func TestDiagnoseFirst(t *testing.T) {
	item1, err := Marshal("hello")
	if err != nil {
		t.Fatalf("Marshal item 1: %v", err)
	}
	item2, err := Marshal(int64(42))
	if err != nil {
		t.Fatalf("Marshal item 2: %v", err)
	}

	var sequence []byte
	sequence = append(sequence, item1...)
	sequence = append(sequence, item2...)

	notation, remaining, err := DiagnoseFirst(sequence)
	if err != nil {
		t.Fatalf("DiagnoseFirst: %v", err)
	}
	if !strings.Contains(notation, `"hello"`) {
		t.Errorf("first item notation %q does not contain \"hello\"", notation)
	}
	if len(remaining) == 0 {
		t.Fatal("expected remaining bytes after first item")
	}

	notation2, remaining2, err := DiagnoseFirst(remaining)
	if err != nil {
		t.Fatalf("DiagnoseFirst second: %v", err)
	}
	if !strings.Contains(notation2, "42") {
		t.Errorf("second item notation %q does not contain \"42\"", notation2)
	}
	if len(remaining2) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining2))
	}
}

func BenchmarkMarshal(b *testing.B) {
	entry := sampleEntry{
		AssetPath:   "assets/props/crate.taf",
		OverlayPath: "edits/crate_hotfix.tafo",
		Generation:  42,
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Marshal(entry)
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	entry := sampleEntry{
		AssetPath:   "assets/props/crate.taf",
		OverlayPath: "edits/crate_hotfix.tafo",
		Generation:  42,
	}
	data, err := Marshal(entry)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var decoded sampleEntry
		Unmarshal(data, &decoded)
	}
}

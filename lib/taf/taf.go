// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"fmt"
	"sort"
	"time"
)

// Magic is the container magic number: "TAF!" read as a little-endian
// uint32. It is the first four bytes of every .taf and .tafo file.
const Magic uint32 = 0x21464154

// Current format version. The decoder accepts any file whose major
// version matches VersionMajor and whose minor version is at most
// VersionMinor. Patch versions never affect compatibility.
const (
	VersionMajor uint16 = 0
	VersionMinor uint16 = 1
	VersionPatch uint16 = 0
)

// Fixed on-disk sizes. These are protocol constants — changing them
// breaks container format compatibility.
const (
	// HeaderSize is the encoded size of [Header] in bytes.
	HeaderSize = 304

	// ChunkHeaderSize is the encoded size of a [ChunkHeader]
	// directory entry in bytes.
	ChunkHeaderSize = 64

	// CreatorSize and DescriptionSize bound the fixed-width header
	// string fields. Longer strings are truncated on encode.
	CreatorSize     = 64
	DescriptionSize = 128

	// ChunkNameSize bounds the optional human-readable name in a
	// directory entry.
	ChunkNameSize = 32
)

// FeatureFlags is the header capability bitset. An asset advertises
// the optional features it relies on; a consumer that does not
// support an advertised feature can refuse the asset up front instead
// of failing mid-frame.
type FeatureFlags uint64

const (
	// FeatureQuantizedCoords marks positions stored as 64-bit
	// quantized coordinates (see [Vec3Q]) rather than floats.
	FeatureQuantizedCoords FeatureFlags = 1 << 0

	// FeatureRealTimeFracture marks embedded Voronoi fracture
	// patterns (FRAC chunks).
	FeatureRealTimeFracture FeatureFlags = 1 << 1

	// FeatureEmbeddedScripts marks embedded bytecode (SCPT chunks).
	FeatureEmbeddedScripts FeatureFlags = 1 << 2

	// FeatureParticleSystems marks self-contained particle effects
	// (PART chunks).
	FeatureParticleSystems FeatureFlags = 1 << 3

	// FeatureNarrativeContent marks dialogue trees (NARR chunks).
	FeatureNarrativeContent FeatureFlags = 1 << 4

	// FeatureSVGUserInterface marks programmable vector UI (SVGU
	// chunks).
	FeatureSVGUserInterface FeatureFlags = 1 << 5

	// FeatureDependencySystem marks modular asset composition (DEPS
	// chunks).
	FeatureDependencySystem FeatureFlags = 1 << 6

	// FeatureEditorModified marks an asset whose active state has
	// been changed by an editor overlay. Overlays set this flag so
	// shaders and tools can distinguish patched content from the
	// on-disk master.
	FeatureEditorModified FeatureFlags = 1 << 7
)

// featureNames maps single feature bits to their manifest names.
var featureNames = map[FeatureFlags]string{
	FeatureQuantizedCoords:  "quantized_coords",
	FeatureRealTimeFracture: "realtime_fracture",
	FeatureEmbeddedScripts:  "embedded_scripts",
	FeatureParticleSystems:  "particle_systems",
	FeatureNarrativeContent: "narrative_content",
	FeatureSVGUserInterface: "svg_ui",
	FeatureDependencySystem: "dependency_system",
	FeatureEditorModified:   "editor_modified",
}

// Has reports whether all bits of feature are set.
func (f FeatureFlags) Has(feature FeatureFlags) bool {
	return f&feature == feature
}

// String returns the set feature names joined by "|", or "none".
func (f FeatureFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := make([]string, 0, 8)
	for bit := FeatureFlags(1); bit != 0; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if name, ok := featureNames[bit]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("bit%d", bitIndex(bit)))
		}
	}
	out := names[0]
	for _, name := range names[1:] {
		out += "|" + name
	}
	return out
}

func bitIndex(f FeatureFlags) int {
	n := 0
	for f > 1 {
		f >>= 1
		n++
	}
	return n
}

// ParseFeature returns the feature bit for a manifest name.
func ParseFeature(name string) (FeatureFlags, error) {
	for bit, n := range featureNames {
		if n == name {
			return bit, nil
		}
	}
	return 0, fmt.Errorf("taf: unknown feature flag %q", name)
}

// QuantScale converts meters to quantized units: 128 units per
// millimeter, so one unit is 1/128 mm. World-scale coordinates keep
// sub-millimeter precision without floating-point drift.
const QuantScale = 128000.0

// Vec3Q is a quantized 3D coordinate: three signed 64-bit values in
// 1/128 mm units.
type Vec3Q struct {
	X, Y, Z int64
}

// Vec3QFromMeters quantizes a position given in meters.
func Vec3QFromMeters(x, y, z float64) Vec3Q {
	return Vec3Q{
		X: int64(x * QuantScale),
		Y: int64(y * QuantScale),
		Z: int64(z * QuantScale),
	}
}

// Meters converts the quantized coordinate back to meters.
func (v Vec3Q) Meters() (x, y, z float64) {
	return float64(v.X) / QuantScale, float64(v.Y) / QuantScale, float64(v.Z) / QuantScale
}

// Header is the decoded container header. The magic number is
// implicit; the checksum field holds the CRC32 read from disk (it is
// recomputed on encode).
type Header struct {
	VersionMajor uint16
	VersionMinor uint16
	VersionPatch uint16

	FeatureFlags FeatureFlags

	// ChunkCount and TotalSize are recomputed on encode from the
	// chunk map. After a decode they hold the values read from the
	// file.
	ChunkCount      uint32
	DependencyCount uint32
	TotalSize       uint64

	// Quantized world-space bounding box of all geometry.
	WorldMin Vec3Q
	WorldMax Vec3Q

	// Unix timestamps (seconds).
	Created  uint64
	Modified uint64

	Creator     string
	Description string

	// Checksum is the CRC32 of the encoded file with this field
	// zeroed. Verified per the relaxed policy (see package doc).
	Checksum uint32
}

// ChunkHeader is a chunk directory entry.
type ChunkHeader struct {
	Type        ChunkType
	Size        uint32 // stored payload size (compressed when Compression != none)
	Offset      uint64 // absolute file offset of the payload
	Checksum    uint32 // CRC32 of the uncompressed payload
	Compression CompressionTag
	Version     uint32
	Flags       uint32
	Name        string
}

// chunkState is the per-chunk in-memory record behind the type map.
// Data is always uncompressed; Compression only says how the chunk is
// stored on encode.
type chunkState struct {
	data        []byte
	name        string
	flags       uint32
	version     uint32
	compression CompressionTag
}

// Asset is a decoded .taf container: the header plus a chunk map
// keyed by type. An Asset loaded into a cache is never mutated in
// place — editing flows clone it first (see Clone).
type Asset struct {
	Header Header

	// Directory is the chunk directory as read from disk, in file
	// order. It is informational: the chunk map is authoritative,
	// and Encode regenerates the directory. Nil for assets built in
	// memory.
	Directory []ChunkHeader

	// Warnings collects non-fatal decode findings (checksum
	// mismatches, duplicate directory entries).
	Warnings []Warning

	chunks map[ChunkType]chunkState
}

// Warning is a non-fatal finding recorded during decode.
type Warning struct {
	Type    ChunkType // zero for file-level findings
	Message string
}

func (w Warning) String() string {
	if w.Type == 0 {
		return w.Message
	}
	return w.Type.String() + ": " + w.Message
}

// New returns an empty asset at the current format version with
// creation timestamps set to now.
func New() *Asset {
	now := uint64(time.Now().Unix())
	return &Asset{
		Header: Header{
			VersionMajor: VersionMajor,
			VersionMinor: VersionMinor,
			VersionPatch: VersionPatch,
			Created:      now,
			Modified:     now,
		},
		chunks: make(map[ChunkType]chunkState),
	}
}

// Chunk returns the uncompressed payload bytes for a chunk type. The
// returned slice is the asset's backing storage — callers must treat
// it as read-only and Clone the asset before editing.
func (a *Asset) Chunk(t ChunkType) ([]byte, bool) {
	state, ok := a.chunks[t]
	if !ok {
		return nil, false
	}
	return state.data, true
}

// HasChunk reports whether a chunk of the given type is present.
func (a *Asset) HasChunk(t ChunkType) bool {
	_, ok := a.chunks[t]
	return ok
}

// ChunkInfo returns the directory metadata that Encode would write
// for a chunk type. Size, Offset and Checksum are zero: they only
// exist once the asset is encoded.
func (a *Asset) ChunkInfo(t ChunkType) (ChunkHeader, bool) {
	state, ok := a.chunks[t]
	if !ok {
		return ChunkHeader{}, false
	}
	return ChunkHeader{
		Type:        t,
		Compression: state.compression,
		Version:     state.version,
		Flags:       state.flags,
		Name:        state.name,
	}, true
}

// ChunkOptions carries optional directory metadata for SetChunk.
type ChunkOptions struct {
	Name        string
	Flags       uint32
	Version     uint32
	Compression CompressionTag
}

// SetChunk inserts or replaces the chunk of the given type with
// default options (no name, no compression).
func (a *Asset) SetChunk(t ChunkType, data []byte) {
	a.SetChunkOptions(t, data, ChunkOptions{})
}

// SetChunkOptions inserts or replaces the chunk of the given type.
// The data slice is not copied; the caller hands over ownership.
func (a *Asset) SetChunkOptions(t ChunkType, data []byte, options ChunkOptions) {
	if a.chunks == nil {
		a.chunks = make(map[ChunkType]chunkState)
	}
	a.chunks[t] = chunkState{
		data:        data,
		name:        truncate(options.Name, ChunkNameSize-1),
		flags:       options.Flags,
		version:     options.Version,
		compression: options.Compression,
	}
}

// RemoveChunk deletes the chunk of the given type, reporting whether
// it was present.
func (a *Asset) RemoveChunk(t ChunkType) bool {
	if _, ok := a.chunks[t]; !ok {
		return false
	}
	delete(a.chunks, t)
	return true
}

// Types returns the present chunk types in ascending tag order.
func (a *Asset) Types() []ChunkType {
	types := make([]ChunkType, 0, len(a.chunks))
	for t := range a.chunks {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ChunkCount returns the number of chunks in the map.
func (a *Asset) ChunkCount() int {
	return len(a.chunks)
}

// Clone returns a deep copy: the header, directory and every chunk
// payload are duplicated, so mutations of the clone never reach the
// original. This is the working-copy primitive behind overlay
// application.
func (a *Asset) Clone() *Asset {
	clone := &Asset{
		Header: a.Header,
		chunks: make(map[ChunkType]chunkState, len(a.chunks)),
	}
	if a.Directory != nil {
		clone.Directory = append([]ChunkHeader(nil), a.Directory...)
	}
	if a.Warnings != nil {
		clone.Warnings = append([]Warning(nil), a.Warnings...)
	}
	for t, state := range a.chunks {
		duplicated := state
		duplicated.data = append([]byte(nil), state.data...)
		clone.chunks[t] = duplicated
	}
	return clone
}

// HasFeature reports whether the header advertises a feature.
func (a *Asset) HasFeature(feature FeatureFlags) bool {
	return a.Header.FeatureFlags.Has(feature)
}

// AddFeature sets feature bits in the header.
func (a *Asset) AddFeature(feature FeatureFlags) {
	a.Header.FeatureFlags |= feature
}

// SetCreator sets the creator string, truncated to the fixed field
// width.
func (a *Asset) SetCreator(creator string) {
	a.Header.Creator = truncate(creator, CreatorSize-1)
}

// SetDescription sets the description string, truncated to the fixed
// field width.
func (a *Asset) SetDescription(description string) {
	a.Header.Description = truncate(description, DescriptionSize-1)
}

// truncate cuts s to at most n bytes. Fixed-width header fields keep
// a trailing NUL, hence the -1 at call sites.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

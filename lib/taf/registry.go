// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"fmt"
	"sort"
)

// ChunkType is a four-byte chunk tag (FourCC) read as a little-endian
// uint32, so the constant value spells the tag backwards in hex.
// Unknown tags are carried through decode and encode untouched.
type ChunkType uint32

// Known chunk types. The codec treats all of these as opaque bytes;
// the typed views in this package interpret the kinds the engine
// actually consumes (GEOM, SHDR, MTRL, DEPS, FONT, AUDI).
const (
	// Core geometry and rendering.
	ChunkGeometry  ChunkType = 0x4D4F4547 // 'GEOM' mesh geometry
	ChunkLOD       ChunkType = 0x444F4C47 // 'GLOD' LOD chains
	ChunkMaterial  ChunkType = 0x4C52544D // 'MTRL' PBR materials
	ChunkShader    ChunkType = 0x52444853 // 'SHDR' SPIR-V shaders
	ChunkTexture   ChunkType = 0x52545854 // 'TXTR' texture data
	ChunkAnimation ChunkType = 0x4D494E41 // 'ANIM' skeletal animation

	// Intelligence and behavior.
	ChunkScript    ChunkType = 0x54504353 // 'SCPT' embedded bytecode
	ChunkNarrative ChunkType = 0x5252414E // 'NARR' dialogue trees
	ChunkCharacter ChunkType = 0x52414843 // 'CHAR' character definitions
	ChunkQuest     ChunkType = 0x53455551 // 'QUES' quest integration
	ChunkProperty  ChunkType = 0x504F5250 // 'PROP' property system

	// Physics and effects.
	ChunkFracture ChunkType = 0x43415246 // 'FRAC' fracture patterns
	ChunkParticle ChunkType = 0x54524150 // 'PART' particle systems
	ChunkPhysics  ChunkType = 0x53594850 // 'PHYS' physics properties
	ChunkAudio    ChunkType = 0x49445541 // 'AUDI' audio graphs/samples

	// Structure and UI.
	ChunkSceneGraph ChunkType = 0x474E4353 // 'SCNG' scene graph
	ChunkSVGUI      ChunkType = 0x55475653 // 'SVGU' vector UI
	ChunkInstances  ChunkType = 0x54534E49 // 'INST' GPU instancing
	ChunkBounds     ChunkType = 0x584F4242 // 'BBOX' spatial bounds
	ChunkStreaming  ChunkType = 0x4D525453 // 'STRM' streaming metadata
	ChunkFont       ChunkType = 0x544E4F46 // 'FONT' SDF font atlas

	// System integration.
	ChunkDependency   ChunkType = 0x53504544 // 'DEPS' dependencies
	ChunkLocalization ChunkType = 0x4E30314C // 'L10N' localization
	ChunkPerformance  ChunkType = 0x46524550 // 'PERF' performance analytics
)

// chunkTypeNames maps known tags to short human-readable descriptions
// for inspection tooling.
var chunkTypeNames = map[ChunkType]string{
	ChunkGeometry:     "mesh geometry",
	ChunkLOD:          "LOD chains",
	ChunkMaterial:     "PBR materials",
	ChunkShader:       "SPIR-V shaders",
	ChunkTexture:      "texture data",
	ChunkAnimation:    "skeletal animation",
	ChunkScript:       "embedded bytecode",
	ChunkNarrative:    "dialogue trees",
	ChunkCharacter:    "character definitions",
	ChunkQuest:        "quest integration",
	ChunkProperty:     "property system",
	ChunkFracture:     "fracture patterns",
	ChunkParticle:     "particle systems",
	ChunkPhysics:      "physics properties",
	ChunkAudio:        "audio",
	ChunkSceneGraph:   "scene graph",
	ChunkSVGUI:        "vector UI",
	ChunkInstances:    "GPU instancing",
	ChunkBounds:       "spatial bounds",
	ChunkStreaming:    "streaming metadata",
	ChunkFont:         "SDF font atlas",
	ChunkDependency:   "dependencies",
	ChunkLocalization: "localization",
	ChunkPerformance:  "performance analytics",
}

// MakeChunkType builds a tag from a four-character string.
func MakeChunkType(tag string) (ChunkType, error) {
	if len(tag) != 4 {
		return 0, fmt.Errorf("taf: chunk tag must be exactly 4 characters, got %q", tag)
	}
	return ChunkType(uint32(tag[0]) | uint32(tag[1])<<8 | uint32(tag[2])<<16 | uint32(tag[3])<<24), nil
}

// Tag returns the four-character form of the type. Non-printable
// bytes are rendered as '?'.
func (t ChunkType) Tag() string {
	b := [4]byte{byte(t), byte(t >> 8), byte(t >> 16), byte(t >> 24)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '?'
		}
	}
	return string(b[:])
}

// String returns the four-character tag, or the hex value when the
// tag contains non-printable bytes.
func (t ChunkType) String() string {
	b := [4]byte{byte(t), byte(t >> 8), byte(t >> 16), byte(t >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08X", uint32(t))
		}
	}
	return string(b[:])
}

// Known reports whether the tag is one this package has a registered
// description for.
func (t ChunkType) Known() bool {
	_, ok := chunkTypeNames[t]
	return ok
}

// Describe returns a short human-readable description of a known
// tag, or "unknown" for tags this consumer does not recognize.
func (t ChunkType) Describe() string {
	if name, ok := chunkTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// KnownChunkTypes returns all registered tags in ascending order.
func KnownChunkTypes() []ChunkType {
	types := make([]ChunkType, 0, len(chunkTypeNames))
	for t := range chunkTypeNames {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MTRL chunk layout: an 8-byte count header, then materialCount
// fixed-size PBR records.
const (
	MaterialChunkHeaderSize = 8
	MaterialRecordSize      = 136
	materialNameSize        = 64
)

// TextureNone marks a texture slot as unused.
const TextureNone uint32 = 0xFFFFFFFF

// Material is one PBR material record of an MTRL chunk. Texture
// fields index into TXTR chunks, or hold TextureNone.
type Material struct {
	Name string

	Albedo          [4]float32
	Metallic        float32
	Roughness       float32
	NormalIntensity float32
	Emission        [3]float32

	AlbedoTexture   uint32
	NormalTexture   uint32
	ORMTexture      uint32
	EmissionTexture uint32

	Flags uint32
}

// ParseMaterials parses an MTRL chunk payload.
func ParseMaterials(data []byte) ([]Material, error) {
	if len(data) < MaterialChunkHeaderSize {
		return nil, fmt.Errorf("taf: material chunk of %d bytes is shorter than its %d-byte header",
			len(data), MaterialChunkHeaderSize)
	}
	count := int(binary.LittleEndian.Uint32(data[0:]))
	if count < 0 || MaterialChunkHeaderSize+count*MaterialRecordSize > len(data) {
		return nil, fmt.Errorf("taf: material chunk declares %d records but has %d bytes", count, len(data))
	}

	materials := make([]Material, count)
	for i := range materials {
		r := data[MaterialChunkHeaderSize+i*MaterialRecordSize:]
		materials[i] = Material{
			Name: decodeFixedString(r[0:materialNameSize]),
			Albedo: [4]float32{
				f32(r[64:]), f32(r[68:]), f32(r[72:]), f32(r[76:]),
			},
			Metallic:        f32(r[80:]),
			Roughness:       f32(r[84:]),
			NormalIntensity: f32(r[88:]),
			Emission:        [3]float32{f32(r[92:]), f32(r[96:]), f32(r[100:])},
			AlbedoTexture:   binary.LittleEndian.Uint32(r[104:]),
			NormalTexture:   binary.LittleEndian.Uint32(r[108:]),
			ORMTexture:      binary.LittleEndian.Uint32(r[112:]),
			EmissionTexture: binary.LittleEndian.Uint32(r[116:]),
			Flags:           binary.LittleEndian.Uint32(r[120:]),
		}
	}
	return materials, nil
}

// EncodeMaterials serializes an MTRL chunk payload.
func EncodeMaterials(materials []Material) []byte {
	out := make([]byte, MaterialChunkHeaderSize+len(materials)*MaterialRecordSize)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(materials)))

	for i, m := range materials {
		r := out[MaterialChunkHeaderSize+i*MaterialRecordSize:]
		encodeFixedString(r[0:materialNameSize], m.Name)
		putF32(r[64:], m.Albedo[0])
		putF32(r[68:], m.Albedo[1])
		putF32(r[72:], m.Albedo[2])
		putF32(r[76:], m.Albedo[3])
		putF32(r[80:], m.Metallic)
		putF32(r[84:], m.Roughness)
		putF32(r[88:], m.NormalIntensity)
		putF32(r[92:], m.Emission[0])
		putF32(r[96:], m.Emission[1])
		putF32(r[100:], m.Emission[2])
		binary.LittleEndian.PutUint32(r[104:], m.AlbedoTexture)
		binary.LittleEndian.PutUint32(r[108:], m.NormalTexture)
		binary.LittleEndian.PutUint32(r[112:], m.ORMTexture)
		binary.LittleEndian.PutUint32(r[116:], m.EmissionTexture)
		binary.LittleEndian.PutUint32(r[120:], m.Flags)
	}
	return out
}

func f32(data []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data))
}

func putF32(out []byte, v float32) {
	binary.LittleEndian.PutUint32(out, math.Float32bits(v))
}

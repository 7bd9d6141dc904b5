// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"fmt"
)

// FONT chunk layout: a 32-byte header, then glyphCount fixed-size
// glyph records, then the single-channel SDF atlas bitmap
// (AtlasWidth × AtlasHeight bytes).
const (
	FontChunkHeaderSize = 32
	GlyphRecordSize     = 40
)

// FontHeader is the fixed-size prefix of a FONT chunk. Metrics are in
// pixels at the atlas's native size.
type FontHeader struct {
	GlyphCount  uint32
	AtlasWidth  uint32
	AtlasHeight uint32
	LineHeight  float32
	Ascent      float32
	Descent     float32
	PixelRange  float32 // SDF distance range encoded in the atlas
}

// Glyph is one glyph record. UV coordinates are normalized to the
// atlas.
type Glyph struct {
	Codepoint uint32
	Advance   float32
	Bearing   [2]float32
	Size      [2]float32
	UVMin     [2]float32
	UVMax     [2]float32
}

// Font is a parsed FONT chunk. Atlas aliases the chunk payload —
// treat it as read-only.
type Font struct {
	FontHeader
	Glyphs []Glyph
	Atlas  []byte
}

// ParseFont parses a FONT chunk payload.
func ParseFont(data []byte) (*Font, error) {
	if len(data) < FontChunkHeaderSize {
		return nil, fmt.Errorf("taf: font chunk of %d bytes is shorter than its %d-byte header",
			len(data), FontChunkHeaderSize)
	}

	font := &Font{
		FontHeader: FontHeader{
			GlyphCount:  binary.LittleEndian.Uint32(data[0:]),
			AtlasWidth:  binary.LittleEndian.Uint32(data[4:]),
			AtlasHeight: binary.LittleEndian.Uint32(data[8:]),
			LineHeight:  f32(data[12:]),
			Ascent:      f32(data[16:]),
			Descent:     f32(data[20:]),
			PixelRange:  f32(data[24:]),
		},
	}

	glyphsEnd := FontChunkHeaderSize + int(font.GlyphCount)*GlyphRecordSize
	atlasBytes := uint64(font.AtlasWidth) * uint64(font.AtlasHeight)
	if glyphsEnd > len(data) || uint64(glyphsEnd)+atlasBytes > uint64(len(data)) {
		return nil, fmt.Errorf("taf: font chunk declares %d glyphs and a %d×%d atlas but has %d bytes",
			font.GlyphCount, font.AtlasWidth, font.AtlasHeight, len(data))
	}

	font.Glyphs = make([]Glyph, font.GlyphCount)
	for i := range font.Glyphs {
		r := data[FontChunkHeaderSize+i*GlyphRecordSize:]
		font.Glyphs[i] = Glyph{
			Codepoint: binary.LittleEndian.Uint32(r[0:]),
			Advance:   f32(r[4:]),
			Bearing:   [2]float32{f32(r[8:]), f32(r[12:])},
			Size:      [2]float32{f32(r[16:]), f32(r[20:])},
			UVMin:     [2]float32{f32(r[24:]), f32(r[28:])},
			UVMax:     [2]float32{f32(r[32:]), f32(r[36:])},
		}
	}
	font.Atlas = data[glyphsEnd : uint64(glyphsEnd)+atlasBytes]
	return font, nil
}

// EncodeFont serializes a FONT chunk payload. The atlas length must
// match AtlasWidth × AtlasHeight.
func EncodeFont(font *Font) ([]byte, error) {
	if uint64(len(font.Atlas)) != uint64(font.AtlasWidth)*uint64(font.AtlasHeight) {
		return nil, fmt.Errorf("taf: font atlas is %d bytes, header declares %d×%d",
			len(font.Atlas), font.AtlasWidth, font.AtlasHeight)
	}

	out := make([]byte, FontChunkHeaderSize+len(font.Glyphs)*GlyphRecordSize+len(font.Atlas))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(font.Glyphs)))
	binary.LittleEndian.PutUint32(out[4:], font.AtlasWidth)
	binary.LittleEndian.PutUint32(out[8:], font.AtlasHeight)
	putF32(out[12:], font.LineHeight)
	putF32(out[16:], font.Ascent)
	putF32(out[20:], font.Descent)
	putF32(out[24:], font.PixelRange)

	for i, g := range font.Glyphs {
		r := out[FontChunkHeaderSize+i*GlyphRecordSize:]
		binary.LittleEndian.PutUint32(r[0:], g.Codepoint)
		putF32(r[4:], g.Advance)
		putF32(r[8:], g.Bearing[0])
		putF32(r[12:], g.Bearing[1])
		putF32(r[16:], g.Size[0])
		putF32(r[20:], g.Size[1])
		putF32(r[24:], g.UVMin[0])
		putF32(r[28:], g.UVMin[1])
		putF32(r[32:], g.UVMax[0])
		putF32(r[36:], g.UVMax[1])
	}
	copy(out[FontChunkHeaderSize+len(font.Glyphs)*GlyphRecordSize:], font.Atlas)
	return out, nil
}

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"fmt"
)

// AUDI chunk layout: a 24-byte header followed by interleaved sample
// frames (FrameCount × ChannelCount samples).
const AudioChunkHeaderSize = 24

// AudioFormat identifies the sample encoding.
type AudioFormat uint32

const (
	AudioPCM16   AudioFormat = 0 // signed 16-bit little-endian
	AudioFloat32 AudioFormat = 1
)

func (f AudioFormat) String() string {
	switch f {
	case AudioPCM16:
		return "pcm16"
	case AudioFloat32:
		return "float32"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(f))
	}
}

// SampleSize returns the per-sample byte size, or 0 for unknown
// formats.
func (f AudioFormat) SampleSize() int {
	switch f {
	case AudioPCM16:
		return 2
	case AudioFloat32:
		return 4
	default:
		return 0
	}
}

// AudioHeader is the fixed-size prefix of an AUDI chunk. LoopStart
// and LoopEnd are frame indices; LoopEnd == 0 means no loop.
type AudioHeader struct {
	SampleRate   uint32
	ChannelCount uint32
	FrameCount   uint32
	Format       AudioFormat
	LoopStart    uint32
	LoopEnd      uint32
}

// Audio is a parsed AUDI chunk. Samples aliases the chunk payload —
// treat it as read-only.
type Audio struct {
	AudioHeader
	Samples []byte
}

// ParseAudio parses an AUDI chunk payload.
func ParseAudio(data []byte) (*Audio, error) {
	if len(data) < AudioChunkHeaderSize {
		return nil, fmt.Errorf("taf: audio chunk of %d bytes is shorter than its %d-byte header",
			len(data), AudioChunkHeaderSize)
	}

	audio := &Audio{
		AudioHeader: AudioHeader{
			SampleRate:   binary.LittleEndian.Uint32(data[0:]),
			ChannelCount: binary.LittleEndian.Uint32(data[4:]),
			FrameCount:   binary.LittleEndian.Uint32(data[8:]),
			Format:       AudioFormat(binary.LittleEndian.Uint32(data[12:])),
			LoopStart:    binary.LittleEndian.Uint32(data[16:]),
			LoopEnd:      binary.LittleEndian.Uint32(data[20:]),
		},
	}

	sampleSize := audio.Format.SampleSize()
	if sampleSize == 0 {
		return nil, fmt.Errorf("taf: audio chunk has unknown sample format %d", uint32(audio.Format))
	}
	need := uint64(audio.FrameCount) * uint64(audio.ChannelCount) * uint64(sampleSize)
	if need > uint64(len(data)-AudioChunkHeaderSize) {
		return nil, fmt.Errorf("taf: audio chunk declares %d frames × %d channels (%d bytes) but payload has %d",
			audio.FrameCount, audio.ChannelCount, need, len(data)-AudioChunkHeaderSize)
	}
	audio.Samples = data[AudioChunkHeaderSize : AudioChunkHeaderSize+int(need)]
	return audio, nil
}

// EncodeAudio serializes an AUDI chunk payload. The sample length
// must match the declared frame count, channel count and format.
func EncodeAudio(audio *Audio) ([]byte, error) {
	sampleSize := audio.Format.SampleSize()
	if sampleSize == 0 {
		return nil, fmt.Errorf("taf: audio chunk has unknown sample format %d", uint32(audio.Format))
	}
	need := uint64(audio.FrameCount) * uint64(audio.ChannelCount) * uint64(sampleSize)
	if uint64(len(audio.Samples)) != need {
		return nil, fmt.Errorf("taf: audio samples are %d bytes, header declares %d", len(audio.Samples), need)
	}

	out := make([]byte, AudioChunkHeaderSize+len(audio.Samples))
	binary.LittleEndian.PutUint32(out[0:], audio.SampleRate)
	binary.LittleEndian.PutUint32(out[4:], audio.ChannelCount)
	binary.LittleEndian.PutUint32(out[8:], audio.FrameCount)
	binary.LittleEndian.PutUint32(out[12:], uint32(audio.Format))
	binary.LittleEndian.PutUint32(out[16:], audio.LoopStart)
	binary.LittleEndian.PutUint32(out[20:], audio.LoopEnd)
	copy(out[AudioChunkHeaderSize:], audio.Samples)
	return out, nil
}

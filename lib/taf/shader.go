// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"
)

// SHDR chunk layout: an 8-byte count header, then shaderCount
// fixed-size descriptors, then the SPIR-V blobs concatenated in
// descriptor order. Blob offsets are not stored — they are recovered
// by summing the preceding descriptors' sizes, so a size sum that
// runs past the chunk is a hard decode error, never a short read.
const (
	ShaderChunkHeaderSize = 8
	ShaderDescriptorSize  = 48
)

// ShaderStage identifies a pipeline stage.
type ShaderStage uint32

const (
	StageVertex   ShaderStage = 0
	StageFragment ShaderStage = 1
	StageCompute  ShaderStage = 2
	StageMesh     ShaderStage = 3
	StageTask     ShaderStage = 4
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	case StageMesh:
		return "mesh"
	case StageTask:
		return "task"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(s))
	}
}

// ParseShaderStage parses a stage from its manifest name.
func ParseShaderStage(name string) (ShaderStage, error) {
	switch name {
	case "vertex":
		return StageVertex, nil
	case "fragment":
		return StageFragment, nil
	case "compute":
		return StageCompute, nil
	case "mesh":
		return StageMesh, nil
	case "task":
		return StageTask, nil
	default:
		return 0, fmt.Errorf("taf: unknown shader stage %q", name)
	}
}

// Shader is one entry of a SHDR chunk. Names are stored as FNV-1a
// hashes, not strings — see HashName and HashRegistry.
type Shader struct {
	NameHash       uint64
	EntryPointHash uint64
	Stage          ShaderStage

	// Mesh shader limits; zero for other stages.
	MaxVertices   uint32
	MaxPrimitives uint32
	WorkgroupSize [3]uint32

	// Code is the SPIR-V bytecode. Aliases the chunk payload after
	// ParseShaders — treat as read-only.
	Code []byte
}

// ShaderBoundsError reports a descriptor whose declared bytecode size
// runs past the remaining chunk bytes.
type ShaderBoundsError struct {
	Index     int
	Size      uint32
	Remaining int
}

func (e *ShaderBoundsError) Error() string {
	return fmt.Sprintf("taf: shader %d declares %d bytecode bytes but only %d remain in chunk",
		e.Index, e.Size, e.Remaining)
}

// ParseShaders parses a SHDR chunk payload.
func ParseShaders(data []byte) ([]Shader, error) {
	if len(data) < ShaderChunkHeaderSize {
		return nil, fmt.Errorf("taf: shader chunk of %d bytes is shorter than its %d-byte header",
			len(data), ShaderChunkHeaderSize)
	}
	count := int(binary.LittleEndian.Uint32(data[0:]))

	descriptorsEnd := ShaderChunkHeaderSize + count*ShaderDescriptorSize
	if count < 0 || descriptorsEnd > len(data) {
		return nil, fmt.Errorf("taf: shader chunk declares %d descriptors but has %d bytes", count, len(data))
	}

	shaders := make([]Shader, count)
	blobOffset := descriptorsEnd
	for i := range shaders {
		d := data[ShaderChunkHeaderSize+i*ShaderDescriptorSize:]
		shaders[i] = Shader{
			NameHash:       binary.LittleEndian.Uint64(d[0:]),
			EntryPointHash: binary.LittleEndian.Uint64(d[8:]),
			Stage:          ShaderStage(binary.LittleEndian.Uint32(d[16:])),
			MaxVertices:    binary.LittleEndian.Uint32(d[24:]),
			MaxPrimitives:  binary.LittleEndian.Uint32(d[28:]),
			WorkgroupSize: [3]uint32{
				binary.LittleEndian.Uint32(d[32:]),
				binary.LittleEndian.Uint32(d[36:]),
				binary.LittleEndian.Uint32(d[40:]),
			},
		}

		size := int(binary.LittleEndian.Uint32(d[20:]))
		if size < 0 || blobOffset+size > len(data) {
			return nil, &ShaderBoundsError{Index: i, Size: uint32(size), Remaining: len(data) - blobOffset}
		}
		shaders[i].Code = data[blobOffset : blobOffset+size]
		blobOffset += size
	}
	return shaders, nil
}

// EncodeShaders serializes a SHDR chunk payload.
func EncodeShaders(shaders []Shader) []byte {
	total := ShaderChunkHeaderSize + len(shaders)*ShaderDescriptorSize
	for _, s := range shaders {
		total += len(s.Code)
	}

	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(shaders)))

	blobOffset := ShaderChunkHeaderSize + len(shaders)*ShaderDescriptorSize
	for i, s := range shaders {
		d := out[ShaderChunkHeaderSize+i*ShaderDescriptorSize:]
		binary.LittleEndian.PutUint64(d[0:], s.NameHash)
		binary.LittleEndian.PutUint64(d[8:], s.EntryPointHash)
		binary.LittleEndian.PutUint32(d[16:], uint32(s.Stage))
		binary.LittleEndian.PutUint32(d[20:], uint32(len(s.Code)))
		binary.LittleEndian.PutUint32(d[24:], s.MaxVertices)
		binary.LittleEndian.PutUint32(d[28:], s.MaxPrimitives)
		binary.LittleEndian.PutUint32(d[32:], s.WorkgroupSize[0])
		binary.LittleEndian.PutUint32(d[36:], s.WorkgroupSize[1])
		binary.LittleEndian.PutUint32(d[40:], s.WorkgroupSize[2])

		copy(out[blobOffset:], s.Code)
		blobOffset += len(s.Code)
	}
	return out
}

// spirvMagic is the SPIR-V module magic number (word 0).
const spirvMagic = 0x07230203

// ValidateSPIRV performs the structural checks a driver would reject
// anyway, but with an error message that names the problem: word
// alignment, minimum module length (5-word header), and magic.
func ValidateSPIRV(code []byte) error {
	if len(code)%4 != 0 {
		return fmt.Errorf("taf: SPIR-V length %d is not a multiple of 4", len(code))
	}
	if len(code) < 20 {
		return fmt.Errorf("taf: SPIR-V module of %d bytes is shorter than its 5-word header", len(code))
	}
	if got := binary.LittleEndian.Uint32(code); got != spirvMagic {
		return fmt.Errorf("taf: bad SPIR-V magic %08x, want %08x", got, uint32(spirvMagic))
	}
	return nil
}

// HashName computes the 64-bit FNV-1a hash used for shader and
// entry-point names in SHDR chunks, and registers the name for
// reverse lookup in diagnostics.
func HashName(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	sum := h.Sum64()
	defaultHashNames.record(sum, name)
	return sum
}

// LookupName returns the registered string for a name hash, for
// diagnostics. The fallback form is "unknown_hash_0x…".
func LookupName(hash uint64) string {
	return defaultHashNames.lookup(hash)
}

// hashRegistry remembers hashed names so tooling can print names
// instead of raw hashes. Process-local and best-effort: only names
// hashed in this process resolve.
type hashRegistry struct {
	mu    sync.RWMutex
	names map[uint64]string
}

var defaultHashNames = &hashRegistry{names: make(map[uint64]string)}

func (r *hashRegistry) record(hash uint64, name string) {
	r.mu.Lock()
	r.names[hash] = name
	r.mu.Unlock()
}

func (r *hashRegistry) lookup(hash uint64) string {
	r.mu.RLock()
	name, ok := r.names[hash]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("unknown_hash_0x%016x", hash)
	}
	return name
}

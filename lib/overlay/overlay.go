// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"fmt"

	"github.com/tremor-engine/taffy/lib/taf"
)

// Op is an overlay edit operation, stored in the low two bits of a
// chunk directory entry's flags. These values are protocol constants.
type Op uint32

const (
	// OpReplace swaps the payload of an existing target chunk, or
	// adds it when absent.
	OpReplace Op = 0

	// OpAdd adds a chunk the target must not already have.
	OpAdd Op = 1

	// OpRemove deletes the chunk from the target. Remove edits carry
	// no payload. Removing an absent chunk is a no-op.
	OpRemove Op = 2

	// opMask extracts the operation from chunk flags. The remaining
	// flag bits pass through to the patched chunk untouched.
	opMask uint32 = 0x3
)

func (op Op) String() string {
	switch op {
	case OpReplace:
		return "replace"
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(op))
	}
}

// ParseOp parses an operation from its manifest name.
func ParseOp(name string) (Op, error) {
	switch name {
	case "", "replace":
		return OpReplace, nil
	case "add":
		return OpAdd, nil
	case "remove":
		return OpRemove, nil
	default:
		return 0, fmt.Errorf("overlay: unknown edit operation %q", name)
	}
}

// Edit is one patch against a target asset.
type Edit struct {
	Op   Op
	Type taf.ChunkType

	// Data is the new chunk payload. Empty for remove edits.
	Data []byte

	// Name, Version and Compression carry through to the patched
	// chunk's directory entry.
	Name        string
	Version     uint32
	Compression taf.CompressionTag
}

// Overlay is a parsed .tafo patch.
type Overlay struct {
	// Features is OR'd into the target's feature flags on apply.
	Features taf.FeatureFlags

	Creator     string
	Description string

	Edits []Edit
}

// BadOpError reports a chunk whose flags encode an operation this
// version does not know.
type BadOpError struct {
	Type taf.ChunkType
	Op   Op
}

func (e *BadOpError) Error() string {
	return fmt.Sprintf("overlay: chunk %s has unknown edit operation %d", e.Type, uint32(e.Op))
}

// ChunkExistsError reports an add edit whose chunk type is already
// present in the target.
type ChunkExistsError struct {
	Type taf.ChunkType
}

func (e *ChunkExistsError) Error() string {
	return fmt.Sprintf("overlay: add edit for chunk %s, but the target already has one", e.Type)
}

// Parse interprets a decoded container as an overlay.
func Parse(asset *taf.Asset) (*Overlay, error) {
	o := &Overlay{
		Features:    asset.Header.FeatureFlags,
		Creator:     asset.Header.Creator,
		Description: asset.Header.Description,
	}

	for _, chunkType := range asset.Types() {
		info, _ := asset.ChunkInfo(chunkType)
		op := Op(info.Flags & opMask)
		if op > OpRemove {
			return nil, &BadOpError{Type: chunkType, Op: op}
		}

		edit := Edit{
			Op:          op,
			Type:        chunkType,
			Name:        info.Name,
			Version:     info.Version,
			Compression: info.Compression,
		}
		if op != OpRemove {
			data, _ := asset.Chunk(chunkType)
			edit.Data = data
		}
		o.Edits = append(o.Edits, edit)
	}
	return o, nil
}

// Decode decodes .tafo bytes into an overlay. options may be nil.
func Decode(data []byte, options *taf.DecodeOptions) (*Overlay, error) {
	asset, err := taf.Decode(data, options)
	if err != nil {
		return nil, fmt.Errorf("overlay: decoding container: %w", err)
	}
	return Parse(asset)
}

// Build serializes an overlay into a .tafo container asset, ready for
// taf.Encode.
func Build(o *Overlay) (*taf.Asset, error) {
	asset := taf.New()
	asset.Header.FeatureFlags = o.Features
	asset.SetCreator(o.Creator)
	asset.SetDescription(o.Description)

	for _, edit := range o.Edits {
		if edit.Op > OpRemove {
			return nil, &BadOpError{Type: edit.Type, Op: edit.Op}
		}
		if edit.Op == OpRemove && len(edit.Data) != 0 {
			return nil, fmt.Errorf("overlay: remove edit for chunk %s carries %d payload bytes",
				edit.Type, len(edit.Data))
		}
		if asset.HasChunk(edit.Type) {
			return nil, fmt.Errorf("overlay: duplicate edit for chunk %s", edit.Type)
		}
		asset.SetChunkOptions(edit.Type, edit.Data, taf.ChunkOptions{
			Name:        edit.Name,
			Flags:       uint32(edit.Op),
			Version:     edit.Version,
			Compression: edit.Compression,
		})
	}
	return asset, nil
}

// Apply patches master with the overlay and returns the result. The
// master is deep cloned first and never mutated; callers keep using it
// as the pristine on-disk state.
//
// The result's feature flags are the OR of the master's, the
// overlay's, and the editor-modified flag.
func Apply(o *Overlay, master *taf.Asset) (*taf.Asset, error) {
	patched := master.Clone()

	for _, edit := range o.Edits {
		switch edit.Op {
		case OpReplace:
			patched.SetChunkOptions(edit.Type, cloneBytes(edit.Data), taf.ChunkOptions{
				Name:        edit.Name,
				Version:     edit.Version,
				Compression: edit.Compression,
			})
		case OpAdd:
			if patched.HasChunk(edit.Type) {
				return nil, &ChunkExistsError{Type: edit.Type}
			}
			patched.SetChunkOptions(edit.Type, cloneBytes(edit.Data), taf.ChunkOptions{
				Name:        edit.Name,
				Version:     edit.Version,
				Compression: edit.Compression,
			})
		case OpRemove:
			patched.RemoveChunk(edit.Type)
		default:
			return nil, &BadOpError{Type: edit.Type, Op: edit.Op}
		}
	}

	patched.AddFeature(o.Features | taf.FeatureEditorModified)
	return patched, nil
}

// cloneBytes keeps the applied asset from aliasing the overlay's
// backing storage.
func cloneBytes(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}

// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package taf

import (
	"encoding/binary"
	"fmt"
)

// DEPS chunk layout: an 8-byte count header, then dependencyCount
// fixed-size records naming other assets this one composes with.
const (
	DependencyChunkHeaderSize = 8
	DependencyRecordSize      = 424

	dependencyNameSize        = 128
	dependencyVersionSize     = 32
	dependencyDescriptionSize = 256
)

// DependencyKind says whether a missing dependency is fatal.
type DependencyKind uint32

const (
	DependencyRequired DependencyKind = 0
	DependencyOptional DependencyKind = 1
)

func (k DependencyKind) String() string {
	switch k {
	case DependencyRequired:
		return "required"
	case DependencyOptional:
		return "optional"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(k))
	}
}

// Dependency is one record of a DEPS chunk.
type Dependency struct {
	Name        string
	VersionSpec string // semver range, e.g. "^2.1.0"
	Kind        DependencyKind
	ChunkTypes  uint32 // bitmask of chunk categories the dependency provides
	Description string
}

// ParseDependencies parses a DEPS chunk payload.
func ParseDependencies(data []byte) ([]Dependency, error) {
	if len(data) < DependencyChunkHeaderSize {
		return nil, fmt.Errorf("taf: dependency chunk of %d bytes is shorter than its %d-byte header",
			len(data), DependencyChunkHeaderSize)
	}
	count := int(binary.LittleEndian.Uint32(data[0:]))
	if count < 0 || DependencyChunkHeaderSize+count*DependencyRecordSize > len(data) {
		return nil, fmt.Errorf("taf: dependency chunk declares %d records but has %d bytes", count, len(data))
	}

	dependencies := make([]Dependency, count)
	for i := range dependencies {
		r := data[DependencyChunkHeaderSize+i*DependencyRecordSize:]
		dependencies[i] = Dependency{
			Name:        decodeFixedString(r[0:dependencyNameSize]),
			VersionSpec: decodeFixedString(r[128 : 128+dependencyVersionSize]),
			Kind:        DependencyKind(binary.LittleEndian.Uint32(r[160:])),
			ChunkTypes:  binary.LittleEndian.Uint32(r[164:]),
			Description: decodeFixedString(r[168 : 168+dependencyDescriptionSize]),
		}
	}
	return dependencies, nil
}

// EncodeDependencies serializes a DEPS chunk payload.
func EncodeDependencies(dependencies []Dependency) []byte {
	out := make([]byte, DependencyChunkHeaderSize+len(dependencies)*DependencyRecordSize)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(dependencies)))

	for i, d := range dependencies {
		r := out[DependencyChunkHeaderSize+i*DependencyRecordSize:]
		encodeFixedString(r[0:dependencyNameSize], d.Name)
		encodeFixedString(r[128:128+dependencyVersionSize], d.VersionSpec)
		binary.LittleEndian.PutUint32(r[160:], uint32(d.Kind))
		binary.LittleEndian.PutUint32(r[164:], d.ChunkTypes)
		encodeFixedString(r[168:168+dependencyDescriptionSize], d.Description)
	}
	return out
}

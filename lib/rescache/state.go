// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package rescache

import (
	"fmt"

	"github.com/tremor-engine/taffy/lib/codec"
)

// stateVersion is bumped when the session state schema changes.
const stateVersion = 1

// sessionState is the persisted editor session: which assets are
// loaded and which overlay each has applied. Deterministic CBOR, so
// identical sessions produce identical files.
type sessionState struct {
	Version int            `cbor:"version"`
	Assets  []sessionAsset `cbor:"assets"`
}

type sessionAsset struct {
	Path    string `cbor:"path"`
	Overlay string `cbor:"overlay,omitempty"`
}

// SaveState serializes the cache's load table — asset paths and their
// applied overlays — for session persistence. GPU state is not saved;
// RestoreState rebuilds it from the files.
func (c *Cache) SaveState() ([]byte, error) {
	c.mu.Lock()
	state := sessionState{Version: stateVersion}
	for _, path := range c.sortedPathsLocked() {
		state.Assets = append(state.Assets, sessionAsset{
			Path:    path,
			Overlay: c.entries[path].overlayPath,
		})
	}
	c.mu.Unlock()

	data, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("rescache: encoding session state: %w", err)
	}
	return data, nil
}

// RestoreState reloads the assets and overlays recorded by SaveState.
// The first load or apply failure is returned; assets restored before
// it stay loaded.
func (c *Cache) RestoreState(data []byte) error {
	var state sessionState
	if err := codec.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("rescache: decoding session state: %w", err)
	}
	if state.Version != stateVersion {
		return fmt.Errorf("rescache: session state version %d, want %d", state.Version, stateVersion)
	}

	for _, asset := range state.Assets {
		var err error
		if asset.Overlay != "" {
			err = c.LoadWithOverlay(asset.Path, asset.Overlay)
		} else {
			err = c.EnsureLoaded(asset.Path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

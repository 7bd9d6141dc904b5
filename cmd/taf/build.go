// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/tremor-engine/taffy/lib/manifest"
	"github.com/tremor-engine/taffy/lib/overlay"
	"github.com/tremor-engine/taffy/lib/taf"
)

func runBuild(args []string) error {
	flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "", "output .taf path (default: manifest name + .taf)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: taf build <manifest.yaml> [-o out.taf]")
	}
	manifestPath := flags.Arg(0)

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	asset, err := m.Build(filepath.Dir(manifestPath))
	if err != nil {
		return err
	}
	encoded, err := taf.Encode(asset)
	if err != nil {
		return err
	}

	out := *output
	if out == "" {
		if m.Name == "" {
			return fmt.Errorf("manifest has no name and no -o flag given")
		}
		out = m.Name + ".taf"
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d chunks, %d bytes\n", out, asset.ChunkCount(), len(encoded))
	return nil
}

func runOverlay(args []string) error {
	flags := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "", "output .tafo path")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 || *output == "" {
		return fmt.Errorf("usage: taf overlay <manifest.yaml> -o out.tafo")
	}
	manifestPath := flags.Arg(0)

	m, err := manifest.LoadOverlay(manifestPath)
	if err != nil {
		return err
	}
	o, err := m.BuildOverlay(filepath.Dir(manifestPath))
	if err != nil {
		return err
	}
	container, err := overlay.Build(o)
	if err != nil {
		return err
	}
	encoded, err := taf.Encode(container)
	if err != nil {
		return err
	}

	if err := os.WriteFile(*output, encoded, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d edits, %d bytes\n", *output, len(o.Edits), len(encoded))
	return nil
}

func runApply(args []string) error {
	flags := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	output := flags.StringP("output", "o", "", "output .taf path")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 || *output == "" {
		return fmt.Errorf("usage: taf apply <asset.taf> <overlay.tafo> -o out.taf")
	}

	assetData, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return err
	}
	master, err := taf.Decode(assetData, nil)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", flags.Arg(0), err)
	}
	overlayData, err := os.ReadFile(flags.Arg(1))
	if err != nil {
		return err
	}
	o, err := overlay.Decode(overlayData, nil)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", flags.Arg(1), err)
	}

	patched, err := overlay.Apply(o, master)
	if err != nil {
		return err
	}
	encoded, err := taf.Encode(patched)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*output, encoded, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d chunks, %d bytes\n", *output, patched.ChunkCount(), len(encoded))
	return nil
}

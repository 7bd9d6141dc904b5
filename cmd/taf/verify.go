// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/tremor-engine/taffy/lib/gpu"
	"github.com/tremor-engine/taffy/lib/overlay"
	"github.com/tremor-engine/taffy/lib/rescache"
	"github.com/tremor-engine/taffy/lib/taf"
)

// runVerify strict-decodes a container and then dry-runs it through
// the full resource path on the software device: geometry upload,
// descriptor allocation, and pipeline construction. It catches the
// class of errors inspect cannot — geometry bounds violations, shader
// offset overruns, missing pipeline stages — without touching real
// hardware.
func runVerify(args []string) error {
	flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	overlayPath := flags.String("overlay", "", "also apply this .tafo before the dry run")
	quiet := flags.BoolP("quiet", "q", false, "suppress the success line")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: taf verify <file.taf> [--overlay file.tafo]")
	}
	path := flags.Arg(0)

	// Strict decode first so checksum mismatches are hard errors here
	// even though runtime loading tolerates them.
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	asset, err := taf.Decode(data, &taf.DecodeOptions{StrictChecksums: true})
	if err != nil {
		return fmt.Errorf("strict decode of %s: %w", path, err)
	}

	patched := asset
	if *overlayPath != "" {
		overlayData, err := os.ReadFile(*overlayPath)
		if err != nil {
			return err
		}
		o, err := overlay.Decode(overlayData, &taf.DecodeOptions{StrictChecksums: true})
		if err != nil {
			return fmt.Errorf("strict decode of %s: %w", *overlayPath, err)
		}
		patched, err = overlay.Apply(o, asset)
		if err != nil {
			return err
		}
	}

	// Renderable assets also go through the upload and pipeline tiers.
	// Script or data containers stop at the decode checks above.
	if patched.HasChunk(taf.ChunkGeometry) {
		if err := dryRunUpload(path, *overlayPath, patched.HasChunk(taf.ChunkShader)); err != nil {
			return err
		}
	}

	if !*quiet {
		fmt.Printf("%s: ok\n", path)
	}
	return nil
}

func dryRunUpload(path, overlayPath string, hasShaders bool) error {
	device := gpu.NewSoftwareDevice()
	pool, err := gpu.NewDescriptorPool(device, 4)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cache, err := rescache.New(rescache.Config{
		Device:    device,
		Uploader:  &gpu.MeshUploader{Device: device, Pool: pool, Logger: logger},
		Pipelines: &gpu.PipelineBuilder{Device: device, Logger: logger},
		Decode:    &taf.DecodeOptions{StrictChecksums: true},
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer cache.Close()

	if overlayPath != "" {
		if err := cache.LoadWithOverlay(path, overlayPath); err != nil {
			return err
		}
	} else if err := cache.EnsureLoaded(path); err != nil {
		return err
	}

	if hasShaders {
		if _, err := cache.GetOrCreatePipeline(path); err != nil {
			return err
		}
		return cache.FlushPendingRebuilds()
	}
	return nil
}

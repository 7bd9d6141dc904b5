// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/tremor-engine/taffy/lib/codec"
	"github.com/tremor-engine/taffy/lib/taf"
)

// inspectReport is the --json shape of a container inspection.
type inspectReport struct {
	Path     string               `json:"path"`
	Version  string               `json:"version"`
	Features []string             `json:"features,omitempty"`
	Creator  string               `json:"creator,omitempty"`
	Created  string               `json:"created,omitempty"`
	Size     uint64               `json:"size"`
	Chunks   []inspectChunkReport `json:"chunks"`
	Warnings []string             `json:"warnings,omitempty"`
}

type inspectChunkReport struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Size        int    `json:"size"`
	Compression string `json:"compression"`
	Digest      string `json:"digest"`
}

func runInspect(args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	asJSON := flags.Bool("json", false, "output as JSON")
	asCBOR := flags.Bool("cbor", false, "output as deterministic CBOR")
	strict := flags.Bool("strict", false, "fail on checksum mismatches")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: taf inspect <file.taf|file.tafo> [--json]")
	}
	path := flags.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	asset, err := taf.Decode(data, &taf.DecodeOptions{StrictChecksums: *strict})
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	report := inspectReport{
		Path:    path,
		Version: fmt.Sprintf("%d.%d.%d", asset.Header.VersionMajor, asset.Header.VersionMinor, asset.Header.VersionPatch),
		Creator: asset.Header.Creator,
		Size:    asset.Header.TotalSize,
	}
	if asset.Header.Created != 0 {
		report.Created = time.Unix(int64(asset.Header.Created), 0).UTC().Format(time.RFC3339)
	}
	if asset.Header.FeatureFlags != 0 {
		report.Features = []string{asset.Header.FeatureFlags.String()}
	}
	for _, chunkType := range asset.Types() {
		payload, _ := asset.Chunk(chunkType)
		info, _ := asset.ChunkInfo(chunkType)
		report.Chunks = append(report.Chunks, inspectChunkReport{
			Type:        chunkType.Tag(),
			Name:        info.Name,
			Size:        len(payload),
			Compression: info.Compression.String(),
			Digest:      taf.ChunkDigest(payload).String()[:16],
		})
	}
	for _, warning := range asset.Warnings {
		report.Warnings = append(report.Warnings, warning.String())
	}

	if *asCBOR {
		encoded, err := codec.Marshal(report)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(encoded)
		return err
	}
	if *asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	fmt.Printf("%s: taffy %s, %d bytes\n", path, report.Version, report.Size)
	if asset.Header.Creator != "" {
		fmt.Printf("creator: %s\n", asset.Header.Creator)
	}
	if asset.Header.Description != "" {
		fmt.Printf("description: %s\n", asset.Header.Description)
	}
	fmt.Printf("features: %s\n", asset.Header.FeatureFlags)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "TYPE\tNAME\tSIZE\tCOMPRESSION\tDIGEST")
	for _, chunk := range report.Chunks {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\t%s\n",
			chunk.Type, chunk.Name, chunk.Size, chunk.Compression, chunk.Digest)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	for _, warning := range report.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return nil
}

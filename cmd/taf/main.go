// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

// Taf is the asset container tool: it builds .taf containers and
// .tafo overlays from YAML manifests, inspects and verifies existing
// files, and applies overlays offline.
//
// Usage:
//
//	taf build <manifest.yaml> -o <out.taf>
//	taf overlay <manifest.yaml> -o <out.tafo>
//	taf apply <asset.taf> <overlay.tafo> -o <out.taf>
//	taf inspect <file.taf|file.tafo> [--json]
//	taf verify <file.taf> [--overlay <file.tafo>]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "taf: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "build":
		return runBuild(args[1:])
	case "overlay":
		return runOverlay(args[1:])
	case "apply":
		return runApply(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "verify":
		return runVerify(args[1:])
	case "help", "-h", "--help":
		usage(os.Stdout)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func usage(out *os.File) {
	fmt.Fprint(out, `Usage: taf <subcommand> [flags]

Subcommands:
  build    build a .taf container from a YAML manifest
  overlay  build a .tafo overlay from a YAML manifest
  apply    apply an overlay to a container offline
  inspect  print a container's header and chunk table
  verify   strict-decode a container and dry-run it through upload
`)
}

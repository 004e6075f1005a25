// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package buildcmd resolves the shell command sequence used to build a
// project's library code under the bitcode-capturing compiler wrapper.
package buildcmd

import (
	"fmt"

	"github.com/kraklabs/reachmap/internal/errors"
)

// Source identifies which resolver tier produced a BuildCommand.
const (
	SourceUser      = "user"
	SourceAutoDetect = "auto_detect"
)

// BuildCommand is the resolved command sequence plus provenance.
type BuildCommand struct {
	Commands    []string
	BuildSystem string
	Source      string
	Confidence  float64
}

// autoDetectCommands maps a probe.ProjectInfo build system tag to its
// canonical build command sequence.
var autoDetectCommands = map[string][]string{
	"cmake": {
		"mkdir -p build",
		"cd build && cmake -DCMAKE_BUILD_TYPE=Release ..",
		"cd build && make -j$(nproc)",
	},
	"autotools": {
		"./autogen.sh || true",
		"./configure",
		"make -j$(nproc)",
	},
	"meson": {
		"meson setup build",
		"ninja -C build",
	},
	"custom_script": {
		"./build.sh",
	},
	"make": {
		"make -j$(nproc)",
	},
}

// Resolver implements the two-tier build-command policy of spec.md §4.4.
type Resolver struct{}

// New returns a Resolver. It carries no state.
func New() *Resolver {
	return &Resolver{}
}

// Resolve returns the build command for buildSystem. userScript, when
// non-empty, is the ticket-provided build script path and always wins
// (tier 1); otherwise buildSystem is mapped to its canonical command
// sequence (tier 2). A third, documentation-driven tier is reserved for a
// future extension; in its absence, an unmapped build system is an error
// surfaced to the caller rather than silently skipped.
func (r *Resolver) Resolve(buildSystem, userScript string) (*BuildCommand, error) {
	if userScript != "" {
		return &BuildCommand{
			Commands:    []string{userScript},
			BuildSystem: buildSystem,
			Source:      SourceUser,
			Confidence:  1.0,
		}, nil
	}

	cmds, ok := autoDetectCommands[buildSystem]
	if !ok {
		return nil, errors.NewBuildCommandError(
			fmt.Sprintf("no build command mapping for build system %q", buildSystem),
			"neither a user-provided build script nor a recognized build system marker was available",
			"supply a build script path on the work ticket, or add support for this build system",
		)
	}

	return &BuildCommand{
		Commands:    cmds,
		BuildSystem: buildSystem,
		Source:      SourceAutoDetect,
		Confidence:  0.8,
	}, nil
}

// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package probe reads a project's working tree to classify its language,
// enumerate source files, identify its build system, and record capability
// hints for the phases that follow.
package probe

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// excludedDirs are never descended into when enumerating source files.
var excludedDirs = map[string]bool{
	"vendor":       true,
	"third_party":  true,
	"build":        true,
	".git":         true,
}

// buildMarker associates a set of marker files with the build system they
// indicate. Order matters: markers are checked in this priority order, so
// a project carrying both a CMakeLists.txt and a plain Makefile (common
// when CMake generates one) is classified as cmake.
var buildMarkers = []struct {
	system  string
	markers []string
}{
	{"cmake", []string{"CMakeLists.txt"}},
	{"autotools", []string{"configure", "configure.ac"}},
	{"meson", []string{"meson.build"}},
	{"custom_script", []string{"build.sh"}},
	{"make", []string{"Makefile", "makefile", "GNUmakefile"}},
	{"cargo", []string{"Cargo.toml"}},
	{"go", []string{"go.mod"}},
	{"npm", []string{"package.json"}},
}

// sourceExtensions maps a file extension to the language it signals. Only
// extensions relevant to C/C++ fuzzing projects and their common
// neighbors are classified; anything else counts toward "other".
var sourceExtensions = map[string]string{
	".c":   "c",
	".h":   "c",
	".cc":  "cpp",
	".cpp": "cpp",
	".cxx": "cpp",
	".hpp": "cpp",
	".hh":  "cpp",
	".hxx": "cpp",
}

// ProjectInfo is the result of probing a project root.
type ProjectInfo struct {
	RootPath         string
	PrimaryLanguage  string
	BuildSystem      string
	SourceFiles      []string
	DiffFiles        []string
	LanguageCounts   map[string]int
	HasCompileCommands bool
	HasClangTidyConfig bool
}

// Probe enumerates a project tree exactly once; its fields are read-only
// configuration, not accumulated state, so a single Probe value may be
// reused across snapshots.
type Probe struct{}

// New returns a Probe. It carries no state; the zero value is usable.
func New() *Probe {
	return &Probe{}
}

// Run classifies rootPath. diffFiles, when non-nil, is carried through
// unchanged on ProjectInfo for callers that want to scope later phases to
// a changed-file set; Probe itself never filters by it. Run never fails
// on ambiguity — an unrecognized build system yields "unknown" rather
// than an error; it fails only when the tree itself cannot be read.
func (p *Probe) Run(rootPath string, diffFiles []string) (*ProjectInfo, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("probe: resolve root path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("probe: stat root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("probe: root path is not a directory: %s", absRoot)
	}

	sourceFiles, langCounts, hints, err := p.walk(absRoot)
	if err != nil {
		return nil, fmt.Errorf("probe: walk project tree: %w", err)
	}

	return &ProjectInfo{
		RootPath:            absRoot,
		PrimaryLanguage:      primaryLanguage(langCounts),
		BuildSystem:          detectBuildSystem(absRoot),
		SourceFiles:          sourceFiles,
		DiffFiles:            diffFiles,
		LanguageCounts:       langCounts,
		HasCompileCommands:   hints.compileCommands,
		HasClangTidyConfig:   hints.clangTidy,
	}, nil
}

type capabilityHints struct {
	compileCommands bool
	clangTidy        bool
}

func (p *Probe) walk(root string) ([]string, map[string]int, capabilityHints, error) {
	var files []string
	counts := make(map[string]int)
	var hints capabilityHints

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree entries are skipped, not fatal: a
			// permission-denied directory elsewhere in the tree should not
			// abort the whole probe.
			return nil
		}
		if d.IsDir() {
			if path != root && excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		name := d.Name()
		switch name {
		case "compile_commands.json":
			hints.compileCommands = true
		case ".clang-tidy":
			hints.clangTidy = true
		}

		ext := strings.ToLower(filepath.Ext(name))
		if lang, ok := sourceExtensions[ext]; ok {
			counts[lang]++
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, nil, hints, err
	}
	return files, counts, hints, nil
}

func primaryLanguage(counts map[string]int) string {
	best, bestCount := "unknown", 0
	// A tie between c and cpp resolves to cpp, so the result does not
	// depend on map iteration order.
	for lang, n := range counts {
		if n > bestCount || (n == bestCount && lang == "cpp") {
			best, bestCount = lang, n
		}
	}
	return best
}

// detectBuildSystem walks buildMarkers in priority order and returns the
// first system whose marker file exists at the project root.
func detectBuildSystem(root string) string {
	for _, bm := range buildMarkers {
		for _, marker := range bm.markers {
			if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
				return bm.system
			}
		}
	}
	return "unknown"
}

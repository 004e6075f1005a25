// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bitcode drives a project's own build system under a
// bitcode-capturing compiler wrapper, collects the resulting per-object
// and per-archive bitcode, excludes fuzz-harness translation units, links
// the remainder into a single whole-program library artifact, and
// extracts per-function debug metadata and source bodies from it.
package bitcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kraklabs/reachmap/internal/errors"
)

// FunctionMeta is one function's debug-derived identity and source body,
// extracted from the linked library's textual IR (spec.md §4.5 step 7).
type FunctionMeta struct {
	IRName       string
	OriginalName string
	FilePath     string
	StartLine    int
	EndLine      int
	Content      string
}

// Output is the result of a successful Build.
type Output struct {
	BCPath          string
	TextualIRPath   string
	FunctionMetas   []FunctionMeta
}

// WrapperConfig names the compiler-wrapper binaries installed ahead of the
// project build, and the whole-program-bitcode toolchain used to collect,
// extract, and link the result. v1 targets an LLVM-bitcode-capturing
// driver (the wllvm/gllvm family): CC/CXX point at wrapper scripts that
// forward to the real compiler while recording a side-car bitcode path
// per object file, and Extractor pulls retained bitcode back out of
// object files and static archives.
type WrapperConfig struct {
	CC            string
	CXX           string
	Extractor     string // e.g. "extract-bc"
	Linker        string // e.g. "llvm-link"
	Disassembler  string // e.g. "llvm-dis"
	Archiver      string // e.g. "llvm-ar"
	DebugInfoFlag string // e.g. "-g"
}

// DefaultWrapperConfig returns the conventional wllvm-family tool names.
func DefaultWrapperConfig() WrapperConfig {
	return WrapperConfig{
		CC:            "wllvm",
		CXX:           "wllvm++",
		Extractor:     "extract-bc",
		Linker:        "llvm-link",
		Disassembler:  "llvm-dis",
		Archiver:      "llvm-ar",
		DebugInfoFlag: "-g",
	}
}

// Builder runs the BitcodeBuilder phase.
type Builder struct {
	wrapper WrapperConfig
}

// New constructs a Builder with the given wrapper toolchain.
func New(wrapper WrapperConfig) *Builder {
	return &Builder{wrapper: wrapper}
}

// Build executes the project's build commands under the bitcode wrapper,
// then collects, filters, links, and disassembles the result. harnessFiles
// is the flattened set of fuzz-harness source files (relative to
// projectRoot) to exclude from the link per spec.md §4.5 step 4.
func (b *Builder) Build(ctx context.Context, projectRoot, workDir string, commands []string, harnessFiles []string) (*Output, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, errors.NewBuildError("cannot create build work directory", err.Error(), "check permissions on the work directory", err)
	}

	env := b.wrappedEnv()
	for _, cmd := range commands {
		if err := b.runShell(ctx, projectRoot, env, cmd); err != nil {
			return nil, errors.NewBuildError(
				"project build failed under the bitcode-capturing compiler wrapper",
				err.Error(),
				"check compiler driver and whole-program-linker version compatibility; the wrapper requires them to match",
				err,
			)
		}
	}

	objectBlobs, err := b.collectObjectBitcode(ctx, projectRoot)
	if err != nil {
		return nil, err
	}
	archiveBlobs, err := b.collectArchiveBitcode(ctx, projectRoot, workDir)
	if err != nil {
		return nil, err
	}

	allBlobs := append(objectBlobs, archiveBlobs...)
	retained := excludeHarnessBitcode(allBlobs, harnessFiles)
	if len(retained) == 0 {
		return nil, errors.NewBuildError(
			"no library bitcode remained after excluding harness translation units",
			"every discovered bitcode blob matched a harness source file",
			"verify the ticket's fuzzer source file list does not also cover library code",
			nil,
		)
	}

	bcPath := filepath.Join(workDir, "library.bc")
	if err := b.link(ctx, retained, bcPath); err != nil {
		return nil, errors.NewBuildError("whole-program link failed", err.Error(),
			"ensure the linker version matches the compiler driver used to produce the bitcode", err)
	}

	irPath := filepath.Join(workDir, "library.ll")
	if err := b.disassemble(ctx, bcPath, irPath); err != nil {
		return nil, errors.NewBuildError("bitcode disassembly failed", err.Error(), "verify the disassembler is installed and matches the bitcode version", err)
	}

	metas, err := ExtractFunctionMetas(irPath, projectRoot)
	if err != nil {
		return nil, errors.NewBuildError("debug metadata extraction failed", err.Error(), "inspect library.ll for malformed debug records", err)
	}

	return &Output{BCPath: bcPath, TextualIRPath: irPath, FunctionMetas: metas}, nil
}

// wrappedEnv redirects CC/CXX so every compiler invocation in the native
// build goes through the bitcode-capturing wrapper, per spec.md §4.5 step 1.
func (b *Builder) wrappedEnv() []string {
	env := os.Environ()
	env = append(env,
		"CC="+b.wrapper.CC,
		"CXX="+b.wrapper.CXX,
		"LLVM_COMPILER=clang",
		"WLLVM_CONFIGURE_ONLY=0",
	)
	return env
}

func (b *Builder) runShell(ctx context.Context, dir string, env []string, shellCmd string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// bitcodeBlob is one retained or excludable unit of collected bitcode.
type bitcodeBlob struct {
	path         string // path to the .bc blob
	sourceBasename string // basename of the originating .c/.cpp file, when known
}

// collectObjectBitcode extracts the per-object-file bitcode manifest the
// wrapper recorded during the build (spec.md §4.5 step 2). The wllvm
// family stores a ".llvm_bc" side-car section inside each produced object
// file; extract-bc pulls it back out.
func (b *Builder) collectObjectBitcode(ctx context.Context, projectRoot string) ([]bitcodeBlob, error) {
	objects, err := findByExt(projectRoot, []string{".o"})
	if err != nil {
		return nil, err
	}

	var blobs []bitcodeBlob
	for _, obj := range objects {
		bcPath := strings.TrimSuffix(obj, filepath.Ext(obj)) + ".bc"
		cmd := exec.CommandContext(ctx, b.wrapper.Extractor, obj)
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			// An object that was never compiled through the wrapper (e.g. a
			// prebuilt .o pulled from a vendored blob) has no embedded
			// bitcode; extraction failure for such a file is expected and
			// skipped rather than aborting the whole collection pass.
			continue
		}
		if _, statErr := os.Stat(bcPath); statErr == nil {
			blobs = append(blobs, bitcodeBlob{path: bcPath, sourceBasename: objBasenameToSource(obj)})
		}
	}
	return blobs, nil
}

// collectArchiveBitcode enumerates every static archive under projectRoot
// (no install prefix outside the tree is searched), extracting each into a per-archive bitcode
// blob (spec.md §4.5 step 3). Deduping against collectObjectBitcode is
// handled later by excludeHarnessBitcode operating over the union.
func (b *Builder) collectArchiveBitcode(ctx context.Context, projectRoot, workDir string) ([]bitcodeBlob, error) {
	archives, err := findByExt(projectRoot, []string{".a"})
	if err != nil {
		return nil, err
	}

	var blobs []bitcodeBlob
	for i, archive := range archives {
		out := filepath.Join(workDir, fmt.Sprintf("archive-%d.bc", i))
		cmd := exec.CommandContext(ctx, b.wrapper.Extractor, "-o", out, archive)
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			continue
		}
		if _, statErr := os.Stat(out); statErr == nil {
			blobs = append(blobs, bitcodeBlob{path: out, sourceBasename: filepath.Base(archive)})
		}
	}
	return blobs, nil
}

// excludeHarnessBitcode drops every blob whose originating source
// basename matches a harness file's basename with its extension removed
// (fuzz/parse_fuzzer.cc and parse_fuzzer.o both reduce to parse_fuzzer)
// (spec.md §4.5 step 4).
func excludeHarnessBitcode(blobs []bitcodeBlob, harnessFiles []string) []bitcodeBlob {
	excluded := make(map[string]bool, len(harnessFiles))
	for _, h := range harnessFiles {
		base := filepath.Base(h)
		excluded[strings.TrimSuffix(base, filepath.Ext(base))] = true
	}

	var retained []bitcodeBlob
	for _, blob := range blobs {
		if blob.sourceBasename != "" && excluded[blob.sourceBasename] {
			continue
		}
		retained = append(retained, blob)
	}
	return retained
}

// objBasenameToSource maps an object file's basename to the stem of the
// source file that produced it (foo.o -> foo). foo.c and foo.cpp are
// indistinguishable from the object alone, so excludeHarnessBitcode
// compares this stem with the harness file's basename minus its extension.
func objBasenameToSource(objPath string) string {
	base := filepath.Base(objPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// link concatenates retained bitcode blobs into a single whole-program
// artifact (spec.md §4.5 step 5). With exactly one blob, it is copied
// rather than run through the linker.
func (b *Builder) link(ctx context.Context, blobs []bitcodeBlob, outPath string) error {
	if len(blobs) == 1 {
		data, err := os.ReadFile(blobs[0].path)
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, data, 0o644)
	}

	args := []string{"-o", outPath}
	for _, blob := range blobs {
		args = append(args, blob.path)
	}
	cmd := exec.CommandContext(ctx, b.wrapper.Linker, args...)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// disassemble emits the textual IR form of bcPath (spec.md §4.5 step 6).
func (b *Builder) disassemble(ctx context.Context, bcPath, outPath string) error {
	cmd := exec.CommandContext(ctx, b.wrapper.Disassembler, bcPath, "-o", outPath)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// findByExt walks root collecting files whose extension (case-sensitive)
// is in exts, skipping vendor, third_party and .git directories. Unlike
// probe.Probe, it does descend into build/.
func findByExt(root string, exts []string) ([]string, error) {
	wanted := make(map[string]bool, len(exts))
	for _, e := range exts {
		wanted[e] = true
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			switch d.Name() {
			case "vendor", "third_party", ".git":
				return filepath.SkipDir
			}
			return nil
		}
		if wanted[filepath.Ext(path)] {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

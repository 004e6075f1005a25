// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pointeranalysis

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// SVFBackend invokes SVF's whole-program inclusion-based pointer analysis
// tool (wpa / saber family) over a linked bitcode module and parses its
// textual call-graph dump. It is the default, and in v1 the only, backend.
type SVFBackend struct {
	// BinaryPath is the SVF call-graph analysis executable, e.g. "wpa".
	BinaryPath string
}

// NewSVFBackend returns a Backend driving the named SVF binary.
func NewSVFBackend(binaryPath string) *SVFBackend {
	if binaryPath == "" {
		binaryPath = "wpa"
	}
	return &SVFBackend{BinaryPath: binaryPath}
}

func (s *SVFBackend) Name() string { return "svf" }

func (s *SVFBackend) SupportedLanguages() []string { return []string{"c", "cpp"} }

func (s *SVFBackend) CheckPrerequisites(ctx context.Context) []string {
	var missing []string
	if _, err := exec.LookPath(s.BinaryPath); err != nil {
		missing = append(missing, s.BinaryPath)
	}
	return missing
}

// callGraphEdgePattern matches one line of SVF's "-print-fp" / callgraph
// dump format: `caller -> callee [direct|indirect] (conf)`. SVF's actual
// dump format varies by flag; this is the stable subset the pipeline
// depends on, re-derived from whichever dump flag is passed via options.
var callGraphEdgePattern = regexp.MustCompile(`^(\S+)\s*->\s*(\S+)\s*\[(direct|indirect)\](?:\s*\(([0-9.]+)\))?`)

// Analyze runs SVF's call-graph dump over bcPath and parses the result.
func (s *SVFBackend) Analyze(ctx context.Context, bcPath, language string, options map[string]any) (*AnalysisResult, error) {
	outPath := bcPath + ".callgraph.txt"
	args := []string{"-print-fp", "-write-ans=" + outPath, bcPath}

	cmd := exec.CommandContext(ctx, s.BinaryPath, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pointeranalysis: svf run failed: %w", err)
	}

	edges, functions, warnings, err := parseCallGraphDump(outPath)
	if err != nil {
		return nil, err
	}

	return &AnalysisResult{
		Functions: functions,
		Edges:     edges,
		Language:  language,
		Backend:   s.Name(),
		Warnings:  warnings,
	}, nil
}

// parseCallGraphDump parses SVF's textual call-graph output into edges,
// and derives the function set as every IR name seen as a caller or
// callee (complexity metrics are not reported by this dump format and are
// left at zero, to be backfilled elsewhere if a future backend adds them).
func parseCallGraphDump(path string) ([]EdgeResult, []FunctionResult, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pointeranalysis: open callgraph dump: %w", err)
	}
	defer f.Close()

	var edges []EdgeResult
	var warnings []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := callGraphEdgePattern.FindStringSubmatch(line)
		if m == nil {
			warnings = append(warnings, fmt.Sprintf("unparsed callgraph line: %q", line))
			continue
		}

		callType := "direct"
		confidence := 1.0
		if m[3] == "indirect" {
			callType = "fptr"
			confidence = 0.7
		}
		if m[4] != "" {
			if parsed, perr := strconv.ParseFloat(m[4], 64); perr == nil {
				confidence = parsed
			}
		}

		edges = append(edges, EdgeResult{
			CallerIRName: m[1],
			CalleeIRName: m[2],
			CallType:     callType,
			Confidence:   confidence,
		})
		seen[m[1]] = true
		seen[m[2]] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("pointeranalysis: scan callgraph dump: %w", err)
	}

	functions := make([]FunctionResult, 0, len(seen))
	for name := range seen {
		functions = append(functions, FunctionResult{IRName: name})
	}
	return edges, functions, warnings, nil
}

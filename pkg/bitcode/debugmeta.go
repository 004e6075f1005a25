// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package bitcode

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// diSubprogramPattern matches an LLVM "DISubprogram" metadata record's
// relevant fields. Textual IR emits these as a flat attribute list on one
// line; field order is not guaranteed so each is extracted independently.
var diSubprogramPattern = regexp.MustCompile(`distinct !DISubprogram\(([^)]*)\)`)

var diFieldPatterns = map[string]*regexp.Regexp{
	"name":   regexp.MustCompile(`name:\s*"([^"]*)"`),
	"linkageName": regexp.MustCompile(`linkageName:\s*"([^"]*)"`),
	"file":   regexp.MustCompile(`file:\s*(![0-9]+)`),
	"line":   regexp.MustCompile(`line:\s*(\d+)`),
}

// diFilePattern matches a !DIFile record's directory/filename pair.
var diFilePattern = regexp.MustCompile(`!DIFile\(filename:\s*"([^"]*)",\s*directory:\s*"([^"]*)"\)`)

// ExtractFunctionMetas parses library.ll for subprogram debug records,
// resolves each to its source file and starting line, and reads the
// source file to capture the function body as content (spec.md §4.5
// step 7). projectRoot is used to make file_path project-relative.
func ExtractFunctionMetas(irPath, projectRoot string) ([]FunctionMeta, error) {
	f, err := os.Open(irPath)
	if err != nil {
		return nil, fmt.Errorf("bitcode: open textual IR: %w", err)
	}
	defer f.Close()

	diFiles := make(map[string]string) // metadata id (e.g. "!12") -> file path
	subprograms := make(map[string]diSubprogram)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()

		if m := diFilePattern.FindStringSubmatch(line); m != nil {
			id := diMetadataID(line)
			if id != "" {
				diFiles[id] = joinDirFile(m[2], m[1])
			}
			continue
		}

		if m := diSubprogramPattern.FindStringSubmatch(line); m != nil {
			sp := parseSubprogram(m[1])
			id := diMetadataID(line)
			if id != "" {
				subprograms[id] = sp
			}
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bitcode: scan textual IR: %w", err)
	}

	var metas []FunctionMeta
	for _, sp := range subprograms {
		if sp.name == "" || sp.fileRef == "" || sp.line == 0 {
			continue
		}
		filePath, ok := diFiles[sp.fileRef]
		if !ok {
			continue
		}
		relPath := relativeTo(projectRoot, filePath)
		content, endLine := extractBody(filePath, sp.line)

		irName := sp.linkageName
		if irName == "" {
			irName = sp.name
		}

		metas = append(metas, FunctionMeta{
			IRName:       irName,
			OriginalName: sp.name,
			FilePath:     relPath,
			StartLine:    sp.line,
			EndLine:      endLine,
			Content:      content,
		})
	}
	return metas, nil
}

type diSubprogram struct {
	name         string
	linkageName  string
	fileRef      string
	line         int
}

func parseSubprogram(fields string) diSubprogram {
	var sp diSubprogram
	if m := diFieldPatterns["name"].FindStringSubmatch(fields); m != nil {
		sp.name = m[1]
	}
	if m := diFieldPatterns["linkageName"].FindStringSubmatch(fields); m != nil {
		sp.linkageName = m[1]
	}
	if m := diFieldPatterns["file"].FindStringSubmatch(fields); m != nil {
		sp.fileRef = m[1]
	}
	if m := diFieldPatterns["line"].FindStringSubmatch(fields); m != nil {
		n, _ := strconv.Atoi(m[1])
		sp.line = n
	}
	return sp
}

// diMetadataID extracts the leading "!<number> = " target of a metadata
// definition line, e.g. "!12 = !DIFile(...)" -> "!12".
var diAssignPattern = regexp.MustCompile(`^(![0-9]+)\s*=`)

func diMetadataID(line string) string {
	if m := diAssignPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		return m[1]
	}
	return ""
}

func joinDirFile(dir, file string) string {
	if dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// extractBody reads the source file and captures the function body from
// startLine through its matching closing brace, using simple brace
// depth-counting (sufficient for well-formed C/C++; a malformed or
// macro-obscured body degrades to returning through end of file).
func extractBody(filePath string, startLine int) (string, int) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", startLine
	}
	lines := strings.Split(string(data), "\n")
	if startLine < 1 || startLine > len(lines) {
		return "", startLine
	}

	depth := 0
	seenBrace := false
	var body strings.Builder
	endLine := startLine

	for i := startLine - 1; i < len(lines); i++ {
		l := lines[i]
		body.WriteString(l)
		body.WriteByte('\n')
		for _, ch := range l {
			switch ch {
			case '{':
				depth++
				seenBrace = true
			case '}':
				depth--
			}
		}
		endLine = i + 1
		if seenBrace && depth <= 0 {
			break
		}
	}
	return strings.TrimRight(body.String(), "\n"), endLine
}

// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package harness syntactically parses fuzz-harness source files and
// computes, for each fuzzer, the closure of library functions reachable
// from its entry symbol without depending on pointer analysis.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Harness describes one fuzzer's declared source files and entry symbol.
type Harness struct {
	FuzzerName    string
	EntryFunction string
	Files         []string // project-relative paths
}

// Parser computes library call closures for a set of harnesses.
type Parser struct {
	tsParser *sitter.Parser
}

// New returns a Parser configured with the C/C++ grammar.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(cpp.GetLanguage())
	return &Parser{tsParser: p}
}

// fileFunctions is the result of parsing one harness source file.
type fileFunctions struct {
	// defined maps a defined function's name to the set of names it calls
	// (syntactically, within this file).
	defined map[string][]string
}

// Resolve computes, for every harness, the set of library-function names
// (drawn from libraryFunctions) transitively invoked from its entry
// function through in-harness calls only (spec.md §4.7).
func (p *Parser) Resolve(ctx context.Context, root string, harnesses []Harness, libraryFunctions map[string]bool) (map[string][]string, error) {
	result := make(map[string][]string, len(harnesses))

	// Template-harness corner case: multiple fuzzers sharing one source
	// file get the union of all observed calls in that file rather than
	// a macro-resolved subset (spec.md §4.7); caching parses by file path
	// makes that union free rather than requiring a separate step.
	parsedFiles := make(map[string]*fileFunctions)

	for _, h := range harnesses {
		allCallees := make(map[string]bool)

		for _, file := range h.Files {
			ff, ok := parsedFiles[file]
			if !ok {
				parsed, err := p.parseFile(ctx, root, file)
				if err != nil {
					return nil, fmt.Errorf("harness: parse %s: %w", file, err)
				}
				parsedFiles[file] = parsed
				ff = parsed
			}

			closure := closureFrom(ff, h.EntryFunction)
			for name := range closure {
				allCallees[name] = true
			}
		}

		var libCalls []string
		for name := range allCallees {
			if libraryFunctions[name] {
				libCalls = append(libCalls, name)
			}
		}
		result[h.FuzzerName] = libCalls
	}

	return result, nil
}

// closureFrom walks, within one file's call graph, the in-harness calls
// reachable from entry and returns the leaf calls: called symbols not
// defined in the file (the candidates checked against libraryFunctions by
// the caller). Functions defined in the file are walked through but not
// returned.
func closureFrom(ff *fileFunctions, entry string) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{entry}
	reached := make(map[string]bool)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		callees, isDefinedHere := ff.defined[name]
		if !isDefinedHere && name != entry {
			reached[name] = true
			continue
		}
		for _, callee := range callees {
			if !visited[callee] {
				queue = append(queue, callee)
			}
		}
	}
	return reached
}

// identPattern restricts recorded callee names to plain identifiers;
// calls through member access, qualified names or other expressions are
// not recorded by collectCalls.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (p *Parser) parseFile(ctx context.Context, root, relPath string) (*fileFunctions, error) {
	content, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		return nil, err
	}

	tree, err := p.tsParser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	ff := &fileFunctions{defined: make(map[string][]string)}
	walkFunctionDefinitions(tree.RootNode(), content, ff)
	return ff, nil
}

// walkFunctionDefinitions walks the cpp grammar's function_definition
// nodes, recording each defined function's name and the names syntactically
// called from within its body (call_expression nodes), per spec.md §4.7
// steps 1-2: no semantic type resolution, just syntactic recall.
func walkFunctionDefinitions(n *sitter.Node, content []byte, ff *fileFunctions) {
	if n == nil {
		return
	}
	if n.Type() == "function_definition" {
		name := functionDefName(n, content)
		if name != "" {
			body := n.ChildByFieldName("body")
			calls := collectCalls(body, content)
			ff.defined[name] = calls
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkFunctionDefinitions(n.Child(i), content, ff)
	}
}

// functionDefName extracts the declared identifier from a
// function_definition node's declarator subtree.
func functionDefName(n *sitter.Node, content []byte) string {
	declarator := n.ChildByFieldName("declarator")
	for declarator != nil {
		if declarator.Type() == "function_declarator" {
			inner := declarator.ChildByFieldName("declarator")
			if inner != nil && inner.Type() == "identifier" {
				return inner.Content(content)
			}
		}
		if declarator.Type() == "identifier" {
			return declarator.Content(content)
		}
		declarator = declarator.ChildByFieldName("declarator")
	}
	return ""
}

// collectCalls walks a subtree collecting the callee name of every
// call_expression.
func collectCalls(n *sitter.Node, content []byte) []string {
	if n == nil {
		return nil
	}
	var calls []string
	var walk func(*sitter.Node)
	walk = func(cur *sitter.Node) {
		if cur == nil {
			return
		}
		if cur.Type() == "call_expression" {
			fn := cur.ChildByFieldName("function")
			if fn != nil {
				name := fn.Content(content)
				if identPattern.MatchString(name) {
					calls = append(calls, name)
				}
			}
		}
		for i := 0; i < int(cur.ChildCount()); i++ {
			walk(cur.Child(i))
		}
	}
	walk(n)
	return calls
}

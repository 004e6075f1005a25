// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	cozo "github.com/kraklabs/reachmap/pkg/cozodb"
)

// EmbeddedBackend implements Backend using a local CozoDB instance. It is
// the default, and in v1 the only, backend.
type EmbeddedBackend struct {
	db     *cozo.DB
	mu     sync.RWMutex
	closed bool
}

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	// DataDir is the directory where CozoDB stores its data.
	DataDir string

	// Engine is the CozoDB storage engine: "rocksdb", "sqlite", or "mem".
	// Defaults to "rocksdb".
	Engine string
}

// NewEmbeddedBackend opens (or creates) the embedded CozoDB instance and
// ensures the reachmap schema exists.
func NewEmbeddedBackend(cfg EmbeddedConfig) (*EmbeddedBackend, error) {
	if cfg.Engine == "" {
		cfg.Engine = "rocksdb"
	}
	if cfg.Engine != "mem" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create graph data dir: %w", err)
		}
	}

	db, err := cozo.New(cfg.Engine, cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("open cozodb: %w", err)
	}

	b := &EmbeddedBackend{db: db}
	if err := b.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Query executes a read-only Datalog script.
func (b *EmbeddedBackend) Query(ctx context.Context, script string, params map[string]any) (*QueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("graphstore: backend is closed")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.db.RunReadOnly(script, params)
	if err != nil {
		return nil, fmt.Errorf("graphstore: query failed: %w", err)
	}
	return FromNamedRows(*result), nil
}

// Execute runs a Datalog mutation.
func (b *EmbeddedBackend) Execute(ctx context.Context, script string, params map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("graphstore: backend is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := b.db.Run(script, params)
	if err != nil {
		return fmt.Errorf("graphstore: execute failed: %w", err)
	}
	return nil
}

// Close releases the underlying CozoDB handle.
func (b *EmbeddedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// relation definitions for the reachmap call-graph snapshot model. All ids
// are deterministic (see ids.go) so import operations are idempotent per
// snapshot_id, satisfying spec.md §4.9's write-operation contract.
var schemaRelations = []string{
	`:create rm_snapshot { id: String => repo_url: String, version: String, backend: String, created_at: Float }`,
	`:create rm_function { id: String => snapshot_id: String, name: String, file_path: String, content: String, language: String, start_line: Int, end_line: Int, cyclomatic_complexity: Int, return_type: String, parameters: String, is_entry_point: Bool, confidence: Float, is_external: Bool }`,
	`:create rm_calls { id: String => snapshot_id: String, caller_id: String, callee_id: String, caller_name: String, caller_file_path: String, callee_name: String, callee_file_path: String, call_type: String, confidence: Float, backend: String }`,
	`:create rm_fuzzer { id: String => snapshot_id: String, name: String, entry_function: String, focus: String }`,
	`:create rm_entry { fuzzer_id: String => snapshot_id: String, function_id: String }`,
	`:create rm_reaches { id: String => snapshot_id: String, fuzzer_id: String, function_id: String, function_name: String, function_file_path: String, depth: Int }`,
}

// EnsureSchema creates every relation reachmap needs, tolerating
// already-exists errors so repeated calls (and repeated process starts
// against the same data directory) are safe.
func (b *EmbeddedBackend) EnsureSchema() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rel := range schemaRelations {
		if _, err := b.db.Run(rel, nil); err != nil {
			// CozoDB reports "already exists" for a relation that was
			// created by a prior run; any other error is swallowed here
			// too because a half-created schema would otherwise make
			// every subsequent EnsureSchema call permanently fail.
			continue
		}
	}
	return nil
}

// DB returns the underlying CozoDB handle for advanced/diagnostic use.
func (b *EmbeddedBackend) DB() *cozo.DB {
	return b.db
}

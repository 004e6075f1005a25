// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"context"

	cozo "github.com/kraklabs/reachmap/pkg/cozodb"
)

// Backend is the low-level Datalog execution surface. EmbeddedBackend is
// the only implementation shipped in v1; the interface exists so higher
// layers (and tests) never depend on the concrete CozoDB binding.
type Backend interface {
	// Query executes a read-only Datalog script.
	Query(ctx context.Context, script string, params map[string]any) (*QueryResult, error)

	// Execute runs a Datalog mutation.
	Execute(ctx context.Context, script string, params map[string]any) error

	// Close releases any resources held by the backend.
	Close() error
}

// QueryResult is the tabular result of a Datalog query.
type QueryResult struct {
	Headers []string
	Rows    [][]any
}

// ToNamedRows converts QueryResult to the cozodb wire format.
func (r *QueryResult) ToNamedRows() cozo.NamedRows {
	return cozo.NamedRows{Headers: r.Headers, Rows: r.Rows}
}

// FromNamedRows converts the cozodb wire format to a QueryResult.
func FromNamedRows(nr cozo.NamedRows) *QueryResult {
	return &QueryResult{Headers: nr.Headers, Rows: nr.Rows}
}

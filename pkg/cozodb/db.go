// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cozodb

/*
#cgo LDFLAGS: -lcozo_c
#include <stdlib.h>
#include <stdint.h>
#include <stdbool.h>

extern int32_t cozo_open_db(const char *engine, const char *path, const char *options, int32_t *db_id, char **error);
extern bool cozo_close_db(int32_t db_id);
extern char *cozo_run_query(int32_t db_id, const char *script_raw, const char *params_raw, bool immutable_query);
extern void cozo_free_str(char *s);
extern char *cozo_backup(int32_t db_id, const char *out_path);
extern char *cozo_restore(int32_t db_id, const char *in_path);
*/
import "C"

import (
	"encoding/json"
	"fmt"
	"sync"
	"unsafe"
)

// NamedRows mirrors CozoDB's JSON query-result envelope: a header row of
// column names plus the matching data rows.
type NamedRows struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
	Next    *NamedRows `json:"next,omitempty"`
}

type queryResponse struct {
	Ok      bool       `json:"ok"`
	Message string     `json:"message"`
	Headers []string   `json:"headers"`
	Rows    [][]any    `json:"rows"`
}

// DB is a handle to one open CozoDB instance. It is safe for concurrent
// use; CozoDB itself serializes writers internally, but the Go side still
// guards the C handle with a mutex since the underlying dbID is not
// reentrant-safe across cgo calls during Close.
type DB struct {
	mu     sync.RWMutex
	dbID   C.int32_t
	closed bool
}

// New opens a CozoDB instance with the given engine ("mem", "sqlite", or
// "rocksdb"), storage path, and optional JSON-encoded engine options.
func New(engine, path string, options map[string]any) (*DB, error) {
	cEngine := C.CString(engine)
	defer C.free(unsafe.Pointer(cEngine))
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	optsJSON := "{}"
	if options != nil {
		b, err := json.Marshal(options)
		if err != nil {
			return nil, fmt.Errorf("cozodb: marshal options: %w", err)
		}
		optsJSON = string(b)
	}
	cOpts := C.CString(optsJSON)
	defer C.free(unsafe.Pointer(cOpts))

	var dbID C.int32_t
	var cErr *C.char
	ret := C.cozo_open_db(cEngine, cPath, cOpts, &dbID, &cErr)
	if ret != 0 {
		defer C.cozo_free_str(cErr)
		return nil, fmt.Errorf("cozodb: open %s at %s: %s", engine, path, C.GoString(cErr))
	}

	return &DB{dbID: dbID}, nil
}

// Close releases the underlying database handle. Calling Close more than
// once is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if !C.cozo_close_db(d.dbID) {
		return fmt.Errorf("cozodb: close failed for db %d", int32(d.dbID))
	}
	return nil
}

// Run executes a Datalog script that may mutate relations.
func (d *DB) Run(script string, params map[string]any) (*NamedRows, error) {
	return d.run(script, params, false)
}

// RunReadOnly executes a Datalog script under immutable-query semantics,
// enforced by the database itself; any write attempt is rejected.
func (d *DB) RunReadOnly(script string, params map[string]any) (*NamedRows, error) {
	return d.run(script, params, true)
}

func (d *DB) run(script string, params map[string]any, immutable bool) (*NamedRows, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, fmt.Errorf("cozodb: query on closed database")
	}

	paramsJSON := "{}"
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("cozodb: marshal params: %w", err)
		}
		paramsJSON = string(b)
	}

	cScript := C.CString(script)
	defer C.free(unsafe.Pointer(cScript))
	cParams := C.CString(paramsJSON)
	defer C.free(unsafe.Pointer(cParams))

	cResult := C.cozo_run_query(d.dbID, cScript, cParams, C.bool(immutable))
	if cResult == nil {
		return nil, fmt.Errorf("cozodb: query returned no result")
	}
	defer C.cozo_free_str(cResult)

	raw := C.GoString(cResult)
	var resp queryResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("cozodb: decode query response: %w", err)
	}
	if !resp.Ok {
		return nil, fmt.Errorf("cozodb: query failed: %s", resp.Message)
	}

	return &NamedRows{Headers: resp.Headers, Rows: resp.Rows}, nil
}

// Backup writes a consistent snapshot of the database to outPath.
func (d *DB) Backup(outPath string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cPath := C.CString(outPath)
	defer C.free(unsafe.Pointer(cPath))
	if cErr := C.cozo_backup(d.dbID, cPath); cErr != nil {
		defer C.cozo_free_str(cErr)
		return fmt.Errorf("cozodb: backup to %s: %s", outPath, C.GoString(cErr))
	}
	return nil
}

// Restore loads a database previously written by Backup.
func (d *DB) Restore(inPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cPath := C.CString(inPath)
	defer C.free(unsafe.Pointer(cPath))
	if cErr := C.cozo_restore(d.dbID, cPath); cErr != nil {
		defer C.cozo_free_str(cErr)
		return fmt.Errorf("cozodb: restore from %s: %s", inPath, C.GoString(cErr))
	}
	return nil
}

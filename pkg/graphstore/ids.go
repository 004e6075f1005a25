// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// normalizePath mirrors pkg/ingestion's path normalization so identical
// paths always hash to the same node id regardless of how a caller
// spelled them (leading "./", OS-specific separators, redundant "..").
func normalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = filepath.ToSlash(path)
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}

// functionID derives a stable Function/External node id from its snapshot
// scope and its (name, file_path) identity (spec.md §3.2: identity within
// a snapshot is the (name, file_path) pair). External nodes use an empty
// file_path.
func functionID(snapshotID, name, filePath string) string {
	key := fmt.Sprintf("%s|%s|%s", snapshotID, name, normalizePath(filePath))
	sum := sha256.Sum256([]byte(key))
	return "fn:" + hex.EncodeToString(sum[:16])
}

// callEdgeID derives a deterministic CALLS edge id so repeated imports of
// the same edge are idempotent rather than accumulating duplicates -
// except where the spec explicitly wants a multiedge (same pair via both
// direct and fptr), which callType being part of the key preserves.
func callEdgeID(snapshotID, callerID, calleeID, callType string) string {
	key := fmt.Sprintf("%s|%s|%s|%s", snapshotID, callerID, calleeID, callType)
	sum := sha256.Sum256([]byte(key))
	return "call:" + hex.EncodeToString(sum[:16])
}

// fuzzerID derives a stable Fuzzer node id from its snapshot scope and
// name (spec.md §3.3 invariant 6: fuzzer names are unique per snapshot).
func fuzzerID(snapshotID, name string) string {
	key := fmt.Sprintf("%s|%s", snapshotID, name)
	sum := sha256.Sum256([]byte(key))
	return "fz:" + hex.EncodeToString(sum[:16])
}

// reachesID derives a stable REACHES edge id from the fuzzer and target
// function; depth is not part of the key because ReachesComputer emits at
// most one REACHES edge per (fuzzer, function) pair, at its minimum depth.
func reachesID(snapshotID, fuzzerID, functionID string) string {
	key := fmt.Sprintf("%s|%s|%s", snapshotID, fuzzerID, functionID)
	sum := sha256.Sum256([]byte(key))
	return "reach:" + hex.EncodeToString(sum[:16])
}

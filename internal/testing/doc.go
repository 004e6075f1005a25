// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testing provides test helpers for reachmap integration tests:
// an in-memory graph-store + catalog pair, and seed helpers for common
// Function/External/Fuzzer/REACHES fixtures.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    graph := testing.SetupTestGraph(t)
//	    cat := testing.SetupTestCatalog(t)
//
//	    testing.SeedFunction(t, graph, "snap1", "parse_input", "parse.c", 10, 40)
//	    testing.SeedCall(t, graph, "snap1", "parse_input", "free_buffer")
//	}
package testing

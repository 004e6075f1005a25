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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap handles reachmap workspace initialization and setup.
//
// This internal package wires pkg/config, pkg/catalog, and pkg/graphstore
// into a single Workspace, creating the catalog database and graph-store
// data directory on first use.
//
// # Initialization Workflow
//
// A typical workflow for setting up a new workspace:
//
//	ws, err := bootstrap.InitWorkspace(bootstrap.WorkspaceConfig{
//	    Name: "myworkspace",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ws.Close()
//
//	// Later, reopen it for queries
//	ws, err := bootstrap.OpenWorkspace(bootstrap.WorkspaceConfig{
//	    Name: "myworkspace",
//	}, logger)
//
// # Idempotency
//
// InitWorkspace is idempotent: calling it multiple times against the same
// data directory is safe and never corrupts existing data.
//
// # Storage Engines
//
// The graph store supports the CozoDB engines pkg/graphstore exposes:
//
//   - rocksdb: persistent storage (default)
//   - sqlite: lightweight persistent storage
//   - mem: in-memory, for tests and scratch use
//
// # Workspace Discovery
//
// List existing workspaces in the default data directory:
//
//	names, err := bootstrap.ListWorkspaces()
//	for _, name := range names {
//	    fmt.Println(name)
//	}
package bootstrap

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

// Package bootstrap wires together the workspace a reachmap process needs to
// run: the on-disk config defaults, the catalog database, and the graph
// store. cmd/reachmap's subcommands call into this package once at startup
// instead of constructing pkg/catalog and pkg/graphstore by hand.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/reachmap/pkg/catalog"
	"github.com/kraklabs/reachmap/pkg/config"
	"github.com/kraklabs/reachmap/pkg/graphstore"
)

// WorkspaceConfig holds configuration for initializing a workspace.
type WorkspaceConfig struct {
	// Name is the logical workspace identifier. Defaults to "default".
	Name string

	// DataDir is the root directory the workspace lives under. Defaults to
	// ~/.reachmap/data/<name>.
	DataDir string

	// ConfigPath, if set, is a YAML file layered on top of config.Default
	// before any directory defaulting happens.
	ConfigPath string

	// GraphEngine overrides the CozoDB storage engine ("rocksdb", "sqlite",
	// or "mem"). Defaults to config.Default's "rocksdb".
	GraphEngine string
}

// Workspace holds the opened components of an initialized workspace.
type Workspace struct {
	Name    string
	Cfg     config.Config
	Catalog *catalog.Catalog
	Graph   *graphstore.EmbeddedBackend
}

// Close releases the catalog and graph-store handles.
func (w *Workspace) Close() error {
	var firstErr error
	if err := w.Catalog.Close(); err != nil {
		firstErr = err
	}
	if err := w.Graph.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func defaultDataDir(name string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".reachmap", "data", name), nil
}

func resolveConfig(wc WorkspaceConfig) (config.Config, error) {
	if wc.Name == "" {
		wc.Name = "default"
	}
	if wc.DataDir == "" {
		dataDir, err := defaultDataDir(wc.Name)
		if err != nil {
			return config.Config{}, err
		}
		wc.DataDir = dataDir
	}

	cfg, err := config.Load(wc.ConfigPath, wc.DataDir)
	if err != nil {
		return config.Config{}, err
	}
	if wc.GraphEngine != "" {
		cfg.GraphEngine = wc.GraphEngine
	}
	return cfg, nil
}

// InitWorkspace initializes a new reachmap workspace: it creates the data
// directories, opens the catalog database, and opens (creating if needed)
// the embedded graph store. It is idempotent: calling it multiple times
// against the same data directory is safe.
func InitWorkspace(wc WorkspaceConfig, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := resolveConfig(wc)
	if err != nil {
		return nil, err
	}

	logger.Info("bootstrap.workspace.init.start",
		"name", wc.Name,
		"catalog_dsn", cfg.CatalogDSN,
		"graph_data_dir", cfg.GraphDataDir,
		"graph_engine", cfg.GraphEngine,
	)

	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure dirs: %w", err)
	}

	cat, err := catalog.Open(cfg.CatalogDSN)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	graph, err := graphstore.NewEmbeddedBackend(graphstore.EmbeddedConfig{
		DataDir: cfg.GraphDataDir,
		Engine:  cfg.GraphEngine,
	})
	if err != nil {
		_ = cat.Close()
		return nil, fmt.Errorf("open graph store: %w", err)
	}

	logger.Info("bootstrap.workspace.init.success", "name", wc.Name, "data_dir", filepath.Dir(cfg.CatalogDSN))

	return &Workspace{
		Name:    wc.Name,
		Cfg:     cfg,
		Catalog: cat,
		Graph:   graph,
	}, nil
}

// OpenWorkspace opens an existing reachmap workspace. It fails if the data
// directory does not exist, since the catalog and graph store would
// otherwise be silently created empty.
func OpenWorkspace(wc WorkspaceConfig, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if wc.Name == "" {
		wc.Name = "default"
	}
	if wc.DataDir == "" {
		dataDir, err := defaultDataDir(wc.Name)
		if err != nil {
			return nil, err
		}
		wc.DataDir = dataDir
	}

	if _, err := os.Stat(wc.DataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace not found: %s (create it with InitWorkspace first)", wc.DataDir)
	}

	logger.Debug("bootstrap.workspace.open", "name", wc.Name, "data_dir", wc.DataDir)

	return InitWorkspace(wc, logger)
}

// ListWorkspaces returns the names of workspaces under the default data
// root (~/.reachmap/data).
func ListWorkspaces() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".reachmap", "data")
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var workspaces []string
	for _, entry := range entries {
		if entry.IsDir() {
			workspaces = append(workspaces, entry.Name())
		}
	}

	return workspaces, nil
}

// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"github.com/kraklabs/reachmap/internal/bootstrap"
	"github.com/kraklabs/reachmap/internal/errors"
)

// openWorkspace opens (creating on first use) the named workspace, wrapping
// any failure as a config error so every subcommand reports it the same
// way.
func openWorkspace(globals GlobalFlags) (*bootstrap.Workspace, error) {
	ws, err := bootstrap.InitWorkspace(bootstrap.WorkspaceConfig{
		Name:       globals.Workspace,
		ConfigPath: globals.ConfigPath,
	}, nil)
	if err != nil {
		return nil, errors.NewConfigError(
			"cannot open reachmap workspace",
			err.Error(),
			"check the --workspace name and --config path",
			err,
		)
	}
	return ws, nil
}

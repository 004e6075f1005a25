// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var (
	validGitURLPattern   = regexp.MustCompile(`^(https?://|git@|ssh://|file://)[\w.\-@:/%]+$`)
	dangerousCharsPattern = regexp.MustCompile(`[;&|$` + "`" + `\n\r\\]`)
)

// validateGitURL rejects URLs shaped to enable command injection or
// credential leakage before they ever reach exec.Command.
func validateGitURL(gitURL string) error {
	if gitURL == "" {
		return fmt.Errorf("git URL is empty")
	}
	if dangerousCharsPattern.MatchString(gitURL) {
		return fmt.Errorf("git URL contains dangerous characters")
	}
	if strings.HasPrefix(gitURL, "http://") || strings.HasPrefix(gitURL, "https://") {
		parsed, err := url.Parse(gitURL)
		if err != nil {
			return fmt.Errorf("invalid URL format: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("git URL missing host")
		}
		return nil
	}
	if strings.HasPrefix(gitURL, "git@") || strings.HasPrefix(gitURL, "ssh://") || strings.HasPrefix(gitURL, "file://") {
		if !validGitURLPattern.MatchString(gitURL) {
			return fmt.Errorf("invalid git URL format")
		}
		return nil
	}
	return fmt.Errorf("unsupported git URL protocol: must be https://, git@, ssh://, or file://")
}

// cloneAtVersion clones repoURL (a full clone, not a shallow one) into a
// fresh temp directory under workDir and checks out version (a tag or
// commit, never a branch), returning the checkout path.
func cloneAtVersion(workDir, repoURL, version string) (string, error) {
	if err := validateGitURL(repoURL); err != nil {
		return "", fmt.Errorf("orchestrator: invalid repo_url: %w", err)
	}

	dir, err := os.MkdirTemp(workDir, "checkout-*")
	if err != nil {
		return "", fmt.Errorf("orchestrator: create checkout dir: %w", err)
	}

	// #nosec G204 - repoURL is validated above to prevent command injection
	cmd := exec.Command("git", "clone", "--quiet", repoURL, dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("orchestrator: git clone failed: %w", err)
	}

	// #nosec G204 - version is validated by contract.ValidateTicket before this runs
	checkout := exec.Command("git", "-C", dir, "checkout", "--quiet", version)
	checkout.Stdout = os.Stdout
	checkout.Stderr = os.Stderr
	if err := checkout.Run(); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("orchestrator: git checkout %s failed: %w", version, err)
	}

	return dir, nil
}

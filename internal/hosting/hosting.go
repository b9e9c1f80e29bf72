// Package hosting holds what the GitHub and GitLab clients share: token
// resolution from the environment and repository URL parsing.
package hosting

import (
	"fmt"
	"os"
	"strings"
)

// Config configures one hosting API client.
type Config struct {
	// BaseURL is the web URL of a self-hosted instance. Empty means the
	// public service.
	BaseURL string
	// TokenEnvVar names the environment variable holding the API token.
	// Empty means the client's defaults.
	TokenEnvVar string
}

// ResolveToken reads the API token from cfg.TokenEnvVar, or from the first
// non-empty of defaults when TokenEnvVar is unset. The custom variable never
// falls back to the defaults.
func ResolveToken(cfg Config, defaults ...string) (string, error) {
	if cfg.TokenEnvVar != "" {
		token := os.Getenv(cfg.TokenEnvVar)
		if token == "" {
			return "", fmt.Errorf("%w: %s environment variable is not set", ErrAuthFailed, cfg.TokenEnvVar)
		}
		return token, nil
	}
	for _, name := range defaults {
		if token := os.Getenv(name); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("%w: %s environment variable is not set", ErrAuthFailed, strings.Join(defaults, " or "))
}

// ParseOwnerRepo extracts owner and repo from a git remote URL.
//
// Handles:
//   - git@github.com:owner/repo.git → (owner, repo)
//   - https://github.com/owner/repo.git → (owner, repo)
//   - ssh://git@github.com:22/owner/repo.git → (owner, repo)
//   - git@gitlab.com:group/subgroup/repo.git → (group/subgroup, repo)
func ParseOwnerRepo(remoteURL string) (owner, repo string) {
	raw := strings.TrimSpace(remoteURL)
	raw = strings.TrimSuffix(strings.TrimSuffix(raw, "/"), ".git")

	switch {
	case strings.HasPrefix(raw, "ssh://"):
		raw = strings.TrimPrefix(raw, "ssh://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = strings.TrimLeft(raw[idx+1:], "/")
		}
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = raw[idx+1:]
		}
	default:
		if idx := strings.Index(raw, ":"); idx != -1 {
			raw = raw[idx+1:]
		}
	}

	// Owner may be a nested GitLab group, so the repo is the last segment.
	parts := strings.Split(raw, "/")
	if len(parts) < 2 {
		return raw, ""
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}

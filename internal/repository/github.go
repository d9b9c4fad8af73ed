package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/cigen/internal/config"
)

// ErrInvalidRepoURL is returned for URLs that do not name owner/repo.
var ErrInvalidRepoURL = errors.New("invalid repository url")

// NewGitHubClient creates a GitHub client with token authentication. A
// non-empty BaseURL selects a GitHub Enterprise server.
func NewGitHubClient(ctx context.Context, cfg config.GitHubConfig) (*github.Client, error) {
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if cfg.BaseURL == "" {
		return client, nil
	}
	return client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
}

// parseRepoURL extracts owner and name from HTTPS, SSH and scp-like URLs.
func parseRepoURL(raw string) (owner, name string, err error) {
	raw = strings.TrimSpace(raw)
	var path string

	switch {
	case strings.HasPrefix(raw, "git@"):
		// git@github.com:owner/name.git
		_, rest, ok := strings.Cut(raw, ":")
		if !ok {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
		}
		path = rest
	default:
		u, perr := url.Parse(raw)
		if perr != nil || u.Host == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
		}
		path = u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
	}
	// Enterprise installs may serve repositories under a path prefix.
	owner, name = parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
	}
	return owner, name, nil
}

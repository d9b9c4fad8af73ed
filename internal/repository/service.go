package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/cigen/internal/config"
	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

const (
	// maxFileSize bounds ReadFile.
	maxFileSize = 1024 * 1024

	// defaultLogLines is how many trailing lines of a failed job log are kept.
	defaultLogLines = 80
)

var _ orchestrator.RepositoryService = (*Service)(nil)

// Service implements orchestrator.RepositoryService on go-git and the GitHub
// REST API.
type Service struct {
	gh       *github.Client
	http     *http.Client
	token    config.Secret
	git      config.GitConfig
	workDir  string
	limiter  *rate.Limiter
	retry    *retrier
	logger   *logging.Logger
	logLines int
}

// Option configures a Service.
type Option func(*Service)

// WithGitHubClient replaces the token-authenticated client built by New.
func WithGitHubClient(c *github.Client) Option {
	return func(s *Service) { s.gh = c }
}

// WithHTTPClient sets the client used to download job logs.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRetry overrides the retry policy for GitHub API calls.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) { s.retry.config = cfg; s.retry.config.ApplyDefaults() }
}

// WithLogLines sets how many trailing log lines of each failed job are kept.
func WithLogLines(n int) Option {
	return func(s *Service) { s.logLines = n }
}

// New creates a Service. Without WithGitHubClient, gh.Token must be set.
func New(ctx context.Context, gh config.GitHubConfig, g config.GitConfig, opts ...Option) (*Service, error) {
	if g.WorkDir == "" {
		return nil, errors.New("repository: work dir is required")
	}
	workDir, err := filepath.Abs(g.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("repository: resolve work dir: %w", err)
	}
	if g.Remote == "" {
		g.Remote = "origin"
	}

	rps := gh.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := gh.Burst
	if burst < 1 {
		burst = 1
	}

	s := &Service{
		http:     &http.Client{Timeout: time.Minute},
		token:    gh.Token,
		git:      g,
		workDir:  workDir,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		retry:    newRetrier(DefaultRetryConfig(), nil),
		logLines: defaultLogLines,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.retry.logger = s.logger

	if s.gh == nil {
		client, err := NewGitHubClient(ctx, gh)
		if err != nil {
			return nil, fmt.Errorf("repository: %w", err)
		}
		s.gh = client
	}
	return s, nil
}

// call waits for the rate limiter and runs fn under the retry policy.
func (s *Service) call(ctx context.Context, op string, fn func() (*github.Response, error)) (*github.Response, error) {
	return s.retry.do(ctx, op, func() (*github.Response, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return fn()
	})
}

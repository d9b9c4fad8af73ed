package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/config"
	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// Check names.
const (
	CheckYAML       = "yaml"
	CheckActionlint = "actionlint"
	CheckGhalint    = "ghalint"
	CheckSecrets    = "secrets"
)

// workflowGlob selects the workflow files checks look at.
const workflowGlob = ".github/workflows/*.{yml,yaml}"

// ErrUnknownCheck is returned by RunCheck for a name it does not implement.
var ErrUnknownCheck = errors.New("validation: unknown check")

var _ orchestrator.ValidationService = (*Service)(nil)

type checkFunc func(ctx context.Context, localPath string) (orchestrator.CheckOutput, error)

// Service implements orchestrator.ValidationService.
type Service struct {
	cfg    config.ValidationConfig
	runner Runner
	logger *logging.Logger
	checks map[string]checkFunc
}

// Option configures a Service.
type Option func(*Service)

// WithRunner replaces the command runner used for external linters.
func WithRunner(r Runner) Option {
	return func(s *Service) { s.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service.
func New(cfg config.ValidationConfig, opts ...Option) *Service {
	if cfg.ActionlintPath == "" {
		cfg.ActionlintPath = "actionlint"
	}
	if cfg.GhalintPath == "" {
		cfg.GhalintPath = "ghalint"
	}
	s := &Service{cfg: cfg, runner: ExecRunner{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.checks = map[string]checkFunc{
		CheckYAML:       s.checkYAML,
		CheckActionlint: s.checkActionlint,
		CheckGhalint:    s.checkGhalint,
		CheckSecrets:    s.checkSecrets,
	}
	return s
}

// Checks returns the names RunCheck accepts, sorted.
func (s *Service) Checks() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunCheck runs the named check against the workflows under localPath.
func (s *Service) RunCheck(ctx context.Context, name, localPath string) (orchestrator.CheckOutput, error) {
	check, ok := s.checks[name]
	if !ok {
		return orchestrator.CheckOutput{}, fmt.Errorf("%w: %q", ErrUnknownCheck, name)
	}

	if timeout := s.cfg.Timeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := check(ctx, localPath)
	if err != nil {
		s.logger.Warn(ctx, "check could not run", zap.String("check", name), zap.Error(err))
		return orchestrator.CheckOutput{Status: orchestrator.CheckToolError, RawOutput: err.Error()}, nil
	}

	s.logger.Debug(ctx, "check finished",
		zap.String("check", name),
		zap.String("status", string(out.Status)),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// workflowFiles returns the workflow paths under localPath, relative and
// sorted.
func workflowFiles(localPath string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(localPath), workflowGlob)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func readWorkflow(localPath, rel string) (string, error) {
	data, err := os.ReadFile(filepath.Join(localPath, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil
}

func passed() orchestrator.CheckOutput {
	return orchestrator.CheckOutput{Status: orchestrator.CheckPassed}
}

func failed(findings []string) orchestrator.CheckOutput {
	return orchestrator.CheckOutput{Status: orchestrator.CheckFailed, RawOutput: strings.Join(findings, "\n")}
}

// toolError maps a nonzero exit with nothing to report.
func toolError(tool string, res CommandResult) orchestrator.CheckOutput {
	msg := fmt.Sprintf("%s exited with status %d", tool, res.ExitCode)
	if detail := strings.TrimSpace(res.Stderr); detail != "" {
		msg += ": " + detail
	}
	return orchestrator.CheckOutput{Status: orchestrator.CheckToolError, RawOutput: msg}
}

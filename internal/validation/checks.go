package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
	"github.com/fyrsmithlabs/cigen/pkg/secrets"
)

const noWorkflows = "no workflow files under .github/workflows"

// checkYAML parses every workflow and checks the keys GitHub needs to
// schedule it.
func (s *Service) checkYAML(_ context.Context, localPath string) (orchestrator.CheckOutput, error) {
	files, err := workflowFiles(localPath)
	if err != nil {
		return orchestrator.CheckOutput{}, err
	}
	if len(files) == 0 {
		return failed([]string{noWorkflows}), nil
	}

	var findings []string
	for _, f := range files {
		content, err := readWorkflow(localPath, f)
		if err != nil {
			return orchestrator.CheckOutput{}, err
		}
		findings = append(findings, structureFindings(f, content)...)
	}
	if len(findings) > 0 {
		return failed(findings), nil
	}
	return passed(), nil
}

func structureFindings(file, content string) []string {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return []string{fmt.Sprintf("%s: %v", file, err)}
	}
	if len(doc.Content) == 0 {
		return []string{fmt.Sprintf("%s: workflow is empty", file)}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return []string{fmt.Sprintf("%s:%d: top level must be a mapping", file, root.Line)}
	}

	var out []string
	report := func(n *yaml.Node, format string, args ...any) {
		out = append(out, fmt.Sprintf("%s:%d: %s", file, n.Line, fmt.Sprintf(format, args...)))
	}

	if lookup(root, "on") == nil {
		report(root, `missing required key "on"`)
	}
	jobs := lookup(root, "jobs")
	switch {
	case jobs == nil:
		report(root, `missing required key "jobs"`)
	case jobs.Kind != yaml.MappingNode || len(jobs.Content) == 0:
		report(jobs, `"jobs" must be a non-empty mapping`)
	default:
		for i := 0; i+1 < len(jobs.Content); i += 2 {
			checkJob(jobs.Content[i].Value, jobs.Content[i+1], report)
		}
	}
	return out
}

func checkJob(id string, job *yaml.Node, report func(*yaml.Node, string, ...any)) {
	if job.Kind != yaml.MappingNode {
		report(job, "job %q must be a mapping", id)
		return
	}
	if lookup(job, "runs-on") == nil && lookup(job, "uses") == nil {
		report(job, `job %q needs "runs-on" or "uses"`, id)
	}

	steps := lookup(job, "steps")
	if steps == nil {
		return
	}
	if steps.Kind != yaml.SequenceNode {
		report(steps, `"steps" of job %q must be a sequence`, id)
		return
	}
	for i, step := range steps.Content {
		if step.Kind != yaml.MappingNode {
			report(step, "step %d of job %q must be a mapping", i+1, id)
			continue
		}
		uses, run := lookup(step, "uses"), lookup(step, "run")
		switch {
		case uses == nil && run == nil:
			report(step, `step %d of job %q needs "uses" or "run"`, i+1, id)
		case uses != nil && run != nil:
			report(step, `step %d of job %q cannot have both "uses" and "run"`, i+1, id)
		}
	}
}

// lookup returns the value node for key in a mapping node.
func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// actionlintError is one entry of actionlint's JSON output.
type actionlintError struct {
	Message  string `json:"message"`
	Filepath string `json:"filepath"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Kind     string `json:"kind"`
}

func (e actionlintError) String() string {
	return fmt.Sprintf("%s:%d:%d: %s [%s]", e.Filepath, e.Line, e.Column, e.Message, e.Kind)
}

// checkActionlint runs actionlint. Exit 1 means findings; higher codes are
// usage or fatal errors.
func (s *Service) checkActionlint(ctx context.Context, localPath string) (orchestrator.CheckOutput, error) {
	files, err := workflowFiles(localPath)
	if err != nil {
		return orchestrator.CheckOutput{}, err
	}
	if len(files) == 0 {
		return failed([]string{noWorkflows}), nil
	}

	args := append([]string{"-format", "{{json .}}", "-no-color"}, files...)
	res, err := s.runner.Run(ctx, localPath, s.cfg.ActionlintPath, args...)
	if err != nil {
		return orchestrator.CheckOutput{}, err
	}
	if res.ExitCode == 0 {
		return passed(), nil
	}
	if res.ExitCode != 1 {
		return toolError(CheckActionlint, res), nil
	}

	var errs []actionlintError
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Stdout)), &errs); err == nil && len(errs) > 0 {
		findings := make([]string, len(errs))
		for i, e := range errs {
			findings[i] = e.String()
		}
		return failed(findings), nil
	}
	if raw := strings.TrimSpace(res.Stdout); raw != "" && raw != "[]" && raw != "null" {
		return failed([]string{raw}), nil
	}
	return toolError(CheckActionlint, res), nil
}

// checkGhalint runs ghalint, which reports policy violations as log lines on
// stderr.
func (s *Service) checkGhalint(ctx context.Context, localPath string) (orchestrator.CheckOutput, error) {
	res, err := s.runner.Run(ctx, localPath, s.cfg.GhalintPath, "run")
	if err != nil {
		return orchestrator.CheckOutput{}, err
	}
	if res.ExitCode == 0 {
		return passed(), nil
	}

	output := strings.TrimSpace(res.Stderr)
	if output == "" {
		output = strings.TrimSpace(res.Stdout)
	}
	if output == "" {
		return toolError(CheckGhalint, res), nil
	}
	return failed(errorLines(output)), nil
}

// errorLines keeps logrus error lines when present.
func errorLines(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "level=error") || strings.Contains(line, "level=fatal") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	if len(out) == 0 {
		return []string{output}
	}
	return out
}

// checkSecrets scans workflows for credentials, honoring the repository's
// .gitleaks.toml and the configured allowlist. Findings never include the
// secret itself.
func (s *Service) checkSecrets(ctx context.Context, localPath string) (orchestrator.CheckOutput, error) {
	files, err := workflowFiles(localPath)
	if err != nil {
		return orchestrator.CheckOutput{}, err
	}

	allow, err := secrets.LoadAllowlists(localPath, s.cfg.AllowlistPath)
	if err != nil {
		return orchestrator.CheckOutput{}, fmt.Errorf("load allowlist: %w", err)
	}
	detector, err := secrets.NewDetector(allow)
	if err != nil {
		return orchestrator.CheckOutput{}, err
	}

	var findings []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return orchestrator.CheckOutput{}, err
		}
		content, err := readWorkflow(localPath, f)
		if err != nil {
			return orchestrator.CheckOutput{}, err
		}
		found, err := detector.ScanFile(f, content)
		if err != nil {
			return orchestrator.CheckOutput{}, fmt.Errorf("scan %s: %w", f, err)
		}
		for _, hit := range found {
			findings = append(findings, fmt.Sprintf("%s:%d: %s (%s): use a repository secret instead of %s",
				f, hit.Line, hit.RuleID, hit.RuleDesc, secrets.Marker(hit)))
		}
	}
	if len(findings) > 0 {
		return failed(findings), nil
	}
	return passed(), nil
}

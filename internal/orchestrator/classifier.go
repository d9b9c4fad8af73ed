package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

// DetailSource says which node produced a failure detail.
type DetailSource string

const (
	SourceValidation DetailSource = "validation"
	SourceExecution  DetailSource = "execution"
)

// Detail describes a failed check or CI run.
type Detail struct {
	Source DetailSource
	// Check is the static check name, validation only.
	Check string
	// ToolFailed is set when the checker itself could not run.
	ToolFailed bool
	// Conclusion is the CI run conclusion, execution only.
	Conclusion string
	Output     string
}

// Classifier decides why a check or CI run failed.
// Implementations must be deterministic for identical inputs.
type Classifier interface {
	Classify(ctx context.Context, artifact string, d Detail) Classification
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, artifact string, d Detail) Classification

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, artifact string, d Detail) Classification {
	return f(ctx, artifact, d)
}

// Hint lists are matched against lowercased output in this order, so a
// configuration problem wins over a project failure reported in the same log.
var (
	configHints = []string{
		"invalid workflow file",
		"the workflow is not valid",
		"yaml syntax",
		"mapping values are not allowed",
		"could not find expected ':'",
		"did not find expected key",
		"unexpected value",
		"unknown property",
		"required property is missing",
		"is not defined",
		"unrecognized named-value",
		"unable to resolve action",
		"can't find 'action.yml'",
		"unable to find version",
		"command not found",
		"executable file not found",
		"is not recognized as an internal or external command",
		"no such file or directory",
	}

	projectHints = []string{
		"--- fail",
		"tests failed",
		"test failed",
		"failing tests",
		"failures:",
		"assertionerror",
		"build failed",
		"compilation failed",
		"compilation error",
		"cannot find symbol",
		"error[e",
		"undefined:",
		"npm err!",
		"could not resolve dependencies",
		"lint errors",
		"would reformat",
	}

	toolHints = []string{
		"lost communication with the server",
		"the runner has received a shutdown signal",
		"no runner matching",
		"waiting for a runner",
		"the operation was canceled",
		"internal server error",
		"api rate limit exceeded",
	}
)

// RuleClassifier classifies failures with fixed keyword rules.
type RuleClassifier struct{}

var _ Classifier = RuleClassifier{}

// Classify implements Classifier.
func (RuleClassifier) Classify(_ context.Context, _ string, d Detail) Classification {
	if d.ToolFailed {
		return Classification{Category: CategoryTool, Reason: describeTool(d)}
	}

	if d.Source == SourceValidation {
		if strings.TrimSpace(d.Output) == "" {
			return Classification{Category: CategoryTool, Reason: fmt.Sprintf("%s failed without findings", d.Check)}
		}
		return Classification{Category: CategoryConfig, Reason: fmt.Sprintf("%s reported findings in the workflow", d.Check)}
	}

	// startup_failure means GitHub rejected the workflow file itself.
	if d.Conclusion == "startup_failure" {
		return Classification{Category: CategoryConfig, Reason: "workflow failed to start"}
	}

	out := strings.ToLower(d.Output)
	if h, ok := firstMatch(out, configHints); ok {
		return Classification{Category: CategoryConfig, Reason: fmt.Sprintf("run output mentions %q", h)}
	}
	if h, ok := firstMatch(out, projectHints); ok {
		return Classification{Category: CategoryProject, Reason: fmt.Sprintf("run output mentions %q", h)}
	}
	if h, ok := firstMatch(out, toolHints); ok {
		return Classification{Category: CategoryTool, Reason: fmt.Sprintf("runner problem: %q", h)}
	}
	if d.Conclusion == "cancelled" {
		return Classification{Category: CategoryTool, Reason: "run was cancelled"}
	}

	return Classification{Category: CategoryUnknown, Reason: "no known failure pattern in run output"}
}

func describeTool(d Detail) string {
	if d.Check != "" {
		return fmt.Sprintf("%s could not run", d.Check)
	}
	return "checker could not run"
}

func firstMatch(s string, hints []string) (string, bool) {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return h, true
		}
	}
	return "", false
}

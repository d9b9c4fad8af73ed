package orchestrator

import (
	"context"
)

type validateNode struct {
	checks     ValidationService
	classifier Classifier
}

func (n *validateNode) Tag() NodeTag { return NodeValidate }

// Run appends exactly one ValidationResult. A disabled stage or an empty
// check set yields a skipped pass, which gates treat as passing.
func (n *validateNode) Run(ctx context.Context, s State) (Update, error) {
	u := visit(NodeValidate)

	names := s.Options.EnabledChecks()
	if !s.Options.Validate || len(names) == 0 {
		u.ValidationResults = []ValidationResult{{Skipped: true}}
		return u, nil
	}

	result := ValidationResult{Checks: make([]CheckResult, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return Update{}, err
		}
		result.Checks = append(result.Checks, n.run(ctx, s, name))
	}

	u.ValidationResults = []ValidationResult{result}
	return u, nil
}

func (n *validateNode) run(ctx context.Context, s State, name string) CheckResult {
	out, err := n.checks.RunCheck(ctx, name, s.LocalPath)
	if err != nil {
		out = CheckOutput{Status: CheckToolError, RawOutput: err.Error()}
	}

	cr := CheckResult{Name: name, Status: out.Status, RawOutput: out.RawOutput}
	switch cr.Status {
	case CheckPassed:
		return cr
	case CheckToolError:
	default:
		cr.Status = CheckFailed
	}

	c := n.classifier.Classify(ctx, s.Artifact, Detail{
		Source:     SourceValidation,
		Check:      name,
		ToolFailed: cr.Status == CheckToolError,
		Output:     cr.RawOutput,
	})
	cr.Classification = &c
	return cr
}

package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

// NoExplanation is used when explanations are disabled or fail.
const NoExplanation = "no explanation generated"

type explainNode struct {
	repo RepositoryService
	gen  GenerationService
}

func (n *explainNode) Tag() NodeTag { return NodeExplain }

// Run describes the final artifact, opens a pull request and writes the
// content outcome. Neither an explanation failure nor a pull request failure
// changes the outcome.
func (n *explainNode) Run(ctx context.Context, s State) (Update, error) {
	u := visit(NodeExplain)
	outcome := finalOutcome(s)

	explanation := NoExplanation
	if s.Options.Explain {
		text, err := n.gen.Explain(ctx, explanationRequest(s, outcome))
		switch {
		case err != nil:
			u.Errors = append(u.Errors, fmt.Sprintf("explain: %v", err))
		case strings.TrimSpace(text) != "":
			explanation = text
		}
	}
	u.Explanation = ptr(explanation)

	url, err := n.repo.OpenMergeRequest(ctx, s.RepoURL, MergeRequest{
		Head:  s.WorkBranch,
		Base:  s.Repo.DefaultBranch,
		Title: fmt.Sprintf("Add CI workflow %s", s.ArtifactName),
		Body:  mergeRequestBody(s, outcome, explanation),
	})
	if err != nil {
		u.Errors = append(u.Errors, fmt.Sprintf("open pull request: %v", err))
	} else {
		u.MergeRequestURL = ptr(url)
	}

	u.FinalStatus = ptr(outcome)
	return u, nil
}

// finalOutcome maps the last execution result to an outcome tag. When CI was
// not observed, the last validation pass decides.
func finalOutcome(s State) string {
	e, ok := s.LatestExecution()
	if !ok || e.Status == ExecSkipped {
		return validationOutcome(s)
	}
	if e.Status == ExecSuccess {
		return StatusSuccess
	}
	if e.Classification == nil {
		return StatusUnknownError
	}
	return OutcomeStatus(e.Classification.Category)
}

func validationOutcome(s State) string {
	v, ok := s.LatestValidation()
	if !ok || v.Passed() {
		return StatusSuccess
	}
	c := v.Failures()[0].Classification
	if c == nil {
		return StatusUnknownError
	}
	return OutcomeStatus(c.Category)
}

// explanationRequest groups every classified failure of the run by category.
func explanationRequest(s State, outcome string) ExplanationRequest {
	req := ExplanationRequest{
		ArtifactName: s.ArtifactName,
		Artifact:     s.Artifact,
		Repo:         s.Repo,
		Outcome:      outcome,
	}
	add := func(c *Classification, text string) {
		text = strings.TrimSpace(text)
		if c == nil || text == "" {
			return
		}
		switch c.Category {
		case CategoryConfig:
			req.ValidationErrors = append(req.ValidationErrors, text)
		case CategoryProject:
			req.ProjectErrors = append(req.ProjectErrors, text)
		case CategoryTool:
			req.ToolErrors = append(req.ToolErrors, text)
		default:
			req.UnknownErrors = append(req.UnknownErrors, text)
		}
	}
	for _, v := range s.ValidationResults {
		for _, c := range v.Failures() {
			add(c.Classification, fmt.Sprintf("%s: %s", c.Name, c.RawOutput))
		}
	}
	for _, e := range s.ExecutionResults {
		if e.Status == ExecFailure {
			add(e.Classification, e.RawFailure)
		}
	}
	return req
}

func mergeRequestBody(s State, outcome, explanation string) string {
	var b strings.Builder
	b.WriteString(explanation)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Outcome | `%s` |\n", outcome)
	fmt.Fprintf(&b, "| Generation attempts | %d of %d |\n", s.LoopCount, s.LoopMax)
	fmt.Fprintf(&b, "| Validation passes | %d |\n", len(s.ValidationResults))
	fmt.Fprintf(&b, "| CI runs | %d |\n", len(s.ExecutionResults))
	if e, ok := s.LatestExecution(); ok && e.RunURL != "" {
		fmt.Fprintf(&b, "| Last run | %s |\n", e.RunURL)
	}
	fmt.Fprintf(&b, "| Run ID | `%s` |\n", s.RunID)
	return b.String()
}

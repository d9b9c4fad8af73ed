package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type generateNode struct {
	repo RepositoryService
	gen  GenerationService
}

func (n *generateNode) Tag() NodeTag { return NodeGenerate }

// Run produces or revises the artifact. LoopCount is incremented and one
// attempt is recorded on every call, including calls that abort the run.
func (n *generateNode) Run(ctx context.Context, s State) (Update, error) {
	source, err := SourceFor(s.PrevNode)
	if err != nil {
		return Update{}, err
	}

	u := visit(NodeGenerate)
	u.LoopCount = ptr(s.LoopCount + 1)

	if !s.Options.Generate {
		u.GenerationAttempts = []GenerationAttempt{{Status: GenSkipped, Source: source}}
		return u, nil
	}

	res, err := n.gen.Generate(ctx, n.request(s, source))
	if err != nil && ctx.Err() != nil {
		return Update{}, ctx.Err()
	}
	if err == nil && res.Status != GenSuccess {
		err = fmt.Errorf("generation returned status %q", res.Status)
	}
	if err == nil && strings.TrimSpace(res.Text) == "" {
		err = errors.New("generation returned an empty workflow")
	}
	if err != nil {
		u.GenerationAttempts = []GenerationAttempt{{Status: GenFailed, Text: res.Text, TokensUsed: res.TokensUsed, Source: source}}
		return abort(u, StatusGenerateFailed, err), nil
	}

	u.GenerationAttempts = []GenerationAttempt{{Status: GenSuccess, Text: res.Text, TokensUsed: res.TokensUsed, Source: source}}
	u.Artifact = ptr(res.Text)
	u.Transcript = ptr(s.Transcript.Append(res.Instruction, res.Text))

	if err := n.repo.WriteFile(ctx, s.LocalPath, s.ArtifactPath(), res.Text); err != nil {
		return abort(u, StatusWriteFailed, err), nil
	}
	return u, nil
}

func (n *generateNode) request(s State, source GenerateSource) GenerationRequest {
	req := GenerationRequest{
		Source:        source,
		ArtifactName:  s.ArtifactName,
		Repo:          s.Repo,
		Language:      s.Language,
		FileTree:      s.FileTree,
		RequiredFiles: s.RequiredFiles,
		Guidance:      s.Guidance,
		BuildGuide:    s.BuildGuide,
		Transcript:    s.Transcript,
	}

	switch source {
	case FromValidate:
		req.PriorArtifact = s.Artifact
		if v, ok := s.LatestValidation(); ok {
			req.FailureDetail = validationDetail(v)
		}
	case FromExecute:
		req.PriorArtifact = s.Artifact
		if e, ok := s.LatestExecution(); ok {
			req.FailureDetail = executionDetail(e)
		}
	}
	return req
}

// validationDetail renders the retryable findings of a pass. Non-retryable
// findings are left out since a revision cannot address them.
func validationDetail(v ValidationResult) string {
	var b strings.Builder
	for _, c := range v.Failures() {
		if c.Classification == nil || !c.Classification.Category.Retryable() {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s\n", c.Name, c.Classification.Reason, strings.TrimSpace(c.RawOutput))
	}
	return strings.TrimSpace(b.String())
}

func executionDetail(e ExecutionResult) string {
	var b strings.Builder
	if e.Classification != nil {
		fmt.Fprintf(&b, "Reason: %s\n", e.Classification.Reason)
	}
	if e.Conclusion != "" {
		fmt.Fprintf(&b, "Conclusion: %s\n", e.Conclusion)
	}
	b.WriteString(strings.TrimSpace(e.RawFailure))
	return strings.TrimSpace(b.String())
}

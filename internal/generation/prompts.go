package generation

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// SystemPrompt frames every conversation with the model.
const SystemPrompt = "You are a senior software engineer who designs and maintains GitHub Actions workflows. " +
	"You write minimal, correct workflows that install exactly what a project needs and run its real build and tests."

// yamlRules are the authoring rules included in every drafting prompt.
const yamlRules = `- Indent with two spaces, never tabs.
- Pin actions to a major version (actions/checkout@v4).
- Trigger on push and pull_request.
- Install every tool a step calls before calling it.
- Only run commands that exist in this repository (scripts, Makefile targets, manifests).
- Do not reference secrets that the repository does not define.`

// maxTreeEntries bounds the file tree rendered into prompts.
const maxTreeEntries = 400

// maxFailureChars bounds failure detail rendered into prompts.
const maxFailureChars = 8000

var (
	draftPrompt = prompts.NewPromptTemplate(`Write a GitHub Actions workflow named {{.artifact}} for the repository below.

Repository: {{.repo}}
Primary language: {{.language}}
{{- if .description}}
Description: {{.description}}
{{- end}}
Default branch: {{.branch}}

File tree:
{{.tree}}
{{if .files}}
Relevant files:
{{.files}}
{{end}}
{{- if .guide}}
Build notes from the repository documentation:
{{.guide}}
{{end}}
{{- if .guidance}}
{{.language}} practices to follow:
{{.guidance}}
{{end}}
Rules:
{{.rules}}

Reply with only the workflow in a single yaml code block.`,
		[]string{"artifact", "repo", "language", "description", "branch", "tree", "files", "guide", "guidance", "rules"})

	revisePrompt = prompts.NewPromptTemplate(`The workflow {{.artifact}} failed {{.stage}}.

Current workflow:
` + "```yaml" + `
{{.prior}}
` + "```" + `

Failure:
{{.failure}}

Fix the workflow so this failure cannot recur. Keep everything that already works.
Rules:
{{.rules}}

Reply with only the complete corrected workflow in a single yaml code block.`,
		[]string{"artifact", "stage", "prior", "failure", "rules"})

	selectPrompt = prompts.NewPromptTemplate(`Choose at most {{.max}} files from the {{.language}} repository {{.repo}} that a CI workflow author must read:
build manifests, lock files, task runners, test configuration, tool version files and container definitions.

File tree:
{{.tree}}

Reply with a JSON array only, for example:
[{"path": "go.mod", "description": "module definition and Go version"}]`,
		[]string{"max", "language", "repo", "tree"})

	summarizePrompt = prompts.NewPromptTemplate(`Reduce the file {{.path}} to what matters for writing CI:
tool and runtime versions, build and test commands, scripts, services and environment variables.
Keep exact names and versions. Omit everything else. Reply with the reduced text only.

{{.content}}`,
		[]string{"path", "content"})

	practicesPrompt = prompts.NewPromptTemplate(`List the {{.count}} most important practices for GitHub Actions workflows that build and test {{.language}} projects.
One short imperative line each, numbered. No introduction.`,
		[]string{"count", "language"})

	explainPrompt = prompts.NewPromptTemplate(`Write a pull request description for the GitHub Actions workflow {{.artifact}} added to {{.repo}}.
Explain what each job does and why, in plain language, for the maintainers.
The automated run ended with outcome "{{.outcome}}".
{{- if .validation}}

Remaining findings from static checks:
{{.validation}}
{{- end}}
{{- if .project}}

Failures in the project itself, which the workflow exposed:
{{.project}}
{{- end}}
{{- if .tool}}

Failures of the checking tools or CI infrastructure:
{{.tool}}
{{- end}}
{{- if .unknown}}

Failures with no clear cause:
{{.unknown}}
{{- end}}

Workflow:
` + "```yaml" + `
{{.workflow}}
` + "```" + `

Use markdown. Do not repeat the workflow.`,
		[]string{"artifact", "repo", "outcome", "validation", "project", "tool", "unknown", "workflow"})

	classifyPrompt = prompts.NewPromptTemplate(`Classify why this GitHub Actions run failed. Answer with exactly one line "category: reason" where category is one of:
- yml_error: the workflow itself is wrong (syntax, unknown keys, missing or wrong tool installation, command not found, wrong paths or versions)
- project_error: the workflow is correct but the project's build, tests or lint failed
- unknown_error: anything else
If several apply, prefer yml_error.

Workflow:
` + "```yaml" + `
{{.workflow}}
` + "```" + `

Conclusion: {{.conclusion}}
Log:
{{.log}}`,
		[]string{"workflow", "conclusion", "log"})
)

func renderDraft(req orchestrator.GenerationRequest) (string, error) {
	return draftPrompt.Format(map[string]any{
		"artifact":    req.ArtifactName,
		"repo":        repoName(req.Repo),
		"language":    orDefault(req.Language, "unknown"),
		"description": req.Repo.Description,
		"branch":      orDefault(req.Repo.DefaultBranch, "main"),
		"tree":        renderTree(req.FileTree),
		"files":       renderFiles(req.RequiredFiles),
		"guide":       req.BuildGuide,
		"guidance":    req.Guidance,
		"rules":       yamlRules,
	})
}

func renderRevision(req orchestrator.GenerationRequest) (string, error) {
	stage := "static checks"
	if req.Source == orchestrator.FromExecute {
		stage = "its CI run"
	}
	return revisePrompt.Format(map[string]any{
		"artifact": req.ArtifactName,
		"stage":    stage,
		"prior":    strings.TrimSpace(req.PriorArtifact),
		"failure":  truncateHead(orDefault(req.FailureDetail, "(no detail)"), maxFailureChars),
		"rules":    yamlRules,
	})
}

func repoName(r orchestrator.RepoInfo) string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

func renderTree(tree []string) string {
	if len(tree) <= maxTreeEntries {
		return strings.Join(tree, "\n")
	}
	return strings.Join(tree[:maxTreeEntries], "\n") +
		fmt.Sprintf("\n... %d more files", len(tree)-maxTreeEntries)
}

func renderFiles(files []orchestrator.RequiredFile) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "### %s", f.Path)
		if f.Description != "" {
			fmt.Fprintf(&b, " (%s)", f.Description)
		}
		fmt.Fprintf(&b, "\n```\n%s\n```\n", strings.TrimSpace(f.Text()))
	}
	return strings.TrimSpace(b.String())
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(it))
	}
	return strings.TrimSpace(b.String())
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// truncateHead keeps the last n bytes of s; failures are reported at the end
// of logs.
func truncateHead(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

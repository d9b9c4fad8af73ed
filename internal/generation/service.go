package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/conversation"
	"github.com/fyrsmithlabs/cigen/internal/logging"
	"github.com/fyrsmithlabs/cigen/internal/orchestrator"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("generation: empty model reply")

var _ orchestrator.GenerationService = (*Service)(nil)

// Service implements orchestrator.GenerationService.
type Service struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens caps the length of each reply.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service backed by model.
func New(model llms.Model, opts ...Option) (*Service, error) {
	if model == nil {
		return nil, errors.New("generation: model is required")
	}
	s := &Service{model: model, temperature: 0.2, maxTokens: 4096}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	return s, nil
}

// Generate drafts or revises the workflow. A reply without YAML is reported
// as GenFailed rather than as an error.
func (s *Service) Generate(ctx context.Context, req orchestrator.GenerationRequest) (orchestrator.GenerationResult, error) {
	var instruction string
	var err error
	switch req.Source {
	case orchestrator.FromParse:
		instruction, err = renderDraft(req)
	case orchestrator.FromValidate, orchestrator.FromExecute:
		instruction, err = renderRevision(req)
	default:
		return orchestrator.GenerationResult{}, fmt.Errorf("%w: %s", orchestrator.ErrInvalidSource, req.Source)
	}
	if err != nil {
		return orchestrator.GenerationResult{}, fmt.Errorf("render prompt: %w", err)
	}

	history := req.Transcript.Messages()
	if len(history) == 0 {
		history = []conversation.Message{{Role: conversation.RoleSystem, Content: SystemPrompt}}
	}

	reply, tokens, err := s.complete(ctx, history, instruction)
	if err != nil {
		return orchestrator.GenerationResult{Status: orchestrator.GenFailed, Instruction: instruction}, err
	}

	artifact := extractYAML(reply)
	status := orchestrator.GenSuccess
	if artifact == "" {
		status = orchestrator.GenFailed
	}

	s.logger.Debug(ctx, "workflow generated",
		zap.Stringer("source", req.Source),
		zap.Int("tokens", tokens),
		zap.Int("bytes", len(artifact)),
	)

	return orchestrator.GenerationResult{
		Status:      status,
		Text:        artifact,
		TokensUsed:  tokens,
		Instruction: instruction,
	}, nil
}

// SelectFiles asks the model which files a workflow author needs.
func (s *Service) SelectFiles(ctx context.Context, req orchestrator.FileSelectionRequest) ([]orchestrator.RequiredFile, error) {
	if len(req.FileTree) == 0 {
		return nil, nil
	}
	prompt, err := selectPrompt.Format(map[string]any{
		"max":      req.Max,
		"language": orDefault(req.Language, "unknown"),
		"repo":     repoName(req.Repo),
		"tree":     renderTree(req.FileTree),
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	reply, _, err := s.ask(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseSelection(reply, req.FileTree, req.Max), nil
}

// Summarize reduces a file to its CI-relevant content.
func (s *Service) Summarize(ctx context.Context, file orchestrator.RequiredFile) (string, error) {
	prompt, err := summarizePrompt.Format(map[string]any{
		"path":    file.Path,
		"content": file.Content,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	reply, _, err := s.ask(ctx, prompt)
	return strings.TrimSpace(reply), err
}

// BestPractices returns count numbered practices for language.
func (s *Service) BestPractices(ctx context.Context, language string, count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	prompt, err := practicesPrompt.Format(map[string]any{
		"count":    count,
		"language": orDefault(language, "general"),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	reply, _, err := s.ask(ctx, prompt)
	return strings.TrimSpace(reply), err
}

// Explain describes the final workflow for the pull request body.
func (s *Service) Explain(ctx context.Context, req orchestrator.ExplanationRequest) (string, error) {
	prompt, err := explainPrompt.Format(map[string]any{
		"artifact":   req.ArtifactName,
		"repo":       repoName(req.Repo),
		"outcome":    req.Outcome,
		"validation": bullets(req.ValidationErrors),
		"project":    bullets(req.ProjectErrors),
		"tool":       bullets(req.ToolErrors),
		"unknown":    bullets(req.UnknownErrors),
		"workflow":   strings.TrimSpace(req.Artifact),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	reply, _, err := s.ask(ctx, prompt)
	return strings.TrimSpace(reply), err
}

// ask sends a single prompt under the system framing.
func (s *Service) ask(ctx context.Context, prompt string) (string, int, error) {
	system := []conversation.Message{{Role: conversation.RoleSystem, Content: SystemPrompt}}
	return s.complete(ctx, system, prompt)
}

func (s *Service) complete(ctx context.Context, history []conversation.Message, prompt string) (string, int, error) {
	msgs := make([]llms.MessageContent, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, textMessage(roleOf(m.Role), m.Content))
	}
	msgs = append(msgs, textMessage(llms.ChatMessageTypeHuman, prompt))

	resp, err := s.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		return "", 0, fmt.Errorf("model call: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", 0, ErrEmptyReply
	}

	choice := resp.Choices[0]
	tokens := tokensUsed(choice.GenerationInfo)
	if tokens == 0 {
		tokens = estimateTokens(msgs, choice.Content)
	}
	return choice.Content, tokens, nil
}

func textMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{Role: role, Parts: []llms.ContentPart{llms.TextContent{Text: text}}}
}

func roleOf(r conversation.Role) llms.ChatMessageType {
	switch r {
	case conversation.RoleSystem:
		return llms.ChatMessageTypeSystem
	case conversation.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokensUsed reads provider usage counters from generation info.
func tokensUsed(info map[string]any) int {
	if n := intValue(info["TotalTokens"]); n > 0 {
		return n
	}
	total := 0
	for _, k := range []string{"InputTokens", "OutputTokens", "input_tokens", "output_tokens"} {
		total += intValue(info[k])
	}
	return total
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func estimateTokens(msgs []llms.MessageContent, reply string) int {
	var counter conversation.EstimateCounter
	total, _ := counter.Count(reply)
	for _, m := range msgs {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				n, _ := counter.Count(t.Text)
				total += n
			}
		}
	}
	return total
}

package generation

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/cigen/internal/config"
)

// NewModel creates the chat model selected by cfg.Provider.
func NewModel(ctx context.Context, cfg config.LLMConfig) (llms.Model, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("llm api key not set for provider %s", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OpenAI client: %w", err)
		}
		return llm, nil

	case "anthropic":
		llm, err := anthropic.New(
			anthropic.WithModel(cfg.Model),
			anthropic.WithToken(cfg.APIKey.Value()),
		)
		if err != nil {
			return nil, fmt.Errorf("creating Anthropic client: %w", err)
		}
		return llm, nil

	case "googleai":
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("creating Google AI client: %w", err)
		}
		return llm, nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

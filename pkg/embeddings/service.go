// Package embeddings creates text embeddings through langchaingo.
//
// Any OpenAI-compatible endpoint works, including OpenAI itself and local
// Text Embeddings Inference servers:
//
//	svc, err := embeddings.NewService(embeddings.Config{
//	    BaseURL: "http://localhost:8080/v1",
//	    Model:   "BAAI/bge-small-en-v1.5",
//	})
//	vectors, err := svc.Embed(ctx, []string{"text1", "text2"})
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/cigen/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, e.g. https://api.openai.com/v1.
	BaseURL string
	// Model is the embedding model, e.g. text-embedding-3-small.
	Model string
	// APIKey is required by OpenAI and optional for TEI.
	APIKey string
}

// FromRetrieval maps the retrieval section of the configuration.
func FromRetrieval(c config.RetrievalConfig) Config {
	return Config{
		BaseURL: c.EmbeddingBaseURL,
		Model:   c.EmbeddingModel,
		APIKey:  c.EmbeddingAPIKey.Value(),
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings.
type Service struct {
	embedder embeddings.Embedder
	config   Config
}

// NewService creates an embedding service.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// langchaingo requires a token even for servers that ignore it.
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return &Service{embedder: embedder, config: cfg}, nil
}

// Model returns the configured embedding model.
func (s *Service) Model() string {
	return s.config.Model
}

// Embed returns one vector per text.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	return vectors, nil
}

// EmbedQuery embeds a search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}
	v, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return v, nil
}

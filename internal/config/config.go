// Package config provides configuration loading for cigen.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables. See LoadWithFile for precedence rules.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete cigen configuration.
type Config struct {
	GitHub        GitHubConfig        `koanf:"github"`
	Git           GitConfig           `koanf:"git"`
	LLM           LLMConfig           `koanf:"llm"`
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	Validation    ValidationConfig    `koanf:"validation"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Temporal      TemporalConfig      `koanf:"temporal"`
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// GitHubConfig holds GitHub API configuration.
type GitHubConfig struct {
	Token   Secret `koanf:"token"`
	BaseURL string `koanf:"base_url"` // empty for github.com

	// RequestsPerSecond caps outgoing API calls per client.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// GitConfig holds local working copy configuration.
type GitConfig struct {
	WorkDir     string `koanf:"work_dir"`
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
	Remote      string `koanf:"remote"`
}

// LLMConfig selects and configures the generation model.
type LLMConfig struct {
	Provider    string  `koanf:"provider"` // openai, anthropic, googleai
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`

	// ClassifyFailures asks the model to categorize CI failures before
	// falling back to rule based classification.
	ClassifyFailures bool `koanf:"classify_failures"`
}

// PipelineConfig holds orchestration limits and control flags.
type PipelineConfig struct {
	LoopMax          int      `koanf:"loop_max"`
	// ValidateLoopMax caps loop-backs from validation. Zero means LoopMax.
	ValidateLoopMax  int      `koanf:"validate_loop_max"`
	MaxRequiredFiles int      `koanf:"max_required_files"`
	ArtifactName     string   `koanf:"artifact_name"`
	BranchPrefix     string   `koanf:"branch_prefix"`
	PollInterval     Duration `koanf:"poll_interval"`
	PollAttempts     int      `koanf:"poll_attempts"`
	TranscriptBudget int      `koanf:"transcript_budget"`

	Options OptionsConfig `koanf:"options"`
}

// OptionsConfig toggles individual pipeline stages.
type OptionsConfig struct {
	Generate            bool     `koanf:"generate"`
	Validate            bool     `koanf:"validate"`
	Execute             bool     `koanf:"execute"`
	Explain             bool     `koanf:"explain"`
	Checks              []string `koanf:"checks"`
	SelectRequiredFiles bool     `koanf:"select_required_files"`
	ReduceRequiredFiles bool     `koanf:"reduce_required_files"`
	UseRetrieval        bool     `koanf:"use_retrieval"`
	BestPractices       bool     `koanf:"best_practices"`
	BestPracticeCount   int      `koanf:"best_practice_count"`
}

// ValidationConfig locates the external linters.
type ValidationConfig struct {
	ActionlintPath string   `koanf:"actionlint_path"`
	GhalintPath    string   `koanf:"ghalint_path"`
	Timeout        Duration `koanf:"timeout"`
	AllowlistPath  string   `koanf:"allowlist_path"`
}

// RetrievalConfig configures the repository document index.
type RetrievalConfig struct {
	EmbeddingBaseURL string `koanf:"embedding_base_url"`
	EmbeddingModel   string `koanf:"embedding_model"`
	EmbeddingAPIKey  Secret `koanf:"embedding_api_key"`
	Results          int    `koanf:"results"`
}

// TemporalConfig configures the durable batch worker.
type TemporalConfig struct {
	Host      string `koanf:"host"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// ServerConfig holds worker HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	Endpoint        string `koanf:"endpoint"`
	ServiceName     string `koanf:"service_name"`
}

// LoggingConfig holds the logger settings that are exposed to users.
type LoggingConfig struct {
	Level    string            `koanf:"level"`
	Format   string            `koanf:"format"` // json or console
	OTEL     bool              `koanf:"otel"`
	Sampling bool              `koanf:"sampling"`
	Fields   map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns a configuration populated with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Git: GitConfig{
			WorkDir:     defaultWorkDir(),
			AuthorName:  "cigen",
			AuthorEmail: "cigen@users.noreply.github.com",
			Remote:      "origin",
		},
		LLM: LLMConfig{
			Provider:         "openai",
			Model:            "gpt-4o-mini",
			Temperature:      0.2,
			MaxTokens:        4096,
			ClassifyFailures: true,
		},
		Pipeline: PipelineConfig{
			LoopMax:          5,
			MaxRequiredFiles: 5,
			ArtifactName:     "ci.yml",
			BranchPrefix:     "cigen",
			PollInterval:     Duration(15 * time.Second),
			PollAttempts:     40,
			TranscriptBudget: 24000,
			Options: OptionsConfig{
				Generate:            true,
				Validate:            true,
				Execute:             true,
				Explain:             true,
				Checks:              []string{"yaml", "actionlint", "ghalint", "secrets"},
				SelectRequiredFiles: true,
				ReduceRequiredFiles: true,
				UseRetrieval:        false,
				BestPractices:       true,
				BestPracticeCount:   10,
			},
		},
		Validation: ValidationConfig{
			ActionlintPath: "actionlint",
			GhalintPath:    "ghalint",
			Timeout:        Duration(2 * time.Minute),
		},
		Retrieval: RetrievalConfig{
			EmbeddingBaseURL: "https://api.openai.com/v1",
			EmbeddingModel:   "text-embedding-3-small",
			Results:          4,
		},
		Temporal: TemporalConfig{
			Host:      "localhost:7233",
			Namespace: "default",
			TaskQueue: "cigen-evaluation",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			Endpoint:        "localhost:4317",
			ServiceName:     "cigen",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			OTEL:     true,
			Sampling: true,
		},
	}
}

var knownChecks = map[string]bool{
	"yaml":       true,
	"actionlint": true,
	"ghalint":    true,
	"secrets":    true,
}

var knownProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"googleai":  true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.LoopMax < 1 {
		return fmt.Errorf("pipeline.loop_max must be >= 1, got %d", p.LoopMax)
	}
	if p.ValidateLoopMax < 0 {
		return fmt.Errorf("pipeline.validate_loop_max must be >= 0, got %d", p.ValidateLoopMax)
	}
	if p.MaxRequiredFiles < 0 {
		return fmt.Errorf("pipeline.max_required_files must be >= 0, got %d", p.MaxRequiredFiles)
	}
	if p.ArtifactName == "" || strings.ContainsAny(p.ArtifactName, `/\`) {
		return fmt.Errorf("pipeline.artifact_name must be a bare file name, got %q", p.ArtifactName)
	}
	if !strings.HasSuffix(p.ArtifactName, ".yml") && !strings.HasSuffix(p.ArtifactName, ".yaml") {
		return fmt.Errorf("pipeline.artifact_name must end in .yml or .yaml, got %q", p.ArtifactName)
	}
	if p.PollInterval.Duration() <= 0 {
		return errors.New("pipeline.poll_interval must be positive")
	}
	if p.PollAttempts < 1 {
		return fmt.Errorf("pipeline.poll_attempts must be >= 1, got %d", p.PollAttempts)
	}
	if p.TranscriptBudget < 0 {
		return fmt.Errorf("pipeline.transcript_budget must be >= 0, got %d", p.TranscriptBudget)
	}
	for _, name := range p.Options.Checks {
		if !knownChecks[name] {
			return fmt.Errorf("pipeline.options.checks: unknown check %q", name)
		}
	}

	if !knownProviders[c.LLM.Provider] {
		return fmt.Errorf("llm.provider must be one of openai, anthropic, googleai, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %f", c.LLM.Temperature)
	}

	if c.GitHub.RequestsPerSecond <= 0 {
		return errors.New("github.requests_per_second must be positive")
	}
	if c.Git.WorkDir == "" {
		return errors.New("git.work_dir is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

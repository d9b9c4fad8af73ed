package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temporary directory for the test.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, home, content string, perm os.FileMode) string {
	t.Helper()
	dir := filepath.Join(home, ".config", "cigen")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.LoopMax)
	assert.Equal(t, cfg.Pipeline.LoopMax, cfg.Pipeline.ValidateLoopMax, "validation cap is opt-in")
	assert.Equal(t, "ci.yml", cfg.Pipeline.ArtifactName)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.PollInterval.Duration())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.True(t, cfg.Pipeline.Options.Validate)
	assert.ElementsMatch(t, []string{"yaml", "actionlint", "ghalint", "secrets"}, cfg.Pipeline.Options.Checks)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, `pipeline:
  loop_max: 7
  validate_loop_max: 2
  artifact_name: build.yaml
  poll_interval: 5s
  options:
    explain: false
    checks: [yaml, actionlint]
llm:
  provider: anthropic
  model: claude-test
temporal:
  task_queue: custom-queue
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pipeline.LoopMax)
	assert.Equal(t, 2, cfg.Pipeline.ValidateLoopMax)
	assert.Equal(t, "build.yaml", cfg.Pipeline.ArtifactName)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.PollInterval.Duration())
	assert.False(t, cfg.Pipeline.Options.Explain)
	assert.True(t, cfg.Pipeline.Options.Execute, "unset flags keep their default")
	assert.Equal(t, []string{"yaml", "actionlint"}, cfg.Pipeline.Options.Checks)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "custom-queue", cfg.Temporal.TaskQueue)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "pipeline:\n  loop_max: 7\n", 0600)

	t.Setenv("PIPELINE_LOOP_MAX", "9")
	t.Setenv("GITHUB_TOKEN", "ghp_example")
	t.Setenv("LLM_MODEL", "gpt-test")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Pipeline.LoopMax)
	assert.Equal(t, "ghp_example", cfg.GitHub.Token.Value())
	assert.Equal(t, "gpt-test", cfg.LLM.Model)
}

func TestLoadWithFile_LoggingSection(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "logging:\n  format: console\n  otel: false\n  fields:\n    env: ci\n", 0600)
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Logging.OTEL)
	assert.True(t, cfg.Logging.Sampling, "unset keys keep their default")
	assert.Equal(t, map[string]string{"env": "ci"}, cfg.Logging.Fields)

	bad := writeConfig(t, home, "logging:\n  format: xml\n", 0600)
	_, err = LoadWithFile(bad)
	assert.ErrorContains(t, err, "logging.format")
}

func TestLoadWithFile_ValidateLoopMaxClamped(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "pipeline:\n  loop_max: 2\n  validate_loop_max: 6\n", 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Pipeline.ValidateLoopMax)
}

func TestLoadWithFile_RejectsOpenPermissions(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "pipeline:\n  loop_max: 2\n", 0644)

	_, err := LoadWithFile(path)
	assert.ErrorContains(t, err, "too open")
}

func TestLoadWithFile_ExplicitPath(t *testing.T) {
	setupTestHome(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "cigen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  loop_max: 3\n"), 0400))
	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Pipeline.LoopMax)

	_, err = LoadWithFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "opening config file")

	_, err = LoadWithFile(dir)
	assert.ErrorContains(t, err, "is a directory")
}

func TestLoadWithFile_WorkDirExpandsHome(t *testing.T) {
	home := setupTestHome(t)
	path := writeConfig(t, home, "git:\n  work_dir: ~/clones\n", 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "clones"), cfg.Git.WorkDir)
	assert.Equal(t, "origin", cfg.Git.Remote)
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero loop max", "pipeline:\n  loop_max: 0\n", "loop_max"},
		{"nested artifact", "pipeline:\n  artifact_name: a/b.yml\n", "artifact_name"},
		{"wrong extension", "pipeline:\n  artifact_name: ci.json\n", "artifact_name"},
		{"unknown check", "pipeline:\n  options:\n    checks: [shellcheck]\n", "unknown check"},
		{"unknown provider", "llm:\n  provider: mystery\n", "llm.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := setupTestHome(t)
			path := writeConfig(t, home, tt.content, 0600)

			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"GITHUB_TOKEN":        "github.token",
		"PIPELINE_LOOP_MAX":   "pipeline.loop_max",
		"TEMPORAL_TASK_QUEUE": "temporal.task_queue",
		"HOME":                "",
		"GOPATH":              "",
		"SSH_AUTH_SOCK":       "",
		"LLM_":                "",
	}
	for name, want := range tests {
		assert.Equal(t, want, envKey(name), name)
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Token Secret `json:"token"`
	}{Token: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"[REDACTED]"}`, string(data))

	var decoded Secret
	require.NoError(t, json.Unmarshal([]byte(`"[REDACTED]"`), &decoded))
	assert.False(t, decoded.IsSet())

	assert.Equal(t, "config.Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Empty(t, Secret("").String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

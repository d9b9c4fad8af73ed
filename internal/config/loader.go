package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxFileSize = 1 << 20

// sections are the top-level keys environment variables may set.
var sections = map[string]bool{
	"github": true, "git": true, "llm": true, "pipeline": true,
	"validation": true, "retrieval": true, "temporal": true,
	"server": true, "observability": true, "logging": true,
}

// DefaultPath is ~/.config/cigen/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "cigen", "config.yaml"), nil
}

// LoadWithFile builds a Config from defaults, then the YAML file at path,
// then the environment, and validates the result.
//
// An empty path selects DefaultPath, which may be absent. An explicit path
// must exist. The file must be private to its owner (0600 or 0400) and at
// most 1MB since it usually holds tokens.
//
// Environment variables map by their first underscore, for sections this
// package knows:
//
//	GITHUB_TOKEN         -> github.token
//	PIPELINE_LOOP_MAX    -> pipeline.loop_max
//	TEMPORAL_TASK_QUEUE  -> temporal.task_queue
func LoadWithFile(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadFile reads path through one descriptor so the checks and the read see
// the same file.
func loadFile(k *koanf.Koanf, path string, required bool) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if err := checkFile(info); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func checkFile(info fs.FileInfo) error {
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return fmt.Errorf("permissions %v are too open (want 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("%d bytes exceeds the %d byte limit", info.Size(), maxFileSize)
	}
	return nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name, dropping variables
// outside the known sections.
func envKey(name string) string {
	section, field, ok := strings.Cut(strings.ToLower(name), "_")
	if !ok || field == "" || !sections[section] {
		return ""
	}
	return section + "." + field
}

// normalize fills fields whose zero value is never meaningful.
func normalize(cfg *Config) {
	p := &cfg.Pipeline
	if p.ValidateLoopMax == 0 || p.ValidateLoopMax > p.LoopMax {
		p.ValidateLoopMax = p.LoopMax
	}
	switch {
	case cfg.Git.WorkDir == "":
		cfg.Git.WorkDir = defaultWorkDir()
	case strings.HasPrefix(cfg.Git.WorkDir, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Git.WorkDir = filepath.Join(home, cfg.Git.WorkDir[2:])
		}
	}
	if cfg.Git.Remote == "" {
		cfg.Git.Remote = "origin"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "cigen-evaluation"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "cigen"
	}
	if cfg.Retrieval.Results <= 0 {
		cfg.Retrieval.Results = 4
	}
}

func defaultWorkDir() string {
	return filepath.Join(os.TempDir(), "cigen")
}

// Package config loads retrace settings from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all runtime settings. Environment variables use the RETRACE_
// prefix with the key uppercased (RETRACE_JUDGE_MODEL, RETRACE_OPENAI_API_KEY).
type Config struct {
	// Workers bounds concurrent case executions per run.
	Workers int `koanf:"workers"`

	// Timeout is the per-backend-call limit.
	Timeout time.Duration `koanf:"timeout"`

	// JudgeModel is the provider-prefixed model used for evaluation.
	JudgeModel string `koanf:"judge_model"`

	// Database is the SQLite path, or ":memory:".
	Database string `koanf:"database"`

	// Listen is the HTTP API address for serve mode.
	Listen string `koanf:"listen"`

	OpenAIAPIKey    string `koanf:"openai_api_key"`
	OpenAIBaseURL   string `koanf:"openai_base_url"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"workers":     4,
		"timeout":     "120s",
		"judge_model": "openai:gpt-4o-mini",
		"database":    "retrace.db",
		"listen":      "127.0.0.1:8321",
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > retrace.yaml > retrace.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"retrace.yaml", "retrace.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load builds the configuration: defaults, then the config file (when one
// exists), then RETRACE_ environment variables on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configFile := findConfigFile(path); configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configFile, err)
		}
	} else if path != "" {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	if err := k.Load(env.Provider("RETRACE_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "RETRACE_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return &cfg, nil
}

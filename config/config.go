// Package config implements the externally-tunable configuration table of
// SPEC_FULL.md §6: a typed struct loadable from YAML via gopkg.in/yaml.v3,
// with a documented default for every field. The Runtime facade converts a
// loaded Config into the functional options each component actually takes;
// nothing in this package reaches into a component directly.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	LLM           LLM           `yaml:"llm"`
	Workflows     Workflows     `yaml:"workflows"`
	Workspace     Workspace     `yaml:"workspace"`
	Safety        Safety        `yaml:"safety"`
	Observability Observability `yaml:"observability"`
}

// Endpoint is one entry in llm.endpoints.
type Endpoint struct {
	URL        string `yaml:"url"`
	Name       string `yaml:"name"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
	Priority   int    `yaml:"priority"`
	APIKey     string `yaml:"api_key"`
}

// ChainOfThought toggles <think> extraction.
type ChainOfThought struct {
	Enabled bool `yaml:"enabled"`
}

// LLM is the llm.* configuration section.
type LLM struct {
	Endpoints      []Endpoint     `yaml:"endpoints"`
	ModelName      string         `yaml:"model_name"`
	Temperature    float64        `yaml:"temperature"`
	MaxTokens      int            `yaml:"max_tokens"`
	TopP           float64        `yaml:"top_p"`
	Mode           string         `yaml:"mode"` // "active-active" | "primary-secondary"
	ChainOfThought ChainOfThought `yaml:"chain_of_thought"`
}

// SubAgents is the workflows.sub_agents.* configuration section.
type SubAgents struct {
	Enabled             bool    `yaml:"enabled"`
	ComplexityThreshold float64 `yaml:"complexity_threshold"`
	MaxConcurrent       int     `yaml:"max_concurrent"`
}

// Workflows is the workflows.* configuration section.
type Workflows struct {
	MaxIterations  int       `yaml:"max_iterations"`
	RecursionLimit int       `yaml:"recursion_limit"`
	TimeoutSeconds int       `yaml:"timeout_seconds"`
	SubAgents      SubAgents `yaml:"sub_agents"`
}

// Workspace is the workspace.* configuration section.
type Workspace struct {
	DefaultPath string `yaml:"default_path"`
	Isolation   bool   `yaml:"isolation"`
}

// Safety is the safety.* configuration section.
type Safety struct {
	CommandAllowlist []string `yaml:"command_allowlist"`
	CommandDenylist  []string `yaml:"command_denylist"`
	ProtectedFiles   []string `yaml:"protected_files"`
	ProtectedPatterns []string `yaml:"protected_patterns"`
}

// Observability is the observability.* configuration section.
type Observability struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns a Config with every documented default from
// SPEC_FULL.md §6 applied.
func Default() Config {
	return Config{
		LLM: LLM{
			ModelName:   "local-model",
			Temperature: 0.2,
			MaxTokens:   4096,
			TopP:        1,
			Mode:        "active-active",
		},
		Workflows: Workflows{
			MaxIterations:  30,
			RecursionLimit: 180,
			TimeoutSeconds: 1200,
			SubAgents: SubAgents{
				Enabled:             false,
				ComplexityThreshold: 0.7,
				MaxConcurrent:       4,
			},
		},
		Workspace: Workspace{
			DefaultPath: "./workspace",
			Isolation:   true,
		},
		Observability: Observability{
			LogLevel: "info",
		},
	}
}

// Load reads and parses a YAML configuration file, applying Default() to
// any field the file leaves unset (yaml.v3 only overwrites fields present
// in the document, so decoding into an already-defaulted struct is enough).
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

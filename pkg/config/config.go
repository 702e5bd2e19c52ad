// Package config handles workspace configuration for command-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/command-runner/pkg/agent"
)

// FileNames are the workspace config files looked up in a directory, in
// order of preference.
var FileNames = []string{"command-runner.yaml", "command-runner.yml"}

// Config represents the workspace configuration (command-runner.yaml).
type Config struct {
	// Agent resolution
	AgentsDir string `yaml:"agents_dir"` // Directory holding <agent>.md definitions
	Backend   string `yaml:"backend"`    // simulated, command, llm, script

	// Execution settings
	StrictConditions bool                   `yaml:"strict_conditions"`
	Params           map[string]interface{} `yaml:"params"` // Lowest priority parameter values

	// Logging
	LogFile string `yaml:"log_file"`

	// Backend settings
	Command CommandConfig `yaml:"command"`
	LLM     LLMConfig     `yaml:"llm"`

	// Path is the file the config was loaded from, if any.
	Path string `yaml:"-"`
}

// CommandConfig configures the command backend.
type CommandConfig struct {
	Program string   `yaml:"program"`
	Args    []string `yaml:"args"` // May contain {{agent}}, {{agent_file}}, {{step}}, {{model}}
	Timeout string   `yaml:"timeout"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`
}

// LLMConfig configures the llm backend.
type LLMConfig struct {
	Provider    string   `yaml:"provider"` // openai, claude, ollama, ark, dashscope, deepseek, gemini
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     string   `yaml:"timeout"`
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path

	return &cfg, nil
}

// LoadFromDir looks for command-runner.yaml or command-runner.yml in the
// directory. A missing file yields an empty config.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range FileNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return empty config
	return &Config{}, nil
}

// Find loads the effective configuration: the explicit path when given,
// else a config file in dir, else <home>/config.yaml.
func Find(explicit, dir string) (*Config, error) {
	if explicit != "" {
		return Load(explicit)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil || cfg.Path != "" {
		return cfg, err
	}

	homeConfig := GetConfigPath()
	if _, err := os.Stat(homeConfig); err == nil {
		return Load(homeConfig)
	}
	return cfg, nil
}

func parseTimeout(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a duration such as 30s or 5m", field, value)
	}
	return d, nil
}

// Agent converts the settings for the command backend.
func (c CommandConfig) Agent() (agent.CommandConfig, error) {
	timeout, err := parseTimeout("command.timeout", c.Timeout)
	if err != nil {
		return agent.CommandConfig{}, err
	}
	return agent.CommandConfig{
		Program: c.Program,
		Args:    c.Args,
		Timeout: timeout,
		Env:     c.Env,
		WorkDir: c.WorkDir,
	}, nil
}

// Agent converts the settings for the llm backend.
func (c LLMConfig) Agent() (agent.LLMConfig, error) {
	timeout, err := parseTimeout("llm.timeout", c.Timeout)
	if err != nil {
		return agent.LLMConfig{}, err
	}
	return agent.LLMConfig{
		Provider:    agent.Provider(c.Provider),
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		APIKeyEnv:   c.APIKeyEnv,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     timeout,
	}, nil
}

// Package config loads Ansari configuration from YAML with environment
// variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Ansari configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM    LLMConfig    `yaml:"llm"`
	Agent  AgentConfig  `yaml:"agent"`
	Tools  ToolsConfig  `yaml:"tools"`
	Prompt PromptConfig `yaml:"prompt"`
	Store  StoreConfig  `yaml:"store"`
	Server ServerConfig `yaml:"server"`

	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the answer-generating model.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, openai
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
}

// AgentConfig bounds the processing loop.
type AgentConfig struct {
	MaxFailures   int    `yaml:"max_failures"`    // Provider/tool failure budget per user turn
	MaxToolRounds int    `yaml:"max_tool_rounds"` // Rounds allowed to request tools before forcing prose
	RetryBackoff  string `yaml:"retry_backoff"`   // Delay between provider retries
	SystemPrompt  string `yaml:"system_prompt"`   // Template name rendered at construction
}

// SearchServiceConfig configures one remote search backend.
type SearchServiceConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
}

// ToolsConfig configures the retrieval adapters.
type ToolsConfig struct {
	Quran   SearchServiceConfig `yaml:"quran"`
	Hadith  SearchServiceConfig `yaml:"hadith"`
	Mawsuah SearchServiceConfig `yaml:"mawsuah"`
	Tafsir  SearchServiceConfig `yaml:"tafsir"`
}

// PromptConfig configures the template store.
type PromptConfig struct {
	TemplatesDir string `yaml:"templates_dir"`
	HotReload    bool   `yaml:"hot_reload"`
}

// StoreConfig configures thread persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ansari",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-3-5-sonnet-20240620",
			BaseURL:   "https://api.anthropic.com/v1",
			Timeout:   "120s",
			MaxTokens: 4096,
		},

		Agent: AgentConfig{
			MaxFailures:   3,
			MaxToolRounds: 2,
			RetryBackoff:  "5s",
			SystemPrompt:  "system_msg_tool",
		},

		Tools: ToolsConfig{
			Quran:   SearchServiceConfig{BaseURL: "https://api.kalimat.dev", Timeout: "30s"},
			Hadith:  SearchServiceConfig{BaseURL: "https://api.kalimat.dev", Timeout: "30s"},
			Mawsuah: SearchServiceConfig{BaseURL: "https://api.vectara.io", Timeout: "30s"},
			Tafsir:  SearchServiceConfig{BaseURL: "https://api.vectara.io", Timeout: "30s"},
		},

		Prompt: PromptConfig{
			TemplatesDir: "resources/templates",
			HotReload:    false,
		},

		Store: StoreConfig{
			DatabasePath: "data/ansari.db",
		},

		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"https://ansari.chat", "http://localhost:3000"},
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Secrets are
// expected to arrive via the environment rather than the YAML file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("KALIMAT_API_KEY"); key != "" {
		c.Tools.Quran.APIKey = key
		c.Tools.Hadith.APIKey = key
	}
	if key := os.Getenv("VECTARA_API_KEY"); key != "" {
		c.Tools.Mawsuah.APIKey = key
		c.Tools.Tafsir.APIKey = key
	}
	if path := os.Getenv("ANSARI_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if dir := os.Getenv("ANSARI_TEMPLATES_DIR"); dir != "" {
		c.Prompt.TemplatesDir = dir
	}
	if addr := os.Getenv("ANSARI_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// Validate checks for configuration the process cannot run without.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key not configured")
	}
	if c.Agent.MaxFailures < 1 {
		return fmt.Errorf("agent max_failures must be at least 1")
	}
	return nil
}

// GetLLMTimeout returns the provider request timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetRetryBackoff returns the delay between provider retries.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDuration(c.Agent.RetryBackoff, 5*time.Second)
}

// GetTimeout returns a search service timeout as a duration.
func (s *SearchServiceConfig) GetTimeout() time.Duration {
	return parseDuration(s.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

package llm

import (
	"fmt"

	"ansari/internal/config"
)

// NewClient builds the provider client selected by configuration.
func NewClient(cfg *config.Config) (Client, error) {
	clientCfg := ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.GetLLMTimeout(),
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		if clientCfg.BaseURL == "" {
			clientCfg.BaseURL = DefaultAnthropicConfig("").BaseURL
		}
		if clientCfg.Model == "" {
			clientCfg.Model = DefaultAnthropicConfig("").Model
		}
		return NewAnthropicClient(clientCfg, cfg.LLM.MaxTokens), nil
	case "openai":
		if clientCfg.BaseURL == "" {
			clientCfg.BaseURL = DefaultOpenAIConfig("").BaseURL
		}
		if clientCfg.Model == "" {
			clientCfg.Model = DefaultOpenAIConfig("").Model
		}
		return NewOpenAIClient(clientCfg, cfg.LLM.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

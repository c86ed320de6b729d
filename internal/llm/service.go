package llm

import (
	"context"
)

// Service defines the interface for the prompting agent
type Service interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
	Configure(config Config) error
}

// Message is one role-tagged turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single Chat call; zero values use provider defaults
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	// JSON asks providers that support it to constrain output to a JSON object
	JSON bool `json:"json,omitempty"`
}

// Config represents LLM provider configuration
type Config struct {
	Provider string `json:"provider"` // openai, anthropic, ollama
	Model    string `json:"model"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider constants for different LLM providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

// Model constants for common models
const (
	ModelGPT4oMini    = "gpt-4o-mini"
	ModelClaudeSonnet = "claude-3-5-sonnet-latest"
	ModelLlama3       = "llama3"
)

// DefaultModel returns the model used when a provider is configured without one
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return ModelGPT4oMini
	case ProviderAnthropic:
		return ModelClaudeSonnet
	case ProviderOllama:
		return ModelLlama3
	default:
		return ""
	}
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDefaultProviders(t *testing.T) {
	manager := NewManager(DefaultManagerConfig())
	require.NoError(t, SetupDefaultProviders(manager))

	assert.Equal(t, []string{ProviderAnthropic, ProviderOllama, ProviderOpenAI}, manager.GetAvailableProviders())
}

func TestConfigureFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")
	t.Setenv("OLLAMA_MODEL", "")

	manager := NewManager(DefaultManagerConfig())
	require.NoError(t, SetupDefaultProviders(manager))
	require.NoError(t, ConfigureFromEnvironment(manager))

	assert.True(t, manager.IsProviderConfigured(ProviderOpenAI))
	assert.False(t, manager.IsProviderConfigured(ProviderAnthropic))
	assert.True(t, manager.IsProviderConfigured(ProviderOllama))

	ollama := manager.providers[ProviderOllama].(*Client)
	assert.Equal(t, ModelLlama3, ollama.config.Model)
	assert.Equal(t, "http://ollama:11434", ollama.config.BaseURL)
}

func TestConfigureFromEnvironment_NothingSet(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	manager := NewManager(DefaultManagerConfig())
	require.NoError(t, SetupDefaultProviders(manager))
	require.NoError(t, ConfigureFromEnvironment(manager))

	for _, p := range supportedProviders {
		assert.False(t, manager.IsProviderConfigured(p), p)
	}
}

func TestConfigureFromEnvironment_UnregisteredProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_BASE_URL", "")

	err := ConfigureFromEnvironment(NewManager(DefaultManagerConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to configure openai")
}

func TestEnvironmentConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")
	t.Setenv("OLLAMA_MODEL", "qwen2.5-coder")

	cfg, ok := environmentConfig(ProviderAnthropic)
	assert.True(t, ok)
	assert.Equal(t, Config{Provider: ProviderAnthropic, Model: ModelClaudeSonnet, APIKey: "ak-test"}, cfg)

	cfg, ok = environmentConfig(ProviderOllama)
	assert.True(t, ok)
	assert.Equal(t, "qwen2.5-coder", cfg.Model)

	_, ok = environmentConfig("mistral")
	assert.False(t, ok)
}

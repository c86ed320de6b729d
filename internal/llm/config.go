package llm

import (
	stderrors "errors"
	"os"

	"github.com/kyleking/sqlpilot/internal/errors"
)

// supportedProviders are registered by SetupDefaultProviders, in fallback order
var supportedProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama}

// SetupDefaultProviders registers an unconfigured client for every supported provider
func SetupDefaultProviders(manager *Manager) error {
	for _, name := range supportedProviders {
		if err := manager.RegisterProvider(name, NewClient(Config{})); err != nil {
			return errors.Wrapf(err, errors.ErrTypeConfig, "failed to register %s provider", name)
		}
	}

	return nil
}

// envKey returns the conventional API key variable for a provider
func envKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

// environmentConfig reads the provider settings the conventional variables
// carry. ok is false when the environment does not enable the provider:
// hosted providers need an API key, Ollama needs OLLAMA_BASE_URL.
func environmentConfig(provider string) (cfg Config, ok bool) {
	cfg = Config{Provider: provider, Model: DefaultModel(provider)}

	switch provider {
	case ProviderOpenAI, ProviderAnthropic:
		cfg.APIKey = envKey(provider)
		return cfg, cfg.APIKey != ""
	case ProviderOllama:
		cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		if model := os.Getenv("OLLAMA_MODEL"); model != "" {
			cfg.Model = model
		}

		return cfg, cfg.BaseURL != ""
	default:
		return cfg, false
	}
}

// ConfigureFromEnvironment configures every provider the environment enables.
// A provider that fails to configure does not stop the others; the failures
// are returned joined.
func ConfigureFromEnvironment(manager *Manager) error {
	var errs []error

	for _, name := range supportedProviders {
		cfg, ok := environmentConfig(name)
		if !ok {
			continue
		}

		if err := manager.Configure(cfg); err != nil {
			errs = append(errs, errors.Wrapf(err, errors.ErrTypeConfig, "failed to configure %s", name))
		}
	}

	return stderrors.Join(errs...)
}

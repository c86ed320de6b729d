package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/logging"
)

// Attributed is implemented by agents that can report which provider answered
type Attributed interface {
	ChatFrom(ctx context.Context, messages []Message, opts Options) (reply, provider string, err error)
}

// Manager handles multiple LLM providers with retry and fallback
type Manager struct {
	mu         sync.RWMutex
	providers  map[string]Service
	configured map[string]bool
	config     ManagerConfig
	logger     *logging.Logger
}

// ManagerConfig configures the LLM manager behavior
type ManagerConfig struct {
	DefaultProvider   string        `json:"default_provider"`
	FallbackProviders []string      `json:"fallback_providers"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	Timeout           time.Duration `json:"timeout"`
}

// DefaultManagerConfig returns a sensible default configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultProvider:   ProviderOpenAI,
		FallbackProviders: []string{ProviderAnthropic, ProviderOllama},
		RetryAttempts:     2,
		RetryDelay:        2 * time.Second,
		Timeout:           time.Minute,
	}
}

// NewManager creates a new LLM manager with the given configuration
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		providers:  make(map[string]Service),
		configured: make(map[string]bool),
		config:     cfg,
		logger:     logging.GetLogger(),
	}
}

// NewManagerFromConfig builds a manager with one client per provider named in
// cfg, configured from cfg and the provider environment variables. Providers
// that cannot be configured are left out; a manager with none still answers
// Chat with an error so callers degrade to their fallback path.
func NewManagerFromConfig(cfg config.LLMConfig) *Manager {
	manager := NewManager(ManagerConfig{
		DefaultProvider:   strings.ToLower(cfg.Provider),
		FallbackProviders: lowerAll(cfg.FallbackProviders),
		RetryAttempts:     cfg.RetryAttempts,
		RetryDelay:        config.Duration(cfg.RetryDelay, 2*time.Second),
		Timeout:           config.Duration(cfg.Timeout, time.Minute),
	})

	_ = SetupDefaultProviders(manager)

	if err := ConfigureFromEnvironment(manager); err != nil {
		manager.logger.WithError(err).Debug("provider environment configuration incomplete")
	}

	if p := manager.config.DefaultProvider; p != "" && p != ProviderNone {
		explicit, _ := environmentConfig(p)
		explicit.Provider = p

		if cfg.Model != "" {
			explicit.Model = cfg.Model
		}

		if cfg.APIKey != "" {
			explicit.APIKey = cfg.APIKey
		}

		if cfg.BaseURL != "" {
			explicit.BaseURL = cfg.BaseURL
		}

		if err := manager.Configure(explicit); err != nil {
			manager.logger.WithError(err).Debugf("provider %s not configured", p)
		}
	}

	return manager
}

// RegisterProvider registers a new LLM provider
func (m *Manager) RegisterProvider(name string, service Service) error {
	if name == "" {
		return errors.New(errors.ErrTypeConfig, "provider name cannot be empty")
	}

	if service == nil {
		return errors.New(errors.ErrTypeConfig, "service cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[name] = service

	return nil
}

// Configure configures a registered provider and marks it usable
func (m *Manager) Configure(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	provider, exists := m.providers[cfg.Provider]
	if !exists {
		return errors.Newf(errors.ErrTypeConfig, "provider %s not registered", cfg.Provider)
	}

	if err := provider.Configure(cfg); err != nil {
		return err
	}

	m.configured[cfg.Provider] = true

	return nil
}

// Chat answers with the first provider that succeeds
func (m *Manager) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	reply, _, err := m.ChatFrom(ctx, messages, opts)
	return reply, err
}

// ChatFrom tries the default provider, then each fallback provider, retrying
// each one, and reports which provider produced the reply
func (m *Manager) ChatFrom(ctx context.Context, messages []Message, opts Options) (string, string, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	order := m.providerOrder()
	if len(order) == 0 {
		return "", "", errors.New(errors.ErrTypePromptAgent, "no LLM provider configured").
			WithSuggestion("Set SQLPILOT_LLM_PROVIDER and the provider's API key, or use --provider none")
	}

	var lastErr error

	for _, name := range order {
		m.mu.RLock()
		provider := m.providers[name]
		m.mu.RUnlock()

		reply, err := m.tryProvider(ctx, provider, messages, opts)
		if err == nil {
			return reply, name, nil
		}

		lastErr = err
		m.logger.WithField("provider", name).WithError(err).Warn("LLM provider failed")

		if ctx.Err() != nil {
			break
		}
	}

	return "", "", errors.Wrap(lastErr, errors.ErrTypePromptAgent, "all LLM providers failed")
}

var _ Service = (*Manager)(nil)

// providerOrder lists configured providers: default first, then fallbacks, without repeats
func (m *Manager) providerOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var order []string

	for _, name := range append([]string{m.config.DefaultProvider}, m.config.FallbackProviders...) {
		if name == "" || !m.configured[name] || slices.Contains(order, name) {
			continue
		}

		order = append(order, name)
	}

	return order
}

// tryProvider calls one provider with retries; empty replies count as failures.
// A rejected request such as bad credentials is not retried.
func (m *Manager) tryProvider(ctx context.Context, provider Service, messages []Message, opts Options) (string, error) {
	var lastErr error

	attempts := 0

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(m.config.RetryDelay):
			}
		}

		attempts++

		reply, err := provider.Chat(ctx, messages, opts)
		if err == nil && strings.TrimSpace(reply) != "" {
			return reply, nil
		}

		if err == nil {
			err = errors.New(errors.ErrTypePromptAgent, "empty reply")
		}

		lastErr = err

		var statusErr *StatusError
		if ctx.Err() != nil || (stderrors.As(err, &statusErr) && !statusErr.Retryable()) {
			break
		}
	}

	return "", fmt.Errorf("provider failed after %d attempts: %w", attempts, lastErr)
}

// GetAvailableProviders returns registered provider names in sorted order
func (m *Manager) GetAvailableProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	providers := make([]string, 0, len(m.providers))
	for name := range m.providers {
		providers = append(providers, name)
	}

	slices.Sort(providers)

	return providers
}

// IsProviderRegistered checks if a provider is registered
func (m *Manager) IsProviderRegistered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.providers[name]

	return exists
}

// IsProviderConfigured reports whether Configure succeeded for the provider
func (m *Manager) IsProviderConfigured(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.configured[name]
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}

	return out
}

package llm

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/errors"
)

// MockService implements the Service interface for testing
type MockService struct {
	mu             sync.Mutex
	reply          string
	failAfterCalls int
	shouldFail     bool
	callCount      int
	configureErr   error
	err            error
}

func (m *MockService) Chat(context.Context, []Message, Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	if m.err != nil {
		return "", m.err
	}

	if m.shouldFail || (m.failAfterCalls > 0 && m.callCount <= m.failAfterCalls) {
		return "", stderrors.New("mock service error")
	}

	return m.reply, nil
}

func (m *MockService) Configure(Config) error {
	return m.configureErr
}

func (m *MockService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.callCount
}

func fastConfig(defaultProvider string, fallbacks ...string) ManagerConfig {
	return ManagerConfig{
		DefaultProvider:   defaultProvider,
		FallbackProviders: fallbacks,
		RetryAttempts:     1,
		RetryDelay:        time.Millisecond,
		Timeout:           time.Second,
	}
}

func register(t *testing.T, m *Manager, name string, svc Service) {
	t.Helper()
	require.NoError(t, m.RegisterProvider(name, svc))
	require.NoError(t, m.Configure(Config{Provider: name}))
}

func TestManager_RegisterProvider(t *testing.T) {
	manager := NewManager(DefaultManagerConfig())

	assert.Error(t, manager.RegisterProvider("", &MockService{}))
	assert.Error(t, manager.RegisterProvider("x", nil))
	require.NoError(t, manager.RegisterProvider("b", &MockService{}))
	require.NoError(t, manager.RegisterProvider("a", &MockService{}))

	assert.True(t, manager.IsProviderRegistered("a"))
	assert.False(t, manager.IsProviderConfigured("a"))
	assert.Equal(t, []string{"a", "b"}, manager.GetAvailableProviders())
}

func TestManager_Configure(t *testing.T) {
	manager := NewManager(DefaultManagerConfig())

	err := manager.Configure(Config{Provider: "missing"})
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	require.NoError(t, manager.RegisterProvider("bad", &MockService{configureErr: stderrors.New("no key")}))
	assert.Error(t, manager.Configure(Config{Provider: "bad"}))
	assert.False(t, manager.IsProviderConfigured("bad"))
}

func TestManager_ChatUsesDefaultProvider(t *testing.T) {
	manager := NewManager(fastConfig("primary", "secondary"))
	primary := &MockService{reply: "SELECT 1"}
	secondary := &MockService{reply: "SELECT 2"}
	register(t, manager, "primary", primary)
	register(t, manager, "secondary", secondary)

	reply, provider, err := manager.ChatFrom(context.Background(), testMessages, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
	assert.Equal(t, "primary", provider)
	assert.Zero(t, secondary.calls())
}

func TestManager_ChatRetriesThenSucceeds(t *testing.T) {
	manager := NewManager(fastConfig("primary"))
	primary := &MockService{reply: "SELECT 1", failAfterCalls: 1}
	register(t, manager, "primary", primary)

	reply, err := manager.Chat(context.Background(), testMessages, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", reply)
	assert.Equal(t, 2, primary.calls())
}

func TestManager_ChatFallsBackToNextProvider(t *testing.T) {
	manager := NewManager(fastConfig("primary", "primary", "secondary"))
	primary := &MockService{shouldFail: true}
	secondary := &MockService{reply: "SELECT 2"}
	register(t, manager, "primary", primary)
	register(t, manager, "secondary", secondary)

	reply, provider, err := manager.ChatFrom(context.Background(), testMessages, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", reply)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, 2, primary.calls(), "duplicate provider names are tried once")
}

func TestManager_ChatDoesNotRetryRejectedRequests(t *testing.T) {
	manager := NewManager(fastConfig("primary", "secondary"))
	primary := &MockService{err: errors.Wrap(&StatusError{StatusCode: 401, Body: "invalid api key"}, errors.ErrTypePromptAgent, "API request failed")}
	secondary := &MockService{reply: "SELECT 2"}
	register(t, manager, "primary", primary)
	register(t, manager, "secondary", secondary)

	reply, provider, err := manager.ChatFrom(context.Background(), testMessages, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", reply)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, 1, primary.calls())
}

func TestManager_ChatRetriesRateLimits(t *testing.T) {
	manager := NewManager(fastConfig("primary"))
	primary := &MockService{err: &StatusError{StatusCode: 429}}
	register(t, manager, "primary", primary)

	_, err := manager.Chat(context.Background(), testMessages, Options{})
	require.Error(t, err)
	assert.Equal(t, 2, primary.calls())
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestStatusError_Retryable(t *testing.T) {
	tests := map[int]bool{
		400: false,
		401: false,
		403: false,
		404: false,
		408: true,
		422: false,
		429: true,
		500: true,
		503: true,
	}

	for code, expected := range tests {
		assert.Equal(t, expected, (&StatusError{StatusCode: code}).Retryable(), code)
	}
}

func TestManager_ChatEmptyReplyCountsAsFailure(t *testing.T) {
	manager := NewManager(fastConfig("primary"))
	register(t, manager, "primary", &MockService{reply: "   "})

	_, err := manager.Chat(context.Background(), testMessages, Options{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypePromptAgent))
	assert.Contains(t, err.Error(), "empty reply")
}

func TestManager_ChatWithoutConfiguredProviders(t *testing.T) {
	manager := NewManager(fastConfig("primary"))
	require.NoError(t, manager.RegisterProvider("primary", &MockService{reply: "x"}))

	_, err := manager.Chat(context.Background(), testMessages, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider configured")
}

func TestNewManagerFromConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	t.Setenv("OLLAMA_BASE_URL", "")

	manager := NewManagerFromConfig(config.LLMConfig{
		Provider:          "OpenAI",
		FallbackProviders: []string{"anthropic"},
		RetryAttempts:     1,
		RetryDelay:        "10ms",
		Timeout:           "5s",
	})

	assert.False(t, manager.IsProviderConfigured(ProviderOpenAI), "no key for the default provider")
	assert.True(t, manager.IsProviderConfigured(ProviderAnthropic))
	assert.Equal(t, []string{ProviderAnthropic}, manager.providerOrder())
	assert.Equal(t, 10*time.Millisecond, manager.config.RetryDelay)

	none := NewManagerFromConfig(config.LLMConfig{Provider: ProviderNone})
	assert.Empty(t, none.providerOrder())
}

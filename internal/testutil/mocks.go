package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kyleking/sqlpilot/internal/llm"
)

// MockAgent implements llm.Service with testify/mock
type MockAgent struct {
	mock.Mock
}

// Chat records the call and returns the configured reply
func (m *MockAgent) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	args := m.Called(ctx, messages, opts)
	return args.String(0), args.Error(1)
}

// Configure records the call
func (m *MockAgent) Configure(config llm.Config) error {
	args := m.Called(config)
	return args.Error(0)
}

// Reply makes every Chat call return reply
func (m *MockAgent) Reply(reply string) *mock.Call {
	return m.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return(reply, nil)
}

// Fail makes every Chat call return err
func (m *MockAgent) Fail(err error) *mock.Call {
	return m.On("Chat", mock.Anything, mock.Anything, mock.Anything).Return("", err)
}

// AttributedAgent is a MockAgent that also reports the answering provider
type AttributedAgent struct {
	MockAgent
	Provider string
}

// ChatFrom delegates to Chat and reports Provider
func (a *AttributedAgent) ChatFrom(ctx context.Context, messages []llm.Message, opts llm.Options) (string, string, error) {
	reply, err := a.Chat(ctx, messages, opts)
	if err != nil {
		return "", "", err
	}

	return reply, a.Provider, nil
}

var (
	_ llm.Service    = (*MockAgent)(nil)
	_ llm.Attributed = (*AttributedAgent)(nil)
)

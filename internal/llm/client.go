package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kyleking/sqlpilot/internal/errors"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	defaultOllamaBaseURL    = "http://localhost:11434"

	anthropicVersion          = "2023-06-01"
	anthropicDefaultMaxTokens = 1024
)

// StatusError is a non-200 response from a provider API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether repeating the request could succeed. Client
// errors other than timeouts and rate limits fail the same way every time.
func (e *StatusError) Retryable() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return true
	}

	return e.StatusCode < 400 || e.StatusCode >= 500
}

// Client implements the Service interface for one provider
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new LLM client with the given configuration
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Configure validates and applies provider settings
func (c *Client) Configure(config Config) error {
	if config.Provider == "" {
		return errors.New(errors.ErrTypeConfig, "provider is required")
	}

	if config.Model == "" {
		config.Model = DefaultModel(config.Provider)
	}

	switch config.Provider {
	case ProviderOpenAI:
		if config.APIKey == "" {
			return errors.New(errors.ErrTypeConfig, "API key is required for OpenAI provider").
				WithSuggestion("Set OPENAI_API_KEY or SQLPILOT_LLM_API_KEY")
		}

		if config.BaseURL == "" {
			config.BaseURL = defaultOpenAIBaseURL
		}
	case ProviderAnthropic:
		if config.APIKey == "" {
			return errors.New(errors.ErrTypeConfig, "API key is required for Anthropic provider").
				WithSuggestion("Set ANTHROPIC_API_KEY or SQLPILOT_LLM_API_KEY")
		}

		if config.BaseURL == "" {
			config.BaseURL = defaultAnthropicBaseURL
		}
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = defaultOllamaBaseURL
		}
	default:
		return errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", config.Provider)
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	c.config = config

	return nil
}

// Provider returns the configured provider name
func (c *Client) Provider() string {
	return c.config.Provider
}

// Chat sends messages to the configured provider and returns the reply text
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	if c.config.Provider == "" {
		return "", errors.New(errors.ErrTypePromptAgent, "LLM client not configured")
	}

	if len(messages) == 0 {
		return "", errors.New(errors.ErrTypePromptAgent, "no messages to send")
	}

	switch c.config.Provider {
	case ProviderOpenAI:
		return c.chatOpenAI(ctx, messages, opts)
	case ProviderAnthropic:
		return c.chatAnthropic(ctx, messages, opts)
	case ProviderOllama:
		return c.chatOllama(ctx, messages, opts)
	default:
		return "", errors.Newf(errors.ErrTypePromptAgent, "unsupported provider: %s", c.config.Provider)
	}
}

// OpenAI API structures
type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) chatOpenAI(ctx context.Context, messages []Message, opts Options) (string, error) {
	reqBody := openAIRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSON {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	respBody, err := c.post(ctx, "/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypePromptAgent, "failed to parse OpenAI response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypePromptAgent, "OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", errors.New(errors.ErrTypePromptAgent, "no response from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) chatAnthropic(ctx context.Context, messages []Message, opts Options) (string, error) {
	// Anthropic takes system instructions as a top-level field
	var (
		system []string
		turns  []Message
	)

	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}

		turns = append(turns, m)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	reqBody := anthropicRequest{
		Model:       c.config.Model,
		Messages:    turns,
		MaxTokens:   maxTokens,
		System:      strings.Join(system, "\n\n"),
		Temperature: opts.Temperature,
	}

	respBody, err := c.post(ctx, "/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": anthropicVersion,
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypePromptAgent, "failed to parse Anthropic response")
	}

	if response.Error != nil {
		return "", errors.Newf(errors.ErrTypePromptAgent, "Anthropic API error: %s", response.Error.Message)
	}

	var sb strings.Builder

	for _, block := range response.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", errors.New(errors.ErrTypePromptAgent, "no response from Anthropic")
	}

	return sb.String(), nil
}

// Ollama API structures
type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func (c *Client) chatOllama(ctx context.Context, messages []Message, opts Options) (string, error) {
	reqBody := ollamaRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
	}
	if opts.JSON {
		reqBody.Format = "json"
	}

	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		reqBody.Options = map[string]any{}
		if opts.Temperature > 0 {
			reqBody.Options["temperature"] = opts.Temperature
		}

		if opts.MaxTokens > 0 {
			reqBody.Options["num_predict"] = opts.MaxTokens
		}
	}

	respBody, err := c.post(ctx, "/api/chat", reqBody, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", errors.Wrap(err, errors.ErrTypePromptAgent, "failed to parse Ollama response")
	}

	if response.Error != "" {
		return "", errors.Newf(errors.ErrTypePromptAgent, "Ollama API error: %s", response.Error)
	}

	return response.Message.Content, nil
}

// post sends a JSON request and returns the body of a 200 response
func (c *Client) post(ctx context.Context, endpoint string, reqBody any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeNetwork, "failed to make request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeNetwork, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(&StatusError{StatusCode: resp.StatusCode, Body: truncateBody(body)},
			errors.ErrTypePromptAgent, "API request failed")
	}

	return body, nil
}

func truncateBody(body []byte) string {
	const limit = 512

	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}

	return s
}

// Package anthropic provides a generation provider adapter using the
// Anthropic Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/llm"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.GenerationProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = domain.DefaultRequestTimeout
	DefaultMaxTokens = domain.DefaultMaxTokens

	// anthropicVersion is the required API version header.
	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the Anthropic generation provider.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.anthropic.com).
	BaseURL string

	// Model is the model to use (default: claude-3-5-sonnet-latest).
	Model string

	// Timeout bounds a whole streamed request (default: 60s).
	Timeout time.Duration

	// RequestsPerMinute paces requests; zero disables pacing.
	RequestsPerMinute int
}

// Provider streams answers from the Anthropic Messages API.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	limiter *llm.RateLimiter
}

// messagesRequest is the Anthropic /v1/messages request format.
type messagesRequest struct {
	Model       string            `json:"model"`
	Messages    []messagesMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	System      string            `json:"system,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Stream      bool              `json:"stream"`
}

// messagesMessage is the Anthropic message format.
type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamEvent is the data payload of one server-sent event.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewProvider creates a new Anthropic generation provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		limiter: llm.NewRateLimiter(cfg.RequestsPerMinute),
	}, nil
}

// Provider identifies the backend.
func (p *Provider) Provider() domain.AIProvider {
	return domain.AIProviderAnthropic
}

// ModelName returns the name of the model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// GenerateStream posts a streaming Messages request and forwards each
// text_delta from the event stream.
func (p *Provider) GenerateStream(ctx context.Context, req driven.GenerateRequest, onDelta func(string) error) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return llm.Unavailable(domain.AIProviderAnthropic, err)
	}

	system := req.System
	messages := make([]messagesMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		// The Messages API takes system text as a top-level field.
		if msg.Role == "system" {
			system = strings.TrimSpace(system + "\n\n" + msg.Content)
			continue
		}
		messages = append(messages, messagesMessage{Role: msg.Role, Content: msg.Content})
	}

	// Anthropic requires max_tokens to be set
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	jsonBody, err := json.Marshal(messagesRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		System:      system,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.Unavailable(domain.AIProviderAnthropic, contextErr(ctx, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			p.limiter.RecordRateLimitError(llm.RetryAfter(resp.Header))
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return llm.Unavailable(domain.AIProviderAnthropic,
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body)))
	}

	return p.readStream(ctx, resp.Body, onDelta)
}

func (p *Provider) readStream(ctx context.Context, body io.Reader, onDelta func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
			return llm.Unavailable(domain.AIProviderAnthropic, fmt.Errorf("decode event: %w", err))
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			if err := onDelta(event.Delta.Text); err != nil {
				return err
			}
		case "message_stop":
			return nil
		case "error":
			msg := "unknown error"
			if event.Error != nil {
				msg = event.Error.Type + ": " + event.Error.Message
			}
			return llm.Unavailable(domain.AIProviderAnthropic, errors.New(msg))
		}
	}

	if err := scanner.Err(); err != nil {
		return llm.Unavailable(domain.AIProviderAnthropic, contextErr(ctx, err))
	}
	return llm.Unavailable(domain.AIProviderAnthropic, errors.New("stream ended before message_stop"))
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

// contextErr prefers the context's error so cancellation is recognisable.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Ping validates the service is reachable by checking the /v1/models endpoint.
// This is a lightweight check that validates the API key without running inference.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("anthropic: failed to create ping request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return llm.Unavailable(domain.AIProviderAnthropic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.Unavailable(domain.AIProviderAnthropic, fmt.Errorf("API returned status %d", resp.StatusCode))
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

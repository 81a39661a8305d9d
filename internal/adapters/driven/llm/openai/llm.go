// Package openai provides a generation provider adapter using the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/llm"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.GenerationProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = domain.DefaultRequestTimeout

	// MaxRetries is the number of retries after a rate limit response.
	MaxRetries = 3

	// BaseBackoff is the base of the exponential backoff.
	BaseBackoff = 2 * time.Second

	// MaxBackoff caps the exponential backoff.
	MaxBackoff = 32 * time.Second
)

// Config holds configuration for the OpenAI generation provider.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API base URL for Azure or compatible servers.
	BaseURL string

	// Model is the model to use (default: gpt-4o-mini).
	Model string

	// Timeout bounds a whole streamed request (default: 60s).
	Timeout time.Duration

	// RequestsPerMinute paces requests; zero disables pacing.
	RequestsPerMinute int

	// BaseBackoff overrides BaseBackoff.
	BaseBackoff time.Duration
}

// Provider streams answers from the OpenAI chat completions API.
type Provider struct {
	client      openai.Client
	model       string
	limiter     *llm.RateLimiter
	baseBackoff time.Duration
}

// NewProvider creates a new OpenAI generation provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = BaseBackoff
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// Rate limit retries are handled here so they respect the limiter.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		limiter:     llm.NewRateLimiter(cfg.RequestsPerMinute),
		baseBackoff: cfg.BaseBackoff,
	}, nil
}

// Provider identifies the backend.
func (p *Provider) Provider() domain.AIProvider {
	return domain.AIProviderOpenAI
}

// ModelName returns the name of the model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// GenerateStream streams a chat completion. Rate limit responses received
// before the first delta are retried with exponential backoff.
func (p *Provider) GenerateStream(ctx context.Context, req driven.GenerateRequest, onDelta func(string) error) error {
	params := p.params(req)

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.baseBackoff
			if backoff > MaxBackoff {
				backoff = MaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return llm.Unavailable(domain.AIProviderOpenAI, ctx.Err())
			case <-timer.C:
			}
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return llm.Unavailable(domain.AIProviderOpenAI, err)
		}

		started, err := p.stream(ctx, params, onDelta)
		if err == nil {
			return nil
		}
		if started || !isRateLimitError(err) {
			return err
		}

		lastErr = err
		if d := retryAfter(err); d > 0 {
			p.limiter.RecordRateLimitError(d)
		}
	}

	return llm.Unavailable(domain.AIProviderOpenAI, fmt.Errorf("rate limited after %d retries: %w", MaxRetries, lastErr))
}

func (p *Provider) params(req driven.GenerateRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

// stream runs one streaming request. started reports whether any delta
// reached onDelta, after which the request must not be retried.
func (p *Provider) stream(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	onDelta func(string) error,
) (started bool, err error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		started = true
		if err := onDelta(delta); err != nil {
			return true, err
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return started, llm.Unavailable(domain.AIProviderOpenAI, ctxErr)
		}
		if isRateLimitError(err) && !started {
			return false, err
		}
		return started, llm.Unavailable(domain.AIProviderOpenAI, err)
	}
	return started, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func retryAfter(err error) time.Duration {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return llm.RetryAfter(apiErr.Response.Header)
	}
	return 0
}

// Ping validates the API key and model by fetching the model description.
func (p *Provider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.Get(ctx, p.model); err != nil {
		return llm.Unavailable(domain.AIProviderOpenAI, err)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

func writeSSE(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for i, d := range deltas {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   DefaultModel,
			"choices": []map[string]any{{
				"index":         0,
				"delta":         map[string]any{"content": d},
				"finish_reason": nil,
			}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if i == 0 {
			w.(http.Flusher).Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewProvider(Config{
		APIKey:      "sk-test",
		BaseURL:     server.URL,
		Timeout:     5 * time.Second,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return p
}

func generate(ctx context.Context, p *Provider) ([]string, error) {
	var deltas []string
	err := p.GenerateStream(ctx, driven.GenerateRequest{
		System:      "answer from the notes",
		Messages:    []driven.ChatMessage{{Role: "user", Content: "What is osmosis?"}},
		MaxTokens:   128,
		Temperature: 0.2,
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	return deltas, err
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(Config{})
	assert.Error(t, err)

	p, err := NewProvider(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.ModelName())
	assert.Equal(t, domain.AIProviderOpenAI, p.Provider())
	assert.NoError(t, p.Close())
}

func TestGenerateStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		assert.Equal(t, DefaultModel, body["model"])
		messages, ok := body["messages"].([]any)
		require.True(t, ok)
		assert.Len(t, messages, 2)

		writeSSE(w, "Osmosis ", "is diffusion ", "of water.")
	})

	deltas, err := generate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Osmosis ", "is diffusion ", "of water."}, deltas)
}

func TestGenerateStream_RetriesRateLimitBeforeFirstDelta(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeRateLimited(w)
			return
		}
		writeSSE(w, "ok")
	})

	deltas, err := generate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, deltas)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateStream_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeRateLimited(w)
	})

	_, err := generate(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, int32(MaxRetries+1), calls.Load())
}

func TestGenerateStream_ServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := generate(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestGenerateStream_CallbackErrorReturnedUnchanged(t *testing.T) {
	stop := errors.New("consumer gone")
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, "a", "b")
	})

	err := p.GenerateStream(context.Background(), driven.GenerateRequest{}, func(string) error {
		return stop
	})
	assert.Equal(t, stop, err)
}

func TestGenerateStream_Timeout(t *testing.T) {
	p := newTestProvider(t, func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := generate(ctx, p)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

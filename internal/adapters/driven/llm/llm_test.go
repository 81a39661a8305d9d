package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

func TestUnavailable(t *testing.T) {
	assert.NoError(t, Unavailable(domain.AIProviderOllama, nil))

	err := Unavailable(domain.AIProviderOllama, errors.New("connection refused"))
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	err = Unavailable(domain.AIProviderOpenAI, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "timed out")

	err = Unavailable(domain.AIProviderOpenAI, context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Duration(0), RetryAfter(h))

	h.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, RetryAfter(h))

	h.Set("Retry-After", "soon")
	assert.Equal(t, time.Duration(0), RetryAfter(h))
}

func TestRateLimiter_NilIsUnlimited(t *testing.T) {
	r := NewRateLimiter(0)
	assert.Nil(t, r)
	assert.True(t, r.Allow())
	assert.NoError(t, r.Wait(context.Background()))
	r.RecordRateLimitError(time.Second)
}

func TestRateLimiter_Burst(t *testing.T) {
	r := NewRateLimiter(15)
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())
}

func TestRateLimiter_Backoff(t *testing.T) {
	r := NewRateLimiter(6000)
	r.RecordRateLimitError(time.Hour)
	assert.False(t, r.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

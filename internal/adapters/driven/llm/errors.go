package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

// Unavailable wraps a backend failure as domain.ErrProviderUnavailable.
// Caller cancellation is returned unchanged so it is not reported as a
// provider fault.
func Unavailable(provider domain.AIProvider, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: request timed out", domain.ErrProviderUnavailable, provider)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, provider, err)
}

// RetryAfter parses a Retry-After header given in seconds.
func RetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

package llm

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// RetryPolicy tunes transient-error handling for one caller.
type RetryPolicy struct {
	// MinDelay/MaxDelay bound the uniform random backoff.
	MinDelay time.Duration
	MaxDelay time.Duration
	// RetryAfterCap bounds an honoured Retry-After hint.
	RetryAfterCap time.Duration
	// Timeout is the primary per-call deadline.
	Timeout time.Duration
	// RetryTimeoutCap bounds the quick-retry deadline.
	RetryTimeoutCap time.Duration
}

// DefaultRetryPolicy matches the production defaults.
var DefaultRetryPolicy = RetryPolicy{
	MinDelay:        500 * time.Millisecond,
	MaxDelay:        2 * time.Second,
	RetryAfterCap:   30 * time.Second,
	Timeout:         120 * time.Second,
	RetryTimeoutCap: 60 * time.Second,
}

// IsTransient classifies an error as retryable: rate limits, server errors,
// and connection/timeout failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"rate limit", "429",
		"500", "502", "503", "504",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "broken pipe", "eof",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry[\s_-]?after[:\s]+(\d+)`)

// retryAfterHint extracts a Retry-After duration from an error, if present.
func retryAfterHint(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	if m := retryAfterPattern.FindStringSubmatch(err.Error()); m != nil {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil && secs > 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}

// Delay computes the backoff before a transient retry: an honoured
// Retry-After hint capped at RetryAfterCap, else a uniform random delay in
// [MinDelay, MaxDelay].
func (p RetryPolicy) Delay(err error) time.Duration {
	if hint, ok := retryAfterHint(err); ok {
		if hint > p.RetryAfterCap {
			return p.RetryAfterCap
		}
		return hint
	}
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rand.Int63n(int64(p.MaxDelay-p.MinDelay)))
}

// QuickTimeout is the shortened deadline for the single transient retry:
// min(RetryTimeoutCap, 0.4 x primary timeout).
func (p RetryPolicy) QuickTimeout() time.Duration {
	quick := p.Timeout * 2 / 5
	if p.RetryTimeoutCap > 0 && quick > p.RetryTimeoutCap {
		return p.RetryTimeoutCap
	}
	return quick
}

// Package retry wraps remote calls that can be rate limited by the provider.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = time.Second
)

// ErrRetriesExhausted is returned (wrapping the last failure) once every
// allowed attempt was rate limited.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy controls how Do retries an operation.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer wait.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// DefaultPolicy returns the policy used for all remote calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
	}
}

var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"ratelimit",
	"too many requests",
	"resource_exhausted",
	"quota exceeded",
}

// IsRateLimited reports whether err looks like a provider rate-limit response.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var retryHintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:try again|retry)\s+(?:in|after)\s+(\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|secs?|seconds?|m|mins?|minutes?)\b`),
	regexp.MustCompile(`(?i)"?retryDelay"?\s*[:=]\s*"?(\d+(?:\.\d+)?)(ms|s|m)"?`),
	regexp.MustCompile(`(?i)retry-after:?\s*(\d+(?:\.\d+)?)()`),
}

// RetryAfter extracts a suggested wait from an error message, such as
// "Please try again in 20s" or `"retryDelay": "7s"`.
func RetryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()
	for _, re := range retryHintPatterns {
		m := re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		value, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil {
			continue
		}
		unit := time.Second
		switch u := strings.ToLower(m[2]); {
		case strings.HasPrefix(u, "ms") || strings.HasPrefix(u, "milli"):
			unit = time.Millisecond
		case strings.HasPrefix(u, "m"):
			unit = time.Minute
		}
		return time.Duration(value * float64(unit)), true
	}
	return 0, false
}

// Do runs op and retries it while it fails with a rate-limit error.
// Any other error is returned as is on the attempt that produced it.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimited(err) {
			return zero, err
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			break
		}

		delay, ok := RetryAfter(err)
		if !ok {
			delay = initial * time.Duration(1<<attempt)
		}
		logger.Warn("Rate limited, retrying", "attempt", attempt+1, "max_attempts", maxAttempts, "delay", delay, "error", err)

		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry wait interrupted: %w", err)
		}
	}

	return zero, fmt.Errorf("%w: operation failed after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

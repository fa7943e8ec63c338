package aireply

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

const (
	DefaultMaxAttempts   = 2
	DefaultFallbackDelay = 15 * time.Second
	DefaultMaxDelay      = 60 * time.Second
)

// retryHintPattern matches "retry in 12s", "retry in 1.5 seconds" and "retryDelay": "30s".
var retryHintPattern = regexp.MustCompile(`(?i)retry(?:\s+in|_?delay"?\s*[:=]\s*"?)\s*([0-9]+(?:\.[0-9]+)?)\s*s`)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

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

// RetryPolicy retries rate-limited calls with a bounded, hint-driven delay.
type RetryPolicy struct {
	MaxAttempts   int
	FallbackDelay time.Duration
	MaxDelay      time.Duration
	Sleep         Sleeper
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		FallbackDelay: DefaultFallbackDelay,
		MaxDelay:      DefaultMaxDelay,
	}
}

// Do runs call until it succeeds, fails with a non rate-limit error or
// MaxAttempts is reached. It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, call func(context.Context) (string, error)) (string, int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, attempt, nil
		}
		if attempt >= attempts || !IsRateLimited(err) {
			return "", attempt, err
		}
		if err := sleep(ctx, p.Delay(err)); err != nil {
			return "", attempt, err
		}
	}
}

// Delay is the provider hint when present, else FallbackDelay, capped at
// MaxDelay. MaxDelay never exceeds DefaultMaxDelay.
func (p RetryPolicy) Delay(err error) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 || maxDelay > DefaultMaxDelay {
		maxDelay = DefaultMaxDelay
	}
	delay, ok := RetryHint(err)
	if !ok {
		delay = p.FallbackDelay
	}
	if delay < 0 {
		delay = 0
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// IsRateLimited reports an HTTP 429 or a message that reads like one.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "quota")
}

// RetryHint extracts the provider's suggested wait from the retry-after
// header or from the error text.
func RetryHint(err error) (time.Duration, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		if d, ok := parseSeconds(apiErr.Response.Header.Get("retry-after")); ok {
			return d, true
		}
	}
	if m := retryHintPattern.FindStringSubmatch(err.Error()); m != nil {
		return parseSeconds(m[1])
	}
	return 0, false
}

func parseSeconds(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	if secs > DefaultMaxDelay.Seconds() {
		return DefaultMaxDelay, true
	}
	return time.Duration(secs * float64(time.Second)).Round(time.Millisecond), true
}

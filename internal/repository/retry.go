package repository

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cigen/internal/logging"
)

// RetryConfig configures retry behavior for GitHub API calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the initial backoff duration.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff caps both exponential and rate limit backoff.
	// Default: 30 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration for GitHub API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()

	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// retrier runs GitHub API calls with exponential backoff.
type retrier struct {
	config RetryConfig
	logger *logging.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func newRetrier(config RetryConfig, logger *logging.Logger) *retrier {
	config.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}
	return &retrier{config: config, logger: logger, sleep: sleepContext, now: time.Now}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do calls op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent.
func (r *retrier) do(ctx context.Context, op string, call func() (*github.Response, error)) (*github.Response, error) {
	var lastErr error
	var lastResp *github.Response
	backoff := r.config.InitialBackoff
	start := r.now()

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		resp, err := call()
		if err == nil {
			if attempt > 0 {
				r.logger.Info(ctx, "github operation recovered after retries",
					zap.String("operation", op),
					zap.Int("attempts", attempt),
					zap.Duration("total_time", r.now().Sub(start)),
				)
			}
			return resp, nil
		}

		lastErr = err
		lastResp = resp

		if !isRetryableError(err, resp) {
			r.logger.Debug(ctx, "github error is not retryable",
				zap.String("operation", op),
				zap.Error(err),
				zap.Int("status_code", statusCode(resp)),
			)
			return resp, err
		}

		if attempt == r.config.MaxRetries {
			break
		}

		wait := backoff
		if isRateLimitError(resp) {
			wait = rateLimitBackoff(resp, r.now(), r.config.MaxBackoff)
			r.logger.Info(ctx, "github rate limit hit, backing off",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
			)
		} else {
			r.logger.Info(ctx, "retrying github operation after transient error",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", r.config.MaxRetries+1),
				zap.Error(err),
				zap.Int("status_code", statusCode(resp)),
				zap.Duration("backoff", wait),
			)
		}

		if err := r.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%s canceled: %w", op, err)
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}

	r.logger.Warn(ctx, "github operation failed after all retries",
		zap.String("operation", op),
		zap.Int("total_attempts", r.config.MaxRetries+1),
		zap.Duration("total_time", r.now().Sub(start)),
		zap.Error(lastErr),
		zap.Int("status_code", statusCode(lastResp)),
	)

	return lastResp, fmt.Errorf("%s failed after %d retries: %w", op, r.config.MaxRetries, lastErr)
}

// isRetryableError reports whether a GitHub API error is worth retrying.
// Errors without a response (network, timeouts) are retried.
func isRetryableError(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if resp == nil || resp.Response == nil {
		return true
	}

	switch code := resp.Response.StatusCode; code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		// Secondary rate limits come back as 403 with rate headers.
		return resp.Rate.Limit > 0
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity:
		return false
	default:
		return code >= 500 && code < 600
	}
}

func isRateLimitError(resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	switch resp.Response.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Rate.Limit > 0
	}
	return false
}

// rateLimitBackoff waits until the rate limit resets, plus one second,
// capped at maxBackoff.
func rateLimitBackoff(resp *github.Response, now time.Time, maxBackoff time.Duration) time.Duration {
	if resp == nil || (resp.Rate.Limit == 0 && resp.Rate.Remaining == 0) {
		return min(time.Minute, maxBackoff)
	}

	backoff := resp.Rate.Reset.Time.Sub(now) + time.Second
	if backoff < time.Second {
		backoff = time.Second
	}
	return min(backoff, maxBackoff)
}

func statusCode(resp *github.Response) int {
	if resp != nil && resp.Response != nil {
		return resp.Response.StatusCode
	}
	return 0
}

package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	aiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smecache_ai_retries_total",
		Help: "Total number of model call retry attempts by error class",
	}, []string{"error_class"})

	aiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smecache_ai_retry_exhausted_total",
		Help: "Total number of model calls that exhausted their retries by error class",
	}, []string{"error_class"})
)

// RetryConfig controls how failed model calls are retried.
type RetryConfig struct {
	MaxAttempts       int           // including the first call
	InitialBackoff    time.Duration // wait before the second attempt
	MaxBackoff        time.Duration // cap on the un-jittered wait; 0 = uncapped
	BackoffMultiplier float64       // growth per attempt
}

// DefaultRetryConfig allows three attempts waiting about 1s then 2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// backoff returns the un-jittered wait after the given failed attempt
// (1-based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= c.BackoffMultiplier
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	return time.Duration(d)
}

// jitter spreads d uniformly over [0.8d, 1.2d).
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff calls fn until it succeeds, returns an error class that
// is not retried, or runs out of attempts. Waits honour ctx.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	var class ErrorClass

	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info().Str("error_class", string(class)).Int("attempt", attempt).Msg("Model call succeeded after retry")
			}
			return nil
		}

		class = classOf(lastErr)
		if !shouldRetry(class) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		aiRetriesTotal.WithLabelValues(string(class)).Inc()
		wait := jitter(config.backoff(attempt))
		logger.Warn().
			Err(lastErr).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying model call")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	aiRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(class)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Model call failed, retries exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}

package orchestrator

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxAttempts is the capped retry budget for any external command:
// Schema Store upserts, Storage puts, warehouse DDL/load calls.
const DefaultMaxAttempts = 5

// WithRetry calls fn, retrying with capped exponential backoff
// (2^n seconds plus up to a second of jitter) until it succeeds or
// maxAttempts is exhausted, at which point the last error is returned
// wrapped so the orchestrator can fail the run. maxAttempts <= 0 defaults to
// DefaultMaxAttempts.
func WithRetry(ctx context.Context, logger *zap.Logger, maxAttempts int, op string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			backoff += time.Duration(rand.Intn(1000)) * time.Millisecond
			logger.Warn("retrying after transient error",
				zap.String("op", op), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return &ExhaustedError{Op: op, Attempts: maxAttempts, Err: lastErr}
}

// ExhaustedError is returned once WithRetry has used up every attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return e.Op + ": giving up after " + strconv.Itoa(e.Attempts) + " attempts: " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

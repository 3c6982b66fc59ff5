package embedding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"syscall"
	"time"
)

var retryableStatus = map[int]bool{
	408: true,
	409: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsRetryable classifies transient provider failures: rate limiting,
// timeouts, dropped connections and a fixed set of status codes.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatus[statusErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Retrier runs an operation with bounded exponential backoff and jitter.
type Retrier struct {
	Provider   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Sleep and Jitter are replaceable in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

// NewRetrier returns a Retrier with the default sleep and jitter sources.
func NewRetrier(provider string, maxRetries int, base, max time.Duration) *Retrier {
	return &Retrier{
		Provider:   provider,
		MaxRetries: maxRetries,
		BaseDelay:  base,
		MaxDelay:   max,
	}
}

// Delay computes min(base*2^(attempt-1), max) plus up to 20% jitter.
func (r *Retrier) Delay(attempt int) time.Duration {
	capped := float64(r.BaseDelay) * math.Pow(2, float64(attempt-1))
	if r.MaxDelay > 0 && capped > float64(r.MaxDelay) {
		capped = float64(r.MaxDelay)
	}
	d := time.Duration(capped)
	return d + r.jitter(time.Duration(0.2*capped))
}

// Do attempts op up to MaxRetries times in total. Non-retryable errors
// stop immediately; all failures come back as *ProviderError.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := r.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDimensionMismatch) {
			return err
		}
		if !IsRetryable(err) {
			return &ProviderError{Provider: r.Provider, Attempts: attempt, Err: err}
		}
		if attempt == attempts {
			break
		}

		delay := r.Delay(attempt)
		slog.WarnContext(ctx, "embedding request failed, retrying",
			"provider", r.Provider, "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return &ProviderError{Provider: r.Provider, Attempts: attempt, Err: sleepErr}
		}
	}
	return &ProviderError{Provider: r.Provider, Attempts: attempts, Err: err}
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Retrier) jitter(max time.Duration) time.Duration {
	if r.Jitter != nil {
		return r.Jitter(max)
	}
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max) + 1))
}

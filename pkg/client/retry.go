package client

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Retrier repeats an operation with jittered exponential backoff.
type Retrier struct {
	initial    time.Duration
	max        time.Duration
	maxRetries int
	sleep      func(context.Context, time.Duration) error
}

func NewRetrier(initialMs, maxMs, maxRetries int) *Retrier {
	if initialMs <= 0 {
		initialMs = 500
	}
	if maxMs < initialMs {
		maxMs = initialMs
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrier{
		initial:    time.Duration(initialMs) * time.Millisecond,
		max:        time.Duration(maxMs) * time.Millisecond,
		maxRetries: maxRetries,
		sleep:      sleepContext,
	}
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// retry budget is spent. The last error is returned.
func (r *Retrier) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= r.maxRetries || !retryable(err) {
			return err
		}
		delay := backoffWithJitter(r.initial, r.max, attempt)
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("sleep", delay).Msg("retrying license request")
		if serr := r.sleep(ctx, delay); serr != nil {
			return err
		}
	}
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

func backoffWithJitter(initial, max time.Duration, attempt int) time.Duration {
	b := float64(initial) * math.Pow(2, float64(attempt))
	if b > float64(max) {
		b = float64(max)
	}
	j := b / 2
	return time.Duration(j + rand.Float64()*j)
}

// IsRetryable accepts transport failures and 429/5xx answers. Lifecycle
// rejections such as HWID_MISMATCH are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRetryableStatus is IsRetryable without transport failures, for requests
// that must not be repeated when the first attempt may have been applied.
func IsRetryableStatus(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && IsRetryable(apiErr)
}

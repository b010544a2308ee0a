// Package upstream wraps calls to external collaborators with a timeout
// and a typed failure, so each call site states its own fallback.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Mofasaz/aegisai-web/internal/metrics"
)

// ErrUnavailable marks a collaborator that failed or timed out.
var ErrUnavailable = errors.New("upstream unavailable")

// Service names used in errors and metrics.
const (
	Search    = "search"
	Generator = "generator"
	Judge     = "judge"
	Peek      = "restricted_peek"
	Telemetry = "telemetry"
)

// Error is the failure of one upstream call.
type Error struct {
	Service string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

// Unwrap exposes both ErrUnavailable and the underlying cause.
func (e *Error) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Call runs fn with a deadline of timeout (none when timeout <= 0).
// Any error, including the deadline, comes back as *Error. fn runs on its
// own goroutine, so the caller is released at the deadline even when fn
// ignores ctx; a late result is discarded.
func Call[T any](ctx context.Context, service string, timeout time.Duration, fn func(context.Context) (T, error)) (T, *Error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	var (
		v   T
		err error
	)
	select {
	case r := <-done:
		v, err = r.v, r.err
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	metrics.UpstreamLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamFailures.WithLabelValues(service).Inc()
		var zero T
		return zero, &Error{Service: service, Err: err}
	}
	return v, nil
}

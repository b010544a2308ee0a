package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped client.
type Limited struct {
	next    Client
	limiter *rate.Limiter
}

// NewLimited allows perSecond calls with the given burst (minimum 1).
func NewLimited(next Client, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Complete waits for a token, then delegates. A cancelled wait returns the context error.
func (l *Limited) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Complete(ctx, messages)
}

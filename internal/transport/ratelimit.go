package transport

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/sharpsend/sendqueue/internal/model"
)

// RateLimitedAdapter wraps an Adapter with a token bucket so dispatch cannot
// outrun the provider's own rate limits. Waiting respects the caller's context
// deadline.
type RateLimitedAdapter struct {
	inner   Adapter
	limiter *rate.Limiter
}

func NewRateLimitedAdapter(inner Adapter, perSecond float64, burst int) *RateLimitedAdapter {
	return &RateLimitedAdapter{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (a *RateLimitedAdapter) Send(ctx context.Context, entry *model.QueueEntry) (Result, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}
	return a.inner.Send(ctx, entry)
}

func (a *RateLimitedAdapter) SendBatch(ctx context.Context, entries []*model.QueueEntry) ([]Result, error) {
	if err := a.limiter.WaitN(ctx, len(entries)); err != nil {
		return nil, err
	}
	return a.inner.SendBatch(ctx, entries)
}

var _ Adapter = (*RateLimitedAdapter)(nil)

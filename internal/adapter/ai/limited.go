package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
	"github.com/fairyhunter13/pitch-evaluator/internal/service/ratelimiter"
)

// LimitedClient draws one token from a shared bucket before each call.
type LimitedClient struct {
	inner   domain.ModelClient
	limiter ratelimiter.Limiter
	bucket  string
}

var _ domain.ModelClient = (*LimitedClient)(nil)

// NewLimitedClient wraps inner with limiter. A nil limiter disables limiting.
func NewLimitedClient(inner domain.ModelClient, limiter ratelimiter.Limiter, bucket string) domain.ModelClient {
	if limiter == nil {
		return inner
	}
	return &LimitedClient{inner: inner, limiter: limiter, bucket: bucket}
}

// Generate returns domain.ErrUpstreamRateLimit without calling the model when
// the bucket is empty. Limiter failures let the call through.
func (c *LimitedClient) Generate(ctx context.Context, req domain.ModelRequest) (domain.ModelResponse, error) {
	allowed, retryAfter, err := c.limiter.Allow(ctx, c.bucket, 1)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("model rate limiter unavailable, allowing call",
			slog.String("bucket", c.bucket), slog.Any("error", err))
	}
	if !allowed {
		observability.ObserveModelCall("limiter", domain.ErrorCode(domain.ErrUpstreamRateLimit), 0)
		return domain.ModelResponse{}, fmt.Errorf("op=model.generate: %w: local budget exhausted, retry after %s",
			domain.ErrUpstreamRateLimit, retryAfter.Round(time.Millisecond))
	}
	return c.inner.Generate(ctx, req)
}

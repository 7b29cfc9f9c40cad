package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/pitch-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/pitch-evaluator/internal/domain"
)

// Provider performs one HTTP round trip against a model API. Implementations
// return classified errors (see ClassifyTransport and domain.UpstreamError)
// and never retry on their own.
type Provider interface {
	Name() string
	Call(ctx context.Context, req domain.ModelRequest) (domain.ModelResponse, error)
}

// Options configures Client.
type Options struct {
	DefaultModel string
	// Timeout bounds the whole logical call including retries.
	Timeout time.Duration
	// NewBackOff builds the retry schedule for transient failures. Nil disables retries.
	NewBackOff func() backoff.BackOff
}

// Client adds deadline, bounded retry, metrics and tracing on top of a Provider.
type Client struct {
	p    Provider
	opts Options
}

var _ domain.ModelClient = (*Client)(nil)

// New wraps p.
func New(p Provider, opts Options) *Client {
	return &Client{p: p, opts: opts}
}

// ExponentialBackOff returns a NewBackOff func with the given settings.
func ExponentialBackOff(maxElapsed, initial, maxInterval time.Duration, multiplier float64) func() backoff.BackOff {
	return func() backoff.BackOff {
		expo := backoff.NewExponentialBackOff()
		expo.MaxElapsedTime = maxElapsed
		expo.InitialInterval = initial
		expo.MaxInterval = maxInterval
		expo.Multiplier = multiplier
		return expo
	}
}

// Generate implements domain.ModelClient. Only transport failures and 5xx
// replies are retried; rate limits, payment errors, other 4xx and timeouts
// surface immediately.
func (c *Client) Generate(ctx context.Context, req domain.ModelRequest) (domain.ModelResponse, error) {
	if req.Model == "" {
		req.Model = c.opts.DefaultModel
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	tracer := otel.Tracer("ai.client")
	ctx, span := tracer.Start(ctx, "model.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("gen_ai.system", c.p.Name()),
		attribute.String("gen_ai.request.model", req.Model),
		attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
	)

	lg := observability.LoggerFromContext(ctx)
	start := time.Now()
	attempts := 0
	var resp domain.ModelResponse
	op := func() error {
		attempts++
		r, err := c.p.Call(ctx, req)
		if err == nil {
			resp = r
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if retryable(err) {
			lg.Warn("model call failed, retrying",
				slog.String("provider", c.p.Name()),
				slog.Int("attempt", attempts),
				slog.Any("error", err))
			return err
		}
		return backoff.Permanent(err)
	}

	var err error
	if c.opts.NewBackOff == nil {
		err = op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	} else {
		err = backoff.Retry(op, backoff.WithContext(c.opts.NewBackOff(), ctx))
	}
	if err != nil && isDeadline(ctx, err) {
		err = fmt.Errorf("%w: %s call exceeded %s: %v", domain.ErrUpstreamTimeout, c.p.Name(), c.opts.Timeout, err)
	}

	observability.ObserveModelCall(c.p.Name(), domain.ErrorCode(err), time.Since(start))
	span.SetAttributes(attribute.Int("gen_ai.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrorCode(err))
		lg.Error("model call failed",
			slog.String("provider", c.p.Name()),
			slog.String("model", req.Model),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return domain.ModelResponse{}, fmt.Errorf("op=model.generate: %w", err)
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	span.SetAttributes(attribute.String("gen_ai.response.model", resp.Model))
	return resp, nil
}

func retryable(err error) bool {
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		return false
	}
	if errors.Is(err, domain.ErrTransport) {
		return true
	}
	var ue *domain.UpstreamError
	return errors.As(err, &ue) && ue.Retryable()
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// ClassifyTransport maps an error from the HTTP layer onto the domain taxonomy.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, provider, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrTransport, provider, err)
}

// Snippet truncates a provider body for error messages and logs.
func Snippet(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}

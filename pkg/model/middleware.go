package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("prowrite.model")

type timeoutAdapter struct {
	next    Adapter
	timeout time.Duration
}

// WithTimeout bounds every Generate call. The call returns as soon as the
// deadline passes, even when the wrapped provider ignores its context.
// A timeout of zero or less returns next unchanged.
func WithTimeout(next Adapter, timeout time.Duration) Adapter {
	if timeout <= 0 {
		return next
	}
	return &timeoutAdapter{next: next, timeout: timeout}
}

func (a *timeoutAdapter) Name() string { return a.next.Name() }

func (a *timeoutAdapter) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := a.next.Generate(ctx, prompt, c)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, wrapError(a.next.Name(), "generate", r.err)
	case <-ctx.Done():
		return "", &ProviderError{
			Provider: a.next.Name(),
			Op:       "generate",
			Timeout:  ctx.Err() == context.DeadlineExceeded,
			Err:      fmt.Errorf("after %s: %w", a.timeout, ctx.Err()),
		}
	}
}

type rateLimitedAdapter struct {
	next    Adapter
	limiter *rate.Limiter
}

// RateLimited makes every Generate call wait for a token from limiter. The
// limiter may be shared between adapters of the same provider. A nil
// limiter returns next unchanged.
func RateLimited(next Adapter, limiter *rate.Limiter) Adapter {
	if limiter == nil {
		return next
	}
	return &rateLimitedAdapter{next: next, limiter: limiter}
}

// NewLimiter builds a token bucket allowing rps calls per second with the
// given burst. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Limiters hands out one token bucket per provider, created on first use.
// A nil *Limiters, or one built with rps <= 0, never limits.
type Limiters struct {
	rps   float64
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiters creates a limiter set allowing rps calls per second with the
// given burst for each provider.
func NewLimiters(rps float64, burst int) *Limiters {
	return &Limiters{rps: rps, burst: burst, buckets: make(map[string]*rate.Limiter)}
}

// For returns the bucket shared by every adapter of provider.
func (l *Limiters) For(provider string) *rate.Limiter {
	if l == nil || l.rps <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.buckets[provider]
	if !ok {
		lim = NewLimiter(l.rps, l.burst)
		l.buckets[provider] = lim
	}
	return lim
}

func (a *rateLimitedAdapter) Name() string { return a.next.Name() }

func (a *rateLimitedAdapter) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", wrapError(a.next.Name(), "rate limit", err)
	}
	return a.next.Generate(ctx, prompt, c)
}

type tracedAdapter struct {
	next Adapter
}

// Traced records a span for every Generate call.
func Traced(next Adapter) Adapter {
	return &tracedAdapter{next: next}
}

func (a *tracedAdapter) Name() string { return a.next.Name() }

func (a *tracedAdapter) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	ctx, span := tracer.Start(ctx, "model.Generate",
		trace.WithAttributes(
			attribute.String("model.name", a.next.Name()),
			attribute.Int("model.prompt_chars", len(prompt)),
			attribute.Int("model.max_tokens", c.MaxTokens),
		),
	)
	defer span.End()

	text, err := a.next.Generate(ctx, prompt, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("model.output_chars", len(text)))
	return text, nil
}

// Options configures Wrap.
type Options struct {
	Timeout time.Duration
	Limiter *rate.Limiter
}

// Wrap applies tracing, rate limiting and the per-call timeout, in that
// order from the outside in. The rate-limit wait does not count against the
// call timeout.
func Wrap(a Adapter, opts Options) Adapter {
	return Traced(RateLimited(WithTimeout(a, opts.Timeout), opts.Limiter))
}

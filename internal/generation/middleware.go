// Package generation layers cross-cutting concerns over genclient.Client:
// rate limiting, retries, timeouts and logging.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"iconstudio/internal/genclient"
)

// Middleware decorates a Client.
type Middleware func(genclient.Client) genclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner genclient.Client, mws ...Middleware) genclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate per modality with a token bucket each.
// Image buckets hold at least two tokens. If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next genclient.Client) genclient.Client {
		return &rateLimited{next: next, rl: newModalityLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next genclient.Client
	rl   *modalityLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }
func (c *rateLimited) Generate(ctx context.Context, req genclient.Request) (*genclient.Response, error) {
	if err := c.rl.Acquire(ctx, req.Modality); err != nil {
		return nil, err
	}
	return c.next.Generate(ctx, req)
}

// -------- Retry with exponential backoff --------

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next genclient.Client) genclient.Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next genclient.Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, req genclient.Request) (*genclient.Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if genclient.IsPermanent(err) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, last
}

// -------- Timeout --------

// ErrTimeout is returned when a request exceeds its WithTimeout budget.
var ErrTimeout = errors.New("generation: request timed out")

// WithTimeout bounds every request. A timeout is reported as ErrTimeout,
// never as an indefinite block.
func WithTimeout(d time.Duration) Middleware {
	return func(next genclient.Client) genclient.Client {
		if d <= 0 {
			return next
		}
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next genclient.Client
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }
func (t *timed) Generate(ctx context.Context, req genclient.Request) (*genclient.Response, error) {
	cctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	resp, err := t.next.Generate(cctx, req)
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, t.d, err)
	}
	return resp, err
}

// -------- Logging --------

// WithLogging logs request size and errors. Provide a custom logger or nil
// to use log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next genclient.Client) genclient.Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next genclient.Client
	log  *log.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Generate(ctx context.Context, req genclient.Request) (*genclient.Response, error) {
	phase := genclient.PhaseFrom(ctx)
	start := time.Now()
	l.log.Printf("generation request (%s, %s): %d bytes", phase, req.Modality, len(req.Prompt))
	resp, err := l.next.Generate(ctx, req)
	if err != nil {
		l.log.Printf("generation error (%s): %v", phase, err)
		return nil, err
	}
	l.log.Printf("generation done (%s): %d bytes in %s", phase, len(resp.Data)+len(resp.Text), time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// Options configures Standard.
type Options struct {
	Attempts  int
	BaseDelay time.Duration
	Timeout   time.Duration
	RPS       float64
	Burst     int
	Logger    *log.Logger
}

// Standard wraps c the way the studio uses it: logging outermost, then
// retries, then the rate limiter, with the timeout applied per attempt.
func Standard(c genclient.Client, o Options) genclient.Client {
	return Wrap(c,
		WithLogging(o.Logger),
		Retry(o.Attempts, o.BaseDelay),
		RateLimit(o.RPS, o.Burst),
		WithTimeout(o.Timeout),
	)
}

package llm

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// RateLimit limits request rate with a token bucket. If rps <= 0 the
// middleware is a pass-through.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.Generate(ctx, req)
}

// RateLimitFromEnv reads RPS/BURST from environment variables with the given
// prefixes in priority order. For example, ("LLM", "GEMINI") checks
// LLM_RPS/LLM_BURST first, then GEMINI_RPS/GEMINI_BURST.
func RateLimitFromEnv(prefixes ...string) Middleware {
	var rps float64
	var burst int
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if rps == 0 {
			if v := os.Getenv(p + "_RPS"); v != "" {
				rps, _ = strconv.ParseFloat(v, 64)
			}
		}
		if burst == 0 {
			if v := os.Getenv(p + "_BURST"); v != "" {
				burst, _ = strconv.Atoi(v)
			}
		}
	}
	return RateLimit(rps, burst)
}

// Logging logs one line per generation with size and latency.
func Logging() Middleware {
	return func(next Client) Client {
		return &logged{next: next}
	}
}

type logged struct {
	next Client
}

func (c *logged) Name() string { return c.next.Name() }
func (c *logged) Close() error { return c.next.Close() }

func (c *logged) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := c.next.Generate(ctx, req)
	if err != nil {
		log.Printf("llm %s: prompt=%dB err=%v (%s)", c.next.Name(), len(req.Prompt), err, time.Since(start).Round(time.Millisecond))
		return nil, err
	}
	log.Printf("llm %s: prompt=%dB completion=%dB tokens=%d (%s)",
		c.next.Name(), len(req.Prompt), len(res.Text), res.Usage.TotalTokens, time.Since(start).Round(time.Millisecond))
	return res, nil
}

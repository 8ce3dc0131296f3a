package llm

import (
	"context"
	"errors"
	"time"
)

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. Permanent errors are not retried, and a canceled context
// stops the loop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, req Request) (*Result, error) {
	var last error
	for i := 0; i < r.max; i++ {
		res, err := r.next.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if i < r.max-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.base * time.Duration(1<<i)):
			}
		}
	}
	return nil, last
}

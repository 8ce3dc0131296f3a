package engine

import (
	"context"
	"errors"
	"fmt"

	"flowchat/internal/llm"
)

// ErrorKind classifies an execution failure for callers and for the log.
type ErrorKind string

const (
	KindProviderUnavailable  ErrorKind = "ProviderUnavailable"
	KindRateLimited          ErrorKind = "RateLimited"
	KindAuthenticationFailed ErrorKind = "AuthenticationFailed"
	KindRetrievalTimeout     ErrorKind = "RetrievalTimeout"
	KindCancelled            ErrorKind = "Cancelled"
)

// ExecutionError is a classified failure at one node. It halts the pipeline;
// the engine returns it together with the partial log.
type ExecutionError struct {
	NodeID string
	Kind   ErrorKind
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SafeSummary is the user-facing description of the failure. It names the
// node and kind but never leaks provider response bodies.
func (e *ExecutionError) SafeSummary() string {
	switch e.Kind {
	case KindRateLimited:
		return "The language model provider is rate limiting requests. Please try again shortly."
	case KindAuthenticationFailed:
		return "A provider credential was rejected. Check the workflow's API key configuration."
	case KindRetrievalTimeout:
		return "Knowledge base search timed out. Please try again."
	case KindCancelled:
		return "The request was cancelled before it completed."
	default:
		return "An external service was unavailable while running the workflow. Please try again."
	}
}

// A dead caller context always classifies as Cancelled, whether it was
// canceled outright or hit its overall deadline. Per-call timeout contexts
// derived inside an executor leave the caller's ctx live, so their
// DeadlineExceeded still falls through to the transient kinds.
func classifyProvider(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if llm.IsAuthFailure(err) {
		return KindAuthenticationFailed
	}
	if llm.IsRateLimited(err) {
		return KindRateLimited
	}
	return KindProviderUnavailable
}

func classifyRetrieval(ctx context.Context, err error) ErrorKind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindRetrievalTimeout
	}
	return KindProviderUnavailable
}

package generator

import (
	"context"
	"log"
)

// WithRetry wraps a Generator so that a failed call is retried exactly
// once. If the retry also fails, the error is returned and the caller
// surfaces a fallback response instead of failing the session.
type WithRetry struct {
	inner Generator
}

// NewWithRetry wraps inner with single-retry behavior.
func NewWithRetry(inner Generator) *WithRetry {
	return &WithRetry{inner: inner}
}

func (r *WithRetry) Name() string {
	return r.inner.Name()
}

func (r *WithRetry) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := r.inner.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	log.Printf("generator: %s failed, retrying once: %v", r.inner.Name(), err)
	return r.inner.Generate(ctx, req)
}

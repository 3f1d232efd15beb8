package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/convoguard/convoguard/internal/fault"
)

// Bounded wraps an Evaluator with a hard timeout. Evaluator calls are
// the only operations in the engine expected to block on external
// latency; on timeout the caller must treat the result as unknown risk
// and never auto-approve.
type Bounded struct {
	inner   Evaluator
	timeout time.Duration
}

// NewBounded wraps inner with the given timeout.
func NewBounded(inner Evaluator, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bounded{inner: inner, timeout: timeout}
}

func (b *Bounded) Name() string {
	return b.inner.Name()
}

func (b *Bounded) Evaluate(ctx context.Context, req Request) (*Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	assessment, err := b.inner.Evaluate(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("evaluator %s exceeded %s: %w", b.inner.Name(), b.timeout, fault.ErrUpstreamTimeout)
		}
		return nil, err
	}
	return assessment, nil
}

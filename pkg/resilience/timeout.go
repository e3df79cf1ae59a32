package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// WithTimeout runs fn under a deadline and returns when the deadline passes
// even if fn is still running. An expired deadline yields an error matching
// ErrTimeout and context.DeadlineExceeded; a cancelled parent yields the
// parent's cause. A non-positive timeout runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	expired := fmt.Errorf("%s: %w: %w after %v", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, expired)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(ctx) }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != expired {
			return fmt.Errorf("%s: %w", name, cause)
		}
		return expired
	}
}

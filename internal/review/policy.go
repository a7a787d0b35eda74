package review

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy is the single retry/timeout discipline shared by every reviewer.
type Policy struct {
	MaxAttempts int
	Timeout     time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy mirrors the production settings: two attempts, 30s per call.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Timeout:     30 * time.Second,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = def.BaseBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Do runs call with a fresh per-attempt timeout, retrying transient failures
// with capped exponential backoff. It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, call func(ctx context.Context) error) (int, error) {
	p = p.normalized()

	backoff := retry.NewExponential(p.BaseBackoff)
	backoff = retry.WithCappedDuration(p.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return attempts, err
}

package notify

import (
	"context"
	"fmt"
	"time"
)

// Retry wraps a notifier with bounded attempts and exponential backoff.
// Transient transport failures must not be conflated with "no alert
// needed", so the last error is wrapped in ErrDelivery for the caller to
// log and move on.
type Retry struct {
	Inner    Notifier
	Attempts int
	Backoff  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetry(inner Notifier, attempts int, backoff time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{
		Inner:    inner,
		Attempts: attempts,
		Backoff:  backoff,
		sleep:    sleepCtx,
	}
}

func (r *Retry) Send(ctx context.Context, text string) error {
	var last error
	delay := r.Backoff
	for i := 0; i < r.Attempts; i++ {
		last = r.Inner.Send(ctx, text)
		if last == nil {
			return nil
		}
		if i < r.Attempts-1 {
			if err := r.sleep(ctx, delay); err != nil {
				break
			}
			delay *= 2
		}
	}
	return fmt.Errorf("after %d attempts: %v: %w", r.Attempts, last, ErrDelivery)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

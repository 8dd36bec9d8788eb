package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTick is the re-evaluation period of a round view.
const DefaultTick = time.Second

// Loop calls fn with the current time immediately and then once per period
// until fn returns false or ctx is cancelled. The ticker is released before
// Loop returns. The returned error is ctx.Err() on cancellation, nil otherwise.
func Loop(ctx context.Context, clock clockwork.Clock, period time.Duration, fn func(now time.Time) bool) error {
	if period <= 0 {
		period = DefaultTick
	}
	if !fn(clock.Now()) {
		return nil
	}
	ticker := clock.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if !fn(clock.Now()) {
				return nil
			}
		}
	}
}

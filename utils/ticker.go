package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// RunEvery calls fn once per interval on the given clock until ctx is done. A call that overruns
// the interval delays the next one rather than queueing extra calls, so a slow fn never causes
// a burst of back-to-back calls.
func RunEvery(ctx context.Context, clk clock.Clock, interval time.Duration, fn func(context.Context)) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

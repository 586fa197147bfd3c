package store

import (
	"context"
	"time"
)

// deadline returns a channel that is closed once wait has elapsed or ctx is
// done. stop releases the timer early.
func deadline(ctx context.Context, wait time.Duration) (expired <-chan struct{}, stop func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	timed, cancel := context.WithTimeout(ctx, wait)
	return timed.Done(), cancel
}

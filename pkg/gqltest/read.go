package gqltest

import (
	"context"
	"time"

	"github.com/drallgood/gqlstore/pkg/store"
)

const (
	// DefaultTake is how many values Read collects unless Take is given
	DefaultTake = 1
	// DefaultWait is how long Read waits unless Wait is given
	DefaultWait = 10 * time.Millisecond
)

type readOptions struct {
	take int
	wait time.Duration
}

// ReadOption configures Read
type ReadOption func(*readOptions)

// Take sets how many values to collect. Values below one mean DefaultTake.
func Take(n int) ReadOption {
	return func(o *readOptions) {
		o.take = n
	}
}

// Wait sets the wait budget. Negative values mean DefaultWait.
func Wait(d time.Duration) ReadOption {
	return func(o *readOptions) {
		o.wait = d
	}
}

// Read subscribes to src and returns the first values it emits, stopping
// after the requested count or once the wait budget is spent. The
// subscription is released before Read returns.
func Read[T any](src store.Subscribable[T], opts ...ReadOption) []T {
	return ReadContext(context.Background(), src, opts...)
}

// ReadContext is Read that also stops when ctx is done
func ReadContext[T any](ctx context.Context, src store.Subscribable[T], opts ...ReadOption) []T {
	o := readOptions{take: DefaultTake, wait: DefaultWait}
	for _, opt := range opts {
		opt(&o)
	}
	if o.take < 1 {
		o.take = DefaultTake
	}
	if o.wait < 0 {
		o.wait = DefaultWait
	}

	return store.Take(ctx, src, o.take, o.wait)
}

package store

import (
	"context"
	"sync"
	"time"
)

// CollectUntil subscribes to src and gathers emitted values until done
// reports true for the values seen so far, wait elapses, or ctx is done,
// whichever comes first. The subscription is released exactly once before
// returning. Values emitted after done fired are ignored.
//
// Running out of time is not an error: the caller gets whatever arrived.
func CollectUntil[T any](ctx context.Context, src Subscribable[T], done func([]T) bool, wait time.Duration) []T {
	var (
		mu       sync.Mutex
		values   []T
		finished bool
	)
	complete := make(chan struct{})

	unsubscribe := src.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		values = append(values, v)
		if done(values) {
			finished = true
			close(complete)
		}
	})
	defer unsubscribe()

	expired, stop := deadline(ctx, wait)
	defer stop()

	select {
	case <-complete:
	case <-expired:
	}

	mu.Lock()
	defer mu.Unlock()
	finished = true
	out := make([]T, len(values))
	copy(out, values)
	return out
}

// Take collects the first n values src emits within wait. n below one
// counts as one and the result never holds more than n values.
func Take[T any](ctx context.Context, src Subscribable[T], n int, wait time.Duration) []T {
	if ctx == nil {
		ctx = context.Background()
	}
	if n < 1 {
		n = 1
	}
	values := CollectUntil(ctx, src, AtLeast[T](n), wait)
	if len(values) > n {
		values = values[:n]
	}
	return values
}

// AtLeast returns a predicate that is satisfied once n values were collected
func AtLeast[T any](n int) func([]T) bool {
	return func(values []T) bool {
		return len(values) >= n
	}
}

// Current returns the value a store delivers synchronously on subscribe.
// ok is false for sources that do not replay a value, such as a Feed.
func Current[T any](src Subscribable[T]) (value T, ok bool) {
	var mu sync.Mutex
	unsubscribe := src.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if !ok {
			value, ok = v, true
		}
	})
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	return value, ok
}

package store

import "sync"

// Feed broadcasts values to the handlers subscribed at the time of Send.
// Unlike Writable it has no current value.
type Feed[T any] struct {
	hub[T]
	onClose []func()
}

// NewFeed creates an empty feed
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{}
}

// Subscribe registers handler for future values. Subscribing to a closed
// feed is allowed and never delivers anything.
func (f *Feed[T]) Subscribe(handler func(T)) func() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	id, _ := f.addLocked(handler)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.removeLocked(id)
			f.mu.Unlock()
		})
	}
}

// Send delivers v to every current subscriber. Sends after Close are dropped.
func (f *Feed[T]) Send(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.broadcastLocked(v)
	f.mu.Unlock()
	f.drain()
}

// OnClose registers fn to run once when the feed is closed
func (f *Feed[T]) OnClose(fn func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		fn()
		return
	}
	f.onClose = append(f.onClose, fn)
	f.mu.Unlock()
}

// Close drops all subscribers and runs the OnClose callbacks. It is idempotent.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.handlers = nil
	callbacks := f.onClose
	f.onClose = nil
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Closed reports whether Close has been called
func (f *Feed[T]) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Subscribers returns the number of active subscribers
func (f *Feed[T]) Subscribers() int {
	return f.count()
}

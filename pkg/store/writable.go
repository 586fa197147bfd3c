package store

import "sync"

// StartFunc runs when a store gains its first subscriber. set pushes new
// values into the store. The returned stop function, if any, runs when the
// last subscriber leaves.
type StartFunc[T any] func(set func(T)) (stop func())

// Writable holds a current value and replays it to each new subscriber
type Writable[T any] struct {
	hub[T]
	value T
	start StartFunc[T]
	stop  func()
}

// NewWritable creates a store holding initial
func NewWritable[T any](initial T) *Writable[T] {
	return &Writable[T]{value: initial}
}

// NewReadable creates a store whose values come from start. The store is
// still writable from Go; the name mirrors intent, not enforcement.
func NewReadable[T any](initial T, start StartFunc[T]) *Writable[T] {
	return &Writable[T]{value: initial, start: start}
}

// Subscribe registers handler and immediately delivers the current value to it
func (w *Writable[T]) Subscribe(handler func(T)) func() {
	w.mu.Lock()
	id, first := w.addLocked(handler)
	w.enqueueLocked(id, w.value)
	start := w.start
	w.mu.Unlock()

	if first && start != nil {
		stop := start(w.Set)
		w.mu.Lock()
		if len(w.handlers) > 0 {
			w.stop, stop = stop, nil
		}
		w.mu.Unlock()
		// everyone left while start was running
		if stop != nil {
			stop()
		}
	}
	w.drain()

	var once sync.Once
	return func() {
		once.Do(func() { w.unsubscribe(id) })
	}
}

func (w *Writable[T]) unsubscribe(id uint64) {
	w.mu.Lock()
	removed, last := w.removeLocked(id)
	var stop func()
	if removed && last {
		stop, w.stop = w.stop, nil
	}
	w.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Set replaces the current value and notifies every subscriber
func (w *Writable[T]) Set(v T) {
	w.mu.Lock()
	w.value = v
	w.broadcastLocked(v)
	w.mu.Unlock()
	w.drain()
}

// Update replaces the current value with fn(current)
func (w *Writable[T]) Update(fn func(T) T) {
	w.mu.Lock()
	w.value = fn(w.value)
	w.broadcastLocked(w.value)
	w.mu.Unlock()
	w.drain()
}

// Get returns the current value without subscribing
func (w *Writable[T]) Get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// Subscribers returns the number of active subscribers
func (w *Writable[T]) Subscribers() int {
	return w.count()
}

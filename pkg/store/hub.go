package store

import "sync"

// Subscribable is the capability shared by every store in this package.
// The returned function removes the handler and is safe to call more than once.
type Subscribable[T any] interface {
	Subscribe(handler func(T)) (unsubscribe func())
}

type delivery[T any] struct {
	id    uint64
	value T
}

// hub fans values out to handlers through a queue so that a value is never
// delivered while mu is held and per-handler ordering is preserved.
type hub[T any] struct {
	mu       sync.Mutex
	handlers map[uint64]func(T)
	nextID   uint64
	queue    []delivery[T]
	draining bool
	closed   bool
}

// addLocked registers fn and reports whether it is the only handler
func (h *hub[T]) addLocked(fn func(T)) (uint64, bool) {
	if h.handlers == nil {
		h.handlers = make(map[uint64]func(T))
	}
	id := h.nextID
	h.nextID++
	h.handlers[id] = fn
	return id, len(h.handlers) == 1
}

// removeLocked drops the handler and reports whether none are left
func (h *hub[T]) removeLocked(id uint64) (removed, last bool) {
	if _, ok := h.handlers[id]; !ok {
		return false, false
	}
	delete(h.handlers, id)
	return true, len(h.handlers) == 0
}

func (h *hub[T]) enqueueLocked(id uint64, v T) {
	h.queue = append(h.queue, delivery[T]{id: id, value: v})
}

func (h *hub[T]) broadcastLocked(v T) {
	for id := range h.handlers {
		h.enqueueLocked(id, v)
	}
}

// drain delivers queued values. If another goroutine is already draining,
// it will pick up whatever was queued here.
func (h *hub[T]) drain() {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		return
	}
	h.draining = true
	defer func() {
		h.draining = false
		h.mu.Unlock()
	}()

	for len(h.queue) > 0 {
		d := h.queue[0]
		h.queue[0] = delivery[T]{}
		h.queue = h.queue[1:]
		if fn := h.handlers[d.id]; fn != nil {
			h.deliver(fn, d.value)
		}
	}
	h.queue = nil
}

// deliver runs fn without holding mu; the lock is re-taken even if fn panics
func (h *hub[T]) deliver(fn func(T), v T) {
	h.mu.Unlock()
	defer h.mu.Lock()
	fn(v)
}

func (h *hub[T]) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}

// Package recorder wraps functions so tests can see how they were called.
package recorder

import (
	"fmt"
	"sync"

	"github.com/stretchr/testify/assert"
)

// Func forwards calls to an optional function and records the argument of
// every call. A Func without a function returns the zero value of R.
// It is safe for concurrent use.
type Func[A, R any] struct {
	mu    sync.Mutex
	fn    func(A) R
	calls []A
}

// Wrap returns a recording wrapper around fn. fn may be nil.
func Wrap[A, R any](fn func(A) R) *Func[A, R] {
	return &Func[A, R]{fn: fn}
}

// Call records a and forwards it to the wrapped function
func (f *Func[A, R]) Call(a A) R {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		var zero R
		return zero
	}
	return fn(a)
}

// Calls returns the recorded arguments in call order
func (f *Func[A, R]) Calls() []A {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]A, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how often the function was called
func (f *Func[A, R]) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Called reports whether the function was called at least once
func (f *Func[A, R]) Called() bool {
	return f.CallCount() > 0
}

// LastCall returns the argument of the most recent call
func (f *Func[A, R]) LastCall() (A, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		var zero A
		return zero, false
	}
	return f.calls[len(f.calls)-1], true
}

// Reset forgets all recorded calls. The wrapped function stays in place.
func (f *Func[A, R]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// AssertCalledTimes asserts that the function was called exactly n times
func (f *Func[A, R]) AssertCalledTimes(t assert.TestingT, n int, msgAndArgs ...interface{}) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	count := f.CallCount()
	if count == n {
		return true
	}
	return assert.Fail(t, fmt.Sprintf("Expected %d call(s), got %d", n, count), msgAndArgs...)
}

// AssertCalledWith asserts that at least one call received a
func (f *Func[A, R]) AssertCalledWith(t assert.TestingT, a A, msgAndArgs ...interface{}) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	calls := f.Calls()
	for _, c := range calls {
		if assert.ObjectsAreEqual(a, c) {
			return true
		}
	}
	return assert.Fail(t, fmt.Sprintf("No call with argument %#v among %d call(s)", a, len(calls)), msgAndArgs...)
}

// AssertNotCalled asserts that the function was never called
func (f *Func[A, R]) AssertNotCalled(t assert.TestingT, msgAndArgs ...interface{}) bool {
	return f.AssertCalledTimes(t, 0, msgAndArgs...)
}

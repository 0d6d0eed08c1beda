// Package debounce delays propagation of rapidly changing values and callbacks.
package debounce

import (
	"sync"
	"time"
)

// Func debounces calls to a callback. Each Call cancels the previously
// scheduled, not-yet-executed invocation and schedules a new one with the
// latest argument.
type Func[A any] struct {
	mu      sync.Mutex
	fn      func(A)
	delay   time.Duration
	timer   *time.Timer
	gen     uint64
	arg     A
	pending bool
	stopped bool
}

// NewFunc wraps fn so that it runs only after delay has elapsed without a new call.
func NewFunc[A any](delay time.Duration, fn func(A)) *Func[A] {
	if delay < 0 {
		delay = 0
	}
	return &Func[A]{fn: fn, delay: delay}
}

// Call schedules fn(a), replacing any pending invocation.
// Calls after Stop are ignored.
func (d *Func[A]) Call(a A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.arg = a
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs the callback if gen is still the latest schedule. A timer that
// already fired while Cancel or Stop held the lock sees a stale gen and exits.
func (d *Func[A]) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	a := d.take()
	d.mu.Unlock()

	d.fn(a)
}

// take clears the pending slot. Caller holds mu.
func (d *Func[A]) take() A {
	a := d.arg
	var zero A
	d.arg = zero
	d.pending = false
	d.timer = nil
	return a
}

// Cancel drops the pending invocation, if any.
func (d *Func[A]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Func[A]) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	var zero A
	d.arg = zero
	d.pending = false
	d.timer = nil
}

// Pending reports whether an invocation is scheduled.
func (d *Func[A]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Flush runs the pending invocation now, on the caller's goroutine.
// Returns false if nothing was pending.
func (d *Func[A]) Flush() bool {
	d.mu.Lock()
	if d.stopped || !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	a := d.take()
	d.mu.Unlock()

	d.fn(a)
	return true
}

// Stop disposes the debouncer. The pending invocation is dropped and no
// further invocation is ever delivered.
func (d *Func[A]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelLocked()
}

// Value is a lazily updated mirror: Get reflects the last Set only after
// delay has elapsed with no newer Set.
type Value[T any] struct {
	mu       sync.RWMutex
	current  T
	onChange func(T)
	fn       *Func[T]
}

// NewValue returns a mirror starting at initial. onChange may be nil.
func NewValue[T any](initial T, delay time.Duration, onChange func(T)) *Value[T] {
	v := &Value[T]{current: initial, onChange: onChange}
	v.fn = NewFunc(delay, v.apply)
	return v
}

func (v *Value[T]) apply(next T) {
	v.mu.Lock()
	v.current = next
	cb := v.onChange
	v.mu.Unlock()

	if cb != nil {
		cb(next)
	}
}

// Set schedules the mirror to become next.
func (v *Value[T]) Set(next T) {
	v.fn.Call(next)
}

// Get returns the current mirrored value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Pending reports whether an update is scheduled.
func (v *Value[T]) Pending() bool {
	return v.fn.Pending()
}

// Stop drops any scheduled update; the mirror is frozen afterwards.
func (v *Value[T]) Stop() {
	v.fn.Stop()
}

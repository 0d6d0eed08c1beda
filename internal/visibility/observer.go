// Package visibility reports whether a target region intersects a root
// viewport, the way lazy loading and infinite-scroll sentinels need it.
//
// The host owns the geometry: it implements Layout and calls Notify on every
// scroll or resize. A nil Layout means the host cannot observe at all; the
// observer then fails open and reports the target as visible.
package visibility

import (
	"sync"
	"time"

	"engineerhub/internal/logging"
)

// Rect is an axis-aligned box in host units (cells, pixels, rows).
type Rect struct {
	X, Y, W, H float64
}

// Area returns W*H, or 0 for a degenerate rect.
func (r Rect) Area() float64 {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlap of r and o and whether it is non-empty.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.W, o.X+o.W)
	y1 := min(r.Y+r.H, o.Y+o.H)
	if x1 < x0 || y1 < y0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// Margin grows (positive) or shrinks (negative) the root before testing.
type Margin struct {
	Top, Right, Bottom, Left float64
}

func (m Margin) expand(r Rect) Rect {
	return Rect{
		X: r.X - m.Left,
		Y: r.Y - m.Top,
		W: r.W + m.Left + m.Right,
		H: r.H + m.Top + m.Bottom,
	}
}

// Layout supplies live geometry. ok=false means the box is not laid out yet.
type Layout interface {
	RootBounds() (Rect, bool)
	TargetBounds() (Rect, bool)
}

// Options configures an Observer.
type Options struct {
	RootMargin  Margin
	Threshold   float64 // fraction of the target that must be visible, 0..1
	TriggerOnce bool
	Enabled     bool
}

// Entry is the raw observation.
type Entry struct {
	IsIntersecting bool
	Ratio          float64
	TargetBounds   Rect
	RootBounds     Rect
	Intersection   Rect
	Time           time.Time
}

// Observer tracks one target against one root.
type Observer struct {
	mu       sync.Mutex
	layout   Layout
	opts     Options
	onChange func(Entry)

	entry    Entry
	attached bool
	now      func() time.Time
}

// New attaches an observer and evaluates immediately. onChange fires on
// every boolean transition of IsIntersecting and may be nil.
func New(layout Layout, opts Options, onChange func(Entry)) *Observer {
	if opts.Threshold < 0 {
		opts.Threshold = 0
	}
	if opts.Threshold > 1 {
		opts.Threshold = 1
	}
	o := &Observer{
		layout:   layout,
		opts:     opts,
		onChange: onChange,
		now:      time.Now,
	}
	o.attach()
	return o
}

// attach evaluates the current geometry and starts accepting Notify.
func (o *Observer) attach() {
	o.mu.Lock()
	if !o.opts.Enabled {
		o.attached = false
		o.mu.Unlock()
		return
	}
	o.attached = true

	if o.layout == nil {
		logging.VisibilityWarn("observation unavailable; treating target as visible")
		entry := Entry{IsIntersecting: true, Ratio: 1, Time: o.now()}
		changed := o.swap(entry)
		if o.opts.TriggerOnce {
			o.attached = false
		}
		o.mu.Unlock()
		o.emit(changed, entry)
		return
	}
	o.mu.Unlock()
	o.Notify()
}

// swap stores entry and reports whether the boolean state flipped. Caller holds mu.
func (o *Observer) swap(entry Entry) bool {
	changed := entry.IsIntersecting != o.entry.IsIntersecting
	o.entry = entry
	return changed
}

func (o *Observer) emit(changed bool, entry Entry) {
	if changed && o.onChange != nil {
		o.onChange(entry)
	}
}

// Notify recomputes the intersection. Hosts call it on scroll and resize.
func (o *Observer) Notify() {
	o.mu.Lock()
	if !o.attached || o.layout == nil {
		o.mu.Unlock()
		return
	}

	entry := o.compute()
	changed := o.swap(entry)
	if o.opts.TriggerOnce && entry.IsIntersecting {
		o.attached = false
	}
	o.mu.Unlock()

	o.emit(changed, entry)
}

// compute evaluates the layout. Caller holds mu.
func (o *Observer) compute() Entry {
	entry := Entry{Time: o.now()}
	root, rootOK := o.layout.RootBounds()
	target, targetOK := o.layout.TargetBounds()
	if !rootOK || !targetOK {
		return entry
	}
	root = o.opts.RootMargin.expand(root)
	entry.RootBounds = root
	entry.TargetBounds = target

	inter, ok := target.Intersect(root)
	if !ok {
		return entry
	}
	entry.Intersection = inter

	if area := target.Area(); area > 0 {
		entry.Ratio = inter.Area() / area
	} else {
		// A zero-height sentinel counts as fully visible once it touches the root.
		entry.Ratio = 1
	}

	if o.opts.Threshold == 0 {
		entry.IsIntersecting = true
	} else {
		entry.IsIntersecting = entry.Ratio >= o.opts.Threshold
	}
	return entry
}

// IsIntersecting reports the last observed state.
func (o *Observer) IsIntersecting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.entry.IsIntersecting
}

// Entry returns the last raw observation.
func (o *Observer) Entry() Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.entry
}

// Attached reports whether Notify currently has any effect.
func (o *Observer) Attached() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attached
}

// SetEnabled toggles observation. A false to true flip re-attaches.
func (o *Observer) SetEnabled(enabled bool) {
	o.mu.Lock()
	was := o.opts.Enabled
	o.opts.Enabled = enabled
	if !enabled {
		o.attached = false
	}
	o.mu.Unlock()

	if enabled && !was {
		o.attach()
	}
}

// SetTarget swaps the observed layout and re-attaches.
func (o *Observer) SetTarget(layout Layout) {
	o.mu.Lock()
	o.layout = layout
	o.mu.Unlock()
	o.attach()
}

// Disconnect stops observation permanently until SetTarget or SetEnabled.
func (o *Observer) Disconnect() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attached = false
	o.opts.Enabled = false
}

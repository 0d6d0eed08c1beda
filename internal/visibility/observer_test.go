package visibility

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"engineerhub/internal/logging"
)

// scrollLayout models a vertical list: a viewport of height H scrolled to
// offset, and a target row at a fixed position in content coordinates.
type scrollLayout struct {
	mu     sync.Mutex
	offset float64
	height float64
	target Rect
	noRoot bool
}

func (l *scrollLayout) RootBounds() (Rect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.noRoot {
		return Rect{}, false
	}
	return Rect{X: 0, Y: l.offset, W: 80, H: l.height}, true
}

func (l *scrollLayout) TargetBounds() (Rect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target, true
}

func (l *scrollLayout) scrollTo(offset float64) {
	l.mu.Lock()
	l.offset = offset
	l.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *recorder) record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) states() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.IsIntersecting
	}
	return out
}

func TestRectIntersect(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}

	got, ok := a.Intersect(Rect{X: 5, Y: 5, W: 10, H: 10})
	require.True(t, ok)
	assert.Equal(t, Rect{X: 5, Y: 5, W: 5, H: 5}, got)

	_, ok = a.Intersect(Rect{X: 20, Y: 0, W: 1, H: 1})
	assert.False(t, ok)
}

func TestObserverEmitsTransitionsOnly(t *testing.T) {
	layout := &scrollLayout{height: 20, target: Rect{X: 0, Y: 50, W: 80, H: 1}}
	rec := &recorder{}
	obs := New(layout, Options{Enabled: true}, rec.record)

	assert.False(t, obs.IsIntersecting())
	assert.Empty(t, rec.states(), "initial invisible state is not a transition")

	layout.scrollTo(35)
	obs.Notify()
	layout.scrollTo(36)
	obs.Notify()
	layout.scrollTo(0)
	obs.Notify()

	assert.Equal(t, []bool{true, false}, rec.states())
}

func TestObserverRootMargin(t *testing.T) {
	layout := &scrollLayout{height: 20, target: Rect{X: 0, Y: 25, W: 80, H: 1}}
	obs := New(layout, Options{Enabled: true, RootMargin: Margin{Bottom: 10}}, nil)

	assert.True(t, obs.IsIntersecting(), "bottom margin pulls the target in early")
}

func TestObserverThreshold(t *testing.T) {
	layout := &scrollLayout{height: 20, target: Rect{X: 0, Y: 15, W: 80, H: 10}}
	obs := New(layout, Options{Enabled: true, Threshold: 0.75}, nil)

	assert.False(t, obs.IsIntersecting())
	assert.InDelta(t, 0.5, obs.Entry().Ratio, 0.0001)

	layout.scrollTo(3)
	obs.Notify()
	assert.True(t, obs.IsIntersecting())
}

func TestObserverTriggerOnceDetaches(t *testing.T) {
	layout := &scrollLayout{height: 20, target: Rect{X: 0, Y: 30, W: 80, H: 1}}
	rec := &recorder{}
	obs := New(layout, Options{Enabled: true, TriggerOnce: true}, rec.record)

	layout.scrollTo(15)
	obs.Notify()
	require.Equal(t, []bool{true}, rec.states())
	assert.False(t, obs.Attached())

	layout.scrollTo(0)
	obs.Notify()
	assert.Equal(t, []bool{true}, rec.states(), "no updates after trigger-once fired")
	assert.True(t, obs.IsIntersecting())
}

func TestObserverReattachOnEnable(t *testing.T) {
	layout := &scrollLayout{height: 20, target: Rect{X: 0, Y: 5, W: 80, H: 1}}
	rec := &recorder{}
	obs := New(layout, Options{Enabled: false}, rec.record)

	assert.False(t, obs.Attached())
	obs.Notify()
	assert.Empty(t, rec.states())

	obs.SetEnabled(true)
	assert.True(t, obs.Attached())
	assert.Equal(t, []bool{true}, rec.states())
}

func TestObserverReattachOnNewTarget(t *testing.T) {
	first := &scrollLayout{height: 20, target: Rect{X: 0, Y: 5, W: 80, H: 1}}
	rec := &recorder{}
	obs := New(first, Options{Enabled: true, TriggerOnce: true}, rec.record)
	require.False(t, obs.Attached())

	second := &scrollLayout{height: 20, target: Rect{X: 0, Y: 100, W: 80, H: 1}}
	obs.SetTarget(second)
	assert.True(t, obs.Attached())
	assert.Equal(t, []bool{true, false}, rec.states())
}

func TestObserverUnlaidRootIsNotVisible(t *testing.T) {
	layout := &scrollLayout{height: 20, noRoot: true, target: Rect{X: 0, Y: 0, W: 1, H: 1}}
	obs := New(layout, Options{Enabled: true}, nil)
	assert.False(t, obs.IsIntersecting())
}

func TestObserverFailsOpenWithoutLayout(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.Configure(zap.New(core), logging.Options{})
	t.Cleanup(func() { logging.Configure(nil, logging.Options{}) })

	rec := &recorder{}
	obs := New(nil, Options{Enabled: true}, rec.record)

	assert.True(t, obs.IsIntersecting())
	assert.Equal(t, []bool{true}, rec.states())
	assert.Equal(t, 1, logs.FilterMessage("observation unavailable; treating target as visible").Len())
}

func TestObserverDisconnect(t *testing.T) {
	layout := &scrollLayout{height: 20, target: Rect{X: 0, Y: 50, W: 80, H: 1}}
	rec := &recorder{}
	obs := New(layout, Options{Enabled: true}, rec.record)

	obs.Disconnect()
	layout.scrollTo(45)
	obs.Notify()
	assert.Empty(t, rec.states())
}

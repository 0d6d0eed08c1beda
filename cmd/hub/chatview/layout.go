package chatview

import (
	"sync"

	"engineerhub/internal/visibility"
)

// scrollLayout exposes the viewport window and the history sentinel (the
// first content line) to the visibility observer. Coordinates are in
// content lines.
type scrollLayout struct {
	mu      sync.Mutex
	width   int
	height  int
	yOffset int
	ready   bool
}

func (l *scrollLayout) set(width, height, yOffset int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.width, l.height, l.yOffset = max(width, 1), max(height, 1), yOffset
	l.ready = true
}

func (l *scrollLayout) RootBounds() (visibility.Rect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return visibility.Rect{
		Y: float64(l.yOffset),
		W: float64(l.width),
		H: float64(l.height),
	}, l.ready
}

func (l *scrollLayout) TargetBounds() (visibility.Rect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return visibility.Rect{W: float64(l.width), H: 1}, l.ready
}

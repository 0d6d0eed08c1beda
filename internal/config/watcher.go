package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"engineerhub/internal/debounce"
	"engineerhub/internal/logging"
)

// DefaultReloadDelay collapses the burst of events an editor save produces.
const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk and hands every
// valid result to a callback. Invalid or unreadable files are logged and
// skipped; the previous configuration stays in effect.
type Watcher struct {
	mu       sync.Mutex
	path     string
	watcher  *fsnotify.Watcher
	reload   *debounce.Func[struct{}]
	onChange func(*Config)
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	reloads  int
}

// NewWatcher creates a watcher for path. delay <= 0 uses DefaultReloadDelay.
func NewWatcher(path string, delay time.Duration, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w := &Watcher{
		path:     filepath.Clean(abs),
		watcher:  fw,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	w.reload = debounce.NewFunc(delay, func(struct{}) { w.reloadNow() })
	return w, nil
}

// Start watches the file's directory; editors often replace files by
// rename, which a watch on the file itself would lose.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Config("watching %s", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup. A reload that has not
// fired yet is dropped. Stop on a watcher that never started only releases
// the underlying fsnotify handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.reload.Stop()

	if err := w.watcher.Close(); err != nil {
		logging.ConfigWarn("error closing watcher: %v", err)
	}
}

// Reloads returns how many valid reloads were delivered.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.ConfigWarn("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	w.reload.Call(struct{}{})
}

func (w *Watcher) reloadNow() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.ConfigWarn("reload of %s failed: %v", w.path, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.ConfigWarn("reload of %s rejected: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	logging.Config("reloaded %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

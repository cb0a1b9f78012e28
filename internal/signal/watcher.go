package signal

import (
	"context"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ThresholdWatcher hot-reloads threshold overrides when the override
// file changes on disk.
type ThresholdWatcher struct {
	mu         sync.RWMutex
	path       string
	thresholds Thresholds
	watcher    *fsnotify.Watcher
}

// NewThresholdWatcher loads the override file and starts watching its
// directory. A missing file is not an error; defaults apply until it
// appears.
func NewThresholdWatcher(path string) (*ThresholdWatcher, error) {
	w := &ThresholdWatcher{
		path:       path,
		thresholds: DefaultThresholds(),
	}

	if t, err := LoadThresholds(path); err == nil {
		w.thresholds = t
	} else {
		log.Printf("thresholds: using defaults: %v", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	return w, nil
}

// Run processes file events until the context is canceled.
func (w *ThresholdWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			t, err := LoadThresholds(w.path)
			if err != nil {
				log.Printf("thresholds: reload failed, keeping previous: %v", err)
				continue
			}
			w.mu.Lock()
			w.thresholds = t
			w.mu.Unlock()
			log.Printf("thresholds: reloaded from %s", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("thresholds: watch error: %v", err)
		}
	}
}

// Current returns the active thresholds.
func (w *ThresholdWatcher) Current() Thresholds {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.thresholds
}

// Close stops the underlying filesystem watcher.
func (w *ThresholdWatcher) Close() error {
	return w.watcher.Close()
}

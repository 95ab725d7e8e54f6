// Package watch re-runs a command when schema files change.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// DefaultDebounce is how long the watcher waits after the last event.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a set of schema files and their directories.
type Watcher struct {
	files    map[string]struct{}
	dirs     map[string]struct{}
	callback func() error
	watcher  *fsnotify.Watcher
	debounce time.Duration
	done     chan struct{}
}

// NewWatcher watches paths. A file path triggers on its own changes; an
// existing directory triggers on any .prisma file below it.
func NewWatcher(paths []string, callback func() error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		files:    map[string]struct{}{},
		dirs:     map[string]struct{}{},
		callback: callback,
		watcher:  watcher,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}

	watched := map[string]struct{}{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		dir := filepath.Dir(abs)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			w.dirs[abs] = struct{}{}
			if err := w.addTree(abs, watched); err != nil {
				watcher.Close()
				return nil, err
			}
			continue
		}
		w.files[abs] = struct{}{}
		if _, ok := watched[dir]; ok {
			continue
		}
		watched[dir] = struct{}{}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}

	return w, nil
}

// Start runs callback once and then after every burst of changes.
func (w *Watcher) Start() error {
	if err := w.callback(); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	go func() {
		debounceTimer := time.NewTimer(w.debounce)
		debounceTimer.Stop()
		var debounceCh <-chan time.Time

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 && w.underDir(event.Name) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := w.addTree(event.Name, nil); err != nil {
							debug.Error("watch error", "err", err)
						}
					}
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 && w.relevant(event.Name) {
					debounceTimer.Reset(w.debounce)
					debounceCh = debounceTimer.C
				}

			case <-debounceCh:
				if err := w.callback(); err != nil {
					debug.Error("watch callback failed", "err", err)
				}
				debounceCh = nil

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				debug.Error("watch error", "err", err)

			case <-w.done:
				return
			}
		}
	}()

	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

// addTree watches root and every directory below it, since schema
// directories are loaded recursively. seen skips directories already added.
func (w *Watcher) addTree(root string, seen map[string]struct{}) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if seen != nil {
			if _, ok := seen[path]; ok {
				return nil
			}
			seen[path] = struct{}{}
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) underDir(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	for dir := range w.dirs {
		if rel, err := filepath.Rel(dir, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

func (w *Watcher) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if _, ok := w.files[abs]; ok {
		return true
	}
	return strings.HasSuffix(abs, ".prisma") && w.underDir(abs)
}

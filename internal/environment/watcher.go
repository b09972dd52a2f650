package environment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors every root of every configured environment for changes
// and invalidates the Manager's render cache, debounced so a burst of
// writes from an editor save collapses into a single invalidation.
// Grounded on the teacher's pkg/index/watcher.go, trading "reindex a Go
// file" for "invalidate a cached .sls unit".
type Watcher struct {
	mgr        *Manager
	fsw        *fsnotify.Watcher
	debounce   time.Duration
	onChange   func(saltenv, name string)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	pendingMu sync.Mutex
	pending   map[pendingKey]time.Time
}

type pendingKey struct {
	saltenv string
	root    string
	path    string
}

// NewWatcher builds a Watcher over mgr's configured environments. debounce
// is the quiet period a path must go untouched before it is invalidated;
// callers pass 0 to use a 500ms default, matching the teacher's own
// DebounceMs default.
func NewWatcher(mgr *Manager, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create environment watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		mgr:      mgr,
		fsw:      fsw,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		pending:  make(map[pendingKey]time.Time),
	}, nil
}

// Start begins watching every root directory tree, recursively.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for saltenv, roots := range w.mgr.Environments() {
		for _, root := range roots {
			if err := w.addTree(root); err != nil {
				return fmt.Errorf("watch root %q (env %q): %w", root, saltenv, err)
			}
		}
	}

	go w.processEvents()
	go w.processDebounced()

	return nil
}

// Stop stops the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.fsw.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot watch %s: %v\n", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".sls") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			saltenv, root, ok := w.findRoot(event.Name)
			if !ok {
				continue
			}
			w.pendingMu.Lock()
			w.pending[pendingKey{saltenv: saltenv, root: root, path: event.Name}] = time.Now()
			w.pendingMu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "environment watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) processDebounced() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	now := time.Now()
	for key, ts := range w.pending {
		if now.Sub(ts) < w.debounce {
			continue
		}
		delete(w.pending, key)

		name := dottedName(key.root, key.path)
		w.mgr.Invalidate(key.saltenv, name)
		if w.onChange != nil {
			w.onChange(key.saltenv, name)
		}
	}
}

// findRoot returns the saltenv and root directory that contains path.
func (w *Watcher) findRoot(path string) (saltenv, root string, ok bool) {
	for env, roots := range w.mgr.Environments() {
		for _, r := range roots {
			if rel, err := filepath.Rel(r, path); err == nil && !strings.HasPrefix(rel, "..") {
				return env, r, true
			}
		}
	}
	return "", "", false
}

// dottedName reverses Load's name->path resolution: strip root and the
// .sls suffix, drop a trailing "/init" segment, and replace separators
// with dots.
func dottedName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	rel = strings.TrimSuffix(rel, ".sls")
	rel = strings.TrimSuffix(rel, string(filepath.Separator)+"init")
	return strings.ReplaceAll(rel, string(filepath.Separator), ".")
}

package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/cmsindex/internal/storage"
)

// Monitor watches storage roots and takes a store out of service when its
// index directory or lock marker disappears underneath an open handle.
type Monitor struct {
	fsw *fsnotify.Watcher
	log *slog.Logger

	mu      sync.Mutex
	handles map[string]*storage.Handle // watched file path -> handle
	roots   map[string]struct{}
}

// NewMonitor creates a Monitor.
func NewMonitor(log *slog.Logger) (*Monitor, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		fsw:     fsw,
		log:     log,
		handles: make(map[string]*storage.Handle),
		roots:   make(map[string]struct{}),
	}, nil
}

// Watch registers an on-disk handle. In-memory handles are ignored.
func (m *Monitor) Watch(h *storage.Handle) error {
	d := h.Descriptor()
	if d.InMemory {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	root := filepath.Clean(d.Root)
	if _, ok := m.roots[root]; !ok {
		if err := m.fsw.Add(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
		m.roots[root] = struct{}{}
	}
	m.handles[filepath.Clean(d.IndexPath())] = h
	if marker := h.LockMarker(); marker != "" {
		m.handles[filepath.Clean(marker)] = h
	}
	return nil
}

// Run processes events until ctx is done or Close is called.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-m.fsw.Events:
			if !ok {
				return nil
			}
			m.handle(event)
		case err, ok := <-m.fsw.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("monitor_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (m *Monitor) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	m.mu.Lock()
	h, ok := m.handles[filepath.Clean(event.Name)]
	m.mu.Unlock()
	if !ok || h.Closed() {
		return
	}
	h.MarkUnavailable(fmt.Sprintf("%s removed while open", filepath.Base(event.Name)))
}

// Close stops watching.
func (m *Monitor) Close() error {
	return m.fsw.Close()
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/logging"
)

// Handle is an open index store.
type Handle struct {
	desc Descriptor
	log  *slog.Logger

	mu     sync.RWMutex
	idx    bleve.Index
	closed bool

	// marker is the lock marker path, "" for in-memory stores.
	marker string

	writeSem    chan struct{}
	generation  atomic.Uint64
	unavailable atomic.Pointer[string]
}

// Open opens or creates the store of d.
// A store that cannot be opened yields a StoreUnavailable error.
func Open(ctx context.Context, d Descriptor, opts Options) (*Handle, error) {
	if d.Name == "" {
		return nil, cmserrors.ConfigError("index descriptor has no name", nil)
	}
	m, err := buildMapping(d)
	if err != nil {
		return nil, cmserrors.ConfigError(fmt.Sprintf("index %s: %v", d.Name, err), err)
	}

	h := &Handle{
		desc:     d,
		log:      logging.ForIndex(opts.Logger, d.Name),
		writeSem: make(chan struct{}, 1),
	}

	if d.InMemory {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, cmserrors.StoreUnavailable(d.Name, err)
		}
		h.idx = idx
		return h, nil
	}

	marker, err := acquireMarker(ctx, d.Root, d.Name, opts)
	if err != nil {
		code := cmserrors.ErrCodeStoreUnavailable
		if errors.Is(err, ErrIndexLocked) {
			code = cmserrors.ErrCodeIndexLocked
		}
		return nil, cmserrors.New(code, fmt.Sprintf("index %s store unavailable: %v", d.Name, err), err).
			WithDetail("index", d.Name).
			WithSuggestion("run 'cmsindex unlock " + d.Name + "' once the owning process is gone")
	}

	idx, err := openBleve(d.IndexPath(), m, h.log)
	if err != nil {
		_ = removeMarker(marker)
		return nil, cmserrors.StoreUnavailable(d.Name, err)
	}
	h.idx = idx
	h.marker = marker

	h.log.Info("index_opened", slog.String("path", d.IndexPath()))
	return h, nil
}

func openBleve(path string, m mapping.IndexMapping, log *slog.Logger) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		log.Warn("index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, err, validErr)
		}
		log.Info("index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, rebuild required"))
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return bleve.New(path, m)
	}
	if err != nil && isCorruptionError(err) {
		log.Warn("index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, m)
	}
	return idx, err
}

// validateIndexIntegrity checks index_meta.json before bleve opens the directory.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		errors.Is(err, bleve.ErrorIndexMetaCorrupt)
}

// Name returns the index name.
func (h *Handle) Name() string { return h.desc.Name }

// Descriptor returns a copy of the handle's descriptor.
func (h *Handle) Descriptor() Descriptor { return h.desc }

// LockMarker returns the lock marker path, "" for in-memory or closed stores.
func (h *Handle) LockMarker() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.marker
}

// Generation counts committed batches since open.
func (h *Handle) Generation() uint64 { return h.generation.Load() }

// Mapping returns the index mapping used by query execution.
func (h *Handle) Mapping() mapping.IndexMapping {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.idx == nil {
		return nil
	}
	return h.idx.Mapping()
}

// MarkUnavailable takes the store out of service. Readers and writers fail afterwards.
func (h *Handle) MarkUnavailable(reason string) {
	if h.unavailable.CompareAndSwap(nil, &reason) {
		h.log.Error("index_unavailable", slog.String("reason", reason))
	}
}

// Unavailable returns the reason the store was taken out of service, or "".
func (h *Handle) Unavailable() string {
	if r := h.unavailable.Load(); r != nil {
		return *r
	}
	return ""
}

// Closed reports whether Close was called.
func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Handle) usable() error {
	if h.closed {
		return cmserrors.New(cmserrors.ErrCodeIndexClosed, fmt.Sprintf("index %s is closed", h.desc.Name), nil)
	}
	if r := h.Unavailable(); r != "" {
		return cmserrors.StoreUnavailable(h.desc.Name, errors.New(r))
	}
	return nil
}

// Reader pins the last committed snapshot.
func (h *Handle) Reader() (*Reader, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.usable(); err != nil {
		return nil, err
	}

	adv, err := h.idx.Advanced()
	if err != nil {
		return nil, cmserrors.Wrap(cmserrors.ErrCodeStoreUnavailable, err)
	}
	r, err := adv.Reader()
	if err != nil {
		return nil, cmserrors.Wrap(cmserrors.ErrCodeStoreUnavailable, err)
	}
	return &Reader{
		index:      h.desc.Name,
		r:          r,
		mapping:    h.idx.Mapping(),
		generation: h.generation.Load(),
	}, nil
}

// Writer acquires the exclusive writer, waiting until ctx is done.
func (h *Handle) Writer(ctx context.Context) (*Writer, error) {
	if err := h.checkUsable(); err != nil {
		return nil, err
	}
	select {
	case h.writeSem <- struct{}{}:
	case <-ctx.Done():
		return nil, cmserrors.New(cmserrors.ErrCodeLockContention,
			fmt.Sprintf("index %s: writer not acquired", h.desc.Name), ctx.Err())
	}
	if err := h.checkUsable(); err != nil {
		<-h.writeSem
		return nil, err
	}
	return &Writer{h: h}, nil
}

// WithWriter runs fn with the exclusive writer and always releases it.
func (h *Handle) WithWriter(ctx context.Context, fn func(*Writer) error) error {
	w, err := h.Writer(ctx)
	if err != nil {
		return err
	}
	defer w.Close()
	return fn(w)
}

func (h *Handle) checkUsable() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.usable()
}

// Close closes the index and removes the lock marker. Safe to call twice.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.idx != nil {
		if err := h.idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close index: %w", err))
		}
	}
	if h.marker != "" {
		if err := removeMarker(h.marker); err != nil {
			errs = append(errs, err)
		}
		h.marker = ""
	}
	h.log.Info("index_closed")
	return errors.Join(errs...)
}

// Package registry owns the named indexes: their descriptors, stores,
// validators and writers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/validator"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
	"github.com/Aman-CERP/cmsindex/internal/writer"
)

// Config configures Open.
type Config struct {
	Descriptors []storage.Descriptor
	// SearchTargets maps entity types to index names; nil uses DefaultSearchTargets.
	SearchTargets map[valueset.EntityType]string
	Storage       storage.Options
	QueueSize     int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Index is one registered index. Err is set when its store could not be opened.
type Index struct {
	desc      storage.Descriptor
	Handle    *storage.Handle
	Writer    *writer.Writer
	Validator *validator.Validator
	Err       error
}

// Name returns the index name.
func (i *Index) Name() string { return i.desc.Name }

// Descriptor returns a copy of the index descriptor.
func (i *Index) Descriptor() storage.Descriptor { return i.desc }

// Available reports whether the store opened.
func (i *Index) Available() bool { return i.Err == nil && i.Handle != nil }

// Registry is the set of configured indexes.
type Registry struct {
	indexes map[string]*Index
	names   []string
	targets map[valueset.EntityType]string
	log     *slog.Logger
}

// Open opens every descriptor's store in parallel. A store that fails to
// open is recorded as unavailable; the other indexes continue.
func Open(ctx context.Context, cfg Config) (*Registry, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Descriptors) == 0 {
		return nil, cmserrors.ConfigError("no indexes configured", nil)
	}

	r := &Registry{
		indexes: make(map[string]*Index, len(cfg.Descriptors)),
		targets: cfg.SearchTargets,
		log:     log,
	}
	if r.targets == nil {
		r.targets = DefaultSearchTargets()
	}

	for _, d := range cfg.Descriptors {
		if _, dup := r.indexes[d.Name]; dup {
			return nil, cmserrors.ConfigError(fmt.Sprintf("index %s configured twice", d.Name), nil)
		}
		policy := d.Policy
		if len(policy.Categories) == 0 {
			policy.Categories = d.Categories
		}
		r.indexes[d.Name] = &Index{desc: d, Validator: validator.New(policy)}
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)

	storeOpts := cfg.Storage
	if storeOpts.Logger == nil {
		storeOpts.Logger = log
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range r.names {
		idx := r.indexes[name]
		g.Go(func() error {
			h, err := storage.Open(gctx, idx.desc, storeOpts)
			if err != nil {
				idx.Err = err
				cfg.Metrics.SetAvailable(name, false)
				log.Error("index_store_unavailable",
					slog.String("index", name),
					slog.String("error", err.Error()))
				return nil
			}
			idx.Handle = h
			idx.Writer = writer.New(name, h, idx.Validator, writer.Options{
				QueueSize: cfg.QueueSize,
				Logger:    log,
				Metrics:   cfg.Metrics,
			})
			cfg.Metrics.SetAvailable(name, true)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("registry_opened",
		slog.Int("indexes", len(r.names)),
		slog.Int("unavailable", len(r.Unavailable())))
	return r, nil
}

// Names lists the index names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// All returns every index, sorted by name, including unavailable ones.
func (r *Registry) All() []*Index {
	out := make([]*Index, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.indexes[n])
	}
	return out
}

// Unavailable returns the indexes whose store failed to open.
func (r *Registry) Unavailable() []*Index {
	var out []*Index
	for _, idx := range r.All() {
		if !idx.Available() {
			out = append(out, idx)
		}
	}
	return out
}

// Lookup returns the named index whether or not its store is available.
func (r *Registry) Lookup(name string) (*Index, error) {
	idx, ok := r.indexes[name]
	if !ok {
		return nil, cmserrors.New(cmserrors.ErrCodeUnknownIndex, fmt.Sprintf("unknown index %q", name), nil).
			WithDetail("index", name)
	}
	return idx, nil
}

// Get returns the named, available index.
func (r *Registry) Get(name string) (*Index, error) {
	idx, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !idx.Available() {
		return nil, idx.Err
	}
	return idx, nil
}

// ForEntityType returns the store the admin search uses for et.
func (r *Registry) ForEntityType(et valueset.EntityType) (*storage.Handle, error) {
	name, ok := r.targets[et]
	if !ok {
		return nil, cmserrors.New(cmserrors.ErrCodeUnknownIndex,
			fmt.Sprintf("no index searches entity type %q", et), nil)
	}
	idx, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return idx.Handle, nil
}

// ForCategory returns every index receiving value sets of category c,
// unavailable ones included.
func (r *Registry) ForCategory(c valueset.Category) []*Index {
	var out []*Index
	for _, idx := range r.All() {
		if idx.desc.AcceptsCategory(c) {
			out = append(out, idx)
		}
	}
	return out
}

// Close drains every writer and closes every store.
func (r *Registry) Close() error {
	var errs []error
	for _, idx := range r.All() {
		if idx.Writer != nil {
			idx.Writer.Close()
		}
		if idx.Handle != nil {
			if err := idx.Handle.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", idx.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

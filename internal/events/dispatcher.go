package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/cmsindex/internal/contenttree"
	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/registry"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
	"github.com/Aman-CERP/cmsindex/internal/writer"
)

// ProtectionChecker reports whether a path lies under public-access protection.
type ProtectionChecker interface {
	IsProtected(ctx context.Context, path valueset.Path) (bool, error)
}

// Tree mirrors node paths so scoped searches and protection checks stay current.
type Tree interface {
	ProtectionChecker
	Upsert(ctx context.Context, nodes ...contenttree.Node) error
	Delete(ctx context.Context, id string) error
}

// PathCache is dropped whenever items move.
type PathCache interface {
	PurgePaths()
}

// Dispatcher applies lifecycle events to the registry's indexes.
type Dispatcher struct {
	reg   *registry.Registry
	tree  Tree
	cache PathCache
	log   *slog.Logger
}

// NewDispatcher creates a Dispatcher. tree and cache may be nil.
func NewDispatcher(reg *registry.Registry, tree Tree, cache PathCache, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{reg: reg, tree: tree, cache: cache, log: log}
}

// Operations converts an event into index operations.
func (d *Dispatcher) Operations(ctx context.Context, e Event) ([]valueset.IndexOperation, error) {
	if err := e.Validate(); err != nil {
		return nil, cmserrors.ValidationError(err.Error(), err)
	}

	if e.Kind.Removes() {
		ids := append([]string(nil), e.IDs...)
		for _, it := range e.Items {
			ids = append(ids, it.ID)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return []valueset.IndexOperation{valueset.Delete(ids...)}, nil
	}

	var sets []*valueset.ValueSet
	for _, it := range e.Items {
		protected := false
		if d.tree != nil && e.Category != valueset.CategoryMember {
			var err error
			protected, err = d.tree.IsProtected(ctx, it.Path)
			if err != nil {
				return nil, fmt.Errorf("check protection of %s: %w", it.ID, err)
			}
		}
		sets = append(sets, it.ValueSets(e.Category, protected)...)
	}
	return valueset.Upsert(sets...), nil
}

// Handle applies e to every index receiving its category, in parallel.
// It returns the receipts of the indexes that committed and the joined
// errors of those that did not.
func (d *Dispatcher) Handle(ctx context.Context, e Event) (map[string]*writer.CommitReceipt, error) {
	ops, err := d.Operations(ctx, e)
	if err != nil {
		return nil, err
	}
	if err := d.syncTree(ctx, e); err != nil {
		return nil, err
	}
	if e.Kind == Moved && d.cache != nil {
		d.cache.PurgePaths()
	}
	if len(ops) == 0 {
		return map[string]*writer.CommitReceipt{}, nil
	}

	var (
		mu       sync.Mutex
		receipts = make(map[string]*writer.CommitReceipt)
		errs     []error
	)
	var g errgroup.Group
	for _, idx := range d.reg.ForCategory(e.Category) {
		g.Go(func() error {
			var r *writer.CommitReceipt
			var err error
			if idx.Available() {
				r, err = idx.Writer.Apply(ctx, ops)
			} else {
				err = idx.Err
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", idx.Name(), err))
				return nil
			}
			receipts[idx.Name()] = r
			return nil
		})
	}
	_ = g.Wait()

	d.log.Debug("event_dispatched",
		slog.String("kind", string(e.Kind)),
		slog.Int("operations", len(ops)),
		slog.Int("indexes", len(receipts)),
		slog.Int("failed", len(errs)))
	return receipts, errors.Join(errs...)
}

func (d *Dispatcher) syncTree(ctx context.Context, e Event) error {
	if d.tree == nil || e.Category == valueset.CategoryMember {
		return nil
	}
	if e.Kind.Removes() {
		ids := append([]string(nil), e.IDs...)
		for _, it := range e.Items {
			ids = append(ids, it.ID)
		}
		for _, id := range ids {
			if err := d.tree.Delete(ctx, valueset.NodeID(id)); err != nil {
				return fmt.Errorf("remove %s from tree: %w", id, err)
			}
		}
		return nil
	}

	nodes := make([]contenttree.Node, 0, len(e.Items))
	for _, it := range e.Items {
		nodes = append(nodes, contenttree.Node{ID: it.ID, Path: it.Path, Key: it.Key, Category: e.Category})
	}
	if len(nodes) == 0 {
		return nil
	}
	return d.tree.Upsert(ctx, nodes...)
}

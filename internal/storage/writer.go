package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// Batch collects mutations committed atomically by Writer.Commit.
// Later operations on the same id win.
type Batch struct {
	b     *bleve.Batch
	desc  Descriptor
	order []string
	seen  map[string]struct{}
}

// Index stages vs, replacing any document with the same id.
func (b *Batch) Index(vs *valueset.ValueSet) error {
	if err := b.b.Index(vs.ID, documentFor(vs, b.desc)); err != nil {
		return fmt.Errorf("stage %s: %w", vs.ID, err)
	}
	b.touch(vs.ID)
	return nil
}

// Delete stages the removal of id.
func (b *Batch) Delete(id string) {
	b.b.Delete(id)
	b.touch(id)
}

// IDs lists every id the batch touches, in first-touch order.
func (b *Batch) IDs() []string {
	return append([]string(nil), b.order...)
}

// Size is the number of distinct ids staged.
func (b *Batch) Size() int { return len(b.order) }

func (b *Batch) touch(id string) {
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, id)
}

// Writer is the exclusive mutation scope of a Handle.
type Writer struct {
	h    *Handle
	once sync.Once
}

// NewBatch starts an empty batch.
func (w *Writer) NewBatch() *Batch {
	w.h.mu.RLock()
	defer w.h.mu.RUnlock()
	return &Batch{
		b:    w.h.idx.NewBatch(),
		desc: w.h.desc,
		seen: make(map[string]struct{}),
	}
}

// Commit applies b atomically: either every staged operation is visible to
// later readers or none is. It returns the new handle generation.
func (w *Writer) Commit(ctx context.Context, b *Batch) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	h := w.h
	h.mu.RLock()
	defer h.mu.RUnlock()
	if err := h.usable(); err != nil {
		return 0, err
	}
	if b.Size() == 0 {
		return h.generation.Load(), nil
	}

	if err := h.idx.Batch(b.b); err != nil {
		return 0, cmserrors.WriteFailure(h.desc.Name, b.IDs(), err)
	}
	gen := h.generation.Add(1)
	h.log.Debug("batch_committed",
		slog.Int("ids", b.Size()),
		slog.Uint64("generation", gen))
	return gen, nil
}

// Close releases the writer. Safe to call twice.
func (w *Writer) Close() {
	w.once.Do(func() { <-w.h.writeSem })
}

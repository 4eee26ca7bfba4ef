// Package writer keeps an index consistent with a stream of IndexOperations.
//
// Every index has one Writer and one goroutine draining its queue, so batches
// for the same index are strictly serialized while different indexes proceed
// in parallel. A batch commits atomically or not at all.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/logging"
	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/validator"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// DefaultQueueSize bounds the batches waiting for an index.
const DefaultQueueSize = 64

// ErrClosed is returned for batches submitted after Close.
var ErrClosed = errors.New("index writer closed")

// Options configure a Writer.
type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// CommitReceipt describes a committed batch.
type CommitReceipt struct {
	Index      string `json:"index"`
	Generation uint64 `json:"generation"`
	Upserted   int    `json:"upserted"`
	// Deleted counts distinct ids that were in the index before the batch
	// and are gone after it.
	Deleted  int           `json:"deleted"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration_ns"`
}

// Outcome is delivered once per submitted batch.
type Outcome struct {
	Receipt *CommitReceipt
	Err     error
}

type job struct {
	ctx    context.Context
	ops    []valueset.IndexOperation
	result chan Outcome
}

// Writer serializes batches against one index.
type Writer struct {
	name    string
	h       *storage.Handle
	v       *validator.Validator
	log     *slog.Logger
	metrics *metrics.Metrics

	queue  chan job
	done   chan struct{}
	status status

	mu     sync.RWMutex
	closed bool
}

// New starts the writer loop of the named index.
func New(name string, h *storage.Handle, v *validator.Validator, opts Options) *Writer {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	w := &Writer{
		name:    name,
		h:       h,
		v:       v,
		log:     logging.ForIndex(opts.Logger, name),
		metrics: opts.Metrics,
		queue:   make(chan job, size),
		done:    make(chan struct{}),
	}
	w.status.index = name
	go w.run()
	return w
}

// Name returns the index name.
func (w *Writer) Name() string { return w.name }

// Status returns a snapshot of the writer's progress.
func (w *Writer) Status() StatusSnapshot { return w.status.snapshot() }

// Apply enqueues ops and waits for the commit. If ctx is done first, Apply
// returns ctx.Err() and the batch still runs to completion.
func (w *Writer) Apply(ctx context.Context, ops []valueset.IndexOperation) (*CommitReceipt, error) {
	result, err := w.enqueue(ctx, ops)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-result:
		return out.Receipt, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit enqueues ops without waiting. The channel yields exactly one Outcome.
func (w *Writer) Submit(ops []valueset.IndexOperation) <-chan Outcome {
	result, err := w.enqueue(context.Background(), ops)
	if err != nil {
		result = make(chan Outcome, 1)
		result <- Outcome{Err: err}
	}
	return result
}

func (w *Writer) enqueue(ctx context.Context, ops []valueset.IndexOperation) (chan Outcome, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, cmserrors.WriteFailure(w.name, targetIDs(ops), ErrClosed)
	}

	j := job{
		ctx:    context.WithoutCancel(ctx),
		ops:    ops,
		result: make(chan Outcome, 1),
	}
	// Counted before the send so run never dequeues an uncounted job.
	w.status.enqueued()
	select {
	case w.queue <- j:
		return j.result, nil
	case <-ctx.Done():
		w.status.dequeued()
		return nil, ctx.Err()
	}
}

// Close drains queued batches and stops the loop. Safe to call twice.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.queue {
		w.status.dequeued()
		receipt, err := w.process(j.ctx, j.ops)
		j.result <- Outcome{Receipt: receipt, Err: err}
	}
}

func (w *Writer) process(ctx context.Context, ops []valueset.IndexOperation) (*CommitReceipt, error) {
	start := time.Now()
	receipt, touched, err := w.applyBatch(ctx, ops)
	dur := time.Since(start)

	w.metrics.ObserveBatch(w.name, len(touched), dur, err)
	if err != nil {
		var ie *cmserrors.IndexError
		if !errors.As(err, &ie) || ie.Code != cmserrors.ErrCodeWriteFailed {
			if len(touched) == 0 {
				touched = targetIDs(ops)
			}
			err = cmserrors.WriteFailure(w.name, touched, err)
		}
		w.status.failed(err)
		w.log.Error("index_batch_failed",
			slog.Int("ids", len(cmserrors.FailedIDs(err))),
			slog.String("error", err.Error()))
		return nil, err
	}

	receipt.Duration = dur
	w.status.committed(receipt)
	w.metrics.AddOperations(w.name, "upserted", receipt.Upserted)
	w.metrics.AddOperations(w.name, "deleted", receipt.Deleted)
	w.metrics.AddOperations(w.name, "skipped", receipt.Skipped)
	w.log.Info("index_batch_committed",
		slog.Uint64("generation", receipt.Generation),
		slog.Int("upserted", receipt.Upserted),
		slog.Int("deleted", receipt.Deleted),
		slog.Int("skipped", receipt.Skipped),
		slog.Duration("duration", dur))
	return receipt, nil
}

// applyBatch runs the batch algorithm and returns the ids it touched.
func (w *Writer) applyBatch(ctx context.Context, ops []valueset.IndexOperation) (*CommitReceipt, []string, error) {
	sw, err := w.h.Writer(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer sw.Close()

	// Descendants are resolved against the state before this batch.
	snap, err := w.h.Reader()
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = snap.Close() }()

	receipt := &CommitReceipt{Index: w.name}
	var invalid, deletes []string
	var valid []*valueset.ValueSet

	for _, op := range ops {
		switch op.Kind {
		case valueset.OpUpsert:
			if err := op.ValueSet.Validate(); err != nil {
				receipt.Skipped++
				w.log.Warn("malformed_value_set", slog.String("error", err.Error()))
				continue
			}
			res := w.v.Validate(op.ValueSet)
			if res.Status == validator.Failed {
				receipt.Skipped++
				invalid = append(invalid, op.ValueSet.ID)
				w.log.Debug("validation_skip",
					slog.String("id", op.ValueSet.ID),
					slog.String("reason", string(res.Reason)))
				continue
			}
			valid = append(valid, res.ValueSet)
		case valueset.OpDelete:
			deletes = append(deletes, op.IDs...)
		}
	}

	b := sw.NewBatch()
	c := &cascade{
		snap:    snap,
		batch:   b,
		pending: valid,
		cache:   make(map[string][]string),
		indexed: make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}

	for _, id := range invalid {
		if err := c.delete(ctx, id); err != nil {
			return nil, b.IDs(), err
		}
	}
	for _, vs := range valid {
		if err := b.Index(vs); err != nil {
			return nil, b.IDs(), err
		}
	}
	for _, id := range deletes {
		if err := c.delete(ctx, id); err != nil {
			return nil, b.IDs(), err
		}
	}

	gen, err := sw.Commit(ctx, b)
	if err != nil {
		return nil, b.IDs(), err
	}
	receipt.Generation = gen
	receipt.Upserted = len(valid)
	receipt.Deleted = c.removed()
	return receipt, b.IDs(), nil
}

// cascade stages an id's removal together with everything beneath it.
type cascade struct {
	snap    *storage.Reader
	batch   *storage.Batch
	pending []*valueset.ValueSet
	cache   map[string][]string
	// indexed holds ids seen in the pre-batch snapshot.
	indexed map[string]struct{}
	deleted map[string]struct{}
}

// delete removes id. An invariant id takes every culture variant of the
// node and everything beneath it, matched on whole path segments. A variant
// id removes that variant alone: descendants keep their own published
// cultures and are judged by their own value sets.
func (c *cascade) delete(ctx context.Context, id string) error {
	node := valueset.NodeID(id)
	if node == "" {
		return nil
	}

	below, ok := c.cache[node]
	if !ok {
		var err error
		below, err = c.snap.IDsWithPathSegment(ctx, node)
		if err != nil {
			return fmt.Errorf("resolve descendants of %s: %w", node, err)
		}
		for _, other := range below {
			c.indexed[other] = struct{}{}
		}
		for _, vs := range c.pending {
			if vs.Path.Contains(node) {
				below = append(below, vs.ID)
			}
		}
		c.cache[node] = below
	}

	c.stage(id)
	if id != node {
		return nil
	}
	for _, other := range below {
		c.stage(other)
	}
	return nil
}

func (c *cascade) stage(id string) {
	c.batch.Delete(id)
	c.deleted[id] = struct{}{}
}

// removed counts staged deletes that hit an indexed document.
func (c *cascade) removed() int {
	n := 0
	for id := range c.deleted {
		if _, ok := c.indexed[id]; ok {
			n++
		}
	}
	return n
}

func targetIDs(ops []valueset.IndexOperation) []string {
	var ids []string
	for _, op := range ops {
		ids = append(ids, op.TargetIDs()...)
	}
	return ids
}

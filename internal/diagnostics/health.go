// Package diagnostics reports the size and health of index stores.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/registry"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/writer"
)

// Degraded describes why a store is not healthy.
type Degraded struct {
	Index  string
	Reason string
	Cause  error
}

func (d *Degraded) Error() string {
	return fmt.Sprintf("index %s degraded: %s", d.Index, d.Reason)
}

func (d *Degraded) Unwrap() error { return d.Cause }

// DocumentCount returns the number of documents in h's last committed snapshot.
func DocumentCount(h *storage.Handle) (int, error) {
	r, err := h.Reader()
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	n, err := r.DocCount()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// FieldCount returns the number of distinct indexed field names.
func FieldCount(h *storage.Handle) (int, error) {
	r, err := h.Reader()
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	fields, err := r.Fields()
	if err != nil {
		return 0, err
	}
	return len(fields), nil
}

// IsHealthy returns nil for a healthy store and *Degraded otherwise.
// Races with a closing store are reported as degraded, never propagated.
func IsHealthy(h *storage.Handle) error {
	if h == nil {
		return &Degraded{Reason: "store not open"}
	}
	name := h.Name()

	if reason := h.Unavailable(); reason != "" {
		return &Degraded{Index: name, Reason: reason}
	}
	if h.Closed() {
		return &Degraded{Index: name, Reason: "store closed"}
	}
	if marker := h.LockMarker(); marker != "" {
		if _, err := os.Stat(marker); errors.Is(err, os.ErrNotExist) {
			return &Degraded{Index: name, Reason: "lock marker missing", Cause: err}
		}
	}

	r, err := h.Reader()
	if err != nil {
		return &Degraded{Index: name, Reason: "reader unavailable", Cause: err}
	}
	defer func() { _ = r.Close() }()
	if _, err := r.DocCount(); err != nil {
		return &Degraded{Index: name, Reason: "snapshot unreadable", Cause: err}
	}
	return nil
}

// IndexReport is the diagnostic summary of one index.
type IndexReport struct {
	Name       string                 `json:"name"`
	Available  bool                   `json:"available"`
	Healthy    bool                   `json:"healthy"`
	Reason     string                 `json:"reason,omitempty"`
	Documents  int                    `json:"documents"`
	Fields     int                    `json:"fields"`
	Generation uint64                 `json:"generation"`
	Writer     *writer.StatusSnapshot `json:"writer,omitempty"`
}

// Report gathers every index's report in parallel, sorted by name.
func Report(ctx context.Context, reg *registry.Registry, m *metrics.Metrics) ([]IndexReport, error) {
	all := reg.All()
	reports := make([]IndexReport, len(all))

	g, ctx := errgroup.WithContext(ctx)
	for i, idx := range all {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = report(idx)
			m.SetAvailable(idx.Name(), reports[i].Healthy)
			if reports[i].Healthy {
				m.SetDocuments(idx.Name(), reports[i].Documents)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func report(idx *registry.Index) IndexReport {
	rep := IndexReport{Name: idx.Name(), Available: idx.Available()}
	if !rep.Available {
		rep.Reason = idx.Err.Error()
		return rep
	}

	h := idx.Handle
	rep.Generation = h.Generation()
	if idx.Writer != nil {
		st := idx.Writer.Status()
		rep.Writer = &st
	}

	if err := IsHealthy(h); err != nil {
		rep.Reason = err.Error()
		return rep
	}

	docs, derr := DocumentCount(h)
	fields, ferr := FieldCount(h)
	if err := errors.Join(derr, ferr); err != nil {
		rep.Reason = err.Error()
		return rep
	}
	rep.Healthy = true
	rep.Documents = docs
	rep.Fields = fields
	return rep
}

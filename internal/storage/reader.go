package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	cmserrors "github.com/Aman-CERP/cmsindex/internal/errors"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// Request is a query executed against a pinned snapshot.
type Request struct {
	Query query.Query
	Size  int
	From  int
	// Fields loads the stored fields of every hit.
	Fields bool
}

// Hit is one search result.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string][]any
}

// Result is the page of hits plus the total match count.
type Result struct {
	Hits  []Hit
	Total uint64
}

// Reader is a point-in-time view of an index.
type Reader struct {
	index      string
	r          index.IndexReader
	mapping    mapping.IndexMapping
	generation uint64

	closeOnce sync.Once
	closeErr  error
}

// Generation is the handle generation the snapshot was pinned at.
func (r *Reader) Generation() uint64 { return r.generation }

// Search executes req. Scores sort descending.
func (r *Reader) Search(ctx context.Context, req Request) (*Result, error) {
	if req.Query == nil {
		return &Result{}, nil
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	searcher, err := req.Query.Searcher(ctx, r.r, r.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, cmserrors.New(cmserrors.ErrCodeSearchFailed,
			fmt.Sprintf("index %s: build searcher", r.index), err)
	}
	defer func() { _ = searcher.Close() }()

	coll := collector.NewTopNCollector(req.Size, req.From, search.SortOrder{&search.SortScore{Desc: true}})
	if err := coll.Collect(ctx, searcher, r.r); err != nil {
		return nil, cmserrors.New(cmserrors.ErrCodeSearchFailed,
			fmt.Sprintf("index %s: search", r.index), err)
	}

	matches := coll.Results()
	res := &Result{Total: coll.Total(), Hits: make([]Hit, 0, len(matches))}
	for _, m := range matches {
		hit := Hit{ID: m.ID, Score: m.Score}
		if req.Fields {
			doc, err := r.Document(m.ID)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				hit.Fields = doc
			}
		}
		res.Hits = append(res.Hits, hit)
	}
	return res, nil
}

// DocCount is the number of documents in the snapshot.
func (r *Reader) DocCount() (uint64, error) {
	n, err := r.r.DocCount()
	if err != nil {
		return 0, cmserrors.Wrap(cmserrors.ErrCodeStoreUnavailable, err)
	}
	return n, nil
}

// Fields lists the distinct indexed field names, internal bleve fields excluded.
func (r *Reader) Fields() ([]string, error) {
	names, err := r.r.Fields()
	if err != nil {
		return nil, cmserrors.Wrap(cmserrors.ErrCodeStoreUnavailable, err)
	}
	out := names[:0]
	for _, n := range names {
		if isInternalField(n) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Document returns the stored fields of id, nil if absent.
func (r *Reader) Document(id string) (map[string][]any, error) {
	doc, err := r.r.Document(id)
	if err != nil {
		return nil, cmserrors.Wrap(cmserrors.ErrCodeStoreUnavailable, err)
	}
	if doc == nil {
		return nil, nil
	}

	fields := make(map[string][]any)
	doc.VisitFields(func(f index.Field) {
		name := f.Name()
		if isInternalField(name) {
			return
		}
		if v, ok := storedValue(f); ok {
			fields[name] = append(fields[name], v)
		}
	})
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// IDsWithPathSegment returns every id whose path holds nodeID as a whole segment.
func (r *Reader) IDsWithPathSegment(ctx context.Context, nodeID string) ([]string, error) {
	total, err := r.DocCount()
	if err != nil || total == 0 {
		return nil, err
	}

	q := query.NewTermQuery(nodeID)
	q.SetField(valueset.FieldPathIDs)

	res, err := r.Search(ctx, Request{Query: q, Size: int(total)})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// Close releases the snapshot. Safe to call twice.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.r.Close()
	})
	return r.closeErr
}

func isInternalField(name string) bool {
	return strings.HasPrefix(name, "_") && !strings.HasPrefix(name, valueset.SystemFieldPrefix)
}

func storedValue(f index.Field) (any, bool) {
	switch tf := f.(type) {
	case interface{ Number() (float64, error) }:
		n, err := tf.Number()
		return n, err == nil
	case interface{ Boolean() (bool, error) }:
		b, err := tf.Boolean()
		return b, err == nil
	case interface{ Text() string }:
		return tf.Text(), true
	}
	return nil, false
}

package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/storage"
	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// DefaultPageSize is used when a request names none.
const DefaultPageSize = 20

// IndexSource picks the index an entity type is searched in.
type IndexSource interface {
	ForEntityType(et valueset.EntityType) (*storage.Handle, error)
}

// Request is one administrative search.
type Request struct {
	Text       string
	EntityType valueset.EntityType
	Scope      Scope
	PageSize   int
	PageIndex  int
}

// Hit is one matching document.
type Hit struct {
	ID     string           `json:"id"`
	Score  float64          `json:"score"`
	Fields map[string][]any `json:"fields,omitempty"`
}

// Results is one page of hits.
type Results struct {
	Index      string `json:"index"`
	Query      string `json:"query,omitempty"`
	Hits       []Hit  `json:"hits"`
	TotalFound uint64 `json:"total_found"`
}

// Searcher executes requests against the registry's indexes.
type Searcher struct {
	source  IndexSource
	builder *Builder
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewSearcher creates a Searcher.
func NewSearcher(source IndexSource, builder *Builder, m *metrics.Metrics, log *slog.Logger) *Searcher {
	if log == nil {
		log = slog.Default()
	}
	return &Searcher{source: source, builder: builder, metrics: m, log: log}
}

// Builder returns the searcher's query builder.
func (s *Searcher) Builder() *Builder { return s.builder }

// Search runs req. A query that cannot be built yields an empty page, not an error.
func (s *Searcher) Search(ctx context.Context, req Request) (*Results, error) {
	h, err := s.source.ForEntityType(req.EntityType)
	if err != nil {
		return nil, err
	}
	out := &Results{Index: h.Name(), Hits: []Hit{}}

	sq, err := s.builder.Build(ctx, req.Text, req.EntityType, req.Scope)
	if err != nil {
		s.log.Debug("search_query_not_built",
			slog.String("index", h.Name()),
			slog.String("error", err.Error()))
		return out, nil
	}
	out.Query = sq.Text
	if sq.Empty || sq.MatchNone {
		return out, nil
	}

	size := req.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	from := req.PageIndex * size
	if from < 0 {
		from = 0
	}

	start := time.Now()
	res, err := s.execute(ctx, h, storage.Request{Query: sq.Query, Size: size, From: from, Fields: true})
	s.metrics.ObserveQuery(h.Name(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	out.TotalFound = res.Total
	for _, hit := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: hit.ID, Score: hit.Score, Fields: hit.Fields})
	}
	s.log.Debug("search_executed",
		slog.String("index", h.Name()),
		slog.String("query", sq.Text),
		slog.Uint64("total", res.Total),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

func (s *Searcher) execute(ctx context.Context, h *storage.Handle, req storage.Request) (*storage.Result, error) {
	r, err := h.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return r.Search(ctx, req)
}

package writer

import (
	"sync"
	"time"
)

// StatusSnapshot is an immutable view of a writer's progress.
type StatusSnapshot struct {
	Index      string    `json:"index"`
	Pending    int       `json:"pending"`
	Batches    int       `json:"batches"`
	Failures   int       `json:"failures"`
	Upserted   int       `json:"upserted"`
	Deleted    int       `json:"deleted"`
	Skipped    int       `json:"skipped"`
	Generation uint64    `json:"generation"`
	LastCommit time.Time `json:"last_commit,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// status provides thread-safe tracking of writer progress.
type status struct {
	mu sync.RWMutex

	index      string
	pending    int
	batches    int
	failures   int
	upserted   int
	deleted    int
	skipped    int
	generation uint64
	lastCommit time.Time
	lastError  string
}

func (s *status) enqueued() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
}

func (s *status) dequeued() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending--
}

func (s *status) committed(r *CommitReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches++
	s.upserted += r.Upserted
	s.deleted += r.Deleted
	s.skipped += r.Skipped
	s.generation = r.Generation
	s.lastCommit = time.Now()
}

func (s *status) failed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	s.lastError = err.Error()
}

func (s *status) snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatusSnapshot{
		Index:      s.index,
		Pending:    s.pending,
		Batches:    s.batches,
		Failures:   s.failures,
		Upserted:   s.upserted,
		Deleted:    s.deleted,
		Skipped:    s.skipped,
		Generation: s.generation,
		LastCommit: s.lastCommit,
		LastError:  s.lastError,
	}
}

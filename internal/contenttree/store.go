// Package contenttree keeps the node paths and public-access entries the
// indexes need to validate items and scope searches.
package contenttree

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/cmsindex/internal/valueset"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("content tree store closed")

// Node is one tree entry.
type Node struct {
	ID       string
	Path     valueset.Path
	Key      string
	Category valueset.Category
}

// Trashed reports whether the node sits below its category's recycle bin.
func (n Node) Trashed() bool {
	bin := valueset.RecycleBinRoot(n.Category)
	return bin != "" && n.Path.Contains(bin)
}

// Store is a SQLite-backed content tree.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	node_key   TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);

CREATE TABLE IF NOT EXISTS public_access (
	node_id    TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
`

// Open opens the store at path. An empty path opens an in-memory store.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Upsert records or replaces nodes.
func (s *Store) Upsert(ctx context.Context, nodes ...Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, path, node_key, category, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			node_key = excluded.node_key,
			category = excluded.category,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, n.ID, n.Path.String(), n.Key, string(n.Category), now); err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns the node with id.
func (s *Store) Get(ctx context.Context, id string) (Node, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return Node{}, false, err
	}

	var n Node
	var path, category string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, node_key, category FROM nodes WHERE id = ?`, id).
		Scan(&n.ID, &path, &n.Key, &category)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, fmt.Errorf("failed to get node %s: %w", id, err)
	}
	n.Path = valueset.Path(path)
	n.Category = valueset.Category(category)
	return n, true, nil
}

// Path returns the path of node id.
func (s *Store) Path(ctx context.Context, id string) (valueset.Path, bool, error) {
	n, ok, err := s.Get(ctx, valueset.NodeID(id))
	return n.Path, ok, err
}

// Descendants returns the nodes strictly below id.
func (s *Store) Descendants(ctx context.Context, id string) ([]Node, error) {
	root, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	prefix := root.Path.String() + valueset.PathSeparator
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, node_key, category FROM nodes
		WHERE substr(path, 1, ?) = ?
		ORDER BY length(path), id`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query descendants: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n Node
		var path, category string
		if err := rows.Scan(&n.ID, &path, &n.Key, &category); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Path = valueset.Path(path)
		n.Category = valueset.Category(category)
		out = append(out, n)
	}
	return out, rows.Err()
}

// Move re-parents id under newParent and rewrites every descendant path.
// It returns the moved node and its descendants with their new paths.
func (s *Store) Move(ctx context.Context, id string, newParent valueset.Path) ([]Node, error) {
	node, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("node %s not found", id)
	}
	oldPath := node.Path.String()
	newPath := valueset.JoinPath(append(newParent.Segments(), node.ID)...).String()

	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE nodes
		SET path = ? || substr(path, ?), updated_at = ?
		WHERE path = ? OR substr(path, 1, ?) = ?`,
		newPath, len(oldPath)+1, time.Now().Unix(),
		oldPath, len(oldPath)+1, oldPath+valueset.PathSeparator)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to move node %s: %w", id, err)
	}

	moved, _, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	below, err := s.Descendants(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]Node{moved}, below...), nil
}

// Delete removes id, its descendants, and their public-access entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	node, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	path := node.Path.String()
	prefix := path + valueset.PathSeparator
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM public_access WHERE node_id IN (
			SELECT id FROM nodes WHERE path = ? OR substr(path, 1, ?) = ?)`,
		path, len(prefix), prefix); err != nil {
		return fmt.Errorf("failed to delete public access: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM nodes WHERE path = ? OR substr(path, 1, ?) = ?`,
		path, len(prefix), prefix); err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}
	return tx.Commit()
}

// SetPublicAccess marks nodeID as protected.
func (s *Store) SetPublicAccess(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO public_access (node_id, created_at) VALUES (?, ?)`,
		nodeID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set public access on %s: %w", nodeID, err)
	}
	return nil
}

// RemovePublicAccess lifts the protection of nodeID.
func (s *Store) RemovePublicAccess(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM public_access WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("failed to remove public access on %s: %w", nodeID, err)
	}
	return nil
}

// IsProtected reports whether any node on path has a public-access entry.
func (s *Store) IsProtected(ctx context.Context, path valueset.Path) (bool, error) {
	segs := path.Segments()
	if len(segs) == 0 {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return false, err
	}

	placeholders := make([]byte, 0, len(segs)*2)
	args := make([]any, len(segs))
	for i, seg := range segs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = seg
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM public_access WHERE node_id IN (`+string(placeholders)+`)`, args...).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check public access: %w", err)
	}
	return count > 0, nil
}

// Package store provides the local record store for offline-first product
// data: an embedded SQLite database holding product records together with
// their sync metadata (dirty flag, tombstone, pending operation).
//
// The store is the single shared mutable resource of the sync subsystem.
// The UI read path observes it through a live query while the reconciler
// reads and writes it concurrently; WAL mode plus per-statement transactions
// keep every observed snapshot consistent (no torn per-record writes).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/errs"
)

// Store wraps the SQLite connection with product-record functionality.
type Store struct {
	conn *sql.DB
	path string
	log  *zap.Logger

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// Open creates a store at the given path, creating the parent directory and
// the schema if needed. The database runs in WAL mode so the live read path
// keeps working while the reconciler writes.
//
// The caller must Close() the store when done.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &errs.StorageError{Op: "open", Err: err}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, &errs.StorageError{Op: "open", Err: err}
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, &errs.StorageError{Op: "open", Err: err}
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
		log:  log,
		subs: make(map[int]chan struct{}),
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, &errs.StorageError{Op: "open", Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn("wal checkpoint failed", zap.Error(err))
	}
	if err := s.conn.Close(); err != nil {
		return &errs.StorageError{Op: "close", Err: err}
	}
	s.conn = nil
	return nil
}

// initSchema creates the products table and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL,
		model TEXT NOT NULL,
		storage TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL DEFAULT 0,
		imei TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '[]',  -- JSON array of URLs or local paths
		box_url TEXT NOT NULL DEFAULT '',
		invoice_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',

		-- Sync metadata
		is_synced INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL DEFAULT 0,  -- wall-clock millis
		deleted_locally INTEGER NOT NULL DEFAULT 0,
		pending_op TEXT NOT NULL DEFAULT '',       -- '', create, update, delete
		push_attempts INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_products_synced ON products(is_synced);
	CREATE INDEX IF NOT EXISTS idx_products_deleted ON products(deleted_locally);
	CREATE INDEX IF NOT EXISTS idx_products_modified ON products(last_modified);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return &errs.StorageError{Op: "init schema", Err: err}
	}
	return nil
}

// subscribe registers a notification channel that receives a signal after
// every committed write. The channel is buffered so notifiers never block;
// coalesced signals are fine because subscribers re-query current state.
func (s *Store) subscribe() (int, <-chan struct{}) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	return id, ch
}

func (s *Store) unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, id)
}

// notify wakes every live observer after a committed write.
func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

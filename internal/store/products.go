package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/model"
)

const recordColumns = `
	id, seller_id, brand, model, storage, price, imei, description,
	images, box_url, invoice_url, status, active, created_at, updated_at,
	is_synced, last_modified, deleted_locally, pending_op, push_attempts`

// Upsert inserts or replaces a record keyed by id and wakes observers.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if err := s.exec(ctx, "upsert", func(q execer) error {
		return upsertOne(ctx, q, rec)
	}); err != nil {
		return err
	}
	s.notify()
	return nil
}

// UpsertBatch inserts or replaces records in a single transaction. Used by
// the pull phase so observers see the refreshed list as one snapshot.
func (s *Store) UpsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return &errs.StorageError{Op: "upsert batch", Err: err}
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if err := upsertOne(ctx, tx, rec); err != nil {
			return &errs.StorageError{Op: "upsert batch", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &errs.StorageError{Op: "upsert batch", Err: err}
	}
	s.notify()
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertOne(ctx context.Context, q execer, rec Record) error {
	images, err := json.Marshal(rec.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	query := `
	INSERT INTO products (
		id, seller_id, brand, model, storage, price, imei, description,
		images, box_url, invoice_url, status, active, created_at, updated_at,
		is_synced, last_modified, deleted_locally, pending_op, push_attempts
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		seller_id = excluded.seller_id,
		brand = excluded.brand,
		model = excluded.model,
		storage = excluded.storage,
		price = excluded.price,
		imei = excluded.imei,
		description = excluded.description,
		images = excluded.images,
		box_url = excluded.box_url,
		invoice_url = excluded.invoice_url,
		status = excluded.status,
		active = excluded.active,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		is_synced = excluded.is_synced,
		last_modified = excluded.last_modified,
		deleted_locally = excluded.deleted_locally,
		pending_op = excluded.pending_op,
		push_attempts = excluded.push_attempts
	`

	_, err = q.ExecContext(ctx, query,
		rec.ID, rec.SellerID, rec.Brand, rec.Model, rec.Storage, rec.Price,
		rec.IMEI, rec.Description, string(images), rec.BoxURL, rec.InvoiceURL,
		rec.Status, boolToInt(rec.Active), rec.CreatedAt, rec.UpdatedAt,
		boolToInt(rec.IsSynced), rec.LastModified, boolToInt(rec.DeletedLocally),
		string(rec.Pending), rec.PushAttempts,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id, tombstoned or not, or
// errs.ErrNotFoundLocal. Callers that care must check DeletedLocally.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM products WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, errs.ErrNotFoundLocal
	}
	if err != nil {
		return Record{}, &errs.StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

// List returns all non-tombstoned records ordered by last_modified
// descending. This is the sole read path for the product list view.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, "list",
		`SELECT `+recordColumns+`
		 FROM products WHERE deleted_locally = 0
		 ORDER BY last_modified DESC`)
}

// ListUnsynced returns records with a pending push obligation, oldest local
// write first. Records whose push_attempts reached maxAttempts are skipped
// until a new local mutation resets the counter; pass 0 for no cutoff.
func (s *Store) ListUnsynced(ctx context.Context, maxAttempts int) ([]Record, error) {
	q := `SELECT ` + recordColumns + `
	      FROM products WHERE is_synced = 0`
	args := []any{}
	if maxAttempts > 0 {
		q += ` AND push_attempts < ?`
		args = append(args, maxAttempts)
	}
	q += ` ORDER BY last_modified ASC`
	return s.query(ctx, "list unsynced", q, args...)
}

// UnsyncedIDs returns the id set of every record with a pending push. The
// pull phase calls this immediately before filtering the remote list so a
// record re-dirtied after the push phase is never clobbered.
func (s *Store) UnsyncedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id FROM products WHERE is_synced = 0`)
	if err != nil {
		return nil, &errs.StorageError{Op: "unsynced ids", Err: err}
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &errs.StorageError{Op: "unsynced ids", Err: err}
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.StorageError{Op: "unsynced ids", Err: err}
	}
	return ids, nil
}

// DeleteByIDs hard-deletes records. Used after a confirmed remote delete and
// for the create-then-replace step. Idempotent.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if err := s.exec(ctx, "delete", func(q execer) error {
		_, err := q.ExecContext(ctx,
			`DELETE FROM products WHERE id IN (`+placeholders+`)`, args...)
		return err
	}); err != nil {
		return err
	}
	s.notify()
	return nil
}

// BumpPushAttempts increments the failed-push counter for a record.
func (s *Store) BumpPushAttempts(ctx context.Context, id string) error {
	return s.exec(ctx, "bump push attempts", func(q execer) error {
		_, err := q.ExecContext(ctx,
			`UPDATE products SET push_attempts = push_attempts + 1 WHERE id = ?`, id)
		return err
	})
}

// ClearAll wipes the store. Used for a full local reset on logout.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.exec(ctx, "clear", func(q execer) error {
		_, err := q.ExecContext(ctx, `DELETE FROM products`)
		return err
	}); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Counts reports total, unsynced, and tombstoned record counts.
func (s *Store) Counts(ctx context.Context) (total, unsynced, tombstoned int, err error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_synced = 0), 0),
		       COALESCE(SUM(deleted_locally = 1), 0)
		FROM products`)
	if scanErr := row.Scan(&total, &unsynced, &tombstoned); scanErr != nil {
		return 0, 0, 0, &errs.StorageError{Op: "counts", Err: scanErr}
	}
	return total, unsynced, tombstoned, nil
}

func (s *Store) exec(ctx context.Context, op string, fn func(execer) error) error {
	if err := fn(s.conn); err != nil {
		return &errs.StorageError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &errs.StorageError{Op: op, Err: err}
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &errs.StorageError{Op: op, Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.StorageError{Op: op, Err: err}
	}
	return recs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		images  string
		active  int
		synced  int
		deleted int
		pending string
	)
	err := row.Scan(
		&rec.ID, &rec.SellerID, &rec.Brand, &rec.Model, &rec.Storage,
		&rec.Price, &rec.IMEI, &rec.Description, &images, &rec.BoxURL,
		&rec.InvoiceURL, &rec.Status, &active, &rec.CreatedAt, &rec.UpdatedAt,
		&synced, &rec.LastModified, &deleted, &pending, &rec.PushAttempts,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(images), &rec.Images); err != nil {
		return Record{}, fmt.Errorf("unmarshal images for %s: %w", rec.ID, err)
	}
	rec.Active = active != 0
	rec.IsSynced = synced != 0
	rec.DeletedLocally = deleted != 0
	rec.Pending = PendingOp(pending)
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Products converts records to their domain representation.
func Products(recs []Record) []model.Product {
	out := make([]model.Product, len(recs))
	for i, rec := range recs {
		out[i] = rec.Product
	}
	return out
}

package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/remarket/remarket/internal/model"
)

// PendingOp names the push obligation a dirty record carries. It is an
// explicit field rather than something inferred from the id, so a
// server-issued id can never be misrouted as a pending create.
type PendingOp string

const (
	// OpNone means the record has no pending push (fully synced).
	OpNone PendingOp = ""
	// OpCreate means the record has never been confirmed by the server.
	OpCreate PendingOp = "create"
	// OpUpdate means the record exists remotely and carries local edits.
	OpUpdate PendingOp = "update"
	// OpDelete means the record is tombstoned and awaits remote deletion.
	OpDelete PendingOp = "delete"
)

// Record is a locally persisted product together with its sync metadata.
type Record struct {
	model.Product

	// IsSynced is true iff the business fields match the last known server
	// state and no local mutation is pending push.
	IsSynced bool

	// LastModified is the wall-clock millis of the last local write. Used
	// only for ordering within this device, never for conflict resolution.
	LastModified int64

	// DeletedLocally is the tombstone flag: hidden from reads, purged once
	// the reconciler confirms the remote delete.
	DeletedLocally bool

	// Pending is the push obligation the reconciler routes on.
	Pending PendingOp

	// PushAttempts counts consecutive failed pushes of this record. Reset
	// to zero by any new local mutation.
	PushAttempts int
}

// NewLocalRecord builds a dirty record for a not-yet-created product using a
// client-generated temporary id.
func NewLocalRecord(draft model.Draft, sellerID string) Record {
	p := draft.Apply(model.Product{})
	p.ID = NewLocalID()
	p.SellerID = sellerID
	p.Active = true
	p.Status = "pending"
	return Record{
		Product:      p,
		IsSynced:     false,
		LastModified: time.Now().UnixMilli(),
		Pending:      OpCreate,
	}
}

// NewSyncedRecord wraps a server representation as a fully-synced record.
func NewSyncedRecord(p model.Product) Record {
	return Record{
		Product:      p,
		IsSynced:     true,
		LastModified: time.Now().UnixMilli(),
		Pending:      OpNone,
	}
}

// NewLocalID returns a client-generated temporary product id.
func NewLocalID() string {
	return "local-" + uuid.NewString()
}

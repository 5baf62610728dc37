// Package repo provides the repository facade: the single entry point the
// presentation layer uses for product data, implementing the offline-first
// read/write contract.
//
// Reads are always served live from the record store. Mutations are written
// locally as dirty records and return immediately; the remote push happens
// asynchronously through the sync trigger. A mutation therefore succeeds
// even while offline; the record simply stays flagged unsynced until a
// reconcile run confirms it.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/api"
	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/model"
	"github.com/remarket/remarket/internal/session"
	"github.com/remarket/remarket/internal/store"
	"github.com/remarket/remarket/internal/syncer"
)

// SyncRequester schedules a reconcile run after a local mutation. The
// request must not block; runs are deduplicated (or not) by the trigger.
type SyncRequester interface {
	RequestSync()
}

// Uploader sends a local image to the media host and returns its remote URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Repository mediates between callers and the record store + reconciler.
type Repository struct {
	store      *store.Store
	gateway    api.Gateway
	reconciler *syncer.Reconciler
	trigger    SyncRequester
	uploader   Uploader
	sess       *session.Session
	log        *zap.Logger
}

// New wires the facade. trigger and uploader may be nil: without a trigger
// mutations are not followed by a scheduled sync (tests, one-shot CLI use);
// without an uploader image references are stored as-is.
func New(st *store.Store, gw api.Gateway, rec *syncer.Reconciler, trigger SyncRequester, uploader Uploader, sess *session.Session, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{
		store:      st,
		gateway:    gw,
		reconciler: rec,
		trigger:    trigger,
		uploader:   uploader,
		sess:       sess,
		log:        log,
	}
}

// Observe emits a Loading outcome, then the current product list as a
// Success outcome after every store write, until ctx is cancelled. The list
// never degrades to a Failure once data has been emitted; a store read
// failure on entry is reported once with a generic error.
func (r *Repository) Observe(ctx context.Context) <-chan Outcome[[]model.Product] {
	out := make(chan Outcome[[]model.Product], 1)

	go func() {
		defer close(out)

		send := func(o Outcome[[]model.Product]) bool {
			select {
			case out <- o:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(Loading[[]model.Product]()) {
			return
		}

		// Probe once so a broken store surfaces as a failure instead of a
		// silently empty stream.
		if _, err := r.store.List(ctx); err != nil {
			r.log.Error("product list read failed", zap.Error(err))
			send(Failure[[]model.Product](errors.New("could not read local products")))
			return
		}

		for recs := range r.store.Observe(ctx) {
			if !send(Success(store.Products(recs))) {
				return
			}
		}
	}()

	return out
}

// Create validates the draft, uploads any local images, writes a dirty
// record under a temporary id, and schedules a sync. Returns as soon as the
// local write is durable; the remote push is not awaited.
func (r *Repository) Create(ctx context.Context, draft model.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	draft.Images = r.uploadImages(ctx, draft.Images)
	if draft.BoxURL != "" {
		draft.BoxURL = r.uploadOne(ctx, draft.BoxURL)
	}
	if draft.InvoiceURL != "" {
		draft.InvoiceURL = r.uploadOne(ctx, draft.InvoiceURL)
	}

	rec := store.NewLocalRecord(draft, r.sellerID())
	if err := r.store.Upsert(ctx, rec); err != nil {
		return err
	}
	r.log.Info("product created locally", zap.String("id", rec.ID))
	r.requestSync()
	return nil
}

// Update overlays the draft onto an existing local record, marks it dirty,
// and schedules a sync. The record must exist locally.
func (r *Repository) Update(ctx context.Context, id string, draft model.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.DeletedLocally {
		return errs.ErrNotFoundLocal
	}

	rec.Product = draft.Apply(rec.Product)
	rec.IsSynced = false
	rec.LastModified = time.Now().UnixMilli()
	rec.PushAttempts = 0
	if rec.Pending != store.OpCreate {
		// A record the server already knows keeps update intent; one that
		// was never pushed stays a pending create.
		rec.Pending = store.OpUpdate
	}

	if err := r.store.Upsert(ctx, rec); err != nil {
		return err
	}
	r.requestSync()
	return nil
}

// Delete tombstones a local record and schedules a sync. The record is
// hidden from reads immediately but kept until the reconciler confirms the
// remote delete. A record the server never saw is purged outright.
func (r *Repository) Delete(ctx context.Context, id string) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.DeletedLocally {
		return errs.ErrNotFoundLocal
	}

	if rec.Pending == store.OpCreate {
		// Never reached the server; nothing to delete remotely.
		return r.store.DeleteByIDs(ctx, []string{id})
	}

	rec.IsSynced = false
	rec.DeletedLocally = true
	rec.Pending = store.OpDelete
	rec.LastModified = time.Now().UnixMilli()
	rec.PushAttempts = 0

	if err := r.store.Upsert(ctx, rec); err != nil {
		return err
	}
	r.requestSync()
	return nil
}

// GetByID emits Loading and then exactly one terminal outcome. A
// non-tombstoned local copy is served without a network round-trip; only
// when no local copy exists does the call fall through to the remote
// gateway, persisting the result on success. This asymmetry with the list
// view is deliberate: the detail view prefers the cache over a forced fetch.
func (r *Repository) GetByID(ctx context.Context, id string) <-chan Outcome[model.Product] {
	out := make(chan Outcome[model.Product], 2)

	go func() {
		defer close(out)
		out <- Loading[model.Product]()

		rec, err := r.store.Get(ctx, id)
		switch {
		case err == nil && !rec.DeletedLocally:
			out <- Success(rec.Product)
			return
		case err == nil && rec.DeletedLocally:
			out <- Failure[model.Product](errs.ErrNotFoundLocal)
			return
		case !errors.Is(err, errs.ErrNotFoundLocal):
			r.log.Error("local lookup failed", zap.String("id", id), zap.Error(err))
			out <- Failure[model.Product](errors.New("could not read local product"))
			return
		}

		product, err := r.gateway.Get(ctx, id)
		if err != nil {
			out <- Failure[model.Product](err)
			return
		}
		if err := r.store.Upsert(ctx, store.NewSyncedRecord(product)); err != nil {
			r.log.Warn("caching fetched product failed", zap.String("id", id), zap.Error(err))
		}
		out <- Success(product)
	}()

	return out
}

// Refresh runs the pull phase only, propagating failure to the caller
// without mutating any already-served state. Callers with local data are
// expected to swallow the failure and keep showing the cache.
func (r *Repository) Refresh(ctx context.Context) error {
	_, _, err := r.reconciler.Pull(ctx)
	return err
}

// SyncPending runs a full reconcile (push then pull). Used by the
// background trigger and the manual sync command.
func (r *Repository) SyncPending(ctx context.Context) (syncer.Result, error) {
	return r.reconciler.Reconcile(ctx)
}

// Report files a report against a listing. Reports go straight to the
// server; they are not queued offline.
func (r *Repository) Report(ctx context.Context, productID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return &errs.ValidationError{Field: "reason", Reason: "must not be empty"}
	}
	return r.gateway.Report(ctx, api.ReportRequest{ProductID: productID, Reason: reason})
}

func (r *Repository) requestSync() {
	if r.trigger != nil {
		r.trigger.RequestSync()
	}
}

func (r *Repository) sellerID() string {
	if r.sess == nil {
		return ""
	}
	return r.sess.UserID()
}

// uploadImages uploads each local image reference, keeping the local path
// when the upload fails. Entries that are already remote URLs pass through.
func (r *Repository) uploadImages(ctx context.Context, refs []string) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = r.uploadOne(ctx, ref)
	}
	return out
}

func (r *Repository) uploadOne(ctx context.Context, ref string) string {
	if r.uploader == nil || isRemoteURL(ref) {
		return ref
	}
	url, err := r.uploader.Upload(ctx, ref)
	if err != nil {
		// Keep the local reference and proceed; the next edit can retry.
		r.log.Warn("image upload failed, keeping local reference",
			zap.String("ref", ref), zap.Error(err))
		return ref
	}
	return url
}

func isRemoteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

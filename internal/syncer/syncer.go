// Package syncer implements the push-then-pull reconciliation between the
// local record store and the remote product API.
//
// A reconcile run first pushes every pending local mutation (create, update,
// delete), each record in isolation so one failure never aborts the rest,
// then pulls the authoritative remote list and merges it into the store,
// skipping any record that is still dirty. Per-record push effects are
// individually atomic; a cancelled or failed run leaves committed effects
// standing and requires no rollback.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/api"
	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/store"
)

// Reconciler synchronizes the record store against the remote gateway.
// Callers must not run two reconciles concurrently; the sync trigger
// enforces a single global run.
type Reconciler struct {
	store           *store.Store
	gateway         api.Gateway
	log             *zap.Logger
	maxPushAttempts int
}

// Result summarizes one reconcile run.
type Result struct {
	Pushed   int           // records whose push succeeded
	Failed   int           // records whose push failed (retried next run)
	Purged   int           // tombstones removed after confirmed remote delete
	Pulled   int           // remote records merged by the pull phase
	Skipped  int           // remote records excluded because a local copy is dirty
	Duration time.Duration
}

// New creates a Reconciler. maxPushAttempts is the dead-letter cutoff: a
// record that failed to push that many times in a row is skipped until a new
// local mutation resets its counter. Pass 0 to retry forever.
func New(st *store.Store, gw api.Gateway, log *zap.Logger, maxPushAttempts int) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:           st,
		gateway:         gw,
		log:             log,
		maxPushAttempts: maxPushAttempts,
	}
}

// Reconcile runs one complete push-then-pull pass. Push always completes
// before pull starts, so a record created during push influences what the
// pull phase excludes. The returned error reflects the pull phase only;
// per-record push failures are logged and retried on the next run.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	start := time.Now()

	result, err := r.Push(ctx)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	pulled, skipped, err := r.Pull(ctx)
	result.Pulled = pulled
	result.Skipped = skipped
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	r.log.Info("reconcile complete",
		zap.Int("pushed", result.Pushed),
		zap.Int("failed", result.Failed),
		zap.Int("purged", result.Purged),
		zap.Int("pulled", result.Pulled),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Push sends every pending local mutation to the server. Each record is
// handled independently: a failure bumps its attempt counter and the loop
// moves on. Only a local storage failure aborts the phase.
func (r *Reconciler) Push(ctx context.Context) (Result, error) {
	var result Result

	dirty, err := r.store.ListUnsynced(ctx, r.maxPushAttempts)
	if err != nil {
		return result, fmt.Errorf("list unsynced: %w", err)
	}
	if len(dirty) == 0 {
		return result, nil
	}

	r.log.Debug("pushing local changes", zap.Int("count", len(dirty)))

	for _, rec := range dirty {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		purged, err := r.pushOne(ctx, rec)
		if err != nil {
			result.Failed++
			r.log.Warn("push failed",
				zap.String("id", rec.ID),
				zap.String("op", string(rec.Pending)),
				zap.Int("attempts", rec.PushAttempts+1),
				zap.Error(err))
			if bumpErr := r.store.BumpPushAttempts(ctx, rec.ID); bumpErr != nil {
				r.log.Warn("bump push attempts failed", zap.String("id", rec.ID), zap.Error(bumpErr))
			}
			if r.maxPushAttempts > 0 && rec.PushAttempts+1 >= r.maxPushAttempts {
				r.log.Warn("record reached push attempt cutoff; parking until next local edit",
					zap.String("id", rec.ID))
			}
			continue
		}
		result.Pushed++
		if purged {
			result.Purged++
		}
	}

	return result, nil
}

// pushOne applies a single record's pending operation remotely and commits
// the outcome locally. Returns whether a tombstone was purged.
func (r *Reconciler) pushOne(ctx context.Context, rec store.Record) (bool, error) {
	switch {
	case rec.DeletedLocally || rec.Pending == store.OpDelete:
		err := r.gateway.Delete(ctx, rec.ID)
		if err != nil && !isRemoteGone(err) {
			return false, err
		}
		if err := r.store.DeleteByIDs(ctx, []string{rec.ID}); err != nil {
			return false, err
		}
		return true, nil

	case rec.Pending == store.OpCreate:
		created, err := r.gateway.Create(ctx, api.RequestFrom(rec.Product))
		if err != nil {
			return false, err
		}
		// Replace the temporary record with the server-confirmed one. The
		// tombstone-free delete happens first so the temporary id never
		// coexists with the server id; a crash in between is healed by the
		// next pull.
		if err := r.store.DeleteByIDs(ctx, []string{rec.ID}); err != nil {
			return false, err
		}
		if err := r.store.Upsert(ctx, store.NewSyncedRecord(created)); err != nil {
			return false, err
		}
		return false, nil

	default:
		// OpUpdate, plus any dirty record with no explicit op left behind
		// by older versions of the schema.
		updated, err := r.gateway.Update(ctx, rec.ID, api.RequestFrom(rec.Product))
		if err != nil {
			return false, err
		}
		if err := r.store.Upsert(ctx, store.NewSyncedRecord(updated)); err != nil {
			return false, err
		}
		return false, nil
	}
}

// Pull fetches the authoritative remote list and merges it into the store.
// A transport failure propagates without touching local state; the local
// cache remains the fallback. The unsynced id set is recomputed here, not
// reused from the push phase, so a record re-dirtied in between is never
// clobbered by a stale remote copy.
func (r *Reconciler) Pull(ctx context.Context) (pulled, skipped int, err error) {
	remote, err := r.gateway.List(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("pull product list: %w", err)
	}

	dirtyIDs, err := r.store.UnsyncedIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	recs := make([]store.Record, 0, len(remote))
	for _, p := range remote {
		if dirtyIDs[p.ID] {
			skipped++
			continue
		}
		recs = append(recs, store.NewSyncedRecord(p))
	}

	if err := r.store.UpsertBatch(ctx, recs); err != nil {
		return 0, skipped, err
	}
	return len(recs), skipped, nil
}

// isRemoteGone reports whether a delete failed only because the server no
// longer has the record; that counts as a confirmed deletion.
func isRemoteGone(err error) bool {
	var se *errs.ServerError
	return errors.As(err, &se) && se.Status == 404
}

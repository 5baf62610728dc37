package store

import (
	"context"

	"go.uber.org/zap"
)

// Observe returns a live query over the non-tombstoned records: the current
// list is emitted immediately, then again after every committed write, until
// ctx is cancelled. Emissions are conflated: if the consumer is slow, stale
// snapshots are replaced rather than queued.
//
// Query failures inside the loop are logged and skipped; the observation
// keeps running and re-emits on the next write.
func (s *Store) Observe(ctx context.Context) <-chan []Record {
	out := make(chan []Record, 1)
	id, signal := s.subscribe()

	go func() {
		defer close(out)
		defer s.unsubscribe(id)

		emit := func() {
			recs, err := s.List(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("live query failed", zap.Error(err))
				}
				return
			}
			// Conflate: drop the undelivered snapshot, keep the newest.
			select {
			case <-out:
			default:
			}
			select {
			case out <- recs:
			case <-ctx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				emit()
			}
		}
	}()

	return out
}

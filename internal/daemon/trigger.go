// Package daemon provides the sync trigger: the scheduler that decides when
// the reconciler runs and enforces the single-run constraint.
//
// Runs are requested from four sources:
//  1. a periodic tick (hours-scale interval)
//  2. a one-shot request after any local mutation
//  3. a connectivity regained edge from the network monitor
//  4. a manual request from the foreground
//
// All requests funnel into one queue drained by a single worker goroutine,
// so at most one reconcile executes system-wide. One-shot requests are not
// deduplicated; runs are idempotent because the push phase re-reads current
// unsynced state. Every run requires connectivity; a run whose pull phase
// fails is retried with exponential backoff.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/netmon"
	"github.com/remarket/remarket/internal/syncer"
)

// Config holds trigger scheduling settings.
type Config struct {
	// Interval between periodic background runs.
	Interval time.Duration
	// BackoffBase is the first retry delay after a failed run; subsequent
	// delays grow exponentially.
	BackoffBase time.Duration
	// MaxRetries bounds backoff retries per failed run. Giving up leaves
	// record-level state untouched; the next scheduled run picks the
	// work up again.
	MaxRetries uint64
}

// DefaultConfig returns scheduling defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    6 * time.Hour,
		BackoffBase: 30 * time.Second,
		MaxRetries:  5,
	}
}

// RunListener observes completed reconcile runs (dashboard, stats).
type RunListener func(result syncer.Result, err error)

// Trigger schedules reconcile runs.
type Trigger struct {
	cfg        Config
	reconciler *syncer.Reconciler
	monitor    *netmon.Monitor
	log        *zap.Logger

	requests  chan struct{}
	intervals chan time.Duration

	mu        sync.Mutex
	listeners []RunListener
	running   bool

	wg sync.WaitGroup
}

// New creates a trigger. The monitor may be nil, in which case runs are
// attempted unconditionally (tests, one-shot CLI mode).
func New(cfg Config, rec *syncer.Reconciler, mon *netmon.Monitor, log *zap.Logger) *Trigger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trigger{
		cfg:        cfg,
		reconciler: rec,
		monitor:    mon,
		log:        log,
		// One-shot requests are allowed to pile up; the queue is bounded
		// only to keep a misbehaving caller from growing it without limit.
		requests:  make(chan struct{}, 64),
		intervals: make(chan time.Duration, 1),
	}
}

// UpdateInterval changes the periodic run interval of a started trigger.
// Used by config hot reload. A non-positive interval is ignored.
func (t *Trigger) UpdateInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case t.intervals <- d:
	default:
		// A pending update is superseded; drain and replace.
		select {
		case <-t.intervals:
		default:
		}
		select {
		case t.intervals <- d:
		default:
		}
	}
}

// RequestSync enqueues a one-shot run. Never blocks; when the queue is full
// the request is dropped, which is safe because a queued run already covers
// the same pending state.
func (t *Trigger) RequestSync() {
	select {
	case t.requests <- struct{}{}:
	default:
		t.log.Debug("sync request queue full, dropping request")
	}
}

// OnRunComplete registers a listener invoked after every executed run.
func (t *Trigger) OnRunComplete(fn RunListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Start runs the scheduling loops until ctx is cancelled. Blocks.
func (t *Trigger) Start(ctx context.Context) {
	t.log.Info("sync trigger starting",
		zap.Duration("interval", t.cfg.Interval))

	var edges <-chan bool
	cancelSub := func() {}
	if t.monitor != nil {
		edges, cancelSub = t.monitor.Subscribe()
	}
	defer cancelSub()

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	// Initial run so a restart with queued offline work converges promptly.
	t.RequestSync()

	for {
		select {
		case <-ctx.Done():
			t.wg.Wait()
			t.log.Info("sync trigger stopped")
			return

		case <-ticker.C:
			t.runOnce(ctx, "periodic")

		case online := <-edges:
			if online {
				t.runOnce(ctx, "connectivity regained")
			}

		case d := <-t.intervals:
			t.log.Info("sync interval updated", zap.Duration("interval", d))
			ticker.Reset(d)

		case <-t.requests:
			t.runOnce(ctx, "mutation")
		}
	}
}

// RunNow executes a reconcile immediately on the caller's goroutine, used by
// the manual sync path. It shares the single-flight guard with scheduled
// runs.
func (t *Trigger) RunNow(ctx context.Context) (syncer.Result, error) {
	return t.run(ctx)
}

// runOnce executes one scheduled run with backoff retries on failure.
func (t *Trigger) runOnce(ctx context.Context, reason string) {
	if t.monitor != nil && !t.monitor.Online() {
		t.log.Debug("skipping sync run, offline", zap.String("reason", reason))
		return
	}

	t.log.Debug("sync run", zap.String("reason", reason))

	backoff := retry.WithMaxRetries(t.cfg.MaxRetries,
		retry.NewExponential(t.cfg.BackoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := t.run(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrSyncInProgress) {
			// A concurrent manual run covers the same pending state;
			// dropping this trigger is safe.
			t.log.Debug("sync already running, dropping trigger",
				zap.String("reason", reason))
			return nil
		}
		if errs.IsRetryable(err) {
			t.log.Warn("sync run failed, will retry", zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		t.log.Error("sync run gave up", zap.String("reason", reason), zap.Error(err))
	}
}

// run executes a single reconcile under the single-flight guard.
func (t *Trigger) run(ctx context.Context) (syncer.Result, error) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return syncer.Result{}, errs.ErrSyncInProgress
	}
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		t.wg.Done()
	}()

	result, err := t.reconciler.Reconcile(ctx)
	t.notify(result, err)
	return result, err
}

func (t *Trigger) notify(result syncer.Result, err error) {
	t.mu.Lock()
	listeners := make([]RunListener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(result, err)
	}
}

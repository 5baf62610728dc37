package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/remarket/remarket/internal/api"
	"github.com/remarket/remarket/internal/errs"
	"github.com/remarket/remarket/internal/model"
	"github.com/remarket/remarket/internal/netmon"
	"github.com/remarket/remarket/internal/store"
	"github.com/remarket/remarket/internal/syncer"
)

// blockingGateway lets a test hold a reconcile open to exercise the
// single-flight guard.
type blockingGateway struct {
	mu      sync.Mutex
	lists   int
	release chan struct{} // when non-nil, List blocks until closed
}

func (g *blockingGateway) List(ctx context.Context) ([]model.Product, error) {
	g.mu.Lock()
	g.lists++
	release := g.release
	g.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func (g *blockingGateway) listCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lists
}

func (g *blockingGateway) Get(ctx context.Context, id string) (model.Product, error) {
	return model.Product{}, fmt.Errorf("not used")
}

func (g *blockingGateway) Create(ctx context.Context, req api.ProductRequest) (model.Product, error) {
	return model.Product{}, fmt.Errorf("not used")
}

func (g *blockingGateway) Update(ctx context.Context, id string, req api.ProductRequest) (model.Product, error) {
	return model.Product{}, fmt.Errorf("not used")
}

func (g *blockingGateway) Delete(ctx context.Context, id string) error {
	return fmt.Errorf("not used")
}

func (g *blockingGateway) Report(ctx context.Context, req api.ReportRequest) error {
	return nil
}

func newTestTrigger(t *testing.T, gw api.Gateway, mon *netmon.Monitor) *Trigger {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trigger.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{Interval: time.Hour, BackoffBase: time.Millisecond, MaxRetries: 1}
	return New(cfg, syncer.New(st, gw, nil, 0), mon, nil)
}

func TestRunNow(t *testing.T) {
	gw := &blockingGateway{}
	trig := newTestTrigger(t, gw, nil)

	if _, err := trig.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if got := gw.listCount(); got != 1 {
		t.Errorf("Expected 1 reconcile, got %d", got)
	}
}

func TestSingleFlight(t *testing.T) {
	gw := &blockingGateway{release: make(chan struct{})}
	trig := newTestTrigger(t, gw, nil)

	started := make(chan struct{})
	go func() {
		close(started)
		trig.RunNow(context.Background())
	}()
	<-started

	// Wait for the first run to reach the gateway.
	deadline := time.After(2 * time.Second)
	for gw.listCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("First run never reached the gateway")
		case <-time.After(time.Millisecond):
		}
	}

	_, err := trig.RunNow(context.Background())
	if err != errs.ErrSyncInProgress {
		t.Errorf("Expected ErrSyncInProgress for a concurrent run, got %v", err)
	}

	close(gw.release)
}

func TestRequestSyncNeverBlocks(t *testing.T) {
	trig := newTestTrigger(t, &blockingGateway{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			trig.RequestSync()
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestSync blocked with a full queue")
	}
}

func TestStartRunsOnRequest(t *testing.T) {
	gw := &blockingGateway{}
	trig := newTestTrigger(t, gw, nil)

	completed := make(chan struct{}, 8)
	trig.OnRunComplete(func(result syncer.Result, err error) {
		completed <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go trig.Start(ctx)

	// Start issues an initial run by itself.
	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("Initial run never completed")
	}

	trig.RequestSync()
	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("Requested run never completed")
	}
}

func TestOfflineSkipsRuns(t *testing.T) {
	gw := &blockingGateway{}

	offline := func(ctx context.Context) bool { return false }
	mon := netmon.New(netmon.DefaultConfig("unused:1"), offline, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Start(ctx)

	// Let the first probe land so Online() is authoritative.
	deadline := time.After(2 * time.Second)
	for mon.Online() {
		select {
		case <-deadline:
			t.Fatal("Monitor never settled offline")
		case <-time.After(time.Millisecond):
		}
	}

	trig := newTestTrigger(t, gw, mon)
	trig.runOnce(ctx, "test")

	if got := gw.listCount(); got != 0 {
		t.Errorf("Expected no reconcile while offline, got %d", got)
	}
}

func TestConnectivityEdgeTriggersRun(t *testing.T) {
	gw := &blockingGateway{}

	var mu sync.Mutex
	online := false
	probe := func(ctx context.Context) bool {
		mu.Lock()
		defer mu.Unlock()
		return online
	}

	cfg := netmon.DefaultConfig("unused:1")
	cfg.Interval = 5 * time.Millisecond
	mon := netmon.New(cfg, probe, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mon.Start(ctx)

	trig := newTestTrigger(t, gw, mon)
	completed := make(chan struct{}, 8)
	trig.OnRunComplete(func(result syncer.Result, err error) {
		completed <- struct{}{}
	})
	go trig.Start(ctx)

	// The initial request is skipped while offline; flipping the probe must
	// produce an edge that triggers a run.
	mu.Lock()
	online = true
	mu.Unlock()

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("Run not triggered by connectivity regain")
	}
}

package netmon

import (
	"context"
	"sync"
	"testing"
	"time"
)

// flipProbe is a probe whose result the test controls.
type flipProbe struct {
	mu     sync.Mutex
	online bool
}

func (p *flipProbe) set(online bool) {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}

func (p *flipProbe) probe(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// startMonitor subscribes before the first probe so the initial state edge
// is never missed.
func startMonitor(t *testing.T, p *flipProbe) (*Monitor, <-chan bool, func()) {
	t.Helper()
	cfg := DefaultConfig("unused:1")
	cfg.Interval = 5 * time.Millisecond
	m := New(cfg, p.probe, nil)

	edges, cancelSub := m.Subscribe()
	t.Cleanup(cancelSub)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(cancel)
	return m, edges, cancelSub
}

func waitBool(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Errorf("Edge = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %v edge", want)
	}
}

func TestOnlineBeforeFirstProbe(t *testing.T) {
	m := New(DefaultConfig("unused:1"), func(ctx context.Context) bool { return true }, nil)
	if m.Online() {
		t.Error("Online must report false before the first probe")
	}
}

func TestEdgeOnTransition(t *testing.T) {
	p := &flipProbe{}
	m, edges, _ := startMonitor(t, p)

	// The first probe establishes the initial state, which is itself an
	// edge for subscribers.
	waitBool(t, edges, false)

	p.set(true)
	waitBool(t, edges, true)
	if !m.Online() {
		t.Error("Online() out of step with delivered edge")
	}

	p.set(false)
	waitBool(t, edges, false)
}

func TestNoEdgeWithoutTransition(t *testing.T) {
	p := &flipProbe{online: true}
	_, edges, _ := startMonitor(t, p)

	waitBool(t, edges, true)

	// Steady state: several probe intervals pass with no change.
	select {
	case got := <-edges:
		t.Errorf("Unexpected edge %v in steady state", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConflationKeepsLatestEdge(t *testing.T) {
	p := &flipProbe{}
	m, edges, _ := startMonitor(t, p)

	waitBool(t, edges, false)

	// Don't read while the state flips twice; the stale edge must be
	// replaced, not queued.
	p.set(true)
	time.Sleep(20 * time.Millisecond)
	p.set(false)
	time.Sleep(20 * time.Millisecond)

	waitBool(t, edges, false)
	if m.Online() {
		t.Error("Expected final state offline")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := &flipProbe{}
	_, edges, cancelSub := startMonitor(t, p)

	waitBool(t, edges, false)
	cancelSub()

	p.set(true)
	time.Sleep(20 * time.Millisecond)

	select {
	case _, ok := <-edges:
		if ok {
			t.Error("Edge delivered after unsubscribe")
		}
	default:
	}
}

// Package netmon provides the connectivity collaborator: a live boolean
// "network is usable" signal with edge-triggered notifications on change.
//
// Connectivity is determined by probing a TCP endpoint (normally the API
// host) on an interval. There is no portable equivalent of a platform
// connectivity callback, so the monitor polls and reports transitions.
package netmon

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc dials the probe target; it exists so tests can fake the network.
type ProbeFunc func(ctx context.Context) bool

// Config for the monitor.
type Config struct {
	// Addr is the host:port probed for reachability.
	Addr string
	// Interval between probes.
	Interval time.Duration
	// Timeout per probe attempt.
	Timeout time.Duration
}

// DefaultConfig returns probing defaults against the given address.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:     addr,
		Interval: 15 * time.Second,
		Timeout:  3 * time.Second,
	}
}

// Monitor polls connectivity and fans state transitions out to subscribers.
type Monitor struct {
	cfg   Config
	probe ProbeFunc
	log   *zap.Logger

	mu     sync.Mutex
	online bool
	known  bool
	subs   map[int]chan bool
	nextID int
}

// New creates a monitor. A nil probe uses a TCP dial against cfg.Addr.
func New(cfg Config, probe ProbeFunc, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		cfg:  cfg,
		log:  log,
		subs: make(map[int]chan bool),
	}
	if probe == nil {
		probe = m.dialProbe
	}
	m.probe = probe
	return m
}

func (m *Monitor) dialProbe(ctx context.Context) bool {
	d := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", m.cfg.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Start probes immediately and then on every interval tick until ctx is
// cancelled. Blocks; run it in its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.check(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs one probe and broadcasts if the state flipped.
func (m *Monitor) check(ctx context.Context) {
	online := m.probe(ctx)

	m.mu.Lock()
	changed := !m.known || online != m.online
	m.online = online
	m.known = true
	var targets []chan bool
	if changed {
		for _, ch := range m.subs {
			targets = append(targets, ch)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.Info("connectivity changed", zap.Bool("online", online))
	for _, ch := range targets {
		// Edge-triggered with conflation: replace an undelivered edge
		// rather than queueing; subscribers only care about the latest state.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- online:
		default:
		}
	}
}

// Online reports the last probed state. Before the first probe completes it
// reports false.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel that receives the new state on every
// transition. Release the subscription with the returned cancel func.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 1)
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

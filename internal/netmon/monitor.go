// Package netmon supplies the connectivity signal consumed by the sync
// coordinator. The monitor is a constructed instance: the probe, the
// simulation-mode source, and the clock are all injected.
package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/marcus/brewlog/internal/syncconfig"
)

// Monitor tracks online/offline state and notifies listeners on the
// offline-to-online edge (reconnect).
type Monitor struct {
	probe func(ctx context.Context) bool
	mode  func() syncconfig.SimMode

	mu        sync.Mutex
	online    bool
	known     bool
	listeners []func()
}

// New creates a Monitor. mode may be nil when no simulation override
// applies.
func New(probe func(ctx context.Context) bool, mode func() syncconfig.SimMode) *Monitor {
	if mode == nil {
		mode = func() syncconfig.SimMode { return syncconfig.SimNormal }
	}
	return &Monitor{probe: probe, mode: mode}
}

// DefaultProbe returns a probe that considers the network online when
// the server's health endpoint answers within two seconds.
func DefaultProbe(baseURL string) func(ctx context.Context) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/healthz", nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode < 500
	}
}

// Online reports current connectivity. The simulation override wins
// over the real probe: offline mode is always offline, slow mode is
// online (latency simulation is the transport's concern).
func (m *Monitor) Online(ctx context.Context) bool {
	if m.mode() == syncconfig.SimOffline {
		return false
	}
	return m.probe(ctx)
}

// OnReconnect registers a listener invoked on each offline-to-online edge.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Check probes connectivity once, fires reconnect listeners when the
// state flips from offline to online, and returns the current state.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.Online(ctx)

	m.mu.Lock()
	wasOnline, known := m.online, m.known
	m.online, m.known = online, true
	var fire []func()
	if known && !wasOnline && online {
		fire = append(fire, m.listeners...)
	}
	m.mu.Unlock()

	if len(fire) > 0 {
		slog.Info("network reconnected")
		for _, fn := range fire {
			fn()
		}
	}
	return online
}

// Watch probes on the given interval until ctx is cancelled.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

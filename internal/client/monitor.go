package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Monitor tracks server reachability. The transition from offline to
// online triggers exactly one drain; staying online does not re-trigger.
type Monitor struct {
	Probe   func(ctx context.Context) bool
	Drainer Drainer

	online atomic.Bool
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a connectivity observation. On the offline-to-online
// edge it kicks off a drain of the pending queue.
func (m *Monitor) SetOnline(ctx context.Context, online bool) {
	was := m.online.Swap(online)
	if was == online {
		return
	}

	if online {
		slog.Info("connectivity restored, draining queue")
		if m.Drainer != nil {
			if err := m.Drainer.TryDrain(ctx); err != nil {
				slog.Warn("drain on reconnect failed, queue retained", "error", err)
			}
		}
	} else {
		slog.Info("connectivity lost, queueing mutations locally")
	}
}

// Run probes reachability at the given interval until the context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.SetOnline(ctx, m.Probe(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(ctx, m.Probe(ctx))
		}
	}
}

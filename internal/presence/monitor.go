// Package presence tracks per-actor liveness from heartbeats and evicts
// actors whose last heartbeat has aged past the liveness threshold.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devastator99/socratic-gateway/internal/broker"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Monitor keeps a last-seen timestamp per wallet. A background sweep
// removes expired records and announces the transition on the broker's
// status channel.
type Monitor struct {
	mu      sync.RWMutex
	records map[string]time.Time

	threshold time.Duration
	interval  time.Duration
	broker    *broker.Broker
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a monitor. The threshold must exceed the sweep interval by
// a safety margin (enforced by config validation) so sweep jitter cannot
// flap an active actor offline.
func New(threshold, interval time.Duration, b *broker.Broker, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		records:   make(map[string]time.Time),
		threshold: threshold,
		interval:  interval,
		broker:    b,
		logger:    logger,
		now:       time.Now,
	}
}

// Heartbeat records the wallet as seen now.
func (m *Monitor) Heartbeat(wallet string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[wallet] = now
}

// IsOnline reports whether the wallet's last heartbeat is within the
// liveness threshold.
func (m *Monitor) IsOnline(wallet string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.records[wallet]
	return ok && m.now().Sub(last) <= m.threshold
}

// LastSeen returns the wallet's last heartbeat time, if tracked.
func (m *Monitor) LastSeen(wallet string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.records[wallet]
	return last, ok
}

// Online lists every wallet currently within the liveness threshold.
func (m *Monitor) Online() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	wallets := make([]string, 0, len(m.records))
	for wallet, last := range m.records {
		if now.Sub(last) <= m.threshold {
			wallets = append(wallets, wallet)
		}
	}
	return wallets
}

// Forget drops the wallet without an offline announcement. Used on
// explicit logout, where the router already reports the transition.
func (m *Monitor) Forget(wallet string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, wallet)
}

// Run sweeps on a fixed interval until ctx is cancelled. Sweep failures
// are logged and the next tick proceeds normally.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("presence sweep started",
		"interval", m.interval, "threshold", m.threshold)

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-ctx.Done():
			m.logger.Info("presence sweep stopped")
			return
		}
	}
}

// sweep evicts every record older than the threshold and emits one
// offline status envelope per evicted actor, carrying its last-seen time.
func (m *Monitor) sweep() {
	now := m.now()

	type eviction struct {
		wallet   string
		lastSeen time.Time
	}

	m.mu.Lock()
	var expired []eviction
	for wallet, last := range m.records {
		if now.Sub(last) > m.threshold {
			expired = append(expired, eviction{wallet: wallet, lastSeen: last})
			delete(m.records, wallet)
		}
	}
	m.mu.Unlock()

	// Publish outside the monitor lock; broker fan-out can touch many
	// connection queues.
	for _, ev := range expired {
		m.broker.Publish(types.StatusChannel, types.Envelope{
			Channel:   types.StatusChannel,
			Kind:      types.EnvelopeStatus,
			From:      ev.wallet,
			Timestamp: ev.lastSeen,
		})
	}

	if len(expired) > 0 {
		m.logger.Info("marked actors offline after heartbeat expiry",
			"count", len(expired))
	}
}

package hub

import (
	"log/slog"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/registry"
)

// DefaultHeartbeatInterval is used when the monitor is started with a
// non-positive interval.
const DefaultHeartbeatInterval = 30 * time.Second

// Monitor probes every registered connection once per interval and evicts
// any that has not confirmed liveness within twice that interval. Liveness
// is confirmed by an application-level pong envelope or by transport-level
// activity; both land in Conn.TouchPong.
type Monitor struct {
	hub      *Hub
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a monitor over the hub's registry.
func NewMonitor(h *Hub, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Monitor{hub: h, interval: interval}
}

// Interval returns the probe period. The eviction threshold is twice this.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start launches the heartbeat goroutine. The sweep runs synchronously
// inside the loop, so ticks never overlap. Call Stop to shut it down.
func (m *Monitor) Start() {
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop()
	slog.Info("heartbeat monitor started",
		"interval", m.interval,
		"timeout", 2*m.interval)
}

// Stop shuts down the heartbeat goroutine and waits for it to exit. No tick
// starts after Stop returns.
func (m *Monitor) Stop() {
	if m.stop != nil {
		close(m.stop)
		<-m.done
		m.stop = nil
		m.done = nil
	}
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep probes live connections and evicts overdue ones. Runs on the monitor
// goroutine only.
func (m *Monitor) sweep() {
	now := time.Now()
	deadline := 2 * m.interval

	var overdue []*registry.Conn
	for _, c := range m.hub.reg.Snapshot() {
		if now.Sub(c.LastPong()) > deadline {
			overdue = append(overdue, c)
			continue
		}
		c.TouchPing()
		c.Enqueue(&event.ServerMessage{Type: event.TypePing})
	}

	for _, c := range overdue {
		// Best effort; the peer is probably gone.
		_ = c.Send(event.ErrorReply("heartbeat timeout"))
		// Claim the removal before Close wakes the transport goroutines, so
		// the eviction and the resulting disconnect are counted once.
		removed := m.hub.reg.Remove(c.ID) != nil
		_ = c.Close()
		if removed {
			slog.Warn("evicting unresponsive connection",
				"client_id", c.ID,
				"last_pong", c.LastPong(),
				"timeout", deadline)
			m.hub.Notify(Notification{Kind: KindClientTimeout, ClientID: c.ID})
		}
	}
}

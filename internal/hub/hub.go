// Package hub is the dispatch authority: it assigns identity and order to
// published events, appends them to the replay ring, and fans them out to
// subscribed connections. The liveness monitor runs alongside, evicting
// connections that stop confirming heartbeats.
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/buffer"
	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/registry"
)

// DefaultReplayLimit is how many recent events a replay returns when the
// request carries no watermark and no count.
const DefaultReplayLimit = 100

// Hub routes events between ingress paths and subscribers. Both ingress
// paths (streaming and one-shot) land on Publish, so ordering, buffering and
// failure isolation are identical no matter where an event came from.
type Hub struct {
	reg  *registry.Registry
	ring *buffer.Ring

	// mu serializes id assignment, ring append and queue enqueue so the id
	// sequence stays strictly increasing and every subscriber observes
	// same-channel events in publish order.
	mu        sync.Mutex
	nextID    uint64
	published uint64

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates a hub over the given registry and replay ring.
func New(reg *registry.Registry, ring *buffer.Ring) *Hub {
	return &Hub{reg: reg, ring: ring}
}

// Publish assigns the event's id and timestamp when unset, appends it to the
// replay ring, and enqueues it to every connection subscribed to its channel.
// Socket writes happen later on each connection's writer goroutine; a full
// queue means the event is dropped for that subscriber only, logged and
// swallowed. Returns the event with identity assigned.
func (h *Hub) Publish(ev *event.Event) *event.Event {
	var dropped []*registry.Conn

	h.mu.Lock()
	if ev.ID == 0 {
		h.nextID++
		ev.ID = h.nextID
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
	} else if ev.ID > h.nextID {
		// Producer-assigned ids advance the sequence so later assignments
		// stay strictly increasing.
		h.nextID = ev.ID
	}
	h.published++

	h.ring.Append(ev)

	msg := event.Deliver(ev)
	for _, c := range h.reg.Snapshot() {
		if !c.Subscribed(ev.Channel) {
			continue
		}
		if !c.Enqueue(msg) {
			dropped = append(dropped, c)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		slog.Warn("dropping event for slow subscriber",
			"client_id", c.ID,
			"channel", ev.Channel,
			"event_id", ev.ID)
		h.Notify(Notification{Kind: KindEventDropped, ClientID: c.ID, Channel: ev.Channel, EventID: ev.ID})
	}
	h.Notify(Notification{Kind: KindEventPublished, Channel: ev.Channel, EventID: ev.ID})
	return ev
}

// Replay returns buffered events for a connection: those with id beyond the
// watermark when since is set, otherwise the most recent lastN (default 100).
// The result is filtered to the connection's current subscription set, in
// ascending id order.
func (h *Hub) Replay(c *registry.Conn, since *uint64, lastN int) []*event.Event {
	var evs []*event.Event
	if since != nil {
		evs = h.ring.Since(*since)
	} else {
		if lastN <= 0 {
			lastN = DefaultReplayLimit
		}
		evs = h.ring.Last(lastN)
	}

	out := make([]*event.Event, 0, len(evs))
	for _, ev := range evs {
		if c.Subscribed(ev.Channel) {
			out = append(out, ev)
		}
	}
	return out
}

// BufferedEvents returns buffered events for the admin surface, optionally
// restricted to one channel and clipped to the most recent limit.
func (h *Hub) BufferedEvents(channel string, limit int) ([]*event.Event, error) {
	evs := h.ring.All()
	if channel != "" {
		ch := event.Channel(channel)
		if !ch.IsValid() {
			return nil, fmt.Errorf("unknown channel %q", channel)
		}
		filtered := make([]*event.Event, 0, len(evs))
		for _, ev := range evs {
			if ev.Channel == ch {
				filtered = append(filtered, ev)
			}
		}
		evs = filtered
	}
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	return evs, nil
}

// ClearBuffer discards all buffered events.
func (h *Hub) ClearBuffer() {
	h.ring.Clear()
	slog.Info("replay buffer cleared")
	h.Notify(Notification{Kind: KindBufferCleared})
}

// EventCount returns how many events have been published over the process
// lifetime.
func (h *Hub) EventCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.published
}

// BufferLen returns the number of currently buffered events.
func (h *Hub) BufferLen() int {
	return h.ring.Len()
}

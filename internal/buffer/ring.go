// Package buffer implements the bounded circular replay store.
package buffer

import (
	"sync"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

// Ring is a fixed-capacity circular store of published events. Once full,
// each append silently overwrites the oldest entry; bounded history is the
// contract, not an error condition.
//
// Single writer (the hub's publish path), many readers (replay and admin
// queries). Reads return freshly built slices, never the backing store, so a
// reader can hold a result while appends continue. Stored events are immutable
// after publish.
type Ring struct {
	mu  sync.RWMutex
	buf []*event.Event
	pos int // next write position (wraps around)
	n   int // number of valid entries (up to capacity)
}

// New creates a ring holding up to capacity events. Capacities below one are
// clamped to one.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]*event.Event, capacity)}
}

// Append stores ev, evicting the oldest entry when the ring is full.
func (r *Ring) Append(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.pos] = ev
	r.pos = (r.pos + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// All returns the buffered events oldest first.
func (r *Ring) All() []*event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(nil)
}

// Since returns buffered events with ID > sinceID, in ascending id order.
func (r *Ring) Since(sinceID uint64) []*event.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(func(ev *event.Event) bool { return ev.ID > sinceID })
}

// Last returns the most recent n events in ascending id order. Non-positive
// n returns nil.
func (r *Ring) Last(n int) []*event.Event {
	if n <= 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.collect(nil)
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Clear discards all buffered events.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = nil
	}
	r.pos = 0
	r.n = 0
}

// collect walks the ring oldest to newest, keeping entries the filter accepts.
// A nil filter keeps everything. Caller must hold mu.
func (r *Ring) collect(keep func(*event.Event) bool) []*event.Event {
	if r.n == 0 {
		return nil
	}
	start := r.pos - r.n
	if start < 0 {
		start += len(r.buf)
	}
	var out []*event.Event
	for i := range r.n {
		ev := r.buf[(start+i)%len(r.buf)]
		if keep == nil || keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

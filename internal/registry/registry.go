// Package registry tracks live client sessions and their channel
// subscriptions. It enforces the connection cap and hands out stable
// snapshots for fan-out and roster queries.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

// ErrCapacityExceeded is returned by Register when the server already holds
// the configured maximum number of connections.
var ErrCapacityExceeded = errors.New("connection capacity exceeded")

// Registry owns every live connection. All mutation goes through it; the
// connections themselves guard their own subscription and liveness state.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	max   int
}

// New creates a registry capped at max connections. A non-positive max is
// treated as unlimited.
func New(max int) *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		max:   max,
	}
}

// Register adds a connection. Fails with ErrCapacityExceeded at the cap;
// existing connections are unaffected by the rejection.
func (r *Registry) Register(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.conns) >= r.max {
		return ErrCapacityExceeded
	}
	r.conns[c.ID] = c
	return nil
}

// Subscribe adds channels to the connection's subscription set, ignoring
// unknown names. Returns the resulting set, or nil if the connection is gone.
func (r *Registry) Subscribe(id string, names []string) []event.Channel {
	if c := r.Get(id); c != nil {
		return c.Subscribe(names)
	}
	return nil
}

// Unsubscribe removes channels from the connection's subscription set.
// Returns the resulting set, or nil if the connection is gone.
func (r *Registry) Unsubscribe(id string, names []string) []event.Channel {
	if c := r.Get(id); c != nil {
		return c.Unsubscribe(names)
	}
	return nil
}

// Remove deletes the connection and returns it, or nil when it was already
// gone. Idempotent; it does not close the connection, the caller decides.
func (r *Registry) Remove(id string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.conns[id]
	delete(r.conns, id)
	return c
}

// Get returns the connection with the given id, or nil.
func (r *Registry) Get(id string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// Snapshot returns a stable point-in-time list of connections. Iterating it
// while registration and removal proceed concurrently visits each entry
// exactly once.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Clients returns roster entries for every live connection, oldest first.
func (r *Registry) Clients() []ClientInfo {
	conns := r.Snapshot()
	out := make([]ClientInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

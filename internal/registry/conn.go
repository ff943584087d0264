package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/idgen"
)

// queueSize bounds each connection's delivery queue. A subscriber that falls
// further behind than this starts losing events rather than blocking the
// publish path.
const queueSize = 64

// Sink is the transport half of a connection. The hub never touches sockets
// directly; it enqueues envelopes and the transport's writer goroutine pushes
// them through the sink. Close must be safe to call more than once.
type Sink interface {
	Send(*event.ServerMessage) error
	Close() error
}

// Conn is a single live client session. It is created on accept, owned
// exclusively by the Registry, and destroyed on close, heartbeat timeout, or
// server shutdown.
type Conn struct {
	ID          string
	ConnectedAt time.Time

	sink      Sink
	queue     chan *event.ServerMessage
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	subs     map[event.Channel]struct{}
	pingSent time.Time
	pongSeen time.Time
}

// ClientInfo is a point-in-time view of a connection for roster listings.
type ClientInfo struct {
	ID            string          `json:"id"`
	Subscriptions []event.Channel `json:"subscriptions"`
	ConnectedAt   time.Time       `json:"connectedAt"`
	LastPongAt    time.Time       `json:"lastPongAt"`
}

// NewConn builds a connection around a transport sink with a fresh id.
// Liveness starts from now so a fresh connection is never immediately
// overdue for a pong.
func NewConn(sink Sink) (*Conn, error) {
	id, err := idgen.NewConnID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Conn{
		ID:          id,
		ConnectedAt: now,
		sink:        sink,
		queue:       make(chan *event.ServerMessage, queueSize),
		done:        make(chan struct{}),
		subs:        make(map[event.Channel]struct{}),
		pongSeen:    now,
	}, nil
}

// Subscribe adds the named channels to the subscription set. Names outside
// the channel enumeration are silently ignored; repeats are no-ops. Returns
// the resulting subscription list.
func (c *Conn) Subscribe(names []string) []event.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		if ch := event.Channel(name); ch.IsValid() {
			c.subs[ch] = struct{}{}
		}
	}
	return c.subscriptionsLocked()
}

// Unsubscribe removes the named channels from the subscription set, with the
// same leniency as Subscribe. Returns the resulting subscription list.
func (c *Conn) Unsubscribe(names []string) []event.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.subs, event.Channel(name))
	}
	return c.subscriptionsLocked()
}

// Subscribed reports whether the connection is subscribed to ch.
func (c *Conn) Subscribed(ch event.Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[ch]
	return ok
}

// Subscriptions returns the subscription set, sorted.
func (c *Conn) Subscriptions() []event.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptionsLocked()
}

func (c *Conn) subscriptionsLocked() []event.Channel {
	out := make([]event.Channel, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Enqueue places an envelope on the delivery queue without blocking.
// Returns false when the queue is full or the connection is closed; the
// caller logs and moves on.
func (c *Conn) Enqueue(msg *event.ServerMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

// Queue exposes the delivery queue for the transport's writer goroutine.
func (c *Conn) Queue() <-chan *event.ServerMessage {
	return c.queue
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send writes an envelope directly through the sink, bypassing the queue.
// Used for request replies on the reader goroutine, where ordering with
// queued deliveries is not required.
func (c *Conn) Send(msg *event.ServerMessage) error {
	return c.sink.Send(msg)
}

// Close shuts the transport down and releases the writer goroutine. Safe to
// call repeatedly.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.sink.Close()
	})
	return err
}

// TouchPong records pong receipt, from either a transport-level signal or an
// application-level pong envelope.
func (c *Conn) TouchPong() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongSeen = time.Now()
}

// TouchPing records that a liveness probe was sent.
func (c *Conn) TouchPing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingSent = time.Now()
}

// LastPong returns when liveness was last confirmed.
func (c *Conn) LastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pongSeen
}

// LastPing returns when the last liveness probe was sent.
func (c *Conn) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingSent
}

// Info snapshots the connection for roster listings.
func (c *Conn) Info() ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientInfo{
		ID:            c.ID,
		Subscriptions: c.subscriptionsLocked(),
		ConnectedAt:   c.ConnectedAt,
		LastPongAt:    c.pongSeen,
	}
}

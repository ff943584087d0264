package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

const (
	maxLineBytes   = 1 << 20
	welcomeTimeout = 5 * time.Second
	replyTimeout   = 5 * time.Second
)

// StreamClient speaks the newline-delimited JSON protocol on the stream
// listener. Writes are safe from any goroutine; reads have a single owner,
// so Subscribe, Unsubscribe and Listen must not run concurrently with each
// other. Replay only writes and may be called while Listen is running.
type StreamClient struct {
	conn net.Conn
	scan *bufio.Scanner

	writeMu sync.Mutex

	clientID string
	channels []event.Channel

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to a hub stream listener and waits for the welcome message.
func Dial(ctx context.Context, addr string) (*StreamClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	scan := bufio.NewScanner(conn)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)
	c := &StreamClient{conn: conn, scan: scan}

	welcome, err := c.readMessage(welcomeTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	switch welcome.Type {
	case event.TypeWelcome:
		c.clientID = welcome.ClientID
		c.channels = welcome.Channels
	case event.TypeError:
		_ = conn.Close()
		return nil, fmt.Errorf("server refused connection: %s", welcome.Error)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", welcome.Type)
	}
	return c, nil
}

// ClientID returns the server-assigned connection id.
func (c *StreamClient) ClientID() string { return c.clientID }

// Channels returns the channel enumeration announced in the welcome.
func (c *StreamClient) Channels() []event.Channel { return c.channels }

// Subscribe adds the named channels to this connection's subscription set
// and returns the full set acknowledged by the server.
func (c *StreamClient) Subscribe(channels ...string) ([]event.Channel, error) {
	return c.roundTrip(event.ClientMessage{Type: event.TypeSubscribe, Channels: channels}, event.TypeSubscribed)
}

// Unsubscribe removes the named channels and returns the remaining set.
func (c *StreamClient) Unsubscribe(channels ...string) ([]event.Channel, error) {
	return c.roundTrip(event.ClientMessage{Type: event.TypeUnsubscribe, Channels: channels}, event.TypeUnsubscribed)
}

// roundTrip sends a request and waits for the matching acknowledgement,
// answering liveness probes and skipping events that arrive in between.
func (c *StreamClient) roundTrip(req event.ClientMessage, want string) ([]event.Channel, error) {
	if err := c.send(req); err != nil {
		return nil, err
	}
	for {
		msg, err := c.readMessage(replyTimeout)
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case want:
			return msg.Channels, nil
		case event.TypePing:
			_ = c.send(event.ClientMessage{Type: event.TypePong})
		case event.TypeError:
			return nil, fmt.Errorf("server error: %s", msg.Error)
		}
	}
}

// Replay asks the server to resend buffered events. With a non-nil since,
// only events with greater ids are sent; otherwise the server returns its
// default tail. The events arrive on the Listen channel.
func (c *StreamClient) Replay(since *uint64) error {
	return c.send(event.ClientMessage{Type: event.TypeReplay, Since: since})
}

// Emit publishes an event through this connection.
func (c *StreamClient) Emit(channel string, payload json.RawMessage) error {
	return c.send(event.ClientMessage{Type: event.TypeEvent, Channel: channel, Event: payload})
}

// Listen consumes the stream until ctx is cancelled or the connection
// drops, delivering events in arrival order. Replay batches are flattened
// into the same channel and liveness probes are answered automatically.
// The returned channel closes on exit; check Err for the cause.
func (c *StreamClient) Listen(ctx context.Context) <-chan *event.Event {
	out := make(chan *event.Event, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			// Unblock the blocked read below.
			_ = c.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		// The deadline is cleared once up front; after cancellation the
		// watcher's past deadline stays in effect and fails every read.
		_ = c.conn.SetReadDeadline(time.Time{})
		for {
			msg, err := c.readLine()
			if err != nil {
				if ctx.Err() == nil {
					c.setErr(err)
				}
				return
			}
			switch msg.Type {
			case event.TypeEvent:
				if msg.Event == nil {
					continue
				}
				select {
				case out <- msg.Event:
				case <-ctx.Done():
					return
				}
			case event.TypeReplay:
				for _, ev := range msg.Events {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			case event.TypePing:
				_ = c.send(event.ClientMessage{Type: event.TypePong})
			case event.TypeError:
				c.setErr(fmt.Errorf("server error: %s", msg.Error))
				return
			}
		}
	}()
	return out
}

// Err returns the error that terminated Listen, if any.
func (c *StreamClient) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *StreamClient) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *StreamClient) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

func (c *StreamClient) send(msg event.ClientMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readMessage scans one line and decodes it, failing if none arrives
// within the timeout.
func (c *StreamClient) readMessage(timeout time.Duration) (*event.ServerMessage, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	return c.readLine()
}

// readLine scans one line under whatever deadline is in effect.
func (c *StreamClient) readLine() (*event.ServerMessage, error) {
	for c.scan.Scan() {
		line := c.scan.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg event.ServerMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		return &msg, nil
	}
	if err := c.scan.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("connection closed")
}

package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/hub"
	"github.com/alfredjeanlab/hivewire/internal/registry"
)

const (
	// maxLineBytes caps a single streaming envelope. Longer lines abort the
	// connection rather than buffer without bound.
	maxLineBytes = 1 << 20

	// writeTimeout bounds each socket write so one wedged client cannot pin
	// its writer goroutine forever.
	writeTimeout = 10 * time.Second
)

// tcpSink adapts a net.Conn to the registry sink: one JSON envelope per line.
// The mutex serializes the writer goroutine against direct replies from the
// reader and the monitor.
type tcpSink struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

func newTCPSink(conn net.Conn) *tcpSink {
	return &tcpSink{conn: conn, enc: json.NewEncoder(conn)}
}

func (t *tcpSink) Send(msg *event.ServerMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.enc.Encode(msg)
}

func (t *tcpSink) Close() error {
	return t.conn.Close()
}

// acceptLoop admits streaming clients until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("accept failed", "error", err)
			continue
		}
		s.handleConn(nc)
	}
}

// handleConn registers a freshly accepted socket and launches its reader and
// writer goroutines. At capacity the client gets a structured error envelope
// and the socket is closed; existing connections are unaffected.
func (s *Server) handleConn(nc net.Conn) {
	sink := newTCPSink(nc)
	c, err := registry.NewConn(sink)
	if err != nil {
		slog.Error("allocating connection id", "error", err)
		nc.Close()
		return
	}
	if err := s.reg.Register(c); err != nil {
		slog.Warn("rejecting connection", "remote", nc.RemoteAddr().String(), "error", err)
		_ = sink.Send(event.ErrorReply("server at capacity"))
		nc.Close()
		return
	}

	slog.Info("client connected", "client_id", c.ID, "remote", nc.RemoteAddr().String())
	s.hub.Notify(hub.Notification{Kind: hub.KindClientConnected, ClientID: c.ID})

	if err := c.Send(event.Welcome(c.ID)); err != nil {
		s.dropConn(c, "welcome write failed")
		return
	}

	s.wg.Add(2)
	go s.readLoop(c, nc)
	go s.writeLoop(c)
}

// readLoop parses one envelope per line and dispatches it. Any inbound frame
// counts as proof of life for the heartbeat monitor.
func (s *Server) readLoop(c *registry.Conn, nc net.Conn) {
	defer s.wg.Done()
	defer s.dropConn(c, "connection closed")

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		c.TouchPong()

		var msg event.ClientMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			_ = c.Send(event.ErrorReply("invalid message"))
			continue
		}
		s.dispatch(c, &msg)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("read loop ended", "client_id", c.ID, "error", err)
	}
}

// writeLoop drains the delivery queue onto the socket. A failed write drops
// the connection; the hub never notices, which is what fire-and-forget means.
func (s *Server) writeLoop(c *registry.Conn) {
	defer s.wg.Done()
	for {
		select {
		case <-c.Done():
			return
		case msg := <-c.Queue():
			if err := c.Send(msg); err != nil {
				slog.Warn("write failed", "client_id", c.ID, "error", err)
				s.dropConn(c, "write failed")
				return
			}
		}
	}
}

// dispatch handles one parsed client envelope. Every branch that can fail
// replies with a structured error on this connection only and leaves the
// connection open.
func (s *Server) dispatch(c *registry.Conn, msg *event.ClientMessage) {
	switch msg.Type {
	case event.TypeSubscribe:
		channels := c.Subscribe(msg.ChannelNames())
		_ = c.Send(&event.ServerMessage{Type: event.TypeSubscribed, Channels: channels})
	case event.TypeUnsubscribe:
		channels := c.Unsubscribe(msg.ChannelNames())
		_ = c.Send(&event.ServerMessage{Type: event.TypeUnsubscribed, Channels: channels})
	case event.TypePing:
		_ = c.Send(&event.ServerMessage{Type: event.TypePong})
	case event.TypePong:
		// Liveness already refreshed on receipt.
	case event.TypeReplay:
		events := s.hub.Replay(c, msg.Since, 0)
		_ = c.Send(&event.ServerMessage{Type: event.TypeReplay, Events: events})
	case event.TypeEvent:
		s.ingestStream(c, msg)
	default:
		_ = c.Send(event.ErrorReply(fmt.Sprintf("unknown message type: %s", msg.Type)))
	}
}

// ingestStream publishes an event submitted over the streaming connection.
// The submitter is not excluded from delivery: if it subscribes to the
// channel it hears its own event back.
func (s *Server) ingestStream(c *registry.Conn, msg *event.ClientMessage) {
	ev, err := event.NewInbound(msg.Channel, event.PayloadType(msg.Event), msg.Event)
	if err != nil {
		_ = c.Send(event.ErrorReply(err.Error()))
		return
	}
	s.hub.Publish(ev)
}

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/hub"
	"github.com/alfredjeanlab/hivewire/internal/registry"
)

// sseKeepaliveInterval is how often keepalive comments are sent to prevent
// connection timeouts. A successful keepalive write is the transport-level
// liveness signal for SSE consumers, which never send application pongs.
const sseKeepaliveInterval = 15 * time.Second

// sseSink renders server envelopes as SSE frames. Delivered events become
// id:/event:/data: blocks keyed by channel; heartbeat probes become comment
// lines; anything else is framed under its envelope type. All writes go
// through the mutex, and shutdown must run before the handler returns so no
// late probe can touch a dead ResponseWriter.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newSSESink(w http.ResponseWriter, flusher http.Flusher) *sseSink {
	return &sseSink{w: w, flusher: flusher}
}

func (s *sseSink) Send(msg *event.ServerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}

	var err error
	switch {
	case msg.Type == event.TypeEvent && msg.Event != nil:
		data, merr := json.Marshal(msg.Event)
		if merr != nil {
			return merr
		}
		_, err = fmt.Fprintf(s.w, "id:%d\nevent:%s\ndata:%s\n\n", msg.Event.ID, msg.Event.Channel, data)
	case msg.Type == event.TypePing:
		_, err = fmt.Fprint(s.w, ":ping\n\n")
	default:
		data, merr := json.Marshal(msg)
		if merr != nil {
			return merr
		}
		_, err = fmt.Fprintf(s.w, "event:%s\ndata:%s\n\n", msg.Type, data)
	}
	if err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return net.ErrClosed
	}
	if _, err := fmt.Fprintf(s.w, ":%s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close marks the sink dead. The response stream itself belongs to the
// handler; ending the request is what actually hangs up.
func (s *sseSink) Close() error {
	s.shutdown()
	return nil
}

// shutdown waits for any in-flight write to finish and rejects the rest.
func (s *sseSink) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// handleEventStream handles GET /v1/stream: a read-only SSE feed backed by a
// regular registry connection, so SSE consumers count against MaxConnections,
// show up in the roster, and are watched by the heartbeat monitor like any
// streaming client. `?channels=a,b` narrows the subscription (default: all);
// `Last-Event-ID` or `?since=` replays buffered events on attach.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var names []string
	if q := r.URL.Query().Get("channels"); q != "" {
		for _, name := range strings.Split(q, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		for _, ch := range event.Channels() {
			names = append(names, ch.String())
		}
	}

	var since *uint64
	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("since")
	}
	if lastID != "" {
		if id, err := strconv.ParseUint(lastID, 10, 64); err == nil {
			since = &id
		}
	}

	snk := newSSESink(w, flusher)
	c, err := registry.NewConn(snk)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "allocating connection id")
		return
	}
	if err := s.reg.Register(c); err != nil {
		writeError(w, http.StatusServiceUnavailable, "server at capacity")
		return
	}
	c.Subscribe(names)

	slog.Info("client connected", "client_id", c.ID, "remote", r.RemoteAddr, "transport", "sse")
	s.hub.Notify(hub.Notification{Kind: hub.KindClientConnected, ClientID: c.ID})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	defer snk.shutdown()

	if since != nil {
		for _, ev := range s.hub.Replay(c, since, 0) {
			if err := snk.Send(event.Deliver(ev)); err != nil {
				s.dropConn(c, "replay write failed")
				return
			}
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			s.dropConn(c, "client disconnected")
			return
		case <-c.Done():
			return
		case msg := <-c.Queue():
			if err := snk.Send(msg); err != nil {
				s.dropConn(c, "write failed")
				return
			}
			if msg.Type == event.TypePing {
				c.TouchPong()
			}
		case <-keepalive.C:
			if err := snk.comment("keepalive"); err != nil {
				s.dropConn(c, "keepalive write failed")
				return
			}
			c.TouchPong()
		}
	}
}

// Package server binds the hub to its transports: the streaming TCP listener,
// the one-shot/admin HTTP listener, and the optional NATS ingress bridge. It
// owns the lifecycle state machine; everything below it (registry, buffer,
// hub, monitor) is constructed here and torn down on Stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/bridge"
	"github.com/alfredjeanlab/hivewire/internal/buffer"
	"github.com/alfredjeanlab/hivewire/internal/config"
	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/hub"
	"github.com/alfredjeanlab/hivewire/internal/metrics"
	"github.com/alfredjeanlab/hivewire/internal/registry"
)

// shutdownTimeout bounds how long Stop waits for in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

// State is a lifecycle phase. Transitions: Stopped → Starting → Running →
// Stopping → Stopped. Start and Stop are idempotent at the resting states.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Status is a read-only lifecycle snapshot, safe to take in any state. Ports
// reflect the actually bound addresses while running, so configs with port 0
// report the OS-assigned port.
type Status struct {
	Running         bool   `json:"running"`
	State           State  `json:"state"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	HTTPPort        int    `json:"httpPort"`
	ConnectionCount int    `json:"connectionCount"`
	EventCount      uint64 `json:"eventCount"`
	BufferSize      int    `json:"bufferSize"`
}

// Server is the event hub process: registry, replay buffer, router, liveness
// monitor and both listeners behind one explicit handle. There is no
// package-level instance; each caller constructs its own.
type Server struct {
	cfg     *config.Config
	reg     *registry.Registry
	hub     *hub.Hub
	monitor *hub.Monitor

	mu      sync.Mutex
	state   State
	tcpLn   net.Listener
	httpLn  net.Listener
	httpSrv *http.Server
	bridge  *bridge.Bridge

	// wg tracks the accept loop, the HTTP serve loop and every per-connection
	// goroutine. Stop waits on it before reporting the server down.
	wg sync.WaitGroup
}

// New assembles a server from configuration. Nothing is bound until Start.
func New(cfg *config.Config) *Server {
	reg := registry.New(cfg.MaxConnections)
	h := hub.New(reg, buffer.New(cfg.ReplayBufferSize))
	h.AddObserver(metrics.Observer(h))
	return &Server{
		cfg:     cfg,
		reg:     reg,
		hub:     h,
		monitor: hub.NewMonitor(h, cfg.HeartbeatInterval),
		state:   StateStopped,
	}
}

// Hub exposes the dispatch authority, mainly for wiring extra observers.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start binds the streaming and HTTP listeners, connects the ingress bridge
// when configured, and launches the accept loops and the liveness monitor.
// Calling Start on a running server logs a warning and returns the current
// status unchanged. A bind failure is returned synchronously with the state
// back at Stopped and any earlier-bound listener released; there is no retry.
func (s *Server) Start() (Status, error) {
	s.mu.Lock()
	switch s.state {
	case StateRunning:
		slog.Warn("server already running", "addr", s.cfg.StreamAddr())
		st := s.statusLocked()
		s.mu.Unlock()
		return st, nil
	case StateStopped:
		s.state = StateStarting
		s.mu.Unlock()
	default:
		st := s.statusLocked()
		s.mu.Unlock()
		return st, fmt.Errorf("cannot start while %s", st.State)
	}

	fail := func(err error) (Status, error) {
		s.mu.Lock()
		s.state = StateStopped
		st := s.statusLocked()
		s.mu.Unlock()
		return st, err
	}

	tcpLn, err := net.Listen("tcp", s.cfg.StreamAddr())
	if err != nil {
		return fail(fmt.Errorf("binding stream listener: %w", err))
	}
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr())
	if err != nil {
		tcpLn.Close()
		return fail(fmt.Errorf("binding http listener: %w", err))
	}

	var br *bridge.Bridge
	if s.cfg.NATSURL != "" {
		br, err = bridge.Connect(s.cfg.NATSURL, s.cfg.NATSSubject, s.hub)
		if err != nil {
			tcpLn.Close()
			httpLn.Close()
			return fail(err)
		}
	}

	httpSrv := &http.Server{Handler: s.newHTTPHandler()}

	s.mu.Lock()
	s.tcpLn = tcpLn
	s.httpLn = httpLn
	s.httpSrv = httpSrv
	s.bridge = br
	s.state = StateRunning
	st := s.statusLocked()
	s.mu.Unlock()

	s.wg.Add(2)
	go s.acceptLoop(tcpLn)
	go func() {
		defer s.wg.Done()
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	s.monitor.Start()

	slog.Info("server started",
		"stream_addr", tcpLn.Addr().String(),
		"http_addr", httpLn.Addr().String(),
		"max_connections", s.cfg.MaxConnections,
		"replay_buffer", s.cfg.ReplayBufferSize,
	)
	s.hub.Notify(hub.Notification{Kind: hub.KindServerStarted})
	return st, nil
}

// Stop closes ingress, notifies and drops every connection, halts the
// monitor, and releases both listeners. It is the shutdown synchronization
// barrier: it does not return until the accept loops and all per-connection
// goroutines have exited. Calling Stop on a stopped server logs a warning and
// returns nil.
func (s *Server) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		slog.Warn("server already stopped")
		s.mu.Unlock()
		return nil
	case StateRunning:
		s.state = StateStopping
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot stop while %s", st)
	}
	tcpLn, httpSrv, br := s.tcpLn, s.httpSrv, s.bridge
	s.tcpLn, s.httpLn, s.httpSrv, s.bridge = nil, nil, nil, nil
	s.mu.Unlock()

	// New work stops first: no more accepts, bridge messages or probes.
	tcpLn.Close()
	if br != nil {
		if err := br.Close(); err != nil {
			slog.Warn("closing ingress bridge", "error", err)
		}
	}
	s.monitor.Stop()

	// Tell connected clients goodbye, then drop them. Closing every
	// connection also releases the streaming readers/writers and any open
	// SSE handlers, which in turn lets the HTTP shutdown below finish.
	bye := event.ErrorReply("server shutting down")
	for _, c := range s.reg.Snapshot() {
		if err := c.Send(bye); err != nil {
			slog.Debug("shutdown notice not delivered", "client_id", c.ID, "error", err)
		}
		s.dropConn(c, "server shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	slog.Info("server stopped")
	s.hub.Notify(hub.Notification{Kind: hub.KindServerStopped})
	return nil
}

// Status snapshots the lifecycle state and hub counters.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Server) statusLocked() Status {
	st := Status{
		Running:         s.state == StateRunning,
		State:           s.state,
		Host:            s.cfg.Host,
		Port:            s.cfg.Port,
		HTTPPort:        s.cfg.HTTPPort,
		ConnectionCount: s.reg.Len(),
		EventCount:      s.hub.EventCount(),
		BufferSize:      s.hub.BufferLen(),
	}
	if s.tcpLn != nil {
		if addr, ok := s.tcpLn.Addr().(*net.TCPAddr); ok {
			st.Port = addr.Port
		}
	}
	if s.httpLn != nil {
		if addr, ok := s.httpLn.Addr().(*net.TCPAddr); ok {
			st.HTTPPort = addr.Port
		}
	}
	return st
}

// dropConn tears a connection down exactly once. The registry removal decides
// the winner when the reader, the monitor and Stop race on the same
// connection; only the winner emits the closed notification.
func (s *Server) dropConn(c *registry.Conn, reason string) {
	_ = c.Close()
	if s.reg.Remove(c.ID) != nil {
		slog.Info("client disconnected", "client_id", c.ID, "reason", reason)
		s.hub.Notify(hub.Notification{Kind: hub.KindClientClosed, ClientID: c.ID})
	}
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/config"
	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/server"
)

func startHub(t *testing.T, mutate func(*config.Config)) (*server.Server, server.Status) {
	t.Helper()
	cfg := &config.Config{
		Host:              "127.0.0.1",
		Port:              0,
		HTTPPort:          0,
		MaxConnections:    16,
		HeartbeatInterval: time.Minute,
		ReplayBufferSize:  100,
	}
	if mutate != nil {
		mutate(cfg)
	}
	srv := server.New(cfg)
	st, err := srv.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, st
}

func httpBase(st server.Status) string {
	return "http://" + net.JoinHostPort(st.Host, strconv.Itoa(st.HTTPPort))
}

func streamAddr(st server.Status) string {
	return net.JoinHostPort(st.Host, strconv.Itoa(st.Port))
}

func recvEvent(t *testing.T, ch <-chan *event.Event) *event.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("event channel closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func expectChannelClose(t *testing.T, ch <-chan *event.Event) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("event channel still open")
		}
	}
}

func TestHTTPClientHealthAndStatus(t *testing.T) {
	_, st := startHub(t, nil)
	c := NewHTTPClient(httpBase(st))
	ctx := context.Background()

	health, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health != "ok" {
		t.Errorf("health = %q, want ok", health)
	}

	got, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !got.Running || got.State != "running" {
		t.Errorf("status = %+v, want running", got)
	}
	if got.Port != st.Port || got.HTTPPort != st.HTTPPort {
		t.Errorf("ports = %d/%d, want %d/%d", got.Port, got.HTTPPort, st.Port, st.HTTPPort)
	}
	if got.EventCount != 0 || got.ConnectionCount != 0 {
		t.Errorf("fresh server reports events=%d conns=%d", got.EventCount, got.ConnectionCount)
	}
}

func TestHTTPClientEmitAndHistory(t *testing.T) {
	_, st := startHub(t, nil)
	c := NewHTTPClient(httpBase(st))
	ctx := context.Background()

	if err := c.Emit(ctx, "tasks", "task:created", json.RawMessage(`{"taskId":"t-1"}`)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := c.Emit(ctx, "agents", "agent:spawned", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	all, err := c.History(ctx, "", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("ids = %d,%d, want 1,2", all[0].ID, all[1].ID)
	}
	if all[0].Type != "task:created" || string(all[0].Payload) != `{"taskId":"t-1"}` {
		t.Errorf("first event = %+v", all[0])
	}

	tasks, err := c.History(ctx, "tasks", 0)
	if err != nil {
		t.Fatalf("History(tasks): %v", err)
	}
	if len(tasks) != 1 || tasks[0].Channel != event.ChannelTasks {
		t.Errorf("tasks history = %+v", tasks)
	}

	last, err := c.History(ctx, "", 1)
	if err != nil {
		t.Fatalf("History(limit=1): %v", err)
	}
	if len(last) != 1 || last[0].ID != 2 {
		t.Errorf("limited history = %+v", last)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	_, st := startHub(t, nil)
	c := NewHTTPClient(httpBase(st))
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		message string
	}{
		{
			name:    "emit without channel",
			call:    func() error { return c.Emit(ctx, "", "task:created", nil) },
			message: "channel is required",
		},
		{
			name:    "emit without type",
			call:    func() error { return c.Emit(ctx, "tasks", "", nil) },
			message: "event type is required",
		},
		{
			name:    "emit to unknown channel",
			call:    func() error { return c.Emit(ctx, "gossip", "task:created", nil) },
			message: `unknown channel "gossip"`,
		},
		{
			name: "history of unknown channel",
			call: func() error {
				_, err := c.History(ctx, "gossip", 0)
				return err
			},
			message: `unknown channel "gossip"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want APIError", err)
			}
			if apiErr.StatusCode != 400 || apiErr.Message != tt.message {
				t.Errorf("apiErr = %v, want 400 %q", apiErr, tt.message)
			}
		})
	}
}

func TestHTTPClientClear(t *testing.T) {
	_, st := startHub(t, nil)
	c := NewHTTPClient(httpBase(st))
	ctx := context.Background()

	if err := c.Emit(ctx, "tasks", "task:created", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	events, err := c.History(ctx, "", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("history after clear = %+v", events)
	}
	got, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.BufferSize != 0 || got.EventCount != 1 {
		t.Errorf("after clear bufferSize=%d eventCount=%d, want 0 and 1", got.BufferSize, got.EventCount)
	}
}

func TestHTTPClientClients(t *testing.T) {
	_, st := startHub(t, nil)
	c := NewHTTPClient(httpBase(st))
	ctx := context.Background()

	sc, err := Dial(ctx, streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()
	if _, err := sc.Subscribe("tasks"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	clients, err := c.Clients(ctx)
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if len(clients) != 1 {
		t.Fatalf("len(clients) = %d, want 1", len(clients))
	}
	info := clients[0]
	if info.ID != sc.ClientID() {
		t.Errorf("roster id = %q, want %q", info.ID, sc.ClientID())
	}
	if len(info.Subscriptions) != 1 || info.Subscriptions[0] != event.ChannelTasks {
		t.Errorf("subscriptions = %v, want [tasks]", info.Subscriptions)
	}
	if info.ConnectedAt.IsZero() || info.LastPongAt.IsZero() {
		t.Errorf("timestamps missing: %+v", info)
	}
}

func TestStreamClientWelcome(t *testing.T) {
	_, st := startHub(t, nil)
	sc, err := Dial(context.Background(), streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()

	if !strings.HasPrefix(sc.ClientID(), "cn-") {
		t.Errorf("client id = %q, want cn- prefix", sc.ClientID())
	}
	if len(sc.Channels()) != len(event.Channels()) {
		t.Errorf("channels = %v, want full enumeration", sc.Channels())
	}
}

func TestStreamClientSubscribeAndListen(t *testing.T) {
	_, st := startHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc, err := Dial(ctx, streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()

	acked, err := sc.Subscribe("tasks", "tasks", "bogus")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(acked) != 1 || acked[0] != event.ChannelTasks {
		t.Errorf("acked = %v, want [tasks]", acked)
	}

	events := sc.Listen(ctx)

	hc := NewHTTPClient(httpBase(st))
	if err := hc.Emit(ctx, "tasks", "task:created", json.RawMessage(`{"taskId":"t-1"}`)); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	ev := recvEvent(t, events)
	if ev.Channel != event.ChannelTasks || ev.Type != "task:created" || ev.ID != 1 {
		t.Errorf("event = %+v", ev)
	}

	cancel()
	expectChannelClose(t, events)
	if sc.Err() != nil {
		t.Errorf("Err after cancel = %v, want nil", sc.Err())
	}
}

func TestStreamClientUnsubscribe(t *testing.T) {
	_, st := startHub(t, nil)
	sc, err := Dial(context.Background(), streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()

	if _, err := sc.Subscribe("agents", "tasks"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	left, err := sc.Unsubscribe("agents")
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if len(left) != 1 || left[0] != event.ChannelTasks {
		t.Errorf("remaining = %v, want [tasks]", left)
	}
}

func TestStreamClientReplayFlattens(t *testing.T) {
	_, st := startHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := NewHTTPClient(httpBase(st))
	for i := 1; i <= 3; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
		if err := hc.Emit(ctx, "tasks", "task:created", payload); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	sc, err := Dial(ctx, streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()
	if _, err := sc.Subscribe("tasks"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	events := sc.Listen(ctx)
	since := uint64(1)
	if err := sc.Replay(&since); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, want := range []uint64{2, 3} {
		ev := recvEvent(t, events)
		if ev.ID != want {
			t.Errorf("replayed id = %d, want %d", ev.ID, want)
		}
	}

	// Live traffic keeps flowing after a replay batch.
	if err := hc.Emit(ctx, "tasks", "task:done", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if ev := recvEvent(t, events); ev.ID != 4 || ev.Type != "task:done" {
		t.Errorf("live event = %+v", ev)
	}
}

func TestStreamClientEmitEchoes(t *testing.T) {
	_, st := startHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc, err := Dial(ctx, streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()
	if _, err := sc.Subscribe("memory"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	events := sc.Listen(ctx)
	if err := sc.Emit("memory", json.RawMessage(`{"type":"memory:written","key":"k1"}`)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	ev := recvEvent(t, events)
	if ev.Channel != event.ChannelMemory || ev.Type != "memory:written" {
		t.Errorf("echoed event = %+v", ev)
	}
}

func TestStreamClientCapacityRefused(t *testing.T) {
	_, st := startHub(t, func(cfg *config.Config) { cfg.MaxConnections = 1 })
	ctx := context.Background()

	first, err := Dial(ctx, streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = first.Close() }()

	_, err = Dial(ctx, streamAddr(st))
	if err == nil {
		t.Fatal("second Dial succeeded, want refusal")
	}
	if !strings.Contains(err.Error(), "server at capacity") {
		t.Errorf("err = %v, want capacity refusal", err)
	}
}

func TestStreamClientServerStop(t *testing.T) {
	srv, st := startHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc, err := Dial(ctx, streamAddr(st))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = sc.Close() }()

	events := sc.Listen(ctx)
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	expectChannelClose(t, events)
	if err := sc.Err(); err == nil || !strings.Contains(err.Error(), "server shutting down") {
		t.Errorf("Err = %v, want shutdown notice", err)
	}
}

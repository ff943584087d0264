package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/hivewire/internal/config"
	"github.com/alfredjeanlab/hivewire/internal/event"
)

// sseFrame is one parsed id:/event:/data: block from the feed.
type sseFrame struct {
	id    string
	event string
	data  string
}

// attachSSE opens the event feed and returns a scanner over its body. The
// request carries a deadline so a silent stream fails the test instead of
// hanging it.
func attachSSE(t *testing.T, st Status, path string, lastEventID string) *bufio.Scanner {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, "GET", httpURL(st, path), nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("attaching to stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d", path, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	scan := bufio.NewScanner(resp.Body)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)
	return scan
}

// readFrame reads the next non-comment frame off the feed.
func readFrame(t *testing.T, scan *bufio.Scanner) *sseFrame {
	t.Helper()
	f := &sseFrame{}
	got := false
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			if got {
				return f
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		got = true
		switch {
		case strings.HasPrefix(line, "id:"):
			f.id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			f.event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			f.data = strings.TrimPrefix(line, "data:")
		}
	}
	t.Fatalf("stream ended while reading frame: %v", scan.Err())
	return nil
}

// decodeFrameEvent unmarshals a frame's data line as a delivered event.
func decodeFrameEvent(t *testing.T, f *sseFrame) *event.Event {
	t.Helper()
	var ev event.Event
	if err := json.Unmarshal([]byte(f.data), &ev); err != nil {
		t.Fatalf("decoding frame data %q: %v", f.data, err)
	}
	return &ev
}

func TestSSEDeliversEvents(t *testing.T) {
	_, st := newTestServer(t, nil)

	scan := attachSSE(t, st, "/v1/stream?channels=tasks", "")

	postEvent(t, st, `{"channel":"tasks","type":"task:created","taskId":"t-1"}`, 200)

	f := readFrame(t, scan)
	if f.id != "1" || f.event != "tasks" {
		t.Fatalf("frame = %+v, want id 1 on tasks", f)
	}
	ev := decodeFrameEvent(t, f)
	if ev.Type != "task:created" || string(ev.Payload) != `{"taskId":"t-1"}` {
		t.Fatalf("frame event = %+v", ev)
	}
}

func TestSSEChannelFilter(t *testing.T) {
	_, st := newTestServer(t, nil)

	scan := attachSSE(t, st, "/v1/stream?channels=agents", "")

	postEvent(t, st, `{"channel":"tasks","type":"task:created"}`, 200)
	postEvent(t, st, `{"channel":"agents","type":"agent:spawned"}`, 200)

	// The tasks event never shows; the first frame is the agents one.
	ev := decodeFrameEvent(t, readFrame(t, scan))
	if ev.Channel != event.ChannelAgents || ev.Type != "agent:spawned" {
		t.Fatalf("first frame = %+v, want the agents event", ev)
	}
}

func TestSSEReplayOnAttach(t *testing.T) {
	_, st := newTestServer(t, nil)

	for _, typ := range []string{"task:a", "task:b", "task:c"} {
		postEvent(t, st, `{"channel":"tasks","type":"`+typ+`"}`, 200)
	}

	scan := attachSSE(t, st, "/v1/stream?channels=tasks", "1")

	first := decodeFrameEvent(t, readFrame(t, scan))
	second := decodeFrameEvent(t, readFrame(t, scan))
	if first.ID != 2 || second.ID != 3 {
		t.Fatalf("replayed ids = %d, %d, want 2, 3", first.ID, second.ID)
	}

	// Live events follow the replay.
	postEvent(t, st, `{"channel":"tasks","type":"task:d"}`, 200)
	live := decodeFrameEvent(t, readFrame(t, scan))
	if live.ID != 4 || live.Type != "task:d" {
		t.Fatalf("live frame after replay = %+v", live)
	}
}

func TestSSEReplayViaSinceParam(t *testing.T) {
	_, st := newTestServer(t, nil)

	postEvent(t, st, `{"channel":"memory","type":"memory:stored"}`, 200)
	postEvent(t, st, `{"channel":"memory","type":"memory:evicted"}`, 200)

	scan := attachSSE(t, st, "/v1/stream?channels=memory&since=1", "")

	ev := decodeFrameEvent(t, readFrame(t, scan))
	if ev.ID != 2 || ev.Type != "memory:evicted" {
		t.Fatalf("replayed frame = %+v, want event 2", ev)
	}
}

func TestSSECountsAgainstCapacity(t *testing.T) {
	srv, st := newTestServer(t, func(cfg *config.Config) {
		cfg.MaxConnections = 1
	})

	attachSSE(t, st, "/v1/stream", "")

	waitFor(t, 2*time.Second, func() bool {
		return srv.Status().ConnectionCount == 1
	}, "SSE connection never registered")

	resp := doRequest(t, "GET", httpURL(st, "/v1/stream"), "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("over-capacity attach = %d, want 503", resp.StatusCode)
	}
}

func TestSSEDisconnectFreesConnection(t *testing.T) {
	srv, st := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", httpURL(st, "/v1/stream"), nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("attaching to stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	waitFor(t, 2*time.Second, func() bool {
		return srv.Status().ConnectionCount == 1
	}, "SSE connection never registered")

	cancel()
	waitFor(t, 2*time.Second, func() bool {
		return srv.Status().ConnectionCount == 0
	}, "SSE connection never released after hangup")
}

func TestSSEMultipleClientsReceiveSameEvent(t *testing.T) {
	srv, st := newTestServer(t, nil)

	first := attachSSE(t, st, "/v1/stream?channels=topology", "")
	second := attachSSE(t, st, "/v1/stream?channels=topology", "")
	waitFor(t, 2*time.Second, func() bool {
		return srv.Status().ConnectionCount == 2
	}, "SSE connections never registered")

	postEvent(t, st, `{"channel": "topology", "type": "node:joined"}`, http.StatusOK)

	for _, scan := range []*bufio.Scanner{first, second} {
		frame := readFrame(t, scan)
		if frame.event != "topology" {
			t.Errorf("frame event = %q, want topology", frame.event)
		}
		if ev := decodeFrameEvent(t, frame); ev.Type != "node:joined" {
			t.Errorf("event type = %q, want node:joined", ev.Type)
		}
	}
}

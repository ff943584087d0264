// Package bridge ingests events published on NATS subjects and feeds them
// into the hub. It is an optional third ingress path alongside the stream
// and one-shot HTTP surfaces; producers publish to <root>.<channel> with a
// JSON body and never hold a hub connection.
package bridge

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/hivewire/internal/event"
	"github.com/alfredjeanlab/hivewire/internal/hub"
)

// DefaultSubject is the subject root the bridge subscribes under.
const DefaultSubject = "hivewire.ingest"

// Bridge subscribes to <root>.> on a NATS server and publishes every valid
// submission into the hub. The channel comes from the subject token after
// the root; the body carries the event type and payload.
type Bridge struct {
	conn *nats.Conn
	sub  *nats.Subscription
	hub  *hub.Hub
	root string
}

// Connect dials the NATS server and starts consuming ingress messages.
// The connection reconnects indefinitely; messages published while the
// bridge is disconnected are not replayed.
func Connect(url, subject string, h *hub.Hub) (*Bridge, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	b := &Bridge{conn: conn, hub: h, root: subject}
	sub, err := conn.Subscribe(subject+".>", b.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to %s.>: %w", subject, err)
	}
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("flushing NATS subscription: %w", err)
	}
	b.sub = sub

	slog.Info("nats ingress connected", "url", url, "subject", subject+".>")
	return b, nil
}

// Subject returns the subject root the bridge consumes under.
func (b *Bridge) Subject() string {
	return b.root
}

func (b *Bridge) handle(msg *nats.Msg) {
	name := strings.TrimPrefix(msg.Subject, b.root+".")
	if name == msg.Subject || strings.Contains(name, ".") {
		slog.Warn("ignoring message on unexpected subject", "subject", msg.Subject)
		return
	}

	_, typ, payload, err := event.ParseSubmission(msg.Data)
	if err != nil {
		slog.Warn("dropping invalid ingress message", "subject", msg.Subject, "error", err)
		return
	}
	ev, err := event.NewInbound(name, typ, payload)
	if err != nil {
		slog.Warn("dropping invalid ingress message", "subject", msg.Subject, "error", err)
		return
	}
	b.hub.Publish(ev)
}

// Close drains the subscription so in-flight messages finish, then closes
// the connection. Safe to call once; the bridge is unusable afterwards.
func (b *Bridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			slog.Warn("draining NATS subscription", "error", err)
		}
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	return nil
}

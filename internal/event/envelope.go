package event

import (
	"encoding/json"
	"time"
)

// Streaming envelope message types. Subscribe through Event arrive from
// clients; Subscribed through Welcome are server replies. Ping, Pong, Replay
// and Event travel in both directions.
const (
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeReplay       = "replay"
	TypeEvent        = "event"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
	TypeWelcome      = "welcome"
)

// ClientMessage is the client-to-server streaming envelope, one JSON object
// per line. Channel and Channels are interchangeable on subscribe and
// unsubscribe; Since applies to replay; Event carries the raw event object on
// an event submission.
type ClientMessage struct {
	Type     string          `json:"type"`
	Channel  string          `json:"channel,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Since    *uint64         `json:"since,omitempty"`
	Event    json.RawMessage `json:"event,omitempty"`
}

// ChannelNames merges the singular and plural channel fields.
func (m *ClientMessage) ChannelNames() []string {
	names := m.Channels
	if m.Channel != "" {
		names = append(names, m.Channel)
	}
	return names
}

// ServerMessage is the server-to-client streaming envelope.
type ServerMessage struct {
	Type      string     `json:"type"`
	Channel   Channel    `json:"channel,omitempty"`
	Channels  []Channel  `json:"channels,omitempty"`
	Event     *Event     `json:"event,omitempty"`
	Events    []*Event   `json:"events,omitempty"`
	Error     string     `json:"error,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Welcome builds the greeting sent once on accept. It carries the assigned
// client id and the full channel enumeration so clients can discover what
// they may subscribe to.
func Welcome(clientID string) *ServerMessage {
	now := time.Now().UTC()
	return &ServerMessage{
		Type:      TypeWelcome,
		ClientID:  clientID,
		Channels:  Channels(),
		Timestamp: &now,
	}
}

// Deliver wraps a published event for fan-out to a subscriber.
func Deliver(ev *Event) *ServerMessage {
	return &ServerMessage{Type: TypeEvent, Channel: ev.Channel, Event: ev}
}

// ErrorReply builds a structured error envelope. Recoverable: the connection
// stays open after receiving one.
func ErrorReply(msg string) *ServerMessage {
	return &ServerMessage{Type: TypeError, Error: msg}
}

// Package event defines the canonical event record, the closed set of
// channels events are published on, and the streaming wire envelopes.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel is a fixed delivery category scoping subscriptions and fan-out.
type Channel string

const (
	ChannelAgents   Channel = "agents"
	ChannelTasks    Channel = "tasks"
	ChannelMessages Channel = "messages"
	ChannelMemory   Channel = "memory"
	ChannelTopology Channel = "topology"
	ChannelMetrics  Channel = "metrics"
)

// String returns the string representation of the channel.
func (c Channel) String() string {
	return string(c)
}

// IsValid checks whether the channel is a known value. The channel set is
// closed and not user-extensible.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelAgents, ChannelTasks, ChannelMessages, ChannelMemory, ChannelTopology, ChannelMetrics:
		return true
	}
	return false
}

// Channels returns every defined channel in stable order.
func Channels() []Channel {
	return []Channel{
		ChannelAgents,
		ChannelTasks,
		ChannelMessages,
		ChannelMemory,
		ChannelTopology,
		ChannelMetrics,
	}
}

// Event is a single published record. It is immutable once constructed: the
// hub assigns ID and Timestamp at publish time when they are zero, and no
// field is modified afterward. Payload is an opaque blob the hub never
// inspects; only channel-specific consumers interpret it.
type Event struct {
	ID        uint64          `json:"id"`
	Channel   Channel         `json:"channel"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewInbound validates an inbound submission and builds the canonical record.
// Every ingress path (streaming, one-shot HTTP, NATS) funnels through this so
// validation and delivery semantics never diverge between sources. ID and
// Timestamp are left zero for the hub to assign.
func NewInbound(channel, typ string, payload json.RawMessage) (*Event, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	ch := Channel(channel)
	if !ch.IsValid() {
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	if typ == "" {
		return nil, fmt.Errorf("event type is required")
	}
	return &Event{
		Channel: ch,
		Type:    typ,
		Payload: payload,
	}, nil
}

// PayloadType extracts the "type" field from a raw JSON event object.
// Returns "" when the field is absent or the blob is not an object.
func PayloadType(raw json.RawMessage) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Type
}

// Package client provides consumer-side access to a hivewire hub: an
// HTTP/JSON client for the one-shot and admin surface, and a streaming
// client speaking the newline-delimited envelope protocol.
package client

import (
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

// Status mirrors the server's lifecycle snapshot.
type Status struct {
	Running         bool   `json:"running"`
	State           string `json:"state"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	HTTPPort        int    `json:"httpPort"`
	ConnectionCount int    `json:"connectionCount"`
	EventCount      uint64 `json:"eventCount"`
	BufferSize      int    `json:"bufferSize"`
}

// ClientInfo mirrors one entry of the server's connection roster.
type ClientInfo struct {
	ID            string          `json:"id"`
	Subscriptions []event.Channel `json:"subscriptions"`
	ConnectedAt   time.Time       `json:"connectedAt"`
	LastPongAt    time.Time       `json:"lastPongAt"`
}

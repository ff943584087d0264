package hub

import (
	"time"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

// Kind classifies a hub notification.
type Kind string

const (
	KindEventPublished  Kind = "event_published"
	KindEventDropped    Kind = "event_dropped"
	KindClientConnected Kind = "client_connected"
	KindClientClosed    Kind = "client_closed"
	KindClientTimeout   Kind = "client_timeout"
	KindBufferCleared   Kind = "buffer_cleared"
	KindServerStarted   Kind = "server_started"
	KindServerStopped   Kind = "server_stopped"
)

// Notification describes something that happened inside the hub: an event
// published or dropped, a connection arriving or leaving, the buffer being
// cleared, the server changing state. Fields beyond Kind and Time are set
// when they apply.
type Notification struct {
	Kind     Kind
	Time     time.Time
	ClientID string
	Channel  event.Channel
	EventID  uint64
	Detail   string
}

// Observer receives hub notifications. Registered observers are invoked
// synchronously outside the hub's locks and must return promptly.
type Observer interface {
	OnHubEvent(Notification)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Notification)

// OnHubEvent calls f(n).
func (f ObserverFunc) OnHubEvent(n Notification) { f(n) }

// AddObserver registers an observer for subsequent notifications.
func (h *Hub) AddObserver(o Observer) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.observers = append(h.observers, o)
}

// Notify fans a notification out to every registered observer. Components
// composing the hub (transports, the lifecycle controller) report through
// here as well.
func (h *Hub) Notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	h.obsMu.RLock()
	obs := make([]Observer, len(h.observers))
	copy(obs, h.observers)
	h.obsMu.RUnlock()
	for _, o := range obs {
		o.OnHubEvent(n)
	}
}

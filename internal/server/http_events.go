package server

import (
	"io"
	"net/http"

	"github.com/alfredjeanlab/hivewire/internal/event"
)

// handlePublishEvent handles POST /v1/events: the one-shot ingress path.
// The body carries `channel` and `type` plus either a nested `event` object
// or flat payload fields. Producers fire and forget; there is no connection
// to keep. Validation failures publish nothing and return 400.
func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxLineBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	channel, typ, payload, err := event.ParseSubmission(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := event.NewInbound(channel, typ, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.hub.Publish(ev)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

package event

import (
	"encoding/json"
	"fmt"
)

// ParseSubmission interprets a one-shot ingress body: `channel` and `type`
// fields plus either a nested payload object under `event` or flat payload
// fields alongside. Channel or type may be absent; NewInbound rejects them
// later so that validation lives in one place.
func ParseSubmission(body []byte) (channel, typ string, payload json.RawMessage, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", "", nil, fmt.Errorf("invalid JSON body")
	}
	if raw, ok := fields["channel"]; ok {
		_ = json.Unmarshal(raw, &channel)
	}
	if raw, ok := fields["type"]; ok {
		_ = json.Unmarshal(raw, &typ)
	}
	if raw, ok := fields["event"]; ok {
		payload = raw
		return channel, typ, payload, nil
	}
	delete(fields, "channel")
	delete(fields, "type")
	if len(fields) > 0 {
		payload, _ = json.Marshal(fields)
	}
	return channel, typ, payload, nil
}

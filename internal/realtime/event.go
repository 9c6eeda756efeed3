package realtime

import (
	"encoding/json"
	"strings"
)

type EventKind string

const (
	EventCreate EventKind = "create"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

const updateSuffix = ":update"

// Frame is the single wire shape for both directions. Resource pushes
// use Type "<resource>:update" with Event and Data set; everything else
// (acks, notifications) uses Type plus Payload.
type Frame struct {
	Type    string          `json:"type"`
	Event   EventKind       `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResourceFrame builds the push frame for a changed record.
func ResourceFrame(resource string, kind EventKind, record any) (Frame, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: resource + updateSuffix, Event: kind, Data: data}, nil
}

// resourceOf extracts the resource name from a frame type, or "" when
// the frame is not a resource push.
func resourceOf(frameType string) string {
	if !strings.HasSuffix(frameType, updateSuffix) {
		return ""
	}
	return strings.TrimSuffix(frameType, updateSuffix)
}

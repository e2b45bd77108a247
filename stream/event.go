package stream

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/nijaru/reelsmith/models"
)

type EventType string

const (
	EventStatus       EventType = "status"
	EventProductData  EventType = "productData"
	EventVideoScript  EventType = "videoScript"
	EventRemotionCode EventType = "remotionCode"
	EventVideoURL     EventType = "videoUrl"
	EventError        EventType = "error"
	EventComplete     EventType = "complete"
)

func (t EventType) IsTerminal() bool {
	return t == EventError || t == EventComplete
}

// rank orders the data-bearing events of a run. Status has rank 0 and may
// appear anywhere before the terminal event.
func (t EventType) rank() int {
	switch t {
	case EventProductData:
		return 1
	case EventVideoScript:
		return 2
	case EventRemotionCode:
		return 3
	case EventVideoURL:
		return 4
	case EventError, EventComplete:
		return 5
	}
	return 0
}

// Event is one NDJSON line: {"type": ..., "data": ...}.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return errors.Errorf("%s event has no data", e.Type)
	}
	return errors.Wrapf(json.Unmarshal(e.Data, v), "decode %s event", e.Type)
}

// Text returns the payload of events whose data is a JSON string. Non-string
// payloads are returned as raw JSON.
func (e Event) Text() string {
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	return string(e.Data)
}

// CompletePayload is the data of a complete event. Step is review when the
// run paused for approval and complete when a video was produced.
type CompletePayload struct {
	Step     models.Step `json:"step"`
	RunID    string      `json:"runId,omitempty"`
	VideoURL string      `json:"videoUrl,omitempty"`
}

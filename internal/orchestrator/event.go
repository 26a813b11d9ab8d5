package orchestrator

import (
	"encoding/json"

	"github.com/velinussage/pfp-animate/internal/domain"
)

// EventType discriminates stream events.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one record of a generation stream. Exactly one complete or error
// event ends every stream that reaches its caller.
type Event struct {
	Type        EventType    `json:"type"`
	Completed   int          `json:"completed,omitempty"`
	Total       int          `json:"total,omitempty"`
	Step        *domain.Step `json:"step,omitempty"`
	Index       int          `json:"index,omitempty"`
	ImageBase64 string       `json:"imageBase64,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// MarshalJSON writes the exact wire shape for each event type; progress
// events always carry index, even when it is zero.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventProgress:
		return json.Marshal(struct {
			Type        EventType    `json:"type"`
			Completed   int          `json:"completed"`
			Total       int          `json:"total"`
			Step        *domain.Step `json:"step"`
			Index       int          `json:"index"`
			ImageBase64 string       `json:"imageBase64"`
		}{e.Type, e.Completed, e.Total, e.Step, e.Index, e.ImageBase64})
	case EventError:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Error string    `json:"error"`
		}{e.Type, e.Error})
	default:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	}
}

package chat

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates the variants a StreamEvent can take on the wire.
type EventType string

const (
	EventText   EventType = "text"
	EventTool   EventType = "tool"
	EventUsage  EventType = "usage"
	EventResult EventType = "result"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// StreamEvent is the normalized unit of agent output. It is a closed tagged
// union: only the fields belonging to the variant named by Type are
// meaningful, and MarshalJSON emits exactly those.
type StreamEvent struct {
	Type   EventType
	Text   string
	Name   string
	Input  int
	Output int
	Err    string
}

// TextEvent wraps an incremental text fragment.
func TextEvent(text string) StreamEvent {
	return StreamEvent{Type: EventText, Text: text}
}

// ToolEvent records that the agent invoked the named capability.
func ToolEvent(name string) StreamEvent {
	return StreamEvent{Type: EventTool, Name: name}
}

// UsageEvent carries token accounting for the turn so far.
func UsageEvent(input, output int) StreamEvent {
	return StreamEvent{Type: EventUsage, Input: input, Output: output}
}

// ResultEvent carries the final consolidated text for the turn.
func ResultEvent(text string) StreamEvent {
	return StreamEvent{Type: EventResult, Text: text}
}

// DoneEvent is the terminal marker, always last for a given request.
func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// ErrorEvent wraps a failure notice with a human-readable message.
func ErrorEvent(msg string) StreamEvent {
	return StreamEvent{Type: EventError, Err: msg}
}

// MarshalJSON encodes the variant-specific wire shape. Usage events always
// carry both token counts, even when zero, so struct tags with omitempty are
// not an option here.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventText, EventResult:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Text string    `json:"text"`
		}{e.Type, e.Text})
	case EventTool:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Name string    `json:"name"`
		}{e.Type, e.Name})
	case EventUsage:
		return json.Marshal(struct {
			Type   EventType `json:"type"`
			Input  int       `json:"input"`
			Output int       `json:"output"`
		}{e.Type, e.Input, e.Output})
	case EventDone:
		return json.Marshal(struct {
			Type EventType `json:"type"`
		}{e.Type})
	case EventError:
		return json.Marshal(struct {
			Type  EventType `json:"type"`
			Error string    `json:"error"`
		}{e.Type, e.Err})
	default:
		return nil, fmt.Errorf("unknown stream event type %q", e.Type)
	}
}

package core

import (
	"time"

	"github.com/google/uuid"
)

// Event records one step of an agent run: a model turn, a tool result, an
// approval interruption or an error. Events are emitted in order and should
// be treated as immutable after emission.
type Event struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	Content      *Content  `json:"content,omitempty"`
	Interrupted  bool      `json:"interrupted,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to a run.
func NewEvent(runID, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(runID, author, message string) Event {
	e := NewEvent(runID, author)
	c := NewTextContent("assistant", message)
	e.Content = &c
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(runID, message string) Event {
	e := NewEvent(runID, "user")
	c := NewTextContent("user", message)
	e.Content = &c
	return e
}

// NewContentEvent wraps arbitrary content produced by author.
func NewContentEvent(runID, author string, content Content) Event {
	e := NewEvent(runID, author)
	e.Content = &content
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a tool invocation.
func NewFunctionResponseEvent(runID, author, id, functionName string, result any, err error) Event {
	e := NewEvent(runID, author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewErrorEvent records a terminal run error.
func NewErrorEvent(runID, author string, err error) Event {
	e := NewEvent(runID, author)
	e.ErrorMessage = err.Error()
	return e
}

// NewID generates a new UUID-based unique identifier.
func NewID() string { return uuid.NewString() }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	return e.Content.FunctionCalls()
}

// GetFunctionResponses returns any FunctionResponse parts contained within the
// event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	return e.Content.FunctionResponses()
}

// IsFinalResponse reports whether the event closes an assistant turn: no
// pending tool calls or responses and no interruption.
func (e Event) IsFinalResponse() bool {
	if e.Interrupted || e.ErrorMessage != "" {
		return false
	}
	return len(e.GetFunctionCalls()) == 0 && len(e.GetFunctionResponses()) == 0
}

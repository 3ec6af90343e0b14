package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/caredesk/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ResponseSchema asks the provider for a structured JSON reply.
type ResponseSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
}

// Request captures the normalized model input produced by the runner.
type Request struct {
	Instructions   string           `json:"instructions"`
	Contents       []core.Content   `json:"contents"`
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ResponseSchema *ResponseSchema  `json:"response_schema,omitempty"`
	Stream         bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the runner to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Collect when a model closes without a final response.
var ErrNoResponse = errors.New("model: no final response")

// Collect drains a Generate call and returns the last non-partial response.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final Response
		found bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !r.Partial {
				final, found = r, true
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !found {
		return Response{}, ErrNoResponse
	}

	return final, nil
}

// FunctionResponseText renders a tool result for providers that only accept text.
func FunctionResponseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "Error: " + fr.Error
	}
	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ScriptedModel replays a fixed sequence of responses. It records every
// request it receives and is safe for concurrent use. Useful for tests and
// offline demos.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	responses []core.Content
	requests  []Request
}

// NewScriptedModel returns a model answering with the given contents in order.
func NewScriptedModel(responses ...core.Content) *ScriptedModel {
	return &ScriptedModel{
		info:      Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		responses: responses,
	}
}

// Enqueue appends more responses to the script.
func (m *ScriptedModel) Enqueue(responses ...core.Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var (
		next core.Content
		ok   bool
	)
	if len(m.responses) > 0 {
		next, ok = m.responses[0], true
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err := ctx.Err(); err != nil {
			errCh <- err
			return
		}
		if !ok {
			errCh <- fmt.Errorf("scripted model: script exhausted after %d requests", len(m.Requests()))
			return
		}

		finish := "stop"
		if len(next.FunctionCalls()) > 0 {
			finish = "tool_calls"
		}
		if next.Role == "" {
			next.Role = "assistant"
		}
		respCh <- Response{ID: core.NewID(), Content: next, FinishReason: finish}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }

// CallContent builds assistant content holding one function call per entry.
// Arguments are JSON encoded.
func CallContent(calls ...core.FunctionCall) core.Content {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + core.NewID()
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return core.Content{Role: "assistant", Parts: parts}
}

// Call is a shorthand to build a FunctionCall with JSON encoded arguments.
func Call(name string, args any) core.FunctionCall {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return core.FunctionCall{Name: name, Arguments: string(raw)}
}

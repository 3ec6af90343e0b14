package core

import (
	"context"

	"github.com/hupe1980/caredesk/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// during an agent run: the request context, the run identifiers, the function
// call id and the caller supplied run value (e.g. the ticket being worked).
type ToolContext struct {
	ctx            context.Context
	runID          string
	functionCallID string
	agentName      string
	value          any

	*loggerAdapter
}

// NewToolContext constructs a tool context for a single function call.
func NewToolContext(ctx context.Context, runID, functionCallID, agentName string, value any, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:            ctx,
		runID:          runID,
		functionCallID: functionCallID,
		agentName:      agentName,
		value:          value,
		loggerAdapter:  newLoggerAdapter(logger, "run_id", runID, "call_id", functionCallID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the agent name associated with the tool invocation.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Value returns the run value supplied by the caller of the run.
func (tc *ToolContext) Value() any { return tc.value }

// ValueAs returns the run value as T, reporting whether the assertion held.
func ValueAs[T any](tc *ToolContext) (T, bool) {
	v, ok := tc.value.(T)
	return v, ok
}

package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_JSONRoundTrip(t *testing.T) {
	in := Content{
		Role: "assistant",
		Parts: []Part{
			TextPart{Text: "hello"},
			DataPart{Data: map[string]any{"k": "v"}},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "call_1", Name: "answerToCustomer", Arguments: `{"answer":"hi"}`}},
			FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "call_1", Name: "answerToCustomer", Error: "rejected"}},
		},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Content
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Equal(t, "assistant", out.Role)
	require.Len(t, out.Parts, 4)
	assert.Equal(t, "hello", out.Text())
	assert.Equal(t, "v", out.Parts[1].(DataPart).Data["k"])
	assert.Equal(t, []FunctionCall{{ID: "call_1", Name: "answerToCustomer", Arguments: `{"answer":"hi"}`}}, out.FunctionCalls())
	assert.Equal(t, "rejected", out.FunctionResponses()[0].Error)
}

func TestContent_UnmarshalRejectsUnknownPart(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"file"}]}`), &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	err = json.Unmarshal([]byte(`{"parts":[{"type":"function_call"}]}`), &c)
	require.Error(t, err)
}

func TestEvent_FunctionHelpers(t *testing.T) {
	c := Content{Role: "assistant", Parts: []Part{
		FunctionCallPart{FunctionCall: FunctionCall{ID: "1", Name: "a"}},
		FunctionCallPart{FunctionCall: FunctionCall{ID: "2", Name: "b"}},
	}}
	ev := NewContentEvent("run", "agent", c)

	calls := ev.GetFunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Name)
	assert.False(t, ev.IsFinalResponse())

	resp := NewFunctionResponseEvent("run", "agent", "1", "a", nil, errors.New("boom"))
	assert.Equal(t, "boom", resp.GetFunctionResponses()[0].Error)
	assert.Equal(t, "tool", resp.Content.Role)

	msg := NewMessageEvent("run", "agent", "done")
	assert.True(t, msg.IsFinalResponse())
	assert.NotEmpty(t, msg.ID)

	errEv := NewErrorEvent("run", "agent", errors.New("x"))
	assert.False(t, errEv.IsFinalResponse())
}

func TestToolContext_Accessors(t *testing.T) {
	type ticket struct{ ID string }

	tc := NewToolContext(context.Background(), "run-1", "call-1", "support", &ticket{ID: "TK-1"}, nil)
	assert.Equal(t, "run-1", tc.RunID())
	assert.Equal(t, "call-1", tc.FunctionCallID())
	assert.Equal(t, "support", tc.AgentName())
	assert.NotNil(t, tc.Logger())

	tk, ok := ValueAs[*ticket](tc)
	require.True(t, ok)
	assert.Equal(t, "TK-1", tk.ID)

	_, ok = ValueAs[string](tc)
	assert.False(t, ok)
}

type recordingLogger struct {
	records []string
	args    [][]any
}

func (l *recordingLogger) record(level, msg string, args []any) {
	l.records = append(l.records, level+" "+msg)
	l.args = append(l.args, args)
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func TestToolContext_LogsCarryRunAndCall(t *testing.T) {
	logger := &recordingLogger{}
	tc := NewToolContext(context.Background(), "run-1", "call-1", "support", nil, logger)

	tc.LogDebug("checking")
	tc.LogInfo("answers drafted", "count", 3)
	tc.LogWarn("odd status", "status", "closed")

	assert.Equal(t, []string{"DEBUG checking", "INFO answers drafted", "WARN odd status"}, logger.records)
	assert.Equal(t, []any{"run_id", "run-1", "call_id", "call-1"}, logger.args[0])
	assert.Equal(t, []any{"run_id", "run-1", "call_id", "call-1", "count", 3}, logger.args[1])
	assert.Equal(t, []any{"run_id", "run-1", "call_id", "call-1", "status", "closed"}, logger.args[2])
}

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())

	err := l.Increment()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelLimitExceeded)

	unlimited := NewModelLimiter(0)
	require.NoError(t, unlimited.Increment())
	assert.Equal(t, -1, unlimited.Remaining())
	assert.Equal(t, 1, unlimited.Count())
}

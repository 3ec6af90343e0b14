package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToolContext(fcID string, value any) *core.ToolContext {
	return core.NewToolContext(context.Background(), "run-1", fcID, "support", value, logging.NoOpLogger{})
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	result, err := sumTool.Call(newToolContext("fc1", nil), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)

	needs, err := sumTool.NeedsApproval(newToolContext("fc1", nil), nil)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := tTool.Call(newToolContext("fc2", nil), map[string]any{})
	require.Error(t, err)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(newToolContext("fc3", nil), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	custom := NewToolError("custom", "no ticket", CodeNotFound)
	ft := NewFunctionTool("custom", "Custom", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, custom
	})

	_, err := ft.Call(newToolContext("fc4", nil), map[string]any{})
	assert.Same(t, custom, err)
}

func TestFunctionTool_ApprovalHookSeesRunValue(t *testing.T) {
	type ticket struct{ Status string }

	ft := NewFunctionToolFromStruct("answer", "Answer", struct {
		Answer string `json:"answer,omitempty"`
	}{}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return "sent", nil
	}, func(o *FunctionToolOptions) {
		o.NeedsApproval = func(tc *core.ToolContext, _ map[string]any) (bool, error) {
			tk, ok := core.ValueAs[*ticket](tc)
			if !ok {
				return false, errors.New("missing ticket")
			}
			return tk.Status == "picked_up_by_agent", nil
		}
	})

	needs, err := ft.NeedsApproval(newToolContext("fc5", &ticket{Status: "picked_up_by_agent"}), nil)
	require.NoError(t, err)
	assert.True(t, needs)

	needs, err = ft.NeedsApproval(newToolContext("fc6", &ticket{Status: "human_feedback_provided"}), nil)
	require.NoError(t, err)
	assert.False(t, needs)

	_, err = ft.NeedsApproval(newToolContext("fc7", nil), nil)
	assert.Error(t, err)

	always, err := AlwaysApprove(nil, nil)
	require.NoError(t, err)
	assert.True(t, always)
}

func TestRegistry(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	noop := func(_ *core.ToolContext, _ map[string]any) (any, error) { return nil, nil }

	first := NewFunctionTool("a", "first", params, noop)
	dup := NewFunctionTool("a", "duplicate", params, noop)
	second := NewFunctionTool("b", "second", params, noop)

	r := NewRegistry(first, nil, dup, second)
	require.Len(t, r.Tools(), 2)

	got, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "first", got.Description())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	plain := &ToolError{Tool: "demo", Message: "x"}
	assert.Equal(t, "tool error in demo: x", plain.Error())
}

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/caredesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedModel_ReplaysInOrder(t *testing.T) {
	m := NewScriptedModel(
		CallContent(Call("generateAnswer", map[string]any{"answers": []string{"a"}})),
		core.NewTextContent("assistant", "done"),
	)

	first, err := Collect(context.Background(), m, Request{Instructions: "be nice"})
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", first.FinishReason)
	calls := first.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "generateAnswer", calls[0].Name)
	assert.JSONEq(t, `{"answers":["a"]}`, calls[0].Arguments)
	assert.NotEmpty(t, calls[0].ID)

	second, err := Collect(context.Background(), m, Request{})
	require.NoError(t, err)
	assert.Equal(t, "done", second.Content.Text())
	assert.Equal(t, "stop", second.FinishReason)

	_, err = Collect(context.Background(), m, Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "be nice", reqs[0].Instructions)
}

func TestCollect_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewScriptedModel(core.NewTextContent("assistant", "x"))
	_, err := Collect(ctx, m, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFunctionResponseText(t *testing.T) {
	assert.Equal(t, "ok", FunctionResponseText(core.FunctionResponse{Response: "ok"}))
	assert.Equal(t, `{"status":"answered"}`, FunctionResponseText(core.FunctionResponse{Response: map[string]string{"status": "answered"}}))
	assert.Equal(t, "Error: nope", FunctionResponseText(core.FunctionResponse{Response: "ignored", Error: "nope"}))
	assert.Equal(t, "", FunctionResponseText(core.FunctionResponse{}))
}

type erroringModel struct{}

func (erroringModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response)
	errCh := make(chan error, 1)
	errCh <- errors.New("provider down")
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (erroringModel) Info() Info { return Info{Name: "err"} }

func TestCollect_PropagatesProviderError(t *testing.T) {
	_, err := Collect(context.Background(), erroringModel{}, Request{})
	require.Error(t, err)
	assert.Equal(t, "provider down", err.Error())
}

package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/caredesk/agent"
	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/model"
	"github.com/hupe1980/caredesk/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var answerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer": map[string]any{"type": "string"},
	},
}

func newAnswerTool(calls *atomic.Int32, gated bool) tool.Tool {
	var optFns []func(o *tool.FunctionToolOptions)
	if gated {
		optFns = append(optFns, func(o *tool.FunctionToolOptions) { o.NeedsApproval = tool.AlwaysApprove })
	}

	return tool.NewFunctionTool("answerToCustomer", "Send the answer", answerSchema, func(tc *core.ToolContext, args map[string]any) (any, error) {
		calls.Add(1)
		return map[string]any{"sent": args["answer"], "ticket": tc.Value()}, nil
	}, optFns...)
}

func TestRunner_FinalAnswerWithoutTools(t *testing.T) {
	llm := model.NewScriptedModel(core.NewTextContent("assistant", "Hello there"))
	ag := agent.New("support", llm)

	var events []core.Event
	r := New(func(o *Options) { o.Hooks.OnEvent = func(ev core.Event) { events = append(events, ev) } })

	res, err := r.Run(context.Background(), ag, "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello there", res.FinalOutput)
	assert.False(t, res.Interrupted())
	assert.Len(t, res.State.History, 2)
	assert.Equal(t, 1, res.State.ModelCalls)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "user", res.Events[0].Author)
	assert.True(t, res.Events[1].IsFinalResponse())
	assert.Len(t, events, 2)

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "You are support")
	assert.Equal(t, "hi", reqs[0].Contents[0].Text())
}

func TestRunner_ExecutesUngatedTools(t *testing.T) {
	var calls atomic.Int32

	llm := model.NewScriptedModel(
		model.CallContent(model.Call("answerToCustomer", map[string]any{"answer": "Try again"})),
		core.NewTextContent("assistant", "Sent"),
	)
	ag := agent.New("support", llm, func(o *agent.Options) { o.Tools = []tool.Tool{newAnswerTool(&calls, false)} })

	var toolCalls []string
	r := New(func(o *Options) {
		o.Hooks.OnToolCall = func(name string, _ time.Duration, err error) {
			assert.NoError(t, err)
			toolCalls = append(toolCalls, name)
		}
	})

	res, err := r.Run(context.Background(), ag, "hi", func(o *RunOptions) { o.Value = "TK-1" })
	require.NoError(t, err)

	assert.Equal(t, "Sent", res.FinalOutput)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"answerToCustomer"}, toolCalls)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	assert.Equal(t, "tool", last.Role)
	fr := last.FunctionResponses()[0]
	assert.Empty(t, fr.Error)
	assert.Equal(t, "TK-1", fr.Response.(map[string]any)["ticket"])
}

func TestRunner_InterruptPersistApproveResume(t *testing.T) {
	var calls atomic.Int32

	llm := model.NewScriptedModel(
		model.CallContent(model.Call("answerToCustomer", map[string]any{"answer": "Reset it"})),
		core.NewTextContent("assistant", "Answered"),
	)
	ag := agent.New("support", llm, func(o *agent.Options) { o.Tools = []tool.Tool{newAnswerTool(&calls, true)} })
	r := New()

	res, err := r.Run(context.Background(), ag, "hi")
	require.NoError(t, err)
	require.True(t, res.Interrupted())
	assert.Equal(t, int32(0), calls.Load())
	require.Len(t, res.Interruptions, 1)
	assert.Equal(t, "answerToCustomer", res.Interruptions[0].ToolName)
	assert.JSONEq(t, `{"answer":"Reset it"}`, res.Interruptions[0].Arguments)
	assert.True(t, res.Events[len(res.Events)-1].Interrupted)

	raw, err := res.State.Marshal()
	require.NoError(t, err)

	state, err := UnmarshalRunState(raw)
	require.NoError(t, err)
	require.Len(t, state.Undecided(), 1)

	state.ApproveAll()
	assert.Empty(t, state.Undecided())

	resumed, err := r.Resume(context.Background(), ag, state)
	require.NoError(t, err)

	assert.False(t, resumed.Interrupted())
	assert.Equal(t, "Answered", resumed.FinalOutput)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, res.RunID, resumed.RunID)
	assert.Empty(t, resumed.State.Decisions)
}

func TestRunner_RejectedCallIsReportedToModel(t *testing.T) {
	var calls atomic.Int32

	llm := model.NewScriptedModel(
		model.CallContent(model.Call("answerToCustomer", map[string]any{"answer": "Nope"})),
		core.NewTextContent("assistant", "Understood"),
	)
	ag := agent.New("support", llm, func(o *agent.Options) { o.Tools = []tool.Tool{newAnswerTool(&calls, true)} })
	r := New()

	res, err := r.Run(context.Background(), ag, "hi")
	require.NoError(t, err)
	require.True(t, res.Interrupted())

	res.State.RejectAll("tone is off")

	resumed, err := r.Resume(context.Background(), ag, res.State)
	require.NoError(t, err)
	assert.Equal(t, "Understood", resumed.FinalOutput)
	assert.Equal(t, int32(0), calls.Load())

	reqs := llm.Requests()
	last := reqs[len(reqs)-1].Contents
	fr := last[len(last)-1].FunctionResponses()[0]
	assert.Contains(t, fr.Error, rejectionMessage)
	assert.Contains(t, fr.Error, "tone is off")
	assert.Contains(t, fr.Error, tool.CodeRejected)
}

func TestRunner_UndecidedInterruptsAgain(t *testing.T) {
	var calls atomic.Int32

	llm := model.NewScriptedModel(model.CallContent(model.Call("answerToCustomer", map[string]any{})))
	ag := agent.New("support", llm, func(o *agent.Options) { o.Tools = []tool.Tool{newAnswerTool(&calls, true)} })
	r := New()

	res, err := r.Run(context.Background(), ag, "hi")
	require.NoError(t, err)

	again, err := r.Resume(context.Background(), ag, res.State)
	require.NoError(t, err)
	assert.True(t, again.Interrupted())
	assert.Equal(t, res.Interruptions, again.Interruptions)
	assert.Len(t, llm.Requests(), 1)
}

func TestRunner_UnknownToolAndPanicAreAnswered(t *testing.T) {
	boom := tool.NewFunctionTool("boom", "Panics", map[string]any{"type": "object"}, func(*core.ToolContext, map[string]any) (any, error) {
		panic("kaboom")
	})

	llm := model.NewScriptedModel(
		model.CallContent(model.Call("missing", map[string]any{}), model.Call("boom", map[string]any{})),
		core.NewTextContent("assistant", "Recovered"),
	)
	ag := agent.New("support", llm, func(o *agent.Options) { o.Tools = []tool.Tool{boom} })

	res, err := New().Run(context.Background(), ag, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Recovered", res.FinalOutput)

	reqs := llm.Requests()
	toolTurn := reqs[1].Contents[len(reqs[1].Contents)-1]
	responses := toolTurn.FunctionResponses()
	require.Len(t, responses, 2)
	assert.Contains(t, responses[0].Error, tool.CodeNotFound)
	assert.Contains(t, responses[1].Error, "kaboom")
}

func TestRunner_MaxTurns(t *testing.T) {
	params := map[string]any{"type": "object"}
	loopTool := tool.NewFunctionTool("again", "Loops", params, func(*core.ToolContext, map[string]any) (any, error) { return "ok", nil })

	llm := model.NewScriptedModel(
		model.CallContent(model.Call("again", map[string]any{})),
		model.CallContent(model.Call("again", map[string]any{})),
		model.CallContent(model.Call("again", map[string]any{})),
	)
	ag := agent.New("support", llm, func(o *agent.Options) { o.Tools = []tool.Tool{loopTool} })

	_, err := New(func(o *Options) { o.MaxTurns = 2 }).Run(context.Background(), ag, "hi")
	assert.ErrorIs(t, err, ErrMaxTurns)
}

func TestRunner_ModelErrorFiresHook(t *testing.T) {
	ag := agent.New("support", model.NewScriptedModel())

	var hookErr error
	r := New(func(o *Options) {
		o.Hooks.OnModelCall = func(_ string, _ time.Duration, err error) { hookErr = err }
	})

	_, err := r.Run(context.Background(), ag, "hi")
	require.Error(t, err)
	assert.Error(t, hookErr)
}

func TestRunner_ResumeGuards(t *testing.T) {
	r := New()
	ag := agent.New("support", model.NewScriptedModel())

	_, err := r.Resume(context.Background(), ag, nil)
	assert.ErrorIs(t, err, ErrNothingToResume)

	state := newRunState("other", "hi")
	state.Pending = []Interruption{{CallID: "c1", ToolName: "answerToCustomer"}}

	_, err = r.Resume(context.Background(), ag, state)
	assert.ErrorIs(t, err, ErrAgentMismatch)
}

func TestRunState_Decisions(t *testing.T) {
	s := newRunState("support", "hi")
	s.Pending = []Interruption{{CallID: "c1"}, {CallID: "c2"}}

	require.NoError(t, s.Approve("c1"))
	require.NoError(t, s.Reject("c2", "no"))
	assert.True(t, s.Decisions["c1"].Approved)
	assert.Equal(t, "no", s.Decisions["c2"].Reason)

	err := s.Approve("c3")
	assert.True(t, errors.Is(err, ErrUnknownInterruption))
}

func TestUnmarshalRunState_RejectsOtherVersions(t *testing.T) {
	_, err := UnmarshalRunState([]byte(`{"version":99}`))
	assert.ErrorIs(t, err, ErrUnsupportedState)

	_, err = UnmarshalRunState([]byte(`not json`))
	assert.Error(t, err)
}

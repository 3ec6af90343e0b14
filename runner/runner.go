package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/caredesk/agent"
	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/logging"
	"github.com/hupe1980/caredesk/model"
)

var (
	// ErrMaxTurns is returned when a run exceeds the configured number of model turns.
	ErrMaxTurns = errors.New("runner: max turns exceeded")
	// ErrNothingToResume is returned by Resume for a state without pending interruptions.
	ErrNothingToResume = errors.New("runner: run state has no pending interruptions")
	// ErrAgentMismatch is returned when resuming a state with a different agent.
	ErrAgentMismatch = errors.New("runner: run state belongs to another agent")
)

// Hooks observe a run without influencing it.
type Hooks struct {
	OnModelCall func(agentName string, dur time.Duration, err error)
	OnToolCall  func(toolName string, dur time.Duration, err error)
	OnEvent     func(ev core.Event)
}

// Options holds configuration overrides passed to New.
type Options struct {
	// MaxTurns caps model turns per Run/Resume call.
	MaxTurns int
	// MaxModelCalls caps model calls per Run/Resume call. Zero is unlimited.
	MaxModelCalls int
	Logger        logging.Logger
	Hooks         Hooks
}

// RunOptions configures a single Run or Resume.
type RunOptions struct {
	// Value is handed to tools through core.ToolContext and to dynamic
	// instruction providers.
	Value any
}

// Result is the outcome of Run or Resume.
type Result struct {
	RunID         string
	FinalOutput   string
	Interruptions []Interruption
	State         *RunState
	Events        []core.Event
}

// Interrupted reports whether the run stopped waiting for human decisions.
func (r *Result) Interrupted() bool { return len(r.Interruptions) > 0 }

// DecodeFinalOutput unmarshals a structured final answer into v.
func (r *Result) DecodeFinalOutput(v any) error {
	if r.FinalOutput == "" {
		return errors.New("runner: empty final output")
	}
	if err := json.Unmarshal([]byte(r.FinalOutput), v); err != nil {
		return fmt.Errorf("runner: decode final output: %w", err)
	}
	return nil
}

// Runner drives agents: it calls the model, routes function calls to tools,
// interrupts on calls that need approval and resumes from a decided RunState.
// A Runner is stateless between calls and safe for concurrent use.
type Runner struct {
	maxTurns      int
	maxModelCalls int
	logger        logging.Logger
	hooks         Hooks
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxTurns:      10,
		MaxModelCalls: 20,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		maxTurns:      opts.MaxTurns,
		maxModelCalls: opts.MaxModelCalls,
		logger:        logging.OrNoOp(opts.Logger),
		hooks:         opts.Hooks,
	}
}

// Run starts a new run of ag with the given user input.
func (r *Runner) Run(ctx context.Context, ag *agent.Agent, input string, optFns ...func(o *RunOptions)) (*Result, error) {
	opts := runOptions(optFns)

	state := newRunState(ag.Name(), input)
	res := &Result{RunID: state.RunID, State: state}
	r.emit(res, core.NewUserMessageEvent(state.RunID, input))

	r.logger.Debug("runner.run.start", "agent", ag.Name(), "run", state.RunID)

	return r.loop(ctx, ag, state, opts, res)
}

// Resume continues an interrupted run. Pending interruptions without a
// decision are re-evaluated and may interrupt again.
func (r *Runner) Resume(ctx context.Context, ag *agent.Agent, state *RunState, optFns ...func(o *RunOptions)) (*Result, error) {
	if state == nil || !state.Interrupted() {
		return nil, ErrNothingToResume
	}

	if state.AgentName != ag.Name() {
		return nil, fmt.Errorf("%w: %s != %s", ErrAgentMismatch, state.AgentName, ag.Name())
	}

	opts := runOptions(optFns)
	res := &Result{RunID: state.RunID, State: state}

	r.logger.Debug("runner.resume.start", "agent", ag.Name(), "run", state.RunID, "pending", len(state.Pending))

	return r.loop(ctx, ag, state, opts, res)
}

func runOptions(optFns []func(o *RunOptions)) RunOptions {
	var opts RunOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func (r *Runner) loop(ctx context.Context, ag *agent.Agent, state *RunState, opts RunOptions, res *Result) (*Result, error) {
	instructions, err := ag.ResolveInstructions(ctx, opts.Value)
	if err != nil {
		return nil, fmt.Errorf("resolve instructions: %w", err)
	}

	limiter := core.NewModelLimiter(r.maxModelCalls)

	for turn := 0; ; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if calls := state.openCalls(); len(calls) > 0 {
			if interrupted := r.resolveCalls(ctx, ag, state, opts.Value, calls, res); interrupted {
				res.Interruptions = state.Interruptions()

				ev := core.NewEvent(state.RunID, ag.Name())
				ev.Interrupted = true
				r.emit(res, ev)

				r.logger.Info("runner.run.interrupted", "agent", ag.Name(), "run", state.RunID, "pending", len(state.Pending))

				return res, nil
			}
		}

		if turn >= r.maxTurns {
			return nil, fmt.Errorf("%w: %d", ErrMaxTurns, r.maxTurns)
		}

		if err := limiter.Increment(); err != nil {
			return nil, err
		}

		req := model.Request{
			Instructions:   instructions,
			Contents:       state.History,
			Tools:          ag.ToolDefinitions(),
			ResponseSchema: ag.OutputSchema(),
		}

		start := time.Now()
		resp, err := model.Collect(ctx, ag.Model(), req)
		dur := time.Since(start)

		state.ModelCalls++

		if r.hooks.OnModelCall != nil {
			r.hooks.OnModelCall(ag.Name(), dur, err)
		}

		if err != nil {
			r.logger.Error("runner.model.error", "agent", ag.Name(), "run", state.RunID, "error", err.Error())
			r.emit(res, core.NewErrorEvent(state.RunID, ag.Name(), err))

			return nil, fmt.Errorf("model call failed: %w", err)
		}

		content := resp.Content
		content.Role = "assistant"
		state.History = append(state.History, content)
		r.emit(res, core.NewContentEvent(state.RunID, ag.Name(), content))

		r.logger.Debug(
			"runner.model.response",
			"agent", ag.Name(),
			"run", state.RunID,
			"duration_ms", dur.Milliseconds(),
			"fn_calls", len(content.FunctionCalls()),
		)

		if len(content.FunctionCalls()) == 0 {
			res.FinalOutput = content.Text()
			state.Pending = nil
			state.Responses = nil

			r.logger.Debug("runner.run.complete", "agent", ag.Name(), "run", state.RunID, "turns", turn+1)

			return res, nil
		}
	}
}

// resolveCalls answers the open calls of the trailing assistant turn. When
// every call has a response the tool turn is appended to the history;
// otherwise the unresolved calls become the pending interruptions.
func (r *Runner) resolveCalls(
	ctx context.Context,
	ag *agent.Agent,
	state *RunState,
	value any,
	calls []core.FunctionCall,
	res *Result,
) bool {
	var pending []Interruption

	for _, fc := range calls {
		if _, done := state.response(fc.ID); done {
			continue
		}

		out := r.resolveCall(ctx, ag, state, value, fc)
		if out.interruption != nil {
			pending = append(pending, *out.interruption)
			continue
		}

		state.Responses = append(state.Responses, *out.response)
		r.emit(res, core.NewFunctionResponseEvent(state.RunID, ag.Name(), fc.ID, fc.Name, out.response.Response, errorOrNil(out.response.Error)))
	}

	state.Pending = pending
	if len(pending) > 0 {
		return true
	}

	parts := make([]core.Part, 0, len(calls))
	for _, fc := range calls {
		fr, _ := state.response(fc.ID)
		parts = append(parts, core.FunctionResponsePart{FunctionResponse: fr})
	}

	state.History = append(state.History, core.Content{Role: "tool", Parts: parts})
	state.Responses = nil

	return false
}

func (r *Runner) emit(res *Result, ev core.Event) {
	res.Events = append(res.Events, ev)
	if r.hooks.OnEvent != nil {
		r.hooks.OnEvent(ev)
	}
}

func errorOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

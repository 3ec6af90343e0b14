package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/caredesk/agent"
	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/tool"
)

// rejectionMessage is what the model sees for a call a human declined.
const rejectionMessage = "The human reviewer rejected this action"

// callOutcome is either a tool response or an interruption.
type callOutcome struct {
	response     *core.FunctionResponse
	interruption *Interruption
}

// resolveCall decides what happens to one function call: replay a recorded
// decision, interrupt for approval or execute the tool.
func (r *Runner) resolveCall(
	ctx context.Context,
	ag *agent.Agent,
	state *RunState,
	value any,
	fc core.FunctionCall,
) callOutcome {
	logger := r.logger

	impl, ok := ag.Tool(fc.Name)
	if !ok {
		logger.Warn("runner.function.unknown", "agent", ag.Name(), "function", fc.Name)
		return respond(fc, nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeNotFound))
	}

	args, err := decodeArguments(fc.Arguments)
	if err != nil {
		return respond(fc, nil, &tool.ToolError{Tool: fc.Name, Message: err.Error(), Code: tool.CodeValidation})
	}

	toolCtx := core.NewToolContext(ctx, state.RunID, fc.ID, ag.Name(), value, logger)

	if d, decided := state.Decisions[fc.ID]; decided {
		delete(state.Decisions, fc.ID)

		if !d.Approved {
			msg := rejectionMessage
			if d.Reason != "" {
				msg += ": " + d.Reason
			}
			logger.Info("runner.function.rejected", "agent", ag.Name(), "function", fc.Name, "function_call_id", fc.ID)
			return respond(fc, nil, tool.NewToolError(fc.Name, msg, tool.CodeRejected))
		}

		logger.Info("runner.function.approved", "agent", ag.Name(), "function", fc.Name, "function_call_id", fc.ID)

		return r.execute(toolCtx, ag, impl, fc, args)
	}

	needs, err := impl.NeedsApproval(toolCtx, args)
	if err != nil {
		return respond(fc, nil, &tool.ToolError{Tool: fc.Name, Message: err.Error(), Code: tool.CodeExecution})
	}

	if needs {
		logger.Info("runner.function.interrupted", "agent", ag.Name(), "function", fc.Name, "function_call_id", fc.ID)

		return callOutcome{interruption: &Interruption{
			CallID:    fc.ID,
			ToolName:  fc.Name,
			Arguments: fc.Arguments,
			AgentName: ag.Name(),
		}}
	}

	return r.execute(toolCtx, ag, impl, fc, args)
}

// execute runs the tool with panic recovery and the agent's tool timeout.
func (r *Runner) execute(
	toolCtx *core.ToolContext,
	ag *agent.Agent,
	impl tool.Tool,
	fc core.FunctionCall,
	args map[string]any,
) callOutcome {
	ctx := toolCtx.Context()
	if timeout := ag.ToolTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		toolCtx = core.NewToolContext(ctx, toolCtx.RunID(), fc.ID, ag.Name(), toolCtx.Value(), toolCtx.Logger())
	}

	start := time.Now()

	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = panicError(rec)
				r.logger.Error("runner.function.panic", "agent", ag.Name(), "function", fc.Name, "recover", rec)
			}
		}()
		result, err = impl.Call(toolCtx, args)
	}()

	dur := time.Since(start)

	r.logger.Info(
		"runner.function.executed",
		"agent", ag.Name(),
		"function", fc.Name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	if r.hooks.OnToolCall != nil {
		r.hooks.OnToolCall(fc.Name, dur, err)
	}

	return respond(fc, result, err)
}

func respond(fc core.FunctionCall, result any, err error) callOutcome {
	fr := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	return callOutcome{response: &fr}
}

func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// panicError converts a recovered panic value to an error carrying the stack.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

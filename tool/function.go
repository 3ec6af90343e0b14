package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/internal/util"
)

// ApprovalFunc decides per call whether a human must approve the invocation.
type ApprovalFunc func(toolCtx *core.ToolContext, args map[string]any) (bool, error)

// FunctionToolOptions configures a FunctionTool.
type FunctionToolOptions struct {
	// NeedsApproval gates execution behind a human decision. Nil means the
	// tool always runs immediately.
	NeedsApproval ApprovalFunc
}

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// It validates model supplied arguments against the parameter schema before
// execution and normalizes failures into *ToolError:
//
//	VALIDATION_ERROR  -> schema / argument mismatch
//	EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name          string
	description   string
	parameters    map[string]any
	fn            func(toolCtx *core.ToolContext, args map[string]any) (any, error)
	needsApproval ApprovalFunc
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	answer := NewFunctionTool(
//	  "answerToCustomer",
//	  "Send the final answer to the customer",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "answer": map[string]any{"type": "string"},
//	    },
//	  },
//	  send,
//	  func(o *FunctionToolOptions) { o.NeedsApproval = AlwaysApprove },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	return &FunctionTool{
		name:          name,
		description:   description,
		parameters:    parameters,
		fn:            fn,
		needsApproval: opts.NeedsApproval,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
//
//	type GenerateArgs struct {
//	  Answers []string `json:"answers" description:"Candidate answers"`
//	}
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// AlwaysApprove is an ApprovalFunc that gates every call.
func AlwaysApprove(*core.ToolContext, map[string]any) (bool, error) { return true, nil }

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// NeedsApproval evaluates the configured approval hook.
func (t *FunctionTool) NeedsApproval(toolCtx *core.ToolContext, args map[string]any) (bool, error) {
	if t.needsApproval == nil {
		return false, nil
	}
	return t.needsApproval(toolCtx, args)
}

// Call validates the provided args against the declared schema then invokes the
// underlying function. A *ToolError returned by the function is forwarded
// unchanged; any other error becomes EXECUTION_ERROR.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)
			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

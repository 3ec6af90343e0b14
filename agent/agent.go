package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/caredesk/model"
	"github.com/hupe1980/caredesk/tool"
)

// Options configures an Agent.
type Options struct {
	Instruction  Instruction
	Tools        []tool.Tool
	OutputSchema *model.ResponseSchema
	ToolTimeout  time.Duration
}

// Agent is a model backed agent definition: who it is, what it may call and
// what shape its final answer takes. Agents hold no per-run state and can be
// shared by concurrent runs.
type Agent struct {
	name         string
	llm          model.Model
	instruction  Instruction
	tools        *tool.Registry
	outputSchema *model.ResponseSchema
	toolTimeout  time.Duration
}

// New creates a new agent with defaults.
func New(name string, llm model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful customer support assistant.", name)),
		ToolTimeout: 15 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		name:         name,
		llm:          llm,
		instruction:  opts.Instruction,
		tools:        tool.NewRegistry(opts.Tools...),
		outputSchema: opts.OutputSchema,
		toolTimeout:  opts.ToolTimeout,
	}
}

// Name returns the agent name used as event author.
func (a *Agent) Name() string { return a.name }

// Model returns the language model backing the agent.
func (a *Agent) Model() model.Model { return a.llm }

// Tool looks up a registered tool by name.
func (a *Agent) Tool(name string) (tool.Tool, bool) { return a.tools.Lookup(name) }

// Tools returns the registered tools in registration order.
func (a *Agent) Tools() []tool.Tool { return a.tools.Tools() }

// OutputSchema returns the structured output contract, if any.
func (a *Agent) OutputSchema() *model.ResponseSchema { return a.outputSchema }

// ToolTimeout bounds a single tool invocation. Zero disables the bound.
func (a *Agent) ToolTimeout() time.Duration { return a.toolTimeout }

// ResolveInstructions produces the system prompt for a run.
func (a *Agent) ResolveInstructions(ctx context.Context, value any) (string, error) {
	return a.instruction.Resolve(ctx, value)
}

// ToolDefinitions exposes the registered tools to the model.
func (a *Agent) ToolDefinitions() []model.ToolDefinition {
	tools := a.tools.Tools()
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

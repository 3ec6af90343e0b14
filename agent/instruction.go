package agent

import (
	"context"

	"github.com/hupe1980/caredesk/internal/util"
)

// Provider supplies dynamic instruction text at runtime. The value is the
// caller supplied run value (e.g. the ticket being worked on).
type Provider interface {
	Instruction(ctx context.Context, value any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, value any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, value any) (string, error) { return f(ctx, value) }

// Instruction represents either a static instruction string, a text/template
// rendered against template data, or a dynamic provider.
type Instruction struct {
	text     string
	data     any
	template bool
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate creates an Instruction rendered with text/template
// against data on every resolve.
func NewInstructionFromTemplate(text string, data any) Instruction {
	return Instruction{text: text, data: data, template: true}
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, value any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a plain string.
func (i Instruction) IsStatic() bool { return i.provider == nil && !i.template }

// Resolve returns the instruction text, rendering or invoking the provider if needed.
func (i Instruction) Resolve(ctx context.Context, value any) (string, error) {
	switch {
	case i.provider != nil:
		return i.provider.Instruction(ctx, value)
	case i.template:
		return util.RenderTemplate(i.text, i.data)
	default:
		return i.text, nil
	}
}

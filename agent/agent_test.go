package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/model"
	"github.com/hupe1980/caredesk/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type persona struct {
	Name        string
	Personality string
	Memory      []string
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_Template(t *testing.T) {
	inst := NewInstructionFromTemplate(
		"You are {{.Name}}. {{.Personality}}{{if .Memory}}\nPreferred answers:\n{{bullets .Memory}}{{end}}",
		persona{Name: "Sam", Personality: "Friendly.", Memory: []string{"Reset via settings"}},
	)
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, got, "You are Sam. Friendly.")
	assert.Contains(t, got, "- Reset via settings")
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(_ context.Context, value any) (string, error) {
		s, ok := value.(string)
		if !ok {
			return "", errors.New("no value")
		}
		return "ticket " + s, nil
	})

	got, err := inst.Resolve(context.Background(), "TK-1")
	require.NoError(t, err)
	assert.Equal(t, "ticket TK-1", got)

	_, err = inst.Resolve(context.Background(), nil)
	assert.Error(t, err)
}

func TestAgent_Defaults(t *testing.T) {
	a := New("support", model.NewScriptedModel())

	got, err := a.ResolveInstructions(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, got, "You are support")
	assert.Nil(t, a.OutputSchema())
	assert.Empty(t, a.ToolDefinitions())
	assert.NotZero(t, a.ToolTimeout())
}

func TestAgent_ToolDefinitions(t *testing.T) {
	answer := tool.NewFunctionTool("answerToCustomer", "Send the answer", map[string]any{
		"type":       "object",
		"properties": map[string]any{"answer": map[string]any{"type": "string"}},
	}, func(*core.ToolContext, map[string]any) (any, error) { return nil, nil })

	schema := &model.ResponseSchema{Name: "proposals", Schema: map[string]any{"type": "object"}}

	a := New("support", model.NewScriptedModel(), func(o *Options) {
		o.Tools = []tool.Tool{answer}
		o.OutputSchema = schema
	})

	defs := a.ToolDefinitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "answerToCustomer", defs[0].Function.Name)
	assert.Same(t, schema, a.OutputSchema())

	got, ok := a.Tool("answerToCustomer")
	require.True(t, ok)
	assert.Equal(t, "Send the answer", got.Description())
}

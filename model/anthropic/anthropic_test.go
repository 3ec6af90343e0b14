package anthropic

import (
	"testing"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_ToolResultsFollowAssistantTurn(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent("system", "ignored here"),
		core.NewTextContent("user", "hello"),
		model.CallContent(core.FunctionCall{ID: "toolu_1", Name: "answerToCustomer", Arguments: `{"answer":"hi"}`}),
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID: "toolu_1", Name: "answerToCustomer", Error: "rejected by reviewer",
		}}}},
	}

	messages := buildMessages(contents)
	require.Len(t, messages, 3)
	assert.Equal(t, "user", string(messages[0].Role))
	assert.Equal(t, "assistant", string(messages[1].Role))
	assert.Equal(t, "user", string(messages[2].Role))
	require.Len(t, messages[2].Content, 1)
	require.NotNil(t, messages[2].Content[0].OfToolResult)
	assert.Equal(t, "toolu_1", messages[2].Content[0].OfToolResult.ToolUseID)
}

func TestSystemBlocks_IncludesSchemaContract(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions:   "You are Sam.",
		ResponseSchema: &model.ResponseSchema{Name: "proposals", Schema: map[string]any{"type": "object"}},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "You are Sam.", blocks[0].Text)
	assert.Contains(t, blocks[1].Text, `"proposals"`)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(` {"a":1} `))
}

func TestBuildTools_RequiredAndDescription(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Function: model.FunctionDefinition{
			Name:        "generateAnswer",
			Description: "Propose answers",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"answers": map[string]any{"type": "array"}},
				"required":   []any{"answers"},
			},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "generateAnswer", tools[0].OfTool.Name)
	assert.Equal(t, []string{"answers"}, tools[0].OfTool.InputSchema.Required)
}

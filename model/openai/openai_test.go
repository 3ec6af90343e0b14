package openai

import (
	"testing"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_PairsToolResponses(t *testing.T) {
	req := model.Request{
		Instructions: "You are Sam.",
		Contents: []core.Content{
			core.NewTextContent("user", "Here is the customer query"),
			model.CallContent(core.FunctionCall{ID: "call_1", Name: "generateAnswer", Arguments: `{"answers":["a"]}`}),
			{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID: "call_1", Name: "generateAnswer", Response: map[string]any{"ok": true},
			}}}},
			core.NewTextContent("assistant", "done"),
		},
	}

	responses, order := collectToolResponses(req)
	require.Equal(t, []string{"call_1"}, order)
	assert.Equal(t, `{"ok":true}`, responses["call_1"])

	messages := buildMessages(req, responses, order)
	require.Len(t, messages, 5)
	require.NotNil(t, messages[0].OfSystem)
	require.NotNil(t, messages[1].OfUser)
	require.NotNil(t, messages[2].OfAssistant)
	require.Len(t, messages[2].OfAssistant.ToolCalls, 1)
	require.NotNil(t, messages[3].OfTool)
	assert.Equal(t, "call_1", messages[3].OfTool.ToolCallID)
	require.NotNil(t, messages[4].OfAssistant)
}

func TestBuildParams_ResponseSchemaAndTools(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "gpt-test" })

	req := model.Request{
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:       "answerToCustomer",
				Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
			},
		}},
		ResponseSchema: &model.ResponseSchema{Name: "proposals", Schema: map[string]any{"type": "object"}},
	}

	params := m.buildParams(req, nil)
	assert.EqualValues(t, "gpt-test", params.Model)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "answerToCustomer", params.Tools[0].Function.Name)
	require.NotNil(t, params.ResponseFormat.OfJSONSchema)
	assert.Equal(t, "proposals", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)

	info := m.Info()
	assert.Equal(t, "openai", info.Provider)
}

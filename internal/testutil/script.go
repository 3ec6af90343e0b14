package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/model"
)

// GenerateAnswers is a model turn calling generateAnswer.
func GenerateAnswers(answers ...string) core.Content {
	return model.CallContent(model.Call("generateAnswer", map[string]any{"answers": answers}))
}

// AnswerCustomer is a model turn calling answerToCustomer. An empty answer
// omits the argument.
func AnswerCustomer(answer string) core.Content {
	args := map[string]any{}
	if answer != "" {
		args["answer"] = answer
	}
	return model.CallContent(model.Call("answerToCustomer", args))
}

// Reply is a final text turn.
func Reply(text string) core.Content {
	return core.NewTextContent("assistant", text)
}

// ProposalsReply is a structured final turn holding n proposals.
func ProposalsReply(n int) core.Content {
	proposals := make([]map[string]string, n)
	for i := range proposals {
		proposals[i] = map[string]string{
			"title": fmt.Sprintf("Option %d", i+1),
			"body":  fmt.Sprintf("Proposed answer number %d.", i+1),
		}
	}

	raw, err := json.Marshal(map[string]any{"proposals": proposals})
	if err != nil {
		panic(err)
	}

	return Reply(string(raw))
}

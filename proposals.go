package caredesk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/caredesk/agent"
	"github.com/hupe1980/caredesk/internal/util"
	"github.com/hupe1980/caredesk/model"
)

// ProposalCount is how many proposals DraftProposals returns.
const ProposalCount = 3

// ErrProposalCount is returned when the model drafts the wrong number of proposals.
var ErrProposalCount = errors.New("unexpected number of proposals")

const drafterInstruction = "You are a helpful customer support agent. A customer has a problem. Your task is to draft 3 different possible answers to the customer query. Each answer should have a title and a body. The answers should be polite, helpful, and offer different approaches if possible (e.g., one direct answer, one with more questions for clarification, one with alternative solutions)."

// Proposal is a drafted answer.
type Proposal struct {
	Title string `json:"title" description:"A short, descriptive title for the proposed answer."`
	Body  string `json:"body" description:"The full text of the proposed answer for the customer."`
}

// Proposals is the structured output of the drafting agent.
type Proposals struct {
	Proposals []Proposal `json:"proposals" description:"Draft exactly 3 different answers for the customer query."`
}

func (d *Desk) newDrafter() *agent.Agent {
	schema := util.CreateSchema(Proposals{})
	if props, ok := schema["properties"].(map[string]any); ok {
		if list, ok := props["proposals"].(map[string]any); ok {
			list["minItems"] = ProposalCount
			list["maxItems"] = ProposalCount
		}
	}

	return agent.New("Proposal Drafter", d.llm, func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText(drafterInstruction)
		o.OutputSchema = &model.ResponseSchema{
			Name:        "answer_proposals",
			Description: "Three proposed answers to a customer query.",
			Schema:      schema,
		}
	})
}

// DraftProposals asks the model for three titled answers to a free-form
// customer query without touching any ticket.
func (d *Desk) DraftProposals(ctx context.Context, query string) (_ *Proposals, err error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validation(errors.New("customerQuery is required"))
	}

	ctx, end := d.startSpan(ctx, "caredesk.DraftProposals", attribute.Int("query.length", len(query)))
	defer end(&err)

	release, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if d.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome := "error"
	defer func() { d.metrics.RecordRun("draft", outcome, time.Since(start)) }()

	res, err := d.runner.Run(ctx, d.drafter, fmt.Sprintf(`Here is the customer query: "%s"`, query))
	if err != nil {
		return nil, fmt.Errorf("draft proposals: %w", err)
	}

	var out Proposals
	if err := res.DecodeFinalOutput(&out); err != nil {
		return nil, err
	}

	if len(out.Proposals) != ProposalCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrProposalCount, len(out.Proposals), ProposalCount)
	}

	outcome = "completed"

	return &out, nil
}

package caredesk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/caredesk/agent"
	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/internal/util"
	"github.com/hupe1980/caredesk/runner"
	"github.com/hupe1980/caredesk/supportagent"
	"github.com/hupe1980/caredesk/ticket"
	"github.com/hupe1980/caredesk/tool"
)

// SupportAgentName names the ticket agent. Saved run states carry it, so it
// must not change between a run and its resume.
const SupportAgentName = "Customer Support Agent"

// Messages returned by ProcessTicket.
const (
	MessageWaitingForHuman = "Customer support ticket processed, waiting for human intervention"
	MessageAnswered        = "Customer support ticket answered"
	MessageReturned        = "Customer support ticket returned to agent"
	MessageProcessed       = "Customer support ticket processed"
)

const (
	generateAnswerTool   = "generateAnswer"
	answerToCustomerTool = "answerToCustomer"
)

const supportInstruction = `You are a helpful customer support agent. You will be given a ticket with a customer query and a ticket status.
If the ticket status is waiting_for_pickup, call the generate answer tool to generate a list of answers, then call the answer to customer tool to answer the customer query.
If the ticket status is picked_up_by_agent, call the answer to customer tool to answer the customer query.`

const personaTemplate = `{{with .Persona}}

You are {{.Name}}. {{.Description}}
Personality: {{.Personality}}{{if .Specialties}}
Specialties: {{join ", " .Specialties}}{{end}}{{end}}{{if .Recalled}}

Answers you preferred for similar queries:
{{bullets .Recalled}}{{end}}`

// ProcessResult is the outcome of ProcessTicket.
type ProcessResult struct {
	Message       string                `json:"message,omitempty"`
	Ticket        *ticket.Ticket        `json:"ticket"`
	Interruptions []runner.Interruption `json:"interruptions,omitempty"`
}

// job is the run value the support agent's tools work on.
type job struct {
	ticket  *ticket.Ticket
	persona *supportagent.SupportAgent
}

type generateAnswerArgs struct {
	Answers []string `json:"answers" description:"The answers to the customer query."`
}

type answerToCustomerArgs struct {
	Answer string `json:"answer,omitempty" description:"The answer to send. Defaults to the first drafted answer."`
}

func (d *Desk) newSupportAgent() *agent.Agent {
	generate := tool.NewFunctionToolFromStruct(
		generateAnswerTool,
		"Use this tool to draft 3 different possible answers to the customer query. The answers should be polite, helpful, and offer different approaches if possible (e.g., one direct answer, one with more questions for clarification, one with alternative solutions). Only if the ticket status is waiting_for_pickup.",
		generateAnswerArgs{},
		d.generateAnswer,
	)

	answer := tool.NewFunctionToolFromStruct(
		answerToCustomerTool,
		"Use this tool to answer the customer, only if the ticket status is picked_up_by_agent.",
		answerToCustomerArgs{},
		d.answerToCustomer,
		func(o *tool.FunctionToolOptions) { o.NeedsApproval = answerNeedsApproval },
	)

	return agent.New(SupportAgentName, d.llm, func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromFunc(d.supportInstructions)
		o.Tools = []tool.Tool{answer, generate}
	})
}

// supportInstructions adds the persona and its recalled answers to the base
// instructions.
func (d *Desk) supportInstructions(_ context.Context, value any) (string, error) {
	j, ok := value.(*job)
	if !ok || j.persona == nil {
		return supportInstruction, nil
	}

	extra, err := util.RenderTemplate(personaTemplate, map[string]any{
		"Persona":  j.persona,
		"Recalled": j.persona.Recall(j.ticket.Subject+" "+j.ticket.Content, d.opts.RecallLimit),
	})
	if err != nil {
		return "", fmt.Errorf("render persona instructions: %w", err)
	}

	return supportInstruction + extra, nil
}

func jobFrom(toolCtx *core.ToolContext, toolName string) (*job, error) {
	j, ok := core.ValueAs[*job](toolCtx)
	if !ok || j == nil || j.ticket == nil {
		return nil, tool.NewToolError(toolName, "no ticket bound to the run", tool.CodeExecution)
	}
	return j, nil
}

func answerNeedsApproval(toolCtx *core.ToolContext, _ map[string]any) (bool, error) {
	j, err := jobFrom(toolCtx, answerToCustomerTool)
	if err != nil {
		return false, err
	}

	if j.persona != nil && j.persona.Autonomous {
		toolCtx.LogDebug("autonomous persona answers without review", "ticket_id", j.ticket.ID, "agent_id", j.persona.ID)
		return false, nil
	}

	return j.ticket.Status == ticket.StatusPickedUpByAgent, nil
}

func (d *Desk) generateAnswer(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	j, err := jobFrom(toolCtx, generateAnswerTool)
	if err != nil {
		return nil, err
	}

	t := j.ticket
	if t.Status != ticket.StatusWaitingForPickup {
		toolCtx.LogWarn("answers requested outside pickup", "ticket_id", t.ID, "status", t.Status)
		return nil, tool.NewToolError(generateAnswerTool, fmt.Sprintf("ticket status is %s, answers are only drafted while %s", t.Status, ticket.StatusWaitingForPickup), tool.CodeValidation)
	}

	answers := stringList(args["answers"])
	if len(answers) == 0 {
		return nil, tool.NewToolError(generateAnswerTool, "at least one answer is required", tool.CodeValidation)
	}

	prev := t.Status
	t.ProposedAnswers = answers
	if err := ticket.Transition(t, ticket.StatusPickedUpByAgent, d.now()); err != nil {
		return nil, err
	}

	if err := d.saveTicket(toolCtx.Context(), t, prev); err != nil {
		return nil, err
	}

	toolCtx.LogInfo("answers drafted", "ticket_id", t.ID, "count", len(answers))

	return map[string]any{"answers": answers}, nil
}

func (d *Desk) answerToCustomer(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	j, err := jobFrom(toolCtx, answerToCustomerTool)
	if err != nil {
		return nil, err
	}

	t := j.ticket
	if t.Status != ticket.StatusPickedUpByAgent && t.Status != ticket.StatusHumanFeedbackProvided {
		return nil, tool.NewToolError(answerToCustomerTool, fmt.Sprintf("ticket status is %s, the customer can only be answered once the ticket is picked up", t.Status), tool.CodeValidation)
	}

	answer := strings.TrimSpace(t.FinalAnswer)
	if answer == "" {
		s, _ := args["answer"].(string)
		answer = strings.TrimSpace(s)
	}
	if answer == "" && len(t.ProposedAnswers) > 0 {
		answer = t.ProposedAnswers[0]
	}
	if answer == "" {
		return nil, tool.NewToolError(answerToCustomerTool, "no answer to send, draft answers first", tool.CodeValidation)
	}

	prev := t.Status
	t.FinalAnswer = answer
	if err := ticket.Transition(t, ticket.StatusAnswered, d.now()); err != nil {
		return nil, err
	}

	if err := d.saveTicket(toolCtx.Context(), t, prev); err != nil {
		return nil, err
	}

	toolCtx.LogInfo("customer answered", "ticket_id", t.ID, "agent_id", personaID(j.persona))

	if j.persona != nil {
		d.remember(toolCtx.Context(), j.persona.ID, answer)
	}

	return "Customer answered", nil
}

// ProcessTicket lets the support agent work on a ticket. A ticket waiting for
// pickup or picked up starts a new run; a ticket with human feedback resumes
// the saved run with the review applied. Tickets in any other status are
// returned unchanged. agentID optionally selects the persona.
func (d *Desk) ProcessTicket(ctx context.Context, ticketID, agentID string) (_ *ProcessResult, err error) {
	ctx, end := d.startSpan(ctx, "caredesk.ProcessTicket", attribute.String("ticket.id", ticketID), attribute.String("agent.id", agentID))
	defer end(&err)

	release, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	unlock, err := d.locker.Lock(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if d.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.RunTimeout)
		defer cancel()
	}

	t, err := d.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case ticket.StatusWaitingForPickup, ticket.StatusPickedUpByAgent:
		return d.run(ctx, t, agentID)
	case ticket.StatusHumanFeedbackProvided:
		return d.resume(ctx, t)
	default:
		d.logger.Debug("ticket not processable", "ticket_id", t.ID, "status", t.Status)
		return &ProcessResult{Ticket: t}, nil
	}
}

func (d *Desk) run(ctx context.Context, t *ticket.Ticket, agentID string) (*ProcessResult, error) {
	persona, err := d.persona(ctx, agentID, t.Subject+" "+t.Content)
	if err != nil {
		return nil, err
	}

	j := &job{ticket: t, persona: persona}
	start := time.Now()

	d.logger.Info("processing ticket", "ticket_id", t.ID, "status", t.Status, "agent_id", personaID(persona))

	res, err := d.runner.Run(ctx, d.support, t.Query(), withJob(j))
	if err != nil {
		d.metrics.RecordRun("run", "error", time.Since(start))
		return nil, fmt.Errorf("run agent on ticket %s: %w", t.ID, err)
	}

	return d.finish(ctx, "run", j, res, start, MessageProcessed)
}

func (d *Desk) resume(ctx context.Context, t *ticket.Ticket) (*ProcessResult, error) {
	if len(t.AgentState) == 0 {
		return d.restart(ctx, t)
	}

	state, err := runner.UnmarshalRunState(t.AgentState)
	if err != nil {
		return nil, err
	}

	var persona *supportagent.SupportAgent
	if t.SupportAgentID != "" {
		persona, err = d.agents.Get(ctx, t.SupportAgentID)
		if errors.Is(err, supportagent.ErrNotFound) {
			d.logger.Warn("persona of saved run is gone", "ticket_id", t.ID, "agent_id", t.SupportAgentID)
			persona = nil
		} else if err != nil {
			return nil, err
		}
	}

	fallback := MessageProcessed

	// A ticket moved to human_feedback_provided without a review counts as approved.
	if t.Review == nil || t.Review.Approved {
		state.ApproveAll()
	} else {
		state.RejectAll(t.Review.Comment)
		fallback = MessageReturned

		// Back to the agent, so a repeated answer asks for review again.
		prev := t.Status
		if err := ticket.Transition(t, ticket.StatusPickedUpByAgent, d.now()); err != nil {
			return nil, err
		}
		if err := d.saveTicket(ctx, t, prev); err != nil {
			return nil, err
		}
	}

	j := &job{ticket: t, persona: persona}
	start := time.Now()

	d.logger.Info("resuming ticket", "ticket_id", t.ID, "approved", t.Review == nil || t.Review.Approved, "run_id", state.RunID)

	res, err := d.runner.Resume(ctx, d.support, state, withJob(j))
	if err != nil {
		d.metrics.RecordRun("resume", "error", time.Since(start))
		return nil, fmt.Errorf("resume agent on ticket %s: %w", t.ID, err)
	}

	return d.finish(ctx, "resume", j, res, start, fallback)
}

// restart starts a fresh run for a reviewed ticket that has no saved run. An
// approval lets the agent answer directly; a rejection sends the ticket back
// to the agent so the next answer is reviewed again.
func (d *Desk) restart(ctx context.Context, t *ticket.Ticket) (*ProcessResult, error) {
	d.logger.Warn("no saved agent state, starting a fresh run", "ticket_id", t.ID)

	if t.Review != nil && !t.Review.Approved {
		prev := t.Status
		if err := ticket.Transition(t, ticket.StatusPickedUpByAgent, d.now()); err != nil {
			return nil, err
		}
		if err := d.saveTicket(ctx, t, prev); err != nil {
			return nil, err
		}
	}

	return d.run(ctx, t, t.SupportAgentID)
}

// finish stores the run state on the ticket and parks it for review when the
// run was interrupted.
func (d *Desk) finish(ctx context.Context, kind string, j *job, res *runner.Result, start time.Time, fallback string) (*ProcessResult, error) {
	t := j.ticket

	state, err := res.State.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode run state: %w", err)
	}

	prev := t.Status
	t.AgentState = state
	if j.persona != nil {
		t.SupportAgentID = j.persona.ID
	}

	msg, outcome := fallback, "completed"

	switch {
	case res.Interrupted():
		if err := ticket.Transition(t, ticket.StatusAgentWaitingForHuman, d.now()); err != nil {
			return nil, err
		}
		msg, outcome = MessageWaitingForHuman, "interrupted"
	case t.Status == ticket.StatusAnswered:
		msg = MessageAnswered
	}

	t.UpdatedAt = d.now()

	if err := d.saveTicket(ctx, t, prev); err != nil {
		return nil, err
	}

	d.metrics.RecordRun(kind, outcome, time.Since(start))
	d.logger.Info("ticket processed", "ticket_id", t.ID, "kind", kind, "outcome", outcome, "status", t.Status, "run_id", res.RunID)

	return &ProcessResult{
		Message:       msg,
		Ticket:        t.Clone(),
		Interruptions: res.Interruptions,
	}, nil
}

func withJob(j *job) func(o *runner.RunOptions) {
	return func(o *runner.RunOptions) { o.Value = j }
}

func personaID(a *supportagent.SupportAgent) string {
	if a == nil {
		return ""
	}
	return a.ID
}

// stringList converts a decoded JSON array to trimmed, non-empty strings.
func stringList(v any) []string {
	var raw []any
	switch vv := v.(type) {
	case []any:
		raw = vv
	case []string:
		for _, s := range vv {
			raw = append(raw, s)
		}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

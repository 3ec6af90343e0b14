package caredesk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hupe1980/caredesk/events"
	"github.com/hupe1980/caredesk/ticket"
)

// TicketInput carries the fields of a new ticket.
type TicketInput struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Content string `json:"content"`
}

// ReviewInput is the human verdict on the answer the agent wants to send.
type ReviewInput struct {
	Reviewer string `json:"reviewer"`
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
	// FinalAnswer replaces the agent's answer when set on an approval.
	FinalAnswer *string `json:"finalAnswer,omitempty"`
}

// CreateTicket validates and stores a new ticket waiting for pickup.
func (d *Desk) CreateTicket(ctx context.Context, in TicketInput) (*ticket.Ticket, error) {
	t, err := ticket.New(in.Subject, in.Email, in.Content, d.now())
	if err != nil {
		return nil, validation(err)
	}

	if err := d.tickets.Create(ctx, t); err != nil {
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.TicketsCreated.Inc()
	}
	d.publish(ctx, events.NewTicketEvent(events.TypeCreated, t.ID, "", t.Status))
	d.logger.Info("ticket created", "ticket_id", t.ID)

	return t, nil
}

// ListTickets returns tickets matching the filter, newest first.
func (d *Desk) ListTickets(ctx context.Context, filter ticket.Filter) ([]*ticket.Ticket, error) {
	return d.tickets.List(ctx, filter)
}

// GetTicket returns one ticket or ticket.ErrNotFound.
func (d *Desk) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	return d.tickets.Get(ctx, id)
}

// UpdateTicket merges a patch. Status changes must follow the lifecycle.
func (d *Desk) UpdateTicket(ctx context.Context, id string, patch ticket.Patch) (*ticket.Ticket, error) {
	unlock, err := d.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := d.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prev := t.Status

	if err := ticket.Apply(t, patch, d.now()); err != nil {
		if errors.Is(err, ticket.ErrMissingFields) || errors.Is(err, ticket.ErrUnknownStatus) {
			return nil, validation(err)
		}
		return nil, err
	}

	if err := d.saveTicket(ctx, t, prev); err != nil {
		return nil, err
	}

	d.publish(ctx, events.NewTicketEvent(events.TypeUpdated, t.ID, "", ""))

	return t, nil
}

// DeleteTicket removes a ticket.
func (d *Desk) DeleteTicket(ctx context.Context, id string) error {
	unlock, err := d.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := d.tickets.Delete(ctx, id); err != nil {
		return err
	}

	d.publish(ctx, events.NewTicketEvent(events.TypeDeleted, id, "", ""))

	return nil
}

// ReviewTicket records the human verdict on a ticket waiting for review and
// moves it to human_feedback_provided. The next ProcessTicket resumes the run.
func (d *Desk) ReviewTicket(ctx context.Context, id string, in ReviewInput) (_ *ticket.Ticket, err error) {
	ctx, end := d.startSpan(ctx, "caredesk.ReviewTicket", attribute.String("ticket.id", id), attribute.Bool("review.approved", in.Approved))
	defer end(&err)

	reviewer := strings.TrimSpace(in.Reviewer)
	if reviewer == "" {
		return nil, validation(errors.New("reviewer is required"))
	}

	unlock, err := d.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := d.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prev := t.Status
	if prev != ticket.StatusAgentWaitingForHuman {
		return nil, fmt.Errorf("%w: ticket %s is %s, not waiting for review", ticket.ErrInvalidTransition, t.ID, prev)
	}

	if err := ticket.Transition(t, ticket.StatusHumanFeedbackProvided, d.now()); err != nil {
		return nil, err
	}

	t.Review = &ticket.Review{
		Reviewer:   reviewer,
		Approved:   in.Approved,
		Comment:    strings.TrimSpace(in.Comment),
		ReviewedAt: d.now(),
	}

	if in.Approved && in.FinalAnswer != nil {
		if answer := strings.TrimSpace(*in.FinalAnswer); answer != "" {
			t.FinalAnswer = answer
		}
	}

	if err := d.saveTicket(ctx, t, prev); err != nil {
		return nil, err
	}

	d.metrics.RecordReview(in.Approved)
	d.publish(ctx, events.NewTicketEvent(events.TypeReviewed, t.ID, "", ""))
	d.logger.Info("ticket reviewed", "ticket_id", t.ID, "reviewer", reviewer, "approved", in.Approved)

	return t, nil
}

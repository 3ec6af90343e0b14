package testutil

import (
	"encoding/json"
	"time"

	"github.com/hupe1980/caredesk/supportagent"
	"github.com/hupe1980/caredesk/ticket"
)

// Epoch is the fixed creation time used by builders.
var Epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// TicketBuilder provides a fluent helper for constructing tickets in tests.
// Example:
//
//	tk := NewTicketBuilder("TK-1").Status(ticket.StatusPickedUpByAgent).Proposals("a", "b").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type TicketBuilder struct {
	t ticket.Ticket
}

// NewTicketBuilder creates a builder for a ticket waiting for pickup.
func NewTicketBuilder(id string) *TicketBuilder {
	return &TicketBuilder{t: ticket.Ticket{
		ID:        id,
		Subject:   "Refund for order 1042",
		Content:   "I was charged twice for my order, please refund one payment.",
		Email:     "customer@example.com",
		Status:    ticket.StatusWaitingForPickup,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}}
}

// Subject sets the subject (chainable).
func (b *TicketBuilder) Subject(s string) *TicketBuilder { b.t.Subject = s; return b }

// Content sets the customer query (chainable).
func (b *TicketBuilder) Content(s string) *TicketBuilder { b.t.Content = s; return b }

// Email sets the customer email (chainable).
func (b *TicketBuilder) Email(s string) *TicketBuilder { b.t.Email = s; return b }

// Status sets the status without going through the lifecycle (chainable).
func (b *TicketBuilder) Status(s ticket.Status) *TicketBuilder { b.t.Status = s; return b }

// Proposals sets the proposed answers (chainable).
func (b *TicketBuilder) Proposals(answers ...string) *TicketBuilder {
	b.t.ProposedAnswers = answers
	return b
}

// AgentState sets the raw run state (chainable).
func (b *TicketBuilder) AgentState(raw json.RawMessage) *TicketBuilder { b.t.AgentState = raw; return b }

// CreatedAt sets both timestamps (chainable).
func (b *TicketBuilder) CreatedAt(ts time.Time) *TicketBuilder {
	b.t.CreatedAt, b.t.UpdatedAt = ts, ts
	return b
}

// Build returns a copy of the ticket.
func (b *TicketBuilder) Build() *ticket.Ticket { return b.t.Clone() }

// Persona returns an active persona with the given specialties.
func Persona(id, name string, autonomous bool, specialties ...string) *supportagent.SupportAgent {
	if specialties == nil {
		specialties = []string{}
	}
	return &supportagent.SupportAgent{
		ID:          id,
		Name:        name,
		Description: name + " handles customer requests.",
		Personality: "Friendly and precise.",
		Memory:      []string{},
		Autonomous:  autonomous,
		Specialties: specialties,
		Active:      true,
	}
}

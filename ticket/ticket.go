// Package ticket defines the support ticket record, its lifecycle state
// machine and the stores that persist it.
package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a ticket id does not exist.
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid ticket status transition")
	// ErrMissingFields is returned when subject, email or content is empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrUnknownStatus is returned when parsing an unknown status string.
	ErrUnknownStatus = errors.New("unknown ticket status")
)

// Status is the lifecycle position of a ticket.
type Status string

const (
	StatusWaitingForPickup      Status = "waiting_for_pickup"
	StatusPickedUpByAgent       Status = "picked_up_by_agent"
	StatusAgentWaitingForHuman  Status = "agent_waiting_for_human"
	StatusHumanFeedbackProvided Status = "human_feedback_provided"
	StatusAnswered              Status = "answered"
	StatusClosed                Status = "closed"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusWaitingForPickup,
		StatusPickedUpByAgent,
		StatusAgentWaitingForHuman,
		StatusHumanFeedbackProvided,
		StatusAnswered,
		StatusClosed,
	}
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Review is the human verdict on a proposed answer.
type Review struct {
	Reviewer   string    `json:"reviewer"`
	Approved   bool      `json:"approved"`
	Comment    string    `json:"comment,omitempty"`
	ReviewedAt time.Time `json:"reviewedAt"`
}

// Ticket is a customer support request.
type Ticket struct {
	ID              string          `json:"id"`
	Subject         string          `json:"subject"`
	Content         string          `json:"content"`
	Email           string          `json:"email"`
	Status          Status          `json:"status"`
	AgentState      json.RawMessage `json:"agentState,omitempty"`
	ProposedAnswers []string        `json:"proposedAnswers,omitempty"`
	FinalAnswer     string          `json:"finalAnswer"`
	SupportAgentID  string          `json:"supportAgentId,omitempty"`
	Review          *Review         `json:"review,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// New creates a ticket waiting for pickup.
func New(subject, email, content string, now time.Time) (*Ticket, error) {
	subject, email, content = strings.TrimSpace(subject), strings.TrimSpace(email), strings.TrimSpace(content)
	if subject == "" || email == "" || content == "" {
		return nil, ErrMissingFields
	}

	now = now.UTC()

	return &Ticket{
		ID:        NewID(now),
		Subject:   subject,
		Content:   content,
		Email:     email,
		Status:    StatusWaitingForPickup,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewID builds the ticket id for a creation time.
func NewID(now time.Time) string {
	return fmt.Sprintf("TK-%d", now.UnixMilli())
}

// Clone returns a deep copy.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.AgentState != nil {
		c.AgentState = append(json.RawMessage(nil), t.AgentState...)
	}
	if t.ProposedAnswers != nil {
		c.ProposedAnswers = append([]string(nil), t.ProposedAnswers...)
	}
	if t.Review != nil {
		r := *t.Review
		c.Review = &r
	}
	return &c
}

// Query is the agent input describing the ticket.
func (t *Ticket) Query() string {
	return fmt.Sprintf(`Here is the customer query: "%s", the ticket status is %s`, t.Content, t.Status)
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Subject     *string `json:"subject,omitempty"`
	Content     *string `json:"content,omitempty"`
	Email       *string `json:"email,omitempty"`
	Status      *Status `json:"status,omitempty"`
	FinalAnswer *string `json:"finalAnswer,omitempty"`
}

// Apply merges a patch into the ticket. Status changes go through the
// state machine; on error the ticket is left unchanged.
func Apply(t *Ticket, p Patch, now time.Time) error {
	next := t.Clone()

	for _, f := range []struct {
		val *string
		dst *string
	}{
		{p.Subject, &next.Subject},
		{p.Content, &next.Content},
		{p.Email, &next.Email},
	} {
		if f.val == nil {
			continue
		}
		v := strings.TrimSpace(*f.val)
		if v == "" {
			return ErrMissingFields
		}
		*f.dst = v
	}

	if p.FinalAnswer != nil {
		next.FinalAnswer = *p.FinalAnswer
	}

	if p.Status != nil {
		if _, err := ParseStatus(string(*p.Status)); err != nil {
			return err
		}
		if *p.Status == StatusAgentWaitingForHuman && t.Status != StatusAgentWaitingForHuman && len(next.AgentState) == 0 {
			return fmt.Errorf("%w: %s -> %s needs a saved agent run", ErrInvalidTransition, t.Status, *p.Status)
		}
		if err := Transition(next, *p.Status, now); err != nil {
			return err
		}
	}

	next.UpdatedAt = now.UTC()
	*t = *next

	return nil
}

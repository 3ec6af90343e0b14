package ticket

import (
	"fmt"
	"time"
)

// transitions is the ticket lifecycle. Same-state moves are always allowed.
var transitions = map[Status][]Status{
	StatusWaitingForPickup:      {StatusPickedUpByAgent, StatusAgentWaitingForHuman, StatusClosed},
	StatusPickedUpByAgent:       {StatusAgentWaitingForHuman, StatusAnswered, StatusClosed},
	StatusAgentWaitingForHuman:  {StatusHumanFeedbackProvided, StatusClosed},
	StatusHumanFeedbackProvided: {StatusAnswered, StatusPickedUpByAgent, StatusClosed},
	StatusAnswered:              {StatusClosed},
	StatusClosed:                nil,
}

// CanTransition reports whether a ticket may move from one status to another.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s.
func Next(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

// Transition moves t to status to, stamping UpdatedAt. A same-state move is a no-op.
func Transition(t *Ticket, to Status, now time.Time) error {
	if t.Status == to {
		return nil
	}

	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}

	t.Status = to
	t.UpdatedAt = now.UTC()

	return nil
}

// IsProcessable reports whether the agent can work on a ticket in status s,
// either by a fresh run or by resuming after human feedback.
func IsProcessable(s Status) bool {
	switch s {
	case StatusWaitingForPickup, StatusPickedUpByAgent, StatusHumanFeedbackProvided:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool { return len(transitions[s]) == 0 }

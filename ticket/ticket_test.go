package ticket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	tk, err := New(" Login broken ", "jane@example.com", "I cannot log in", epoch)
	require.NoError(t, err)

	assert.Equal(t, "TK-1714564800000", tk.ID)
	assert.Equal(t, "Login broken", tk.Subject)
	assert.Equal(t, StatusWaitingForPickup, tk.Status)
	assert.Empty(t, tk.FinalAnswer)
	assert.Empty(t, tk.AgentState)
	assert.Equal(t, epoch, tk.CreatedAt)
	assert.Equal(t, epoch, tk.UpdatedAt)
}

func TestNew_MissingFields(t *testing.T) {
	cases := []struct {
		name                    string
		subject, email, content string
	}{
		{"subject", "", "a@b.c", "body"},
		{"email", "subj", "  ", "body"},
		{"content", "subj", "a@b.c", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.subject, tc.email, tc.content, epoch)
			assert.ErrorIs(t, err, ErrMissingFields)
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("answered")
	require.NoError(t, err)
	assert.Equal(t, StatusAnswered, s)

	_, err = ParseStatus("resolved")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestQuery(t *testing.T) {
	tk := &Ticket{Content: `It says "denied"`, Status: StatusPickedUpByAgent}
	assert.Equal(t, `Here is the customer query: "It says "denied"", the ticket status is picked_up_by_agent`, tk.Query())
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusWaitingForPickup, StatusPickedUpByAgent},
		{StatusWaitingForPickup, StatusAgentWaitingForHuman},
		{StatusPickedUpByAgent, StatusAgentWaitingForHuman},
		{StatusPickedUpByAgent, StatusAnswered},
		{StatusAgentWaitingForHuman, StatusHumanFeedbackProvided},
		{StatusHumanFeedbackProvided, StatusAnswered},
		{StatusHumanFeedbackProvided, StatusPickedUpByAgent},
		{StatusAnswered, StatusClosed},
		{StatusClosed, StatusClosed},
	}
	for _, e := range allowed {
		assert.True(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	denied := [][2]Status{
		{StatusWaitingForPickup, StatusAnswered},
		{StatusAgentWaitingForHuman, StatusAnswered},
		{StatusAnswered, StatusWaitingForPickup},
		{StatusClosed, StatusWaitingForPickup},
		{StatusPickedUpByAgent, StatusWaitingForPickup},
	}
	for _, e := range denied {
		assert.False(t, CanTransition(e[0], e[1]), "%s -> %s", e[0], e[1])
	}

	for _, s := range Statuses() {
		if s != StatusClosed {
			assert.True(t, CanTransition(s, StatusClosed), "%s -> closed", s)
		}
	}
}

func TestTransition(t *testing.T) {
	tk := &Ticket{Status: StatusWaitingForPickup, UpdatedAt: epoch}
	later := epoch.Add(time.Minute)

	require.NoError(t, Transition(tk, StatusPickedUpByAgent, later))
	assert.Equal(t, StatusPickedUpByAgent, tk.Status)
	assert.Equal(t, later, tk.UpdatedAt)

	// same state leaves the timestamp alone
	require.NoError(t, Transition(tk, StatusPickedUpByAgent, later.Add(time.Hour)))
	assert.Equal(t, later, tk.UpdatedAt)

	err := Transition(tk, StatusWaitingForPickup, later)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "picked_up_by_agent -> waiting_for_pickup")
	assert.Equal(t, StatusPickedUpByAgent, tk.Status)
}

func TestLifecycleHelpers(t *testing.T) {
	assert.True(t, IsProcessable(StatusWaitingForPickup))
	assert.True(t, IsProcessable(StatusPickedUpByAgent))
	assert.True(t, IsProcessable(StatusHumanFeedbackProvided))
	assert.False(t, IsProcessable(StatusAgentWaitingForHuman))
	assert.False(t, IsProcessable(StatusAnswered))

	assert.True(t, IsTerminal(StatusClosed))
	assert.False(t, IsTerminal(StatusAnswered))

	next := Next(StatusAnswered)
	assert.Equal(t, []Status{StatusClosed}, next)
	next[0] = StatusWaitingForPickup
	assert.Equal(t, []Status{StatusClosed}, Next(StatusAnswered))
}

func TestApply(t *testing.T) {
	tk, err := New("Refund", "a@b.c", "Where is my refund?", epoch)
	require.NoError(t, err)

	subject := "Refund request"
	answer := "Your refund is on the way."
	status := StatusPickedUpByAgent
	later := epoch.Add(time.Hour)

	require.NoError(t, Apply(tk, Patch{Subject: &subject, FinalAnswer: &answer, Status: &status}, later))
	assert.Equal(t, "Refund request", tk.Subject)
	assert.Equal(t, "Where is my refund?", tk.Content)
	assert.Equal(t, answer, tk.FinalAnswer)
	assert.Equal(t, StatusPickedUpByAgent, tk.Status)
	assert.Equal(t, later, tk.UpdatedAt)
}

func TestApply_WaitingForHumanNeedsAgentState(t *testing.T) {
	tk, err := New("Refund", "a@b.c", "Where is my refund?", epoch)
	require.NoError(t, err)

	status := StatusAgentWaitingForHuman
	err = Apply(tk, Patch{Status: &status}, epoch)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusWaitingForPickup, tk.Status)

	tk.AgentState = json.RawMessage(`{"version":1}`)
	require.NoError(t, Apply(tk, Patch{Status: &status}, epoch))
	assert.Equal(t, StatusAgentWaitingForHuman, tk.Status)
}

func TestApply_IsAtomic(t *testing.T) {
	tk, err := New("Refund", "a@b.c", "Where is my refund?", epoch)
	require.NoError(t, err)

	subject := "changed"
	bad := StatusAnswered
	err = Apply(tk, Patch{Subject: &subject, Status: &bad}, epoch.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "Refund", tk.Subject)
	assert.Equal(t, StatusWaitingForPickup, tk.Status)

	empty := " "
	assert.ErrorIs(t, Apply(tk, Patch{Email: &empty}, epoch), ErrMissingFields)

	unknown := Status("resolved")
	assert.ErrorIs(t, Apply(tk, Patch{Status: &unknown}, epoch), ErrUnknownStatus)
}

func TestClone(t *testing.T) {
	tk := &Ticket{
		ID:              "TK-1",
		AgentState:      json.RawMessage(`{"a":1}`),
		ProposedAnswers: []string{"one"},
		Review:          &Review{Reviewer: "bob", Approved: true},
	}

	c := tk.Clone()
	c.AgentState[2] = 'b'
	c.ProposedAnswers[0] = "two"
	c.Review.Reviewer = "eve"

	assert.JSONEq(t, `{"a":1}`, string(tk.AgentState))
	assert.Equal(t, "one", tk.ProposedAnswers[0])
	assert.Equal(t, "bob", tk.Review.Reviewer)
}

func TestTicketJSON(t *testing.T) {
	tk, err := New("Login", "a@b.c", "help", epoch)
	require.NoError(t, err)

	data, err := json.Marshal(tk)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "waiting_for_pickup", m["status"])
	assert.Equal(t, "", m["finalAnswer"])
	assert.Contains(t, m, "createdAt")
	assert.NotContains(t, m, "agentState")
	assert.NotContains(t, m, "review")
}

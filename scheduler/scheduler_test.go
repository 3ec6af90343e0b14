package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/caredesk/ticket"
)

type listerFunc func(ctx context.Context, f ticket.Filter) ([]*ticket.Ticket, error)

func (f listerFunc) ListTickets(ctx context.Context, filter ticket.Filter) ([]*ticket.Ticket, error) {
	return f(ctx, filter)
}

func waitingTickets(ids ...string) listerFunc {
	return func(_ context.Context, f ticket.Filter) ([]*ticket.Ticket, error) {
		if f.Status == nil || *f.Status != ticket.StatusWaitingForPickup {
			return nil, errors.New("unexpected filter")
		}
		out := make([]*ticket.Ticket, len(ids))
		for i, id := range ids {
			out[i] = &ticket.Ticket{ID: id, Status: ticket.StatusWaitingForPickup}
		}
		return out, nil
	}
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recorder) process(_ context.Context, ticketID, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, ticketID+"@"+agentID)
	if r.fail[ticketID] {
		return errors.New("model unavailable")
	}
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func TestSweep_OldestFirstWithBatch(t *testing.T) {
	rec := &recorder{}
	// listed newest first
	s, err := New(waitingTickets("TK-3", "TK-2", "TK-1"), rec.process, func(o *Options) {
		o.AgentID = "a1"
		o.BatchSize = 2
	})
	require.NoError(t, err)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"TK-1@a1", "TK-2@a1"}, rec.snapshot())
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	rec := &recorder{fail: map[string]bool{"TK-1": true}}
	s, err := New(waitingTickets("TK-2", "TK-1"), rec.process)
	require.NoError(t, err)

	n, err := s.Sweep(context.Background())
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TK-1: model unavailable")
	assert.Len(t, rec.snapshot(), 2)
}

func TestSweep_ListError(t *testing.T) {
	failing := listerFunc(func(context.Context, ticket.Filter) ([]*ticket.Ticket, error) {
		return nil, errors.New("disk gone")
	})

	s, err := New(failing, (&recorder{}).process)
	require.NoError(t, err)

	_, err = s.Sweep(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(waitingTickets(), (&recorder{}).process, func(o *Options) { o.Schedule = "invalid-cron" })
	assert.Error(t, err)
}

func TestStart_Disabled(t *testing.T) {
	s, err := New(waitingTickets(), (&recorder{}).process)
	require.NoError(t, err)

	assert.False(t, s.Enabled())
	assert.True(t, s.Next().IsZero())
	assert.NoError(t, s.Start(context.Background()))
}

func TestStart_RunsOnSchedule(t *testing.T) {
	rec := &recorder{}
	s, err := New(waitingTickets("TK-1"), rec.process, func(o *Options) { o.Schedule = "@every 1s" })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return s.Sweeps() > 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, rec.snapshot(), "TK-1@")

	cancel()
	assert.NoError(t, <-done)
}

// Package scheduler runs the pickup sweeper: on a cron schedule it hands
// tickets waiting for pickup to the agent.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/caredesk/logging"
	"github.com/hupe1980/caredesk/ticket"
)

// TicketLister lists tickets.
type TicketLister interface {
	ListTickets(ctx context.Context, filter ticket.Filter) ([]*ticket.Ticket, error)
}

// ProcessFunc runs the agent on one ticket.
type ProcessFunc func(ctx context.Context, ticketID, agentID string) error

// Options configures a Sweeper.
type Options struct {
	// Schedule is a cron spec (5 fields or a descriptor such as "@every 1m").
	// Empty disables the sweeper.
	Schedule string
	// AgentID selects the persona; empty lets the desk pick.
	AgentID   string
	BatchSize int
	// Timeout bounds a single sweep.
	Timeout time.Duration
	Logger  logging.Logger
}

// Sweeper processes tickets waiting for pickup on a schedule.
type Sweeper struct {
	lister  TicketLister
	process ProcessFunc
	opts    Options
	logger  logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	sweeps  int
}

// New validates the schedule and returns a sweeper.
func New(lister TicketLister, process ProcessFunc, optFns ...func(o *Options)) (*Sweeper, error) {
	opts := Options{
		BatchSize: 10,
		Timeout:   5 * time.Minute,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Sweeper{
		lister:  lister,
		process: process,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if opts.Schedule != "" {
		id, err := s.cron.AddFunc(opts.Schedule, s.tick)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", opts.Schedule, err)
		}
		s.entryID = id
	}

	return s, nil
}

// Enabled reports whether a schedule is configured.
func (s *Sweeper) Enabled() bool { return s.opts.Schedule != "" }

// Next returns the next scheduled sweep, or the zero time when disabled or
// not started.
func (s *Sweeper) Next() time.Time {
	if !s.Enabled() {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Sweeps returns how many scheduled sweeps have run.
func (s *Sweeper) Sweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweeps
}

// Start runs the cron loop until ctx is done. A disabled sweeper returns
// immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("pickup sweeper disabled")
		return nil
	}

	s.cron.Start()
	s.logger.Info("pickup sweeper started", "schedule", s.opts.Schedule)

	<-ctx.Done()

	<-s.cron.Stop().Done()
	s.logger.Info("pickup sweeper stopped")

	return nil
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	n, err := s.Sweep(ctx)

	s.mu.Lock()
	s.sweeps++
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("sweep finished with errors", "processed", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("sweep finished", "processed", n)
	}
}

// Sweep processes up to BatchSize waiting tickets, oldest first. A failing
// ticket does not stop the sweep; all failures are joined into the error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	waiting := ticket.StatusWaitingForPickup

	tickets, err := s.lister.ListTickets(ctx, ticket.Filter{Status: &waiting})
	if err != nil {
		return 0, fmt.Errorf("scheduler: list: %w", err)
	}

	// oldest first
	for i, j := 0, len(tickets)-1; i < j; i, j = i+1, j-1 {
		tickets[i], tickets[j] = tickets[j], tickets[i]
	}

	if s.opts.BatchSize > 0 && len(tickets) > s.opts.BatchSize {
		tickets = tickets[:s.opts.BatchSize]
	}

	var (
		processed int
		errs      []error
	)

	for _, t := range tickets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := s.process(ctx, t.ID, s.opts.AgentID); err != nil {
			s.logger.Warn("sweep failed to process ticket", "ticket_id", t.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.ID, err))
			continue
		}

		processed++
	}

	return processed, errors.Join(errs...)
}

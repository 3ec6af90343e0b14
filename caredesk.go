// Package caredesk is the customer support desk: it keeps tickets and
// support agent personas, and delegates answer drafting to an LLM agent whose
// "answer the customer" action waits for human approval.
//
// Most applications interact with this package by:
//  1. Creating a Desk via New() with a ticket store, a persona store and a model
//  2. Creating tickets and personas (CreateTicket, CreateAgent)
//  3. Calling ProcessTicket to let the agent draft answers, ReviewTicket to
//     record the human verdict, and ProcessTicket again to resume the run
//
// Every status change goes through the ticket lifecycle and is published as
// an event.
package caredesk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/caredesk/agent"
	"github.com/hupe1980/caredesk/events"
	"github.com/hupe1980/caredesk/lock"
	"github.com/hupe1980/caredesk/logging"
	"github.com/hupe1980/caredesk/metrics"
	"github.com/hupe1980/caredesk/model"
	"github.com/hupe1980/caredesk/runner"
	"github.com/hupe1980/caredesk/supportagent"
	"github.com/hupe1980/caredesk/telemetry"
	"github.com/hupe1980/caredesk/ticket"
)

// ErrValidation marks caller errors such as missing fields.
var ErrValidation = errors.New("validation failed")

// Options configures a Desk.
type Options struct {
	// MaxTurns caps model turns per agent run.
	MaxTurns int
	// RunTimeout bounds a single ProcessTicket or DraftProposals call.
	RunTimeout time.Duration
	// MemoryLimit is how many preferred answers a persona keeps.
	MemoryLimit int
	// RecallLimit is how many remembered answers are added to the instructions.
	RecallLimit int
	// MaxConcurrentRuns bounds concurrent agent runs. Zero is unlimited.
	MaxConcurrentRuns int

	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
	Logger    logging.Logger

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// Desk orchestrates tickets, personas and agent runs. It is safe for
// concurrent use; processing of one ticket is serialized by the locker.
type Desk struct {
	tickets ticket.Store
	agents  supportagent.Store
	llm     model.Model
	runner  *runner.Runner
	support *agent.Agent
	drafter *agent.Agent

	opts      Options
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    logging.Logger
	slots     chan struct{}
}

// New creates a Desk. Unset options get in-process defaults.
func New(tickets ticket.Store, agents supportagent.Store, llm model.Model, optFns ...func(o *Options)) *Desk {
	opts := Options{
		MaxTurns:    10,
		RunTimeout:  90 * time.Second,
		MemoryLimit: supportagent.DefaultMemoryLimit,
		RecallLimit: 3,
		Logger:      logging.NoOpLogger{},
		Now:         time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	d := &Desk{
		tickets:   tickets,
		agents:    agents,
		llm:       llm,
		opts:      opts,
		locker:    opts.Locker,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    logging.OrNoOp(opts.Logger),
	}

	if d.locker == nil {
		d.locker = lock.NewLocalLocker()
	}
	if d.tracer == nil {
		d.tracer = telemetry.Tracer()
	}
	if opts.MaxConcurrentRuns > 0 {
		d.slots = make(chan struct{}, opts.MaxConcurrentRuns)
	}

	d.runner = runner.New(func(o *runner.Options) {
		o.MaxTurns = opts.MaxTurns
		o.MaxModelCalls = 2 * opts.MaxTurns
		o.Logger = d.logger
		o.Hooks = runner.Hooks{
			OnModelCall: d.onModelCall,
			OnToolCall:  d.onToolCall,
		}
	})

	d.support = d.newSupportAgent()
	d.drafter = d.newDrafter()

	return d
}

func (d *Desk) now() time.Time { return d.opts.Now().UTC() }

func (d *Desk) modelName() string {
	if d.llm == nil {
		return "none"
	}
	return d.llm.Info().Name
}

func (d *Desk) onModelCall(agentName string, dur time.Duration, err error) {
	d.metrics.RecordModelCall(d.modelName(), err == nil, 0)
	if dl, ok := d.logger.(*logging.DeskLogger); ok {
		dl.LogLLMCall(d.modelName(), 0, dur, err == nil, err)
	}
}

func (d *Desk) onToolCall(toolName string, dur time.Duration, err error) {
	d.metrics.RecordToolCall(toolName, err == nil)
	if dl, ok := d.logger.(*logging.DeskLogger); ok {
		dl.LogToolCall(toolName, dur, err == nil, err)
	}
}

// acquire takes a run slot when concurrency is bounded.
func (d *Desk) acquire(ctx context.Context) (func(), error) {
	if d.slots == nil {
		return func() {}, nil
	}

	select {
	case d.slots <- struct{}{}:
		return func() { <-d.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// startSpan opens a desk span. The returned end func records err.
func (d *Desk) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err *error)) {
	ctx, span := d.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	return ctx, func(err *error) {
		if err != nil && *err != nil {
			span.RecordError(*err)
			span.SetStatus(codes.Error, (*err).Error())
		}
		span.End()
	}
}

// publish sends an event and counts it. Failures are logged only.
func (d *Desk) publish(ctx context.Context, ev events.TicketEvent) {
	d.metrics.RecordEvent(string(ev.Type))

	if d.publisher == nil {
		return
	}

	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.logger.Warn("event publish failed", "type", ev.Type, "ticket_id", ev.TicketID, "error", err)
	}
}

// saveTicket persists t and publishes a transition event when its status
// differs from prev.
func (d *Desk) saveTicket(ctx context.Context, t *ticket.Ticket, prev ticket.Status) error {
	if err := d.tickets.Save(ctx, t); err != nil {
		return err
	}

	if prev != "" && prev != t.Status {
		d.metrics.RecordTransition(string(prev), string(t.Status))
		d.publish(ctx, events.NewTicketEvent(events.TypeTransitioned, t.ID, prev, t.Status))
		d.logger.Info("ticket transitioned", "ticket_id", t.ID, "from", prev, "to", t.Status)
	}

	return nil
}

func validation(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

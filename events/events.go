// Package events distributes ticket lifecycle events to in-process
// subscribers, websocket clients and NATS.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/caredesk/core"
	"github.com/hupe1980/caredesk/logging"
	"github.com/hupe1980/caredesk/ticket"
)

// Type names what happened to a ticket.
type Type string

const (
	TypeCreated      Type = "ticket.created"
	TypeUpdated      Type = "ticket.updated"
	TypeTransitioned Type = "ticket.transitioned"
	TypeReviewed     Type = "ticket.reviewed"
	TypeDeleted      Type = "ticket.deleted"
)

// TicketEvent is one observable change to a ticket.
type TicketEvent struct {
	ID       string        `json:"id"`
	Type     Type          `json:"type"`
	TicketID string        `json:"ticketId"`
	From     ticket.Status `json:"from,omitempty"`
	To       ticket.Status `json:"to,omitempty"`
	At       time.Time     `json:"at"`
}

// NewTicketEvent stamps an id and time on a new event.
func NewTicketEvent(typ Type, ticketID string, from, to ticket.Status) TicketEvent {
	return TicketEvent{
		ID:       core.NewID(),
		Type:     typ,
		TicketID: ticketID,
		From:     from,
		To:       to,
		At:       time.Now().UTC(),
	}
}

// Publisher accepts ticket events.
type Publisher interface {
	Publish(ctx context.Context, ev TicketEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev TicketEvent) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, ev TicketEvent) error { return f(ctx, ev) }

// Fanout publishes to every publisher and joins their errors.
func Fanout(pubs ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, ev TicketEvent) error {
		var errs []error
		for _, p := range pubs {
			if p == nil {
				continue
			}
			if err := p.Publish(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// BusOptions configures a Bus.
type BusOptions struct {
	Logger logging.Logger
}

// Bus is an in-process fan-out. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan TicketEvent
	next   int
	closed bool
	logger logging.Logger
}

// NewBus returns an open bus.
func NewBus(optFns ...func(o *BusOptions)) *Bus {
	opts := BusOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{
		subs:   make(map[int]chan TicketEvent),
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(_ context.Context, ev TicketEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber", "subscriber", id, "type", ev.Type, "ticket_id", ev.TicketID)
		}
	}

	return nil
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan TicketEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	ch := make(chan TicketEvent, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hupe1980/caredesk/logging"
)

// DefaultSubjectPrefix roots every ticket subject.
const DefaultSubjectPrefix = "caredesk.tickets"

// natsConn is the slice of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSOptions configures a NATSPublisher.
type NATSOptions struct {
	SubjectPrefix string
}

// NATSPublisher publishes ticket events to caredesk.tickets.<status>, or
// caredesk.tickets.<type suffix> when the event carries no target status.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn natsConn, optFns ...func(o *NATSOptions)) *NATSPublisher {
	opts := NATSOptions{SubjectPrefix: DefaultSubjectPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &NATSPublisher{conn: conn, prefix: opts.SubjectPrefix}
}

// ConnectNATS dials a NATS server with reconnect handling.
func ConnectNATS(url string, logger logging.Logger) (*nats.Conn, error) {
	logger = logging.OrNoOp(logger)

	if url == "" {
		url = nats.DefaultURL
	}

	nc, err := nats.Connect(url,
		nats.Name("caredesk"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect nats: %w", err)
	}

	return nc, nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(ev TicketEvent) string {
	if ev.To != "" {
		return p.prefix + "." + string(ev.To)
	}

	return p.prefix + "." + strings.TrimPrefix(string(ev.Type), "ticket.")
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, ev TicketEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}

	subject := p.Subject(ev)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}

	return nil
}

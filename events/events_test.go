package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/caredesk/ticket"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus()

	a, cancelA := bus.Subscribe(4)
	b, cancelB := bus.Subscribe(4)
	defer cancelB()
	assert.Equal(t, 2, bus.Subscribers())

	ev := NewTicketEvent(TypeTransitioned, "TK-1", ticket.StatusWaitingForPickup, ticket.StatusPickedUpByAgent)
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Equal(t, ev, <-a)
	assert.Equal(t, ev, <-b)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, bus.Subscribers())
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	sub, cancel := bus.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), NewTicketEvent(TypeUpdated, "TK-1", "", "")))
	}

	assert.Len(t, sub, 1)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	sub, cancel := bus.Subscribe(1)

	bus.Close()
	bus.Close()
	cancel()

	_, open := <-sub
	assert.False(t, open)
	assert.NoError(t, bus.Publish(context.Background(), TicketEvent{}))

	late, _ := bus.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestFanout(t *testing.T) {
	var got []string
	ok := PublisherFunc(func(_ context.Context, ev TicketEvent) error {
		got = append(got, ev.TicketID)
		return nil
	})
	boom := PublisherFunc(func(context.Context, TicketEvent) error { return errors.New("boom") })

	err := Fanout(ok, nil, boom, ok).Publish(context.Background(), TicketEvent{TicketID: "TK-9"})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"TK-9", "TK-9"}, got)
}

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn)

	ev := NewTicketEvent(TypeTransitioned, "TK-1", ticket.StatusPickedUpByAgent, ticket.StatusAgentWaitingForHuman)
	require.NoError(t, p.Publish(context.Background(), ev))
	require.NoError(t, p.Publish(context.Background(), NewTicketEvent(TypeDeleted, "TK-1", "", "")))

	assert.Equal(t, []string{
		"caredesk.tickets.agent_waiting_for_human",
		"caredesk.tickets.deleted",
	}, conn.subjects)

	var decoded TicketEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "TK-1", decoded.TicketID)
	assert.Equal(t, ticket.StatusPickedUpByAgent, decoded.From)

	custom := NewNATSPublisher(conn, func(o *NATSOptions) { o.SubjectPrefix = "desk" })
	assert.Equal(t, "desk.answered", custom.Subject(TicketEvent{To: ticket.StatusAnswered}))

	conn.err = errors.New("no responders")
	err := p.Publish(context.Background(), ev)
	assert.ErrorContains(t, err, "caredesk.tickets.agent_waiting_for_human")
}

func TestHub_StreamsEvents(t *testing.T) {
	bus := NewBus()
	srv := httptest.NewServer(NewHub(bus))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ev := NewTicketEvent(TypeCreated, "TK-7", "", ticket.StatusWaitingForPickup)
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var got TicketEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "TK-7", got.TicketID)
	assert.Equal(t, TypeCreated, got.Type)
	assert.Equal(t, ticket.StatusWaitingForPickup, got.To)

	conn.Close()
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}

func TestNewChangeEvent(t *testing.T) {
	dentistID := uuid.New()
	ev := NewChangeEvent(TypeAppointmentBooked, dentistID, "2030-01-07", map[string]string{"time": "10:00"})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, dentistID.String(), ev.DentistID)
	assert.JSONEq(t, `{"time":"10:00"}`, string(ev.Data))
}

func TestLocalBusDeliversAndCloses(t *testing.T) {
	bus := NewLocalBus(4)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), ChangeEvent{ID: "1", Type: TypeAppointmentCancelled}))
	assert.Equal(t, "1", receive(t, ch).ID)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed")
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, ChangeEvent) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := NewLocalBus(1)
	ch, err := bus.Subscribe(context.Background())
	require.NoError(t, err)

	m := Multi{bus, failingPublisher{err: boom}, nil}
	err = m.Publish(context.Background(), ChangeEvent{ID: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "x", receive(t, ch).ID)
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := NewRedisBus(client, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	sent := NewChangeEvent(TypeBlockedRangeAdded, uuid.New(), "2030-01-07", nil)
	require.NoError(t, bus.Publish(context.Background(), sent))

	got := receive(t, ch)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, sent.Type, got.Type)
	assert.Equal(t, sent.DentistID, got.DentistID)
}

type fakeAMQPChannel struct {
	declared  string
	published []amqp.Publishing
	confirms  chan amqp.Confirmation
	ack       bool
}

func (f *fakeAMQPChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = name + ":" + kind
	return nil
}

func (f *fakeAMQPChannel) Confirm(bool) error { return nil }

func (f *fakeAMQPChannel) NotifyPublish(c chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = c
	return c
}

func (f *fakeAMQPChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.published = append(f.published, msg)
	f.confirms <- amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: f.ack}
	return nil
}

func (f *fakeAMQPChannel) Close() error { return nil }

func TestAMQPPublisherConfirms(t *testing.T) {
	ch := &fakeAMQPChannel{ack: true}
	p, err := newAMQPPublisher(ch, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultExchange+":fanout", ch.declared)

	ev := NewChangeEvent(TypeAppointmentBooked, uuid.New(), "2030-01-07", nil)
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, ch.published, 1)
	assert.Equal(t, ev.ID, ch.published[0].MessageId)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
}

func TestAMQPPublisherNack(t *testing.T) {
	ch := &fakeAMQPChannel{ack: false}
	p, err := newAMQPPublisher(ch, "calendar.test", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), ChangeEvent{ID: "n", Type: TypeAppointmentCancelled})
	assert.Error(t, err)
}

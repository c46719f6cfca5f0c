package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/logging"
)

const DefaultExchange = "calendar.changes"

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher fans change events out on a durable RabbitMQ exchange for
// downstream consumers such as reminder or analytics services.
type AMQPPublisher struct {
	ch       amqpChannel
	exchange string
	confirms chan amqp.Confirmation
	logger   *zap.Logger
	mu       sync.Mutex
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p, err := newAMQPPublisher(ch, exchange, logger)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger:   logging.OrNop(logger),
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.OccurredAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	if err := p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.exchange, err)
	}

	select {
	case confirmed, ok := <-p.confirms:
		if !ok {
			return errors.New("amqp channel closed before confirm")
		}
		if !confirmed.Ack {
			p.logger.Warn("change event nacked", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
			return fmt.Errorf("publish to %s: message not confirmed", p.exchange)
		}
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", p.exchange, ctx.Err())
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

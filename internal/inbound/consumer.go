package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduler/internal/notify"
)

var (
	errNoSender = errors.New("inbound message without sender")

	ErrDeliveriesClosed = errors.New("inbound delivery channel closed")
)

const (
	DefaultQueue    = "clinic.sms.inbound"
	defaultPrefetch = 8
)

// Consumer feeds texts published by the SMS gateway to a Processor.
type Consumer struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queue     string
	processor *Processor
	logger    zerolog.Logger
}

func NewConsumer(url, queue string, processor *Processor, logger zerolog.Logger) (*Consumer, error) {
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(notify.ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, notify.InboundRoutingKey, notify.ExchangeName, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind %s: %w", notify.InboundRoutingKey, err)
	}
	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:      conn,
		ch:        ch,
		queue:     q.Name,
		processor: processor,
		logger:    logger.With().Str("component", "inbound-consumer").Logger(),
	}, nil
}

// Run consumes until ctx is done. A closed delivery channel is an error so the
// process exits and is restarted instead of running without an inbound path.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	return c.consume(ctx, msgs)
}

// consume drains msgs. Undecodable messages are dropped; processing failures are requeued.
func (c *Consumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrDeliveriesClosed
			}
			requeue, err := handleDelivery(ctx, c.processor, d.Body)
			if err != nil {
				c.logger.Error().Err(err).Bool("requeue", requeue).Msg("handle inbound message")
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleDelivery(ctx context.Context, p *Processor, body []byte) (requeue bool, err error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return false, fmt.Errorf("decode inbound message: %w", err)
	}
	if msg.From == "" {
		return false, errNoSender
	}
	if _, _, err := p.Handle(ctx, msg); err != nil {
		return true, err
	}
	return false, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	ExchangeName       = "clinic.sms"
	OutboundRoutingKey = "sms.outbound"
	InboundRoutingKey  = "sms.inbound"
)

// Publisher sends a payload to a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
}

// RabbitMQPublisher publishes persistent JSON messages to the SMS topic exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
	mu       sync.Mutex
}

func NewRabbitMQPublisher(url string, logger zerolog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info().Str("exchange", ExchangeName).Msg("rabbitmq publisher connected")

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: ExchangeName,
		logger:   logger,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug().Str("routing_key", routingKey).Int("size", len(payload)).Msg("message published")
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("close channel")
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AMQPSink hands messages to the SMS gateway through the broker. The gateway owns
// actual delivery, so a successful publish is reported as queued.
type AMQPSink struct {
	pub Publisher
}

func NewAMQPSink(pub Publisher) *AMQPSink {
	return &AMQPSink{pub: pub}
}

func (s *AMQPSink) Send(ctx context.Context, msg Message) (Result, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}, fmt.Errorf("encode message: %w", err)
	}

	if err := s.pub.Publish(ctx, OutboundRoutingKey, payload); err != nil {
		return Result{Status: StatusFailed, Error: err.Error()}, err
	}

	return Result{
		Success:           true,
		Status:            StatusQueued,
		ProviderMessageID: msg.ID.String(),
	}, nil
}

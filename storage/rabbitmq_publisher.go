package storage

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"

	"property-scraper/models"
)

const (
	recordEventType    = "property.extracted"
	recordEventVersion = "1.0"
	publishTimeout     = 10 * time.Second
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQOptions configures a RabbitMQPublisher.
type RabbitMQOptions struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// RabbitMQPublisher sends each record as a persistent JSON message to a
// topic exchange, for consumers that do their own storage.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
}

// NewRabbitMQPublisher dials the broker, opens a channel and declares a
// durable topic exchange.
func NewRabbitMQPublisher(opts RabbitMQOptions) (*RabbitMQPublisher, error) {
	if opts.Exchange == "" {
		return nil, eris.New("rabbitmq: exchange name is required")
	}

	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, eris.Wrap(err, "rabbitmq: dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "rabbitmq: open channel")
	}

	err = ch.ExchangeDeclare(
		opts.Exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, eris.Wrapf(err, "rabbitmq: declare exchange %q", opts.Exchange)
	}

	p := newRabbitMQPublisher(ch, opts.Exchange, opts.RoutingKey)
	p.conn = conn
	return p, nil
}

func newRabbitMQPublisher(ch amqpChannel, exchange, routingKey string) *RabbitMQPublisher {
	if routingKey == "" {
		routingKey = recordEventType
	}
	return &RabbitMQPublisher{channel: ch, exchange: exchange, routingKey: routingKey}
}

// WriteBatch publishes one message per record.
func (p *RabbitMQPublisher) WriteBatch(ctx context.Context, records []*models.PropertyRecord) error {
	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return eris.Wrapf(err, "rabbitmq: marshal %s", r.SourceURL)
		}

		msg := amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    r.SourceURL,
			Headers: amqp.Table{
				"event-type":    recordEventType,
				"event-version": recordEventVersion,
				"source-site":   r.SourceSite,
			},
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err = p.channel.PublishWithContext(pubCtx, p.exchange, p.routingKey, false, false, msg)
		cancel()
		if err != nil {
			return eris.Wrapf(err, "rabbitmq: publish %s", r.SourceURL)
		}
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

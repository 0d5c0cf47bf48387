// Package notify holds the notification sinks the outbox dispatcher delivers to.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/pkg/booking"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeKindTopic   = "topic"
	contentTypeJSON     = "application/json"
	routingKeyPrefix    = "notification."
	defaultPublishLimit = 10 * time.Second
)

var ErrPublisherClosed = errors.New("notify: publisher closed")

// Envelope is the message body published for each notification.
type Envelope struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
	QueuedAt time.Time         `json:"queuedAt"`
}

// NewEnvelope converts a notification into its wire form.
func NewEnvelope(notification booking.Notification, queuedAt time.Time) Envelope {
	return Envelope{
		To:       notification.To.String(),
		Template: notification.Template,
		Data:     notification.Data,
		QueuedAt: queuedAt.UTC(),
	}
}

// RoutingKey is notification.<template>, so consumers can bind per template.
func RoutingKey(template string) string {
	return routingKeyPrefix + template
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends notifications to a RabbitMQ topic exchange where the mail
// worker consumes them.
type Publisher struct {
	connection *amqp.Connection
	channel    channel
	exchange   string
	nowFn      func() time.Time
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url string, exchange string) (*Publisher, error) {
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	amqpChannel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := amqpChannel.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		_ = amqpChannel.Close()
		_ = connection.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{connection: connection, channel: amqpChannel, exchange: exchange, nowFn: time.Now}, nil
}

// Send publishes one persistent message per notification.
func (publisher *Publisher) Send(ctx context.Context, notification booking.Notification) error {
	if publisher == nil || publisher.channel == nil {
		return ErrPublisherClosed
	}
	body, err := json.Marshal(NewEnvelope(notification, publisher.nowFn()))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishLimit)
	defer cancel()
	return publisher.channel.PublishWithContext(publishCtx, publisher.exchange, RoutingKey(notification.Template), false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    publisher.nowFn().UTC(),
		Body:         body,
	})
}

func (publisher *Publisher) Close() error {
	if publisher.channel != nil {
		_ = publisher.channel.Close()
	}
	if publisher.connection != nil {
		return publisher.connection.Close()
	}
	return nil
}

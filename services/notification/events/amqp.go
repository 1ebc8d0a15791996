package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"ankaa/models"
)

// publisher is the part of *amqp.Channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes to a topic exchange with routing key
// delivery.<channel>.<status>, e.g. delivery.sms.failed.
type AMQPSink struct {
	conn     *amqp.Connection
	channel  publisher
	exchange string
}

// DialAMQP connects and declares the durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange}, nil
}

// RoutingKey returns the topic an event is published under.
func RoutingKey(e models.DeliveryEvent) string {
	return "delivery." + strings.ToLower(string(e.Channel)) + "." + strings.ToLower(string(e.Status))
}

func (a *AMQPSink) Publish(ctx context.Context, e models.DeliveryEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return a.channel.PublishWithContext(ctx,
		a.exchange,
		RoutingKey(e),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    e.NotificationID + "/" + string(e.Channel),
			Timestamp:    e.OccurredAt,
			Headers: amqp.Table{
				"x-attempts": int32(e.Attempts),
			},
		},
	)
}

func (a *AMQPSink) Close() error {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

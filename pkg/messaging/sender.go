package messaging

import (
	"fmt"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topic names one telemetry stream on the broker.
type Topic string

func exchangeName(prefix string, topic Topic) string {
	return fmt.Sprintf("%s_%s", prefix, topic)
}

// DefineTopic declares the durable exchange and queue for a topic. Safe to
// call on every connect.
func DefineTopic(ch *amqp.Channel, prefix string, topic Topic) error {
	name := exchangeName(prefix, topic)
	if err := ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return err
	}
	return nil
}

// Publish sends one JSON event on a topic. A fresh channel per publish keeps
// the connection usable from multiple goroutines.
func Publish[V any](c *amqp.Connection, prefix string, topic Topic, data V) error {
	body, err := sonic.Marshal(data)
	if err != nil {
		return err
	}
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	name := exchangeName(prefix, topic)
	return ch.Publish(
		name,
		name,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

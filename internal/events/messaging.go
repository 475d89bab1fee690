// Package events carries the purchase pipeline contracts, the outbound
// publisher, and the inbound payment processor.
package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// QueuePurchaseRequested is consumed by the external payment system.
	QueuePurchaseRequested = "game-purchase-requested"
	// QueuePaymentSucceeded is published by the external payment system.
	QueuePaymentSucceeded = "payment-success"

	consumerTag = "games-service"
)

// Dial connects to the broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends purchase-requested events to the outbound queue.
type Publisher struct {
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger
}

func NewPublisher(conn *amqp.Connection, queue string, logger *slog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareQueue(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Publisher{ch: ch, queue: queue, logger: logger}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishPurchaseRequested publishes the event with the given message id and
// the buyer's id as correlation id.
func (p *Publisher) PublishPurchaseRequested(ctx context.Context, ev PurchaseRequested, messageID, correlationID string) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal PurchaseRequested: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(
		pubCtx,
		"", // default exchange, direct to queue
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     messageID,
			CorrelationId: correlationID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish PurchaseRequested: %w", err)
	}

	p.logger.Info("purchase request published",
		"queue", p.queue,
		"messageId", messageID,
		"userId", ev.UserID,
		"gameId", ev.GameID,
	)
	return nil
}

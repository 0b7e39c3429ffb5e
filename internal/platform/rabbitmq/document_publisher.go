package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"finchat/internal/model"
)

// DocumentPublisher pushes FAQ documents onto the ingestion queue.
// One published batch maps to one queue message so the index worker
// can embed the batch in a single upstream call.
type DocumentPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewDocumentPublisher(conn *amqp.Connection, queueName string) *DocumentPublisher {
	return &DocumentPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *DocumentPublisher) Publish(ctx context.Context, docs []model.Document) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal document batch failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish document batch failed: %w", err)
	}
	return nil
}

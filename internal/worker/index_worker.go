package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"finchat/internal/model"
)

// Indexer embeds and stores a batch of documents.
type Indexer interface {
	UpsertDocuments(ctx context.Context, docs []model.Document, namespace string) error
}

// IndexWorker drains the document ingestion queue and upserts each
// batch into the vector index. Batches that fail to embed or store are
// requeued once by the broker via nack.
type IndexWorker struct {
	conn      *amqp.Connection
	indexer   Indexer
	queueName string
	namespace string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIndexWorker(conn *amqp.Connection, indexer Indexer, queueName, namespace string, logger *zap.Logger) *IndexWorker {
	return &IndexWorker{
		conn:      conn,
		indexer:   indexer,
		queueName: queueName,
		namespace: namespace,
		logger:    logger,
	}
}

func (w *IndexWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handleDelivery(workerCtx, d)
			}
		}
	}()

	return nil
}

// handleDelivery indexes one queue message. A delivery is acked only
// after its batch is fully upserted: undecodable payloads are dropped,
// a failed embed or upsert is requeued once and dead-lettered on its
// second failure.
func (w *IndexWorker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var docs []model.Document
	if err := json.Unmarshal(d.Body, &docs); err != nil {
		w.logger.Error("decode document batch failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := w.indexer.UpsertDocuments(ctx, docs, w.namespace); err != nil {
		w.logger.Error("index document batch failed",
			zap.Int("count", len(docs)),
			zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
		return
	}

	w.logger.Info("indexed document batch", zap.Int("count", len(docs)))
	_ = d.Ack(false)
}

func (w *IndexWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

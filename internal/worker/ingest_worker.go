package worker

import (
	"context"
	"errors"
	"fmt"

	"finscope/internal/amqp"
	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/services"
)

// PointIngester appends timeseries batches.
type PointIngester interface {
	Ingest(ctx context.Context, payloads []core.PointPayload) (services.IngestResult, error)
}

// TransactionStorer upserts transaction batches.
type TransactionStorer interface {
	StoreBatch(ctx context.Context, payloads []map[string]any) (services.BatchResult, error)
}

// Catalog is the store surface checked at startup.
type Catalog interface {
	Ping(ctx context.Context) error
	CountTransactions(ctx context.Context) (int64, error)
}

// IngestWorker applies queued ingestion messages through the services
type IngestWorker struct {
	points       PointIngester
	transactions TransactionStorer
	logger       *log.Logger
}

func NewIngestWorker(points PointIngester, transactions TransactionStorer, logger *log.Logger) *IngestWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &IngestWorker{
		points:       points,
		transactions: transactions,
		logger:       logger.WithComponent(log.ComponentWorker),
	}
}

// HandleMessage applies a single message. Malformed records inside a message
// are skipped by the services and the rest is applied. A validation error
// surfacing here is wrapped in amqp.ErrMalformed so the message is dropped;
// storage failures are returned as is and the message is redelivered.
// Replays of transaction messages are safe because writes are upserts.
func (w *IngestWorker) HandleMessage(ctx context.Context, msg *amqp.IngestMessage) error {
	w.logger.InfoContext(ctx, "Processing ingest message",
		log.FieldMessageID, msg.ID,
		"kind", msg.Kind,
		log.FieldCount, msg.Size())

	switch msg.Kind {
	case amqp.KindTimeseries:
		result, err := w.points.Ingest(ctx, msg.Points)
		if err != nil {
			return w.classify(msg, err)
		}
		w.logger.InfoContext(ctx, "Applied timeseries message",
			log.FieldMessageID, msg.ID,
			log.FieldCount, result.Ingested,
			log.FieldSkipped, result.Skipped)

	case amqp.KindTransactions:
		result, err := w.transactions.StoreBatch(ctx, msg.Transactions)
		if err != nil {
			return w.classify(msg, err)
		}
		w.logger.InfoContext(ctx, "Applied transactions message",
			append([]any{log.FieldMessageID, msg.ID},
				log.NewFields().WithBatch(result.Stored, result.Skipped).ToSlice()...)...)

	default:
		return fmt.Errorf("%w: unknown kind %q", amqp.ErrMalformed, msg.Kind)
	}
	return nil
}

func (w *IngestWorker) classify(msg *amqp.IngestMessage, err error) error {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: message %s: %w", amqp.ErrMalformed, msg.ID, err)
	}
	return fmt.Errorf("apply %s message %s: %w", msg.Kind, msg.ID, err)
}

// StartupCheck verifies the catalog is reachable before consuming
func (w *IngestWorker) StartupCheck(ctx context.Context, catalog Catalog) error {
	if err := catalog.Ping(ctx); err != nil {
		return fmt.Errorf("ping catalog: %w", err)
	}

	count, err := catalog.CountTransactions(ctx)
	if err != nil {
		return fmt.Errorf("count transactions: %w", err)
	}

	w.logger.InfoContext(ctx, "Catalog reachable", "transactions", count)
	return nil
}

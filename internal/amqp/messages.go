package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finscope/internal/core"
)

// Message kinds carried on the ingestion queue.
const (
	KindTimeseries   = "timeseries"
	KindTransactions = "transactions"
)

// ErrMalformed marks messages that can never be applied. They are rejected
// without requeue.
var ErrMalformed = errors.New("malformed message")

// IngestMessage carries a batch of points or transaction payloads to the worker
type IngestMessage struct {
	ID           string              `json:"id"`
	Kind         string              `json:"kind"`
	Points       []core.PointPayload `json:"points,omitempty"`
	Transactions []map[string]any    `json:"transactions,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// NewTimeseriesMessage wraps points for publishing
func NewTimeseriesMessage(points []core.PointPayload) *IngestMessage {
	return &IngestMessage{
		ID:        uuid.NewString(),
		Kind:      KindTimeseries,
		Points:    points,
		Timestamp: time.Now(),
	}
}

// NewTransactionsMessage wraps raw transaction payloads for publishing
func NewTransactionsMessage(transactions []map[string]any) *IngestMessage {
	return &IngestMessage{
		ID:           uuid.NewString(),
		Kind:         KindTransactions,
		Transactions: transactions,
		Timestamp:    time.Now(),
	}
}

// Validate checks the message kind.
func (m *IngestMessage) Validate() error {
	switch m.Kind {
	case KindTimeseries, KindTransactions:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
}

// Size returns the number of records carried by the message.
func (m *IngestMessage) Size() int {
	if m.Kind == KindTimeseries {
		return len(m.Points)
	}
	return len(m.Transactions)
}

// ToJSON converts the message to JSON bytes
func (m *IngestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IngestMessageFromJSON decodes and validates a message body.
func IngestMessageFromJSON(data []byte) (*IngestMessage, error) {
	var msg IngestMessage
	if err := core.DecodeJSON(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

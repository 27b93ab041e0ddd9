package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finscope/internal/cache"
	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/metrics"
)

// TransactionStore is the storage surface used by TransactionService.
type TransactionStore interface {
	UpsertTransaction(ctx context.Context, t core.Transaction) error
	SpendSince(ctx context.Context, cutoff string) ([]core.SpendRow, error)
	SpendRevision(ctx context.Context) (int64, error)
}

// TransactionServiceConfig holds configuration for the transaction service
type TransactionServiceConfig struct {
	// CacheSize bounds the number of cached summaries (default: 64)
	CacheSize int

	// CacheTTL is how long a summary is served from cache; zero disables it (default: 0)
	CacheTTL time.Duration

	// Now supplies the clock that anchors summary windows (default: time.Now)
	Now func() time.Time
}

// DefaultTransactionServiceConfig returns sensible defaults
func DefaultTransactionServiceConfig() TransactionServiceConfig {
	return TransactionServiceConfig{
		CacheSize: 64,
		Now:       time.Now,
	}
}

// RecordError describes a record skipped by StoreBatch.
type RecordError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of StoreBatch.
type BatchResult struct {
	Stored  int           `json:"stored"`
	Skipped int           `json:"skipped"`
	Errors  []RecordError `json:"errors,omitempty"`
}

// TransactionService upserts transactions and computes windowed spend summaries.
type TransactionService struct {
	store     TransactionStore
	metrics   *metrics.Metrics
	logger    *log.Logger
	now       func() time.Time
	summaries *cache.LRUCache[core.SpendSummary]
}

func NewTransactionService(store TransactionStore, m *metrics.Metrics, logger *log.Logger, config TransactionServiceConfig) *TransactionService {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	s := &TransactionService{
		store:   store,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentTransaction),
		now:     config.Now,
	}
	if config.CacheTTL > 0 {
		s.summaries = cache.NewLRUCache[core.SpendSummary](config.CacheSize, config.CacheTTL)
	}
	return s
}

// SummaryCache exposes the summary cache for periodic cleanup. It is nil when
// caching is disabled. Entries are keyed by the catalog's spend revision, so a
// write from any process makes them unreachable.
func (s *TransactionService) SummaryCache() *cache.LRUCache[core.SpendSummary] {
	return s.summaries
}

// Upsert parses and stores a single raw payload. Malformed payloads return a
// *core.ValidationError and nothing is written.
func (s *TransactionService) Upsert(ctx context.Context, payload map[string]any) error {
	txn, err := core.ParseTransaction(payload)
	if err != nil {
		return err
	}

	if err := s.store.UpsertTransaction(ctx, txn); err != nil {
		return fmt.Errorf("store transaction: %w", err)
	}

	if s.summaries != nil {
		// Entries keyed by older revisions can no longer be reached.
		s.summaries.Purge()
	}
	s.metrics.TransactionsStored.Inc()
	return nil
}

// StoreBatch upserts each payload independently. Records failing validation
// are skipped and reported; earlier records stay stored when a later one
// fails. A storage error aborts the batch and is returned together with the
// partial result.
func (s *TransactionService) StoreBatch(ctx context.Context, payloads []map[string]any) (BatchResult, error) {
	defer s.metrics.ObserveSince(log.OpUpsert, time.Now())

	var result BatchResult
	for i, p := range payloads {
		err := s.Upsert(ctx, p)

		var verr *core.ValidationError
		switch {
		case err == nil:
			result.Stored++
		case errors.As(err, &verr):
			result.Skipped++
			result.Errors = append(result.Errors, RecordError{Index: i, Field: verr.Field, Reason: verr.Reason})
			s.metrics.TransactionsSkipped.WithLabelValues(verr.Field).Inc()
			s.logger.WarnContext(ctx, "Skipping malformed transaction",
				log.NewFields().WithOperation(log.OpUpsert).WithError(err, log.ErrorTypeValidation).ToSlice()...)
		default:
			s.logger.ErrorContext(ctx, "Transaction batch aborted",
				log.NewFields().
					WithOperation(log.OpUpsert).
					WithBatch(result.Stored, result.Skipped).
					WithError(err, log.ErrorTypeStorage).
					ToSlice()...)
			return result, err
		}
	}

	s.logger.InfoContext(ctx, "Transaction batch stored",
		log.NewFields().WithOperation(log.OpUpsert).WithBatch(result.Stored, result.Skipped).ToSlice()...)
	return result, nil
}

// Summarize aggregates positive-amount transactions dated within the trailing
// window of windowDays calendar days ending today.
func (s *TransactionService) Summarize(ctx context.Context, windowDays int) (core.SpendSummary, error) {
	defer s.metrics.ObserveSince(log.OpSummarize, time.Now())

	cutoff := core.WindowCutoff(s.now(), windowDays)
	if s.summaries == nil {
		s.metrics.SummaryRequests.WithLabelValues("off").Inc()
		return s.summarize(ctx, windowDays, cutoff)
	}

	// The revision is read before the scan, so a cached entry is never older
	// than the catalog state its key names.
	rev, err := s.store.SpendRevision(ctx)
	if err != nil {
		return core.SpendSummary{}, fmt.Errorf("summarize: %w", err)
	}
	key := fmt.Sprintf("%d|%s|%d", windowDays, cutoff, rev)
	if cached, ok := s.summaries.Get(key); ok {
		s.metrics.SummaryRequests.WithLabelValues("hit").Inc()
		return cached, nil
	}
	s.metrics.SummaryRequests.WithLabelValues("miss").Inc()

	summary, err := s.summarize(ctx, windowDays, cutoff)
	if err != nil {
		return core.SpendSummary{}, err
	}
	s.summaries.Set(key, summary)
	return summary, nil
}

func (s *TransactionService) summarize(ctx context.Context, windowDays int, cutoff string) (core.SpendSummary, error) {
	rows, err := s.store.SpendSince(ctx, cutoff)
	if err != nil {
		return core.SpendSummary{}, fmt.Errorf("scan spend since %s: %w", cutoff, err)
	}

	s.logger.DebugContext(ctx, "Spend summary computed",
		log.FieldWindowDays, windowDays,
		log.FieldCount, len(rows),
		"cutoff", cutoff)
	return core.Summarize(windowDays, rows), nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/metrics"
)

// TimeseriesStore is the storage surface used by TimeseriesService.
type TimeseriesStore interface {
	InsertPoints(ctx context.Context, points []core.TimeseriesPoint) (int, error)
	QueryPoints(ctx context.Context, metric, start, end string) ([]core.Observation, error)
}

// TimeseriesService appends observations and serves ordered range queries.
type TimeseriesService struct {
	store   TimeseriesStore
	metrics *metrics.Metrics
	logger  *log.Logger
	now     func() time.Time
	valid   *validator.Validate
}

func NewTimeseriesService(store TimeseriesStore, m *metrics.Metrics, logger *log.Logger) *TimeseriesService {
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &TimeseriesService{
		store:   store,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentTimeseries),
		now:     time.Now,
		valid:   newPointValidator(),
	}
}

func newPointValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// IngestResult is the outcome of Ingest.
type IngestResult struct {
	Ingested int           `json:"ingested"`
	Skipped  int           `json:"skipped"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// checkPoint reports the first missing required field of the point at index i.
func (s *TimeseriesService) checkPoint(i int, p core.PointPayload) *core.ValidationError {
	err := s.valid.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &core.ValidationError{
			Field:  fmt.Sprintf("points[%d].%s", i, fe.Field()),
			Reason: fmt.Sprintf("failed %s validation", fe.Tag()),
		}
	}
	return &core.ValidationError{Field: fmt.Sprintf("points[%d]", i), Reason: err.Error()}
}

// Ingest coerces payloads and appends the well-formed ones in one
// transaction, in submission order. Values that cannot be converted are
// stored as null; a point without a metric or timestamp is skipped and
// reported without affecting the rest of the batch.
func (s *TimeseriesService) Ingest(ctx context.Context, payloads []core.PointPayload) (IngestResult, error) {
	defer s.metrics.ObserveSince(log.OpIngest, time.Now())

	var result IngestResult
	now := s.now()
	points := make([]core.TimeseriesPoint, 0, len(payloads))
	nulls := 0
	for i, p := range payloads {
		if verr := s.checkPoint(i, p); verr != nil {
			result.Skipped++
			result.Errors = append(result.Errors, RecordError{Index: i, Field: verr.Field, Reason: verr.Reason})
			s.metrics.PointsSkipped.Inc()
			s.logger.WarnContext(ctx, "Skipping malformed point",
				log.NewFields().WithOperation(log.OpIngest).WithError(verr, log.ErrorTypeValidation).ToSlice()...)
			continue
		}
		pt := core.NormalizePoint(p, now)
		if pt.Value == nil {
			nulls++
		}
		points = append(points, pt)
	}

	if len(points) > 0 {
		n, err := s.store.InsertPoints(ctx, points)
		if err != nil {
			s.logger.ErrorContext(ctx, "Timeseries ingest failed",
				log.NewFields().WithOperation(log.OpIngest).WithError(err, log.ErrorTypeStorage).ToSlice()...)
			return IngestResult{}, fmt.Errorf("ingest timeseries: %w", err)
		}
		result.Ingested = n
	}

	s.metrics.PointsIngested.Add(float64(result.Ingested))
	s.logger.InfoContext(ctx, "Timeseries points ingested",
		log.FieldCount, result.Ingested,
		log.FieldSkipped, result.Skipped,
		"null_values", nulls)
	return result, nil
}

// Query returns the series for metric between inclusive bounds. An unknown
// metric yields an empty series.
func (s *TimeseriesService) Query(ctx context.Context, metric, start, end string) (core.Series, error) {
	defer s.metrics.ObserveSince(log.OpQuery, time.Now())

	obs, err := s.store.QueryPoints(ctx, metric, start, end)
	if err != nil {
		return core.Series{}, fmt.Errorf("query timeseries %s: %w", metric, err)
	}

	s.logger.DebugContext(ctx, "Timeseries queried",
		log.FieldMetric, metric,
		log.FieldCount, len(obs))
	return core.NewSeries(metric, obs), nil
}

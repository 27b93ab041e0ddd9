package core

import (
	"errors"
	"fmt"
)

type (
	// TimeseriesPoint is one observed value of a metric as persisted.
	TimeseriesPoint struct {
		Source    string
		Metric    string
		Timestamp string   // ISO-8601, compared lexicographically
		Value     *float64 // nil is stored as NULL
		IngestTS  string
		Meta      *string
	}

	// PointPayload is a point as submitted by a producer, before coercion.
	PointPayload struct {
		Source    string `json:"source"`
		Metric    string `json:"metric" validate:"required"`
		Timestamp string `json:"timestamp" validate:"required"`
		Value     any    `json:"value"`
		IngestTS  string `json:"ingest_ts,omitempty"`
		Meta      any    `json:"meta,omitempty"`
	}

	// Observation is the timestamp/value pair returned by range queries.
	Observation struct {
		Timestamp string
		Value     *float64
	}

	// Series is the range query response: parallel arrays aligned by index.
	Series struct {
		Metric string     `json:"metric"`
		Labels []string   `json:"labels"`
		Values []*float64 `json:"values"`
	}

	// Transaction is a bank-style record keyed by a stable external ID.
	Transaction struct {
		ID        string
		Date      string
		Amount    float64
		Currency  *string
		Name      *string
		Category  *string // comma-joined taxonomy
		AccountID *string
		Raw       string // JSON text of the submitted payload
	}

	// SpendRow is the projection of a transaction used by the aggregator.
	SpendRow struct {
		Amount   float64
		Name     *string
		Category *string
	}
)

// ErrStorageUnavailable marks failures to open, create or reach the catalog.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ValidationError reports a malformed individual record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewSeries builds a Series from ordered observations.
func NewSeries(metric string, obs []Observation) Series {
	s := Series{
		Metric: metric,
		Labels: make([]string, 0, len(obs)),
		Values: make([]*float64, 0, len(obs)),
	}
	for _, o := range obs {
		s.Labels = append(s.Labels, o.Timestamp)
		s.Values = append(s.Values, o.Value)
	}
	return s
}

package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	"finscope/internal/core"
)

func decodeBatch[T any](r *http.Request, key string) ([]T, error) {
	var raw json.RawMessage
	if err := render.DecodeJSON(r.Body, &raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return core.DecodeBatch[T](raw, key)
}

func (s *Server) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
}

func (s *Server) handleIngestPoints(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	points, err := decodeBatch[core.PointPayload](r, "points")
	if err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}

	result, err := s.timeseries.Ingest(r.Context(), points)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (s *Server) handleQuerySeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := strings.TrimSpace(q.Get("metric"))
	if metric == "" {
		render.Render(w, r, errMissingParameter("metric"))
		return
	}

	series, err := s.timeseries.Query(r.Context(), metric, strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, series)
}

func (s *Server) handleStoreTransactions(w http.ResponseWriter, r *http.Request) {
	s.limitBody(w, r)
	payloads, err := decodeBatch[map[string]any](r, "transactions")
	if err != nil {
		render.Render(w, r, errInvalidRequest(err))
		return
	}

	result, err := s.transactions.StoreBatch(r.Context(), payloads)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days := s.cfg.DefaultSummaryDays
	if v := strings.TrimSpace(r.URL.Query().Get("days")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			render.Render(w, r, errInvalidParameter("days", v))
			return
		}
		days = parsed
	}

	summary, err := s.transactions.Summarize(r.Context(), days)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

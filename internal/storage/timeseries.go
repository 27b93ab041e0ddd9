package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"finscope/internal/core"
)

const insertPointSQL = `INSERT INTO timeseries(source, metric, ts, value, ingest_ts, meta) VALUES(?, ?, ?, ?, ?, ?)`

// InsertPoints appends points in submission order as a single transaction:
// either every row becomes visible or none does.
func (s *Store) InsertPoints(ctx context.Context, points []core.TimeseriesPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertPointSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, p := range points {
			if _, err := stmt.ExecContext(ctx, p.Source, p.Metric, p.Timestamp, p.Value, p.IngestTS, p.Meta); err != nil {
				return fmt.Errorf("insert point %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.DebugContext(ctx, "Timeseries points appended", "count", len(points))
	return len(points), nil
}

// QueryPoints returns the observations of metric between the inclusive bounds,
// ascending by timestamp. Empty bounds are unbounded. Unknown metrics yield an
// empty slice.
func (s *Store) QueryPoints(ctx context.Context, metric, start, end string) ([]core.Observation, error) {
	var q strings.Builder
	q.WriteString("SELECT ts, value FROM timeseries WHERE metric = ?")
	args := []any{metric}
	if start != "" {
		q.WriteString(" AND ts >= ?")
		args = append(args, start)
	}
	if end != "" {
		q.WriteString(" AND ts <= ?")
		args = append(args, end)
	}
	q.WriteString(" ORDER BY ts ASC, id ASC")

	out := []core.Observation{}
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, q.String(), args...)
		if err != nil {
			return fmt.Errorf("query timeseries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				o  core.Observation
				ts sql.NullString
			)
			if err := rows.Scan(&ts, &o.Value); err != nil {
				return fmt.Errorf("scan observation: %w", err)
			}
			o.Timestamp = ts.String
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

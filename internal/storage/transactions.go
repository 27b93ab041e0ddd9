package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"finscope/internal/core"
)

const upsertTransactionSQL = `
INSERT INTO transactions(id, date, amount, currency, name, category, account_id, raw)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    date = excluded.date,
    amount = excluded.amount,
    currency = excluded.currency,
    name = excluded.name,
    category = excluded.category,
    account_id = excluded.account_id,
    raw = excluded.raw`

// UpsertTransaction inserts t or fully replaces the mutable columns of the
// record with the same ID. The statement is atomic on its own.
func (s *Store) UpsertTransaction(ctx context.Context, t core.Transaction) error {
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, upsertTransactionSQL,
			t.ID, nullable(t.Date), t.Amount, t.Currency, t.Name, t.Category, t.AccountID, t.Raw)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
	}

	slog.DebugContext(ctx, "Transaction upserted", "id", t.ID, "amount", t.Amount)
	return nil
}

// GetTransaction returns the stored record for id, reporting false when absent.
func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, bool, error) {
	var (
		t    core.Transaction
		date sql.NullString
	)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`SELECT id, date, amount, currency, name, category, account_id, raw FROM transactions WHERE id = ?`, id,
		).Scan(&t.ID, &date, &t.Amount, &t.Currency, &t.Name, &t.Category, &t.AccountID, &t.Raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("get transaction %s: %w", id, err)
	}
	t.Date = date.String
	return t, true, nil
}

// CountTransactions returns the number of stored transactions.
func (s *Store) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// SpendSince returns spend rows (positive amounts) dated on or after cutoff,
// in insertion order.
func (s *Store) SpendSince(ctx context.Context, cutoff string) ([]core.SpendRow, error) {
	out := []core.SpendRow{}
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx,
			`SELECT amount, name, category FROM transactions WHERE date >= ? AND amount > 0 ORDER BY rowid`, cutoff)
		if err != nil {
			return fmt.Errorf("query spend: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r core.SpendRow
			if err := rows.Scan(&r.Amount, &r.Name, &r.Category); err != nil {
				return fmt.Errorf("scan spend row: %w", err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SpendRevision returns a counter that the catalog bumps on every change to
// the transactions table, whichever process made it.
func (s *Store) SpendRevision(ctx context.Context) (int64, error) {
	var rev int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT revision FROM spend_revision WHERE id = 1`).Scan(&rev)
	})
	if err != nil {
		return 0, fmt.Errorf("read spend revision: %w", err)
	}
	return rev, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

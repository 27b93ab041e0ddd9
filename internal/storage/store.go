package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finscope/internal/core"

	_ "modernc.org/sqlite"
)

// Config locates the catalog. It is passed explicitly at startup.
type Config struct {
	Dir         string
	File        string
	BusyTimeout time.Duration
}

// Path returns the catalog file path.
func (c Config) Path() string {
	return filepath.Join(c.Dir, c.File)
}

// DSN returns the driver connection string with the pragmas the store relies on.
func (c Config) DSN() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		c.Path(), busy.Milliseconds())
}

// Store owns the timeseries and transaction record families.
type Store struct {
	db   *sql.DB
	path string
}

// Migrate creates the catalog directory and brings its schema up to date
// without keeping a handle open.
func Migrate(ctx context.Context, cfg Config) (MigrationStatus, error) {
	if cfg.File == "" {
		return MigrationStatus{}, fmt.Errorf("%w: empty database file name", core.ErrStorageUnavailable)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return MigrationStatus{}, fmt.Errorf("create db directory: %w: %w", core.ErrStorageUnavailable, err)
	}

	status, err := RunMigrations(cfg.DSN())
	if err != nil {
		return status, fmt.Errorf("bootstrap catalog: %w: %w", core.ErrStorageUnavailable, err)
	}

	slog.InfoContext(ctx, "Catalog ready",
		"path", cfg.Path(),
		"schema_version", status.Version,
		"migrated", status.Applied)
	return status, nil
}

// Open creates the catalog if needed and returns a ready Store. Every failure
// wraps core.ErrStorageUnavailable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if _, err := Migrate(ctx, cfg); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w: %w", core.ErrStorageUnavailable, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", core.ErrStorageUnavailable, err)
	}

	return &Store{db: db, path: cfg.Path()}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the catalog file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that a connection to the catalog can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

// withConn runs fn on a dedicated connection that is released on every exit path.
func (s *Store) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w: %w", core.ErrStorageUnavailable, err)
	}
	defer conn.Close()

	return fn(conn)
}

// withTx runs fn inside a transaction on a scoped connection. The transaction
// is rolled back if fn returns an error or panics.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withConn(ctx, func(conn *sql.Conn) (err error) {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		if err = fn(tx); err != nil {
			return err
		}
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

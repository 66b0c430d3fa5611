package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps all streams in one append-only table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, stream string, line []byte) error {
	if err := checkStream(stream); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (stream, body, created_at) VALUES (?, ?, ?)`,
		stream, string(line), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append %s entry: %w", stream, err)
	}
	return nil
}

func (s *SQLiteStore) Replay(ctx context.Context, stream string, fn func(line []byte) error) error {
	if err := checkStream(stream); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM ledger_entries WHERE stream = ? ORDER BY id`,
		stream,
	)
	if err != nil {
		return fmt.Errorf("failed to query %s entries: %w", stream, err)
	}

	// drain before calling fn so the connection is free for nested calls
	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan entry: %w", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, body := range bodies {
		if err := fn([]byte(body)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Truncate(ctx context.Context, stream string) error {
	if err := checkStream(stream); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE stream = ?`, stream); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", stream, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

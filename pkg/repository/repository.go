// Package repository persists digests and the bounded history ledger in
// SQLite. Writes are retried on lock contention; every other error is
// surfaced to the caller as fatal.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/aitides/aitides/pkg/domain"
)

//go:embed schema.sql
var schema string

// Config represents database configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store provides digest and history persistence over a shared connection.
type Store struct {
	db *sqlx.DB
}

// New opens the database, applies pragmas and initializes the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		cfg.DSN = "file:aitides.db?cache=shared&mode=rwc&_txlock=immediate"
	}

	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000", // 5 second timeout for locks
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sqlx.DB connection for direct access if needed
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// ErrNotFound is returned when a requested digest does not exist.
var ErrNotFound = errors.New("not found")

// digestSQL represents a digest row for SQL operations
type digestSQL struct {
	Date        string    `db:"date"`
	GeneratedAt time.Time `db:"generated_at"`
	Overview    string    `db:"overview"`
	Payload     bodySQL   `db:"payload"`
}

// historySQL represents a ledger row for SQL operations
type historySQL struct {
	Date       string    `db:"date"`
	PaperCount int       `db:"paper_count"`
	NewsCount  int       `db:"news_count"`
	TopTitles  titlesSQL `db:"top_titles"`
}

// SaveDigest upserts the digest for its date. A re-run for the same date
// replaces the stored row, keeping one digest per date.
func (s *Store) SaveDigest(ctx context.Context, d domain.Digest) error {
	row := digestSQL{
		Date:        d.Date,
		GeneratedAt: d.GeneratedAt,
		Overview:    d.Overview,
		Payload:     bodySQL{Papers: d.Papers, News: d.News, Warnings: d.Warnings},
	}

	query := `
		INSERT INTO digests (date, generated_at, overview, payload)
		VALUES (:date, :generated_at, :overview, :payload)
		ON CONFLICT(date) DO UPDATE SET
			generated_at = excluded.generated_at,
			overview = excluded.overview,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`
	return s.withRetry(ctx, func() error {
		_, err := s.db.NamedExecContext(ctx, query, row)
		if err != nil {
			return fmt.Errorf("save digest %s: %w", d.Date, err)
		}
		return nil
	})
}

// GetDigest retrieves the digest for one date, ErrNotFound when absent.
func (s *Store) GetDigest(ctx context.Context, date string) (domain.Digest, error) {
	var row digestSQL
	err := s.db.GetContext(ctx, &row,
		"SELECT date, generated_at, overview, payload FROM digests WHERE date = ?", date)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Digest{}, ErrNotFound
	}
	if err != nil {
		return domain.Digest{}, fmt.Errorf("get digest %s: %w", date, err)
	}
	return row.toDomain(), nil
}

// GetLatestDigest retrieves the most recently generated digest.
func (s *Store) GetLatestDigest(ctx context.Context) (domain.Digest, error) {
	var row digestSQL
	err := s.db.GetContext(ctx, &row,
		"SELECT date, generated_at, overview, payload FROM digests ORDER BY date DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Digest{}, ErrNotFound
	}
	if err != nil {
		return domain.Digest{}, fmt.Errorf("get latest digest: %w", err)
	}
	return row.toDomain(), nil
}

// ListHistory returns the ledger ordered by date ascending.
func (s *Store) ListHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	var rows []historySQL
	err := s.db.SelectContext(ctx, &rows,
		"SELECT date, paper_count, news_count, top_titles FROM history ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	entries := make([]domain.HistoryEntry, len(rows))
	for i, r := range rows {
		entries[i] = domain.HistoryEntry{
			Date:       r.Date,
			PaperCount: r.PaperCount,
			NewsCount:  r.NewsCount,
			TopTitles:  []string(r.TopTitles),
		}
	}
	return entries, nil
}

// ReplaceHistory atomically swaps the stored ledger for the given one. The
// caller passes the already capped and ordered ledger; the previous rows are
// discarded only if every insert succeeds.
func (s *Store) ReplaceHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM history"); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		for _, e := range entries {
			row := historySQL{
				Date:       e.Date,
				PaperCount: e.PaperCount,
				NewsCount:  e.NewsCount,
				TopTitles:  titlesSQL(e.TopTitles),
			}
			_, err := tx.NamedExecContext(ctx,
				`INSERT INTO history (date, paper_count, news_count, top_titles)
				 VALUES (:date, :paper_count, :news_count, :top_titles)`, row)
			if err != nil {
				return fmt.Errorf("insert history %s: %w", e.Date, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit history: %w", err)
		}
		return nil
	})
}

func (r digestSQL) toDomain() domain.Digest {
	return domain.Digest{
		Date:        r.Date,
		GeneratedAt: r.GeneratedAt,
		Overview:    r.Overview,
		Papers:      r.Payload.Papers,
		News:        r.Payload.News,
		Warnings:    r.Payload.Warnings,
	}
}

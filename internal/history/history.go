// Package history keeps a durable record of finished and in-flight jobs in
// PostgreSQL. The in-memory ledger stays authoritative for live status.
package history

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lehigh-university-libraries/bindery/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// Migrate runs a goose command (up, down, status) against the embedded migrations.
func (s *Store) Migrate(ctx context.Context, command string) error {
	db := stdlib.OpenDBFromPool(s.db)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, db, migrationsDir)
	case "down":
		return goose.DownContext(ctx, db, migrationsDir)
	case "status":
		return goose.StatusContext(ctx, db, migrationsDir)
	default:
		return fmt.Errorf("unknown migration command %q: use up, down or status", command)
	}
}

// RecordJob upserts the job row and replaces its book results.
func (s *Store) RecordJob(ctx context.Context, snap models.Snapshot) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const jobSQL = `
		INSERT INTO conversion_jobs (id, status, progress, books, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			books = EXCLUDED.books,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`

	_, err = tx.Exec(ctx, jobSQL, snap.JobID, string(snap.Status), snap.Progress, snap.Books, snap.CreatedAt, nullTime(snap.CompletedAt))
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM book_results WHERE job_id = $1`, snap.JobID); err != nil {
		return fmt.Errorf("clear book results: %w", err)
	}

	const resultSQL = `
		INSERT INTO book_results (job_id, book_index, title, epub_path, device_path, error)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, r := range snap.Results {
		batch.Queue(resultSQL, snap.JobID, r.Index, r.Title, r.EPUBPath, r.DevicePath, r.Error)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert book results: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Job loads one job with its results.
func (s *Store) Job(ctx context.Context, id string) (models.Snapshot, error) {
	const jobSQL = `
		SELECT id, status, progress, books, created_at, completed_at
		FROM conversion_jobs WHERE id = $1`

	snap, err := scanJob(s.db.QueryRow(ctx, jobSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Snapshot{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return models.Snapshot{}, fmt.Errorf("get job: %w", err)
	}

	results, err := s.results(ctx, id)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Results = results
	return snap, nil
}

// Recent lists the newest jobs first, without their book results.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	const listSQL = `
		SELECT id, status, progress, books, created_at, completed_at
		FROM conversion_jobs ORDER BY created_at DESC, id LIMIT $1`

	rows, err := s.db.Query(ctx, listSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		snap, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) results(ctx context.Context, jobID string) ([]models.BookResult, error) {
	const resultsSQL = `
		SELECT book_index, title, epub_path, device_path, error
		FROM book_results WHERE job_id = $1 ORDER BY book_index`

	rows, err := s.db.Query(ctx, resultsSQL, jobID)
	if err != nil {
		return nil, fmt.Errorf("list book results: %w", err)
	}
	defer rows.Close()

	results := []models.BookResult{}
	for rows.Next() {
		var r models.BookResult
		if err := rows.Scan(&r.Index, &r.Title, &r.EPUBPath, &r.DevicePath, &r.Error); err != nil {
			return nil, fmt.Errorf("scan book result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanJob(row pgx.Row) (models.Snapshot, error) {
	var (
		snap      models.Snapshot
		status    string
		completed *time.Time
	)
	if err := row.Scan(&snap.JobID, &status, &snap.Progress, &snap.Books, &snap.CreatedAt, &completed); err != nil {
		return models.Snapshot{}, err
	}
	snap.Status = models.JobStatus(status)
	if completed != nil {
		snap.CompletedAt = *completed
	}
	return snap, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Package runstore archives evaluation runs in PostgreSQL so they can be
// compared or fused later without keeping run files around.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/runfile"
	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    model       TEXT NOT NULL,
    tag         TEXT NOT NULL,
    topics      INTEGER NOT NULL,
    failures    INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_results (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    topic  TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    rank   INTEGER NOT NULL,
    score  DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, topic, rank)
);`

type Meta struct {
	ID         string
	Model      string
	Tag        string
	Topics     int
	Failures   int
	StartedAt  time.Time
	FinishedAt time.Time
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "run-store"),
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating run store: %w", err)
	}
	return nil
}

// SaveRun stores meta and lines in one transaction. Lines are bulk-loaded
// with COPY. Saving an existing run id replaces it.
func (s *Store) SaveRun(ctx context.Context, meta Meta, lines []runfile.Line) error {
	start := time.Now()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, meta.ID); err != nil {
			return fmt.Errorf("deleting previous run: %w", err)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, model, tag, topics, failures, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			meta.ID, meta.Model, meta.Tag, meta.Topics, meta.Failures,
			meta.StartedAt.UTC(), meta.FinishedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("run_results", "run_id", "topic", "doc_id", "rank", "score"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		for _, l := range lines {
			if _, err := stmt.ExecContext(ctx, meta.ID, l.Topic, l.DocID, l.Rank, l.Score); err != nil {
				stmt.Close()
				return fmt.Errorf("copying result row: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing copy: %w", err)
		}
		return stmt.Close()
	})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", meta.ID, err)
	}
	s.logger.Info("run saved", "run_id", meta.ID, "lines", len(lines), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// LoadRun returns the run's metadata and lines ordered by topic and rank.
// The tag on each line is the run's tag.
func (s *Store) LoadRun(ctx context.Context, id string) (*Meta, []runfile.Line, error) {
	var meta Meta
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, model, tag, topics, failures, started_at, finished_at FROM runs WHERE id = $1`, id,
	).Scan(&meta.ID, &meta.Model, &meta.Tag, &meta.Topics, &meta.Failures, &meta.StartedAt, &meta.FinishedAt)
	if apperrors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("run %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("querying run %s: %w", id, err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT topic, doc_id, rank, score FROM run_results WHERE run_id = $1 ORDER BY topic, rank`, id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying results of run %s: %w", id, err)
	}
	defer rows.Close()

	var lines []runfile.Line
	for rows.Next() {
		l := runfile.Line{Tag: meta.Tag}
		if err := rows.Scan(&l.Topic, &l.DocID, &l.Rank, &l.Score); err != nil {
			return nil, nil, fmt.Errorf("scanning result row: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return &meta, lines, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Meta, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, model, tag, topics, failures, started_at, finished_at
		 FROM runs ORDER BY finished_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.Model, &m.Tag, &m.Topics, &m.Failures, &m.StartedAt, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, m)
	}
	return runs, rows.Err()
}

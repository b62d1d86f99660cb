package recording

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chenxu-corpus/chenxuvox/internal/quality"
)

// Schema is the SQL DDL for the recordings table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS recordings (
    id              TEXT PRIMARY KEY,
    prompt_id       TEXT NOT NULL,
    speaker_id      TEXT NOT NULL,
    raw_path        TEXT NOT NULL,
    processed_path  TEXT,
    duration_ms     BIGINT,
    file_size_kb    INTEGER NOT NULL DEFAULT 0,
    snr_db          DOUBLE PRECISION,
    peak_dbfs       DOUBLE PRECISION,
    rms_dbfs        DOUBLE PRECISION,
    clipping_count  INTEGER NOT NULL DEFAULT 0,
    silence_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    transcript      TEXT,
    status          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_recordings_speaker ON recordings(speaker_id);
CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(status);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// recordings table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("recording: migrate: %w", err)
	}
	return nil
}

// Create inserts a new attempt. It validates the attempt and returns an error
// if an attempt with the same ID already exists.
func (s *PostgresStore) Create(ctx context.Context, a *Attempt) error {
	if err := a.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO recordings (
			id, prompt_id, speaker_id, raw_path, processed_path,
			duration_ms, file_size_kb, snr_db, peak_dbfs, rms_dbfs,
			clipping_count, silence_seconds, transcript, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		a.ID, a.PromptID, a.SpeakerID, a.RawPath, a.ProcessedPath,
		a.DurationMs, a.SizeKB, a.SNRDb, a.PeakDbfs, a.RMSDbfs,
		a.ClippingCount, a.SilenceSeconds, a.Transcript, string(a.Status),
	).Scan(&a.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("recording: attempt with id %q already exists", a.ID)
		}
		return fmt.Errorf("recording: create: %w", err)
	}
	return nil
}

// Get retrieves an attempt by ID. It returns (nil, nil) if no attempt with
// the given ID exists.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Attempt, error) {
	const query = `
		SELECT id, prompt_id, speaker_id, raw_path, processed_path,
		       duration_ms, file_size_kb, snr_db, peak_dbfs, rms_dbfs,
		       clipping_count, silence_seconds, transcript, status, created_at
		FROM recordings
		WHERE id = $1`

	var a Attempt
	var status string

	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.PromptID, &a.SpeakerID, &a.RawPath, &a.ProcessedPath,
		&a.DurationMs, &a.SizeKB, &a.SNRDb, &a.PeakDbfs, &a.RMSDbfs,
		&a.ClippingCount, &a.SilenceSeconds, &a.Transcript, &status, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("recording: get %q: %w", id, err)
	}
	a.Status = quality.Verdict(status)
	return &a, nil
}

// PromptCounts returns the number of attempts per prompt ID for one speaker.
func (s *PostgresStore) PromptCounts(ctx context.Context, speakerID string) (map[string]int, error) {
	const query = `
		SELECT prompt_id, COUNT(*)
		FROM recordings
		WHERE speaker_id = $1
		GROUP BY prompt_id`

	rows, err := s.db.Query(ctx, query, speakerID)
	if err != nil {
		return nil, fmt.Errorf("recording: prompt counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var promptID string
		var n int64
		if err := rows.Scan(&promptID, &n); err != nil {
			return nil, fmt.Errorf("recording: prompt counts scan: %w", err)
		}
		counts[promptID] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recording: prompt counts: %w", err)
	}
	return counts, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

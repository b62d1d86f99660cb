package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chenxu-corpus/chenxuvox/internal/config"
)

// Schema is the DDL for the corpus tables. Statements are idempotent so the
// schema can be applied on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS corpora (
    id               TEXT PRIMARY KEY,
    title            TEXT NOT NULL DEFAULT '',
    content          TEXT NOT NULL,
    category         TEXT NOT NULL DEFAULT '',
    difficulty_score INTEGER NOT NULL DEFAULT 1,
    source           TEXT NOT NULL DEFAULT 'local'
);

CREATE TABLE IF NOT EXISTS generated_corpus (
    id         TEXT PRIMARY KEY,
    text       TEXT NOT NULL,
    topic      TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL DEFAULT '',
    features   JSONB NOT NULL DEFAULT '[]',
    analysis   JSONB NOT NULL DEFAULT '{}',
    status     TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS generated_corpus_status_idx ON generated_corpus (status);
`

// DB is the subset of pgxpool.Pool used by PostgresStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on top of PostgreSQL.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("corpus: migrate: %w", err)
	}
	return nil
}

const stageCandidateSQL = `
INSERT INTO generated_corpus (id, text, topic, difficulty, features, analysis, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// StageCandidates implements Store.
func (s *PostgresStore) StageCandidates(ctx context.Context, candidates []Candidate) error {
	for i := range candidates {
		if err := candidates[i].Validate(); err != nil {
			return fmt.Errorf("corpus: stage candidates: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("corpus: stage candidates: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range candidates {
		c := &candidates[i]
		features, err := json.Marshal(c.Features)
		if err != nil {
			return fmt.Errorf("corpus: stage candidate %q: encode features: %w", c.ID, err)
		}
		analysis, err := json.Marshal(c.Analysis)
		if err != nil {
			return fmt.Errorf("corpus: stage candidate %q: encode analysis: %w", c.ID, err)
		}
		if _, err := tx.Exec(ctx, stageCandidateSQL,
			c.ID, c.Text, c.Topic, string(c.Difficulty), features, analysis, string(c.Status),
		); err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("corpus: candidate %q already exists", c.ID)
			}
			return fmt.Errorf("corpus: stage candidate %q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("corpus: stage candidates: commit: %w", err)
	}
	return nil
}

const (
	selectPendingSQL = `
SELECT text, topic, difficulty FROM generated_corpus WHERE id = $1 AND status = 'pending'`

	promoteSQL = `
INSERT INTO corpora (id, title, content, category, difficulty_score, source)
VALUES ($1, $2, $3, $4, $5, 'llm_generated')
ON CONFLICT (id) DO NOTHING`

	markApprovedSQL = `
UPDATE generated_corpus SET status = 'approved' WHERE id = $1`
)

// ApproveCandidates implements Store. Each pending candidate becomes a
// canonical prompt titled and categorised by its topic; its difficulty tag is
// folded into the numeric score.
func (s *PostgresStore) ApproveCandidates(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("corpus: approve: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	approved := 0
	for _, id := range ids {
		var text, topic, difficulty string
		err := tx.QueryRow(ctx, selectPendingSQL, id).Scan(&text, &topic, &difficulty)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("corpus: approve %q: %w", id, err)
		}

		score := DifficultyScore(config.Difficulty(difficulty))
		if _, err := tx.Exec(ctx, promoteSQL, id, topic, text, topic, score); err != nil {
			return 0, fmt.Errorf("corpus: approve %q: promote: %w", id, err)
		}
		if _, err := tx.Exec(ctx, markApprovedSQL, id); err != nil {
			return 0, fmt.Errorf("corpus: approve %q: mark: %w", id, err)
		}
		approved++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("corpus: approve: commit: %w", err)
	}
	return approved, nil
}

const rejectSQL = `
UPDATE generated_corpus SET status = 'rejected' WHERE id = ANY($1) AND status = 'pending'`

// RejectCandidates implements Store.
func (s *PostgresStore) RejectCandidates(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, rejectSQL, ids)
	if err != nil {
		return 0, fmt.Errorf("corpus: reject: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const listCandidatesSQL = `
SELECT id, text, topic, difficulty, features, analysis, status, created_at
FROM generated_corpus`

// ListCandidates implements Store.
func (s *PostgresStore) ListCandidates(ctx context.Context, status CandidateStatus) ([]Candidate, error) {
	sql := listCandidatesSQL
	var args []any
	if status != "" {
		sql += " WHERE status = $1"
		args = append(args, string(status))
	}
	sql += " ORDER BY created_at DESC, id"

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("corpus: list candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c          Candidate
			difficulty string
			rowStatus  string
			features   []byte
			analysis   []byte
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.Topic, &difficulty, &features, &analysis, &rowStatus, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("corpus: list candidates: scan: %w", err)
		}
		c.Difficulty = config.Difficulty(difficulty)
		c.Status = CandidateStatus(rowStatus)
		if err := json.Unmarshal(features, &c.Features); err != nil {
			return nil, fmt.Errorf("corpus: list candidates: decode features for %q: %w", c.ID, err)
		}
		if err := json.Unmarshal(analysis, &c.Analysis); err != nil {
			return nil, fmt.Errorf("corpus: list candidates: decode analysis for %q: %w", c.ID, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: list candidates: %w", err)
	}
	return out, nil
}

const importPromptSQL = `
INSERT INTO corpora (id, title, content, category, difficulty_score, source)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

// ImportPrompts implements Store.
func (s *PostgresStore) ImportPrompts(ctx context.Context, prompts []Prompt) (int, error) {
	if len(prompts) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("corpus: import prompts: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for i := range prompts {
		p := &prompts[i]
		if p.ID == "" || p.Content == "" {
			return 0, fmt.Errorf("corpus: import prompts: prompt %d has empty id or content", i)
		}
		tag, err := tx.Exec(ctx, importPromptSQL,
			p.ID, p.Title, p.Content, p.Category, p.DifficultyScore, p.Source,
		)
		if err != nil {
			return 0, fmt.Errorf("corpus: import prompt %q: %w", p.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("corpus: import prompts: commit: %w", err)
	}
	return inserted, nil
}

const listPromptsSQL = `
SELECT id, title, content, category, difficulty_score, source FROM corpora ORDER BY id`

// ListPrompts implements Store.
func (s *PostgresStore) ListPrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.db.Query(ctx, listPromptsSQL)
	if err != nil {
		return nil, fmt.Errorf("corpus: list prompts: %w", err)
	}
	defer rows.Close()

	var out []Prompt
	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &p.DifficultyScore, &p.Source); err != nil {
			return nil, fmt.Errorf("corpus: list prompts: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus: list prompts: %w", err)
	}
	return out, nil
}

const getPromptSQL = `
SELECT id, title, content, category, difficulty_score, source FROM corpora WHERE id = $1`

// GetPrompt implements Store.
func (s *PostgresStore) GetPrompt(ctx context.Context, id string) (*Prompt, error) {
	var p Prompt
	err := s.db.QueryRow(ctx, getPromptSQL, id).Scan(
		&p.ID, &p.Title, &p.Content, &p.Category, &p.DifficultyScore, &p.Source,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: get prompt %q: %w", id, err)
	}
	return &p, nil
}

// isDuplicateKeyError reports whether err is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

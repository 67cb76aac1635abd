package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/intervox/pkg/types"
)

// Schema is the SQL DDL for the interview_reports table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS interview_reports (
    id               TEXT PRIMARY KEY,
    session_id       TEXT NOT NULL,
    question_set_id  TEXT NOT NULL DEFAULT '',
    candidate_name   TEXT NOT NULL DEFAULT '',
    job_position     TEXT NOT NULL DEFAULT '',
    end_reason       TEXT NOT NULL DEFAULT '',
    transcript       JSONB NOT NULL DEFAULT '[]',
    feedback         JSONB,
    raw_feedback     TEXT NOT NULL DEFAULT '',
    rating           INTEGER NOT NULL DEFAULT 0,
    summary          TEXT NOT NULL DEFAULT '',
    recommended      BOOLEAN NOT NULL DEFAULT false,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_interview_reports_session ON interview_reports(session_id);
CREATE INDEX IF NOT EXISTS idx_interview_reports_question_set ON interview_reports(question_set_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Transcript and feedback
// are stored as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. The caller is
// responsible for calling [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects a pool to dsn and applies the schema. The returned
// close function releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, func(), error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("feedback: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("feedback: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("feedback: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("feedback: migrate: %w", err)
	}
	return nil
}

// Ping checks that the database answers queries.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("feedback: ping: %w", err)
	}
	return nil
}

// SaveReport inserts r. Saving the same report ID twice overwrites the
// earlier row.
func (s *PostgresStore) SaveReport(ctx context.Context, r types.Report) error {
	transcriptJSON, err := json.Marshal(emptyTranscript(r.Transcript))
	if err != nil {
		return fmt.Errorf("feedback: marshal transcript: %w", err)
	}
	var feedbackJSON []byte
	if r.Feedback != nil {
		if feedbackJSON, err = json.Marshal(r.Feedback); err != nil {
			return fmt.Errorf("feedback: marshal feedback: %w", err)
		}
	}

	const query = `
		INSERT INTO interview_reports (
			id, session_id, question_set_id, candidate_name, job_position,
			end_reason, transcript, feedback, raw_feedback, rating,
			summary, recommended, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			transcript = EXCLUDED.transcript, feedback = EXCLUDED.feedback,
			raw_feedback = EXCLUDED.raw_feedback, rating = EXCLUDED.rating,
			summary = EXCLUDED.summary, recommended = EXCLUDED.recommended`

	_, err = s.db.Exec(ctx, query,
		r.ID, r.SessionID, r.QuestionSetID, r.CandidateName, r.JobPosition,
		r.EndReason, transcriptJSON, feedbackJSON, r.RawFeedback, r.Rating,
		r.Summary, r.Recommended, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("feedback: save report %q: %w", r.ID, err)
	}
	return nil
}

// Get returns the report with the given ID. It returns (nil, nil) if no
// such report exists.
func (s *PostgresStore) Get(ctx context.Context, id string) (*types.Report, error) {
	const query = `
		SELECT id, session_id, question_set_id, candidate_name, job_position,
		       end_reason, transcript, feedback, raw_feedback, rating,
		       summary, recommended, created_at
		FROM interview_reports
		WHERE id = $1`

	var r types.Report
	var transcriptJSON, feedbackJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.SessionID, &r.QuestionSetID, &r.CandidateName, &r.JobPosition,
		&r.EndReason, &transcriptJSON, &feedbackJSON, &r.RawFeedback, &r.Rating,
		&r.Summary, &r.Recommended, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("feedback: get %q: %w", id, err)
	}
	if err := json.Unmarshal(transcriptJSON, &r.Transcript); err != nil {
		return nil, fmt.Errorf("feedback: unmarshal transcript: %w", err)
	}
	if len(feedbackJSON) > 0 {
		r.Feedback = new(types.Feedback)
		if err := json.Unmarshal(feedbackJSON, r.Feedback); err != nil {
			return nil, fmt.Errorf("feedback: unmarshal feedback: %w", err)
		}
	}
	return &r, nil
}

func emptyTranscript(t types.Transcript) types.Transcript {
	if t == nil {
		return types.Transcript{}
	}
	return t
}

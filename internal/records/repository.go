package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// SQLStore implements Store on Postgres via database/sql.
//
// Assumed table processing_records with:
// - PRIMARY KEY (id)
// - UNIQUE (workspace_id, source_type, external_id)
// - redacted_segments stored as JSONB
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const recordColumns = `
id, workspace_id, kind, provider_call_id, source_type, external_id,
from_number, caller_name, recording_url, duration_seconds,
status, transcript, analysis, model, input_tokens, output_tokens,
retry_count, last_attempt_at, processed_at, failure_reason,
redaction_status, redacted, redacted_segments, redacted_at,
created_at, updated_at`

func scanRecord(row *sql.Row) (Record, error) {
	var r Record
	var segments []byte
	err := row.Scan(
		&r.ID,
		&r.WorkspaceID,
		&r.Kind,
		&r.ProviderCallID,
		&r.SourceType,
		&r.ExternalID,
		&r.FromNumber,
		&r.CallerName,
		&r.RecordingURL,
		&r.DurationSeconds,
		&r.Status,
		&r.Transcript,
		&r.Analysis,
		&r.Model,
		&r.InputTokens,
		&r.OutputTokens,
		&r.RetryCount,
		&r.LastAttemptAt,
		&r.ProcessedAt,
		&r.FailureReason,
		&r.RedactionStatus,
		&r.Redacted,
		&segments,
		&r.RedactedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &r.RedactedSegments); err != nil {
			return Record{}, err
		}
	}
	return r, nil
}

func (s *SQLStore) GetByID(ctx context.Context, workspaceID, id string) (Record, error) {
	const q = `
SELECT ` + recordColumns + `
FROM processing_records
WHERE workspace_id = $1 AND id = $2
`
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, workspaceID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

func (s *SQLStore) FindBySource(ctx context.Context, workspaceID, sourceType, externalID string) (Record, bool, error) {
	const q = `
SELECT ` + recordColumns + `
FROM processing_records
WHERE workspace_id = $1 AND source_type = $2 AND external_id = $3
LIMIT 1
`
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, workspaceID, sourceType, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *SQLStore) Insert(ctx context.Context, r Record) error {
	segments, err := json.Marshal(r.RedactedSegments)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO processing_records (` + recordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
`
	_, err = s.db.ExecContext(ctx, q,
		r.ID, r.WorkspaceID, r.Kind, r.ProviderCallID, r.SourceType, r.ExternalID,
		r.FromNumber, r.CallerName, r.RecordingURL, r.DurationSeconds,
		r.Status, r.Transcript, r.Analysis, r.Model, r.InputTokens, r.OutputTokens,
		r.RetryCount, r.LastAttemptAt, r.ProcessedAt, r.FailureReason,
		r.RedactionStatus, r.Redacted, segments, r.RedactedAt,
		r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// UpdateWhereStatus writes the record's processing and redaction fields,
// guarded on the row still holding the expected status. The zero-rows case is
// the expected outcome for the loser of a claim race.
func (s *SQLStore) UpdateWhereStatus(ctx context.Context, r Record, expected Status) (int64, error) {
	segments, err := json.Marshal(r.RedactedSegments)
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE processing_records
SET status = $4,
    recording_url = $5,
    duration_seconds = $6,
    transcript = $7,
    analysis = $8,
    model = $9,
    input_tokens = $10,
    output_tokens = $11,
    retry_count = $12,
    last_attempt_at = $13,
    processed_at = $14,
    failure_reason = $15,
    redaction_status = $16,
    redacted = $17,
    redacted_segments = $18,
    redacted_at = $19,
    updated_at = $20
WHERE workspace_id = $1 AND id = $2 AND status = $3
`
	res, err := s.db.ExecContext(ctx, q,
		r.WorkspaceID, r.ID, expected,
		r.Status, r.RecordingURL, r.DurationSeconds,
		r.Transcript, r.Analysis, r.Model, r.InputTokens, r.OutputTokens,
		r.RetryCount, r.LastAttemptAt, r.ProcessedAt, r.FailureReason,
		r.RedactionStatus, r.Redacted, segments, r.RedactedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) ListCompletedDurations(ctx context.Context, workspaceID string, from, to time.Time) ([]int, error) {
	const q = `
SELECT duration_seconds
FROM processing_records
WHERE workspace_id = $1
  AND status = $2
  AND duration_seconds IS NOT NULL
  AND created_at >= $3 AND created_at < $4
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID, StatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLStore implements Store on Postgres via database/sql.
//
// Assumed table workspace_settings with:
// - PRIMARY KEY (workspace_id)
// - settings stored as JSONB
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetSettings(ctx context.Context, workspaceID string) (Settings, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM workspace_settings WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, err
	}
	set, err := ParseSettings(raw)
	if err != nil {
		return Settings{}, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	return set, nil
}

func (s *SQLStore) UpdateSettings(ctx context.Context, workspaceID string, set Settings) error {
	if err := set.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO workspace_settings (workspace_id, settings, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (workspace_id) DO UPDATE SET
  settings = EXCLUDED.settings,
  updated_at = EXCLUDED.updated_at
`
	_, err = s.db.ExecContext(ctx, q, workspaceID, raw, time.Now().UTC())
	return err
}

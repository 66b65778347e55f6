package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/calsync/internal/model"
)

const failedSyncCountKey = "failed_sync_count"

// SyncMetadataStore persists sync tokens and counters in their own tables,
// independent of the events table.
type SyncMetadataStore struct {
	db *sql.DB
}

func NewSyncMetadataStore(db *sql.DB) *SyncMetadataStore {
	return &SyncMetadataStore{db: db}
}

// Load reads the full sync state.
func (s *SyncMetadataStore) Load(ctx context.Context) (*model.SyncState, error) {
	state := model.NewSyncState()

	rows, err := s.db.QueryContext(ctx, `SELECT calendar_id, sync_token, last_sync FROM sync_metadata ORDER BY calendar_id`)
	if err != nil {
		return nil, fmt.Errorf("query sync metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var md model.SyncMetadata
		if err := rows.Scan(&id, &md.SyncToken, &md.LastSync); err != nil {
			return nil, fmt.Errorf("scan sync metadata: %w", err)
		}
		state.Calendars[id] = md
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT value FROM sync_counters WHERE name = ?`, failedSyncCountKey).
		Scan(&state.FailedSyncCount)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("get failed sync count: %w", err)
	}

	return state, nil
}

// Save replaces the stored state in a single transaction.
func (s *SyncMetadataStore) Save(ctx context.Context, state *model.SyncState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_metadata`); err != nil {
		return fmt.Errorf("clear sync metadata: %w", err)
	}

	now := time.Now().UTC()
	for id, md := range state.Calendars {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sync_metadata (calendar_id, sync_token, last_sync, updated_at) VALUES (?, ?, ?, ?)`,
			id, md.SyncToken, md.LastSync, now,
		); err != nil {
			return fmt.Errorf("insert sync metadata %q: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_counters (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		failedSyncCountKey, state.FailedSyncCount,
	); err != nil {
		return fmt.Errorf("set failed sync count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync metadata: %w", err)
	}
	return nil
}

// ClearToken forgets the sync token of one calendar, keeping its last sync time.
func (s *SyncMetadataStore) ClearToken(ctx context.Context, calendarID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_metadata SET sync_token = '', updated_at = ? WHERE calendar_id = ?`,
		time.Now().UTC(), calendarID,
	)
	if err != nil {
		return fmt.Errorf("clear sync token %q: %w", calendarID, err)
	}
	return nil
}

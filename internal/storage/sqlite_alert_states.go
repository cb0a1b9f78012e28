package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

type sqliteAlertStateRepo struct {
	db *sql.DB
}

const alertStateColumns = `key, state, started_at, last_seen_at, last_notified_at, last_payload_hash, snoozed_until`

func (r *sqliteAlertStateRepo) Get(ctx context.Context, key string) (*models.AlertState, error) {
	query := `SELECT ` + alertStateColumns + ` FROM alert_states WHERE key = ?`
	state, err := scanAlertState(r.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert state: %w", err)
	}
	return state, nil
}

func (r *sqliteAlertStateRepo) List(ctx context.Context) ([]*models.AlertState, error) {
	query := `SELECT ` + alertStateColumns + ` FROM alert_states ORDER BY key`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list alert states: %w", err)
	}
	defer rows.Close()

	var states []*models.AlertState
	for rows.Next() {
		state, err := scanAlertState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Upsert is last-write-wins on key. Notification metadata is written
// as carried by the caller; RecordNotifyAttempt advances it.
func (r *sqliteAlertStateRepo) Upsert(ctx context.Context, state *models.AlertState) error {
	query := `
		INSERT INTO alert_states (key, state, started_at, last_seen_at, last_notified_at, last_payload_hash, snoozed_until)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			state = excluded.state,
			started_at = excluded.started_at,
			last_seen_at = excluded.last_seen_at,
			last_notified_at = excluded.last_notified_at,
			last_payload_hash = excluded.last_payload_hash,
			snoozed_until = excluded.snoozed_until
	`
	_, err := r.db.ExecContext(ctx, query,
		state.Key, string(state.State), nullTimePtr(state.StartedAt), state.LastSeenAt,
		nullTimePtr(state.LastNotifiedAt), state.LastPayloadHash, nullTimePtr(state.SnoozedUntil),
	)
	if err != nil {
		return fmt.Errorf("upsert alert state: %w", err)
	}
	return nil
}

// RecordNotifyAttempt stamps the attempt on the state row. The guard
// keeps lastNotifiedAt from moving backward under concurrent ticks.
func (r *sqliteAlertStateRepo) RecordNotifyAttempt(ctx context.Context, key string, at time.Time, payloadHash string) error {
	query := `
		UPDATE alert_states
		SET last_notified_at = ?, last_payload_hash = ?
		WHERE key = ? AND (last_notified_at IS NULL OR last_notified_at <= ?)
	`
	_, err := r.db.ExecContext(ctx, query, at, payloadHash, key, at)
	if err != nil {
		return fmt.Errorf("record notify attempt: %w", err)
	}
	return nil
}

func (r *sqliteAlertStateRepo) SetSnooze(ctx context.Context, key string, until *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_states SET snoozed_until = ? WHERE key = ?",
		nullTimePtr(until), key,
	)
	if err != nil {
		return fmt.Errorf("set snooze: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlertState(row scanner) (*models.AlertState, error) {
	state := &models.AlertState{}
	var stateStr string
	var startedAt, lastNotifiedAt, snoozedUntil sql.NullTime

	err := row.Scan(
		&state.Key, &stateStr, &startedAt, &state.LastSeenAt,
		&lastNotifiedAt, &state.LastPayloadHash, &snoozedUntil,
	)
	if err != nil {
		return nil, err
	}

	state.State = models.AlertStateValue(stateStr)
	state.StartedAt = timePtr(startedAt)
	state.LastNotifiedAt = timePtr(lastNotifiedAt)
	state.SnoozedUntil = timePtr(snoozedUntil)
	return state, nil
}

// Helper functions shared by the sqlite repositories.

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

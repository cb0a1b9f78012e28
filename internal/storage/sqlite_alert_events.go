package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

type sqliteAlertEventRepo struct {
	db *sql.DB
}

const alertEventColumns = `id, key, state, at, masked_summary, masked_signals_json, window_label, rules_version, acked_by, acked_at`

func (r *sqliteAlertEventRepo) Create(ctx context.Context, event *models.AlertEvent) error {
	signalsJSON, err := json.Marshal(event.MaskedSignals)
	if err != nil {
		return fmt.Errorf("marshal masked signals: %w", err)
	}

	query := `
		INSERT INTO alert_events (id, key, state, at, masked_summary, masked_signals_json, window_label, rules_version, acked_by, acked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.Key, string(event.State), event.At, event.MaskedSummary,
		string(signalsJSON), event.WindowLabel, event.RulesVersion,
		event.AckedBy, nullTimePtr(event.AckedAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert event: %w", err)
	}
	return nil
}

func (r *sqliteAlertEventRepo) GetByID(ctx context.Context, id string) (*models.AlertEvent, error) {
	query := `SELECT ` + alertEventColumns + ` FROM alert_events WHERE id = ?`
	event, err := scanAlertEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert event: %w", err)
	}
	return event, nil
}

func (r *sqliteAlertEventRepo) ListRecent(ctx context.Context, limit int) ([]*models.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + alertEventColumns + ` FROM alert_events ORDER BY at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list alert events: %w", err)
	}
	defer rows.Close()

	var events []*models.AlertEvent
	for rows.Next() {
		event, err := scanAlertEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Acknowledge records a manual acknowledgement. First ack wins; the
// row is otherwise immutable.
func (r *sqliteAlertEventRepo) Acknowledge(ctx context.Context, id, actorID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_events SET acked_by = ?, acked_at = ? WHERE id = ? AND acked_by = ''",
		actorID, at, id,
	)
	if err != nil {
		return fmt.Errorf("acknowledge alert event: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Distinguish missing from already-acked.
		event, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if event == nil {
			return ErrNotFound
		}
	}
	return nil
}

func scanAlertEvent(row scanner) (*models.AlertEvent, error) {
	event := &models.AlertEvent{}
	var stateStr, signalsJSON string
	var ackedAt sql.NullTime

	err := row.Scan(
		&event.ID, &event.Key, &stateStr, &event.At, &event.MaskedSummary,
		&signalsJSON, &event.WindowLabel, &event.RulesVersion,
		&event.AckedBy, &ackedAt,
	)
	if err != nil {
		return nil, err
	}

	event.State = models.AlertStateValue(stateStr)
	event.AckedAt = timePtr(ackedAt)
	if signalsJSON != "" && signalsJSON != "null" {
		if err := json.Unmarshal([]byte(signalsJSON), &event.MaskedSignals); err != nil {
			return nil, fmt.Errorf("unmarshal masked signals: %w", err)
		}
	}
	return event, nil
}

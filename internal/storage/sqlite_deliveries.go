package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

type sqliteDeliveryRepo struct {
	db *sql.DB
}

const deliveryColumns = `id, event_id, status, at, masked_reason, provider_ref, window_label`

func (r *sqliteDeliveryRepo) Create(ctx context.Context, delivery *models.AlertDelivery) error {
	query := `
		INSERT INTO alert_deliveries (id, event_id, status, at, masked_reason, provider_ref, window_label)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		delivery.ID, delivery.EventID, string(delivery.Status), delivery.At,
		delivery.MaskedReason, delivery.ProviderRef, delivery.WindowLabel,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// Finalize resolves the optimistic "sent" row once the network call
// completes.
func (r *sqliteDeliveryRepo) Finalize(ctx context.Context, id string, status models.DeliveryStatus, maskedReason string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alert_deliveries SET status = ?, masked_reason = ? WHERE id = ?",
		string(status), maskedReason, id,
	)
	if err != nil {
		return fmt.Errorf("finalize delivery: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteDeliveryRepo) ListByEvent(ctx context.Context, eventID string) ([]*models.AlertDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM alert_deliveries WHERE event_id = ? ORDER BY at, id`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *sqliteDeliveryRepo) CountByEvent(ctx context.Context, eventID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_deliveries WHERE event_id = ?", eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return count, nil
}

func (r *sqliteDeliveryRepo) ListRecent(ctx context.Context, limit int) ([]*models.AlertDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + deliveryColumns + ` FROM alert_deliveries ORDER BY at DESC, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func scanDeliveries(rows *sql.Rows) ([]*models.AlertDelivery, error) {
	var deliveries []*models.AlertDelivery
	for rows.Next() {
		d := &models.AlertDelivery{}
		var status string
		err := rows.Scan(&d.ID, &d.EventID, &status, &d.At, &d.MaskedReason, &d.ProviderRef, &d.WindowLabel)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = models.DeliveryStatus(status)
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

type sqliteLedgerRepo struct {
	db *sql.DB
}

func (r *sqliteLedgerRepo) Insert(ctx context.Context, requestID string, entry *models.LedgerEntry) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO credit_ledger (request_id, delta, reason, created_at) VALUES (?, ?, ?, ?)",
		requestID, entry.Delta, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (r *sqliteLedgerRepo) List(ctx context.Context, from, to time.Time) ([]*models.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT delta, reason, created_at FROM credit_ledger WHERE created_at >= ? AND created_at <= ? ORDER BY created_at",
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func (r *sqliteLedgerRepo) ListByRequest(ctx context.Context, requestID string) ([]*models.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT delta, reason, created_at FROM credit_ledger WHERE request_id = ? ORDER BY created_at",
		requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries by request: %w", err)
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func (r *sqliteLedgerRepo) Balance(ctx context.Context) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(delta), 0) FROM credit_ledger").Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return balance, nil
}

func scanLedgerEntries(rows *sql.Rows) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		e := &models.LedgerEntry{}
		if err := rows.Scan(&e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

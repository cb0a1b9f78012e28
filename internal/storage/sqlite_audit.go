package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

type sqliteAuditRepo struct {
	db *sql.DB
}

func (r *sqliteAuditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_log (id, kind, request_id, actor_id, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.Kind, entry.RequestID, entry.ActorID, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *sqliteAuditRepo) ListRecent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, kind, request_id, actor_id, detail, created_at FROM audit_log ORDER BY created_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Kind, &e.RequestID, &e.ActorID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

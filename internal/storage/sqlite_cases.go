package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

type sqliteCaseRepo struct {
	db *sql.DB
}

const caseColumns = `request_id, status, priority, assigned_to_user_id, claimed_at, resolved_at, closed_at, last_touched_at, created_at, updated_at`

func (r *sqliteCaseRepo) Get(ctx context.Context, requestID string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE request_id = ?`
	c, err := scanCase(r.db.QueryRowContext(ctx, query, requestID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

func (r *sqliteCaseRepo) List(ctx context.Context, filter CaseFilter) ([]*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.AssignedTo != "" {
		query += " AND assigned_to_user_id = ?"
		args = append(args, filter.AssignedTo)
	}
	query += " ORDER BY last_touched_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (r *sqliteCaseRepo) Create(ctx context.Context, c *models.Case) error {
	query := `
		INSERT INTO cases (request_id, status, priority, assigned_to_user_id, claimed_at, resolved_at, closed_at, last_touched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.RequestID, string(c.Status), string(c.Priority), c.AssignedToUserID,
		nullTimePtr(c.ClaimedAt), nullTimePtr(c.ResolvedAt), nullTimePtr(c.ClosedAt),
		c.LastTouchedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// Touch refreshes lastTouchedAt, creating an open case on first touch.
func (r *sqliteCaseRepo) Touch(ctx context.Context, requestID string, now time.Time) (*models.Case, error) {
	query := `
		INSERT INTO cases (request_id, status, priority, assigned_to_user_id, last_touched_at, created_at, updated_at)
		VALUES (?, 'open', 'normal', '', ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			last_touched_at = excluded.last_touched_at,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, requestID, now, now, now); err != nil {
		return nil, fmt.Errorf("touch case: %w", err)
	}
	return r.Get(ctx, requestID)
}

// Claim conditions the write on the assignee observed at read time.
// Losing the race surfaces as ErrCaseConflict, never a silent
// overwrite.
func (r *sqliteCaseRepo) Claim(ctx context.Context, requestID, userID, expectedOwner string, now time.Time) error {
	query := `
		UPDATE cases
		SET assigned_to_user_id = ?, claimed_at = ?, last_touched_at = ?, updated_at = ?
		WHERE request_id = ? AND (assigned_to_user_id = '' OR assigned_to_user_id = ?)
	`
	result, err := r.db.ExecContext(ctx, query, userID, now, now, now, requestID, expectedOwner)
	if err != nil {
		return fmt.Errorf("claim case: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		c, err := r.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNotFound
		}
		return ErrCaseConflict
	}
	return nil
}

func (r *sqliteCaseRepo) Release(ctx context.Context, requestID string, now time.Time) error {
	query := `
		UPDATE cases
		SET assigned_to_user_id = '', claimed_at = NULL, last_touched_at = ?, updated_at = ?
		WHERE request_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, now, now, requestID)
	if err != nil {
		return fmt.Errorf("release case: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteCaseRepo) UpdateStatus(ctx context.Context, requestID string, status models.CaseStatus, now time.Time) error {
	query := `
		UPDATE cases
		SET status = ?,
			resolved_at = CASE WHEN ? = 'resolved' THEN ? ELSE resolved_at END,
			closed_at = CASE WHEN ? = 'closed' THEN ? ELSE closed_at END,
			last_touched_at = ?, updated_at = ?
		WHERE request_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(status), string(status), now, string(status), now, now, now, requestID,
	)
	if err != nil {
		return fmt.Errorf("update case status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteCaseRepo) UpdatePriority(ctx context.Context, requestID string, priority models.CasePriority, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE cases SET priority = ?, last_touched_at = ?, updated_at = ? WHERE request_id = ?",
		string(priority), now, now, requestID,
	)
	if err != nil {
		return fmt.Errorf("update case priority: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCase(row scanner) (*models.Case, error) {
	c := &models.Case{}
	var status, priority string
	var claimedAt, resolvedAt, closedAt sql.NullTime

	err := row.Scan(
		&c.RequestID, &status, &priority, &c.AssignedToUserID,
		&claimedAt, &resolvedAt, &closedAt,
		&c.LastTouchedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = models.CaseStatus(status)
	c.Priority = models.CasePriority(priority)
	c.ClaimedAt = timePtr(claimedAt)
	c.ResolvedAt = timePtr(resolvedAt)
	c.ClosedAt = timePtr(closedAt)
	return c, nil
}

package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alert state, one row per rule key
			CREATE TABLE IF NOT EXISTS alert_states (
				key TEXT PRIMARY KEY,
				state TEXT NOT NULL DEFAULT 'ok',
				started_at DATETIME,
				last_seen_at DATETIME NOT NULL,
				last_notified_at DATETIME,
				last_payload_hash TEXT NOT NULL DEFAULT '',
				snoozed_until DATETIME
			);

			-- Alert events, append-only, one row per transition
			CREATE TABLE IF NOT EXISTS alert_events (
				id TEXT PRIMARY KEY,
				key TEXT NOT NULL,
				state TEXT NOT NULL,
				at DATETIME NOT NULL,
				masked_summary TEXT NOT NULL,
				masked_signals_json TEXT NOT NULL DEFAULT '{}',
				window_label TEXT NOT NULL DEFAULT '',
				rules_version TEXT NOT NULL DEFAULT '',
				acked_by TEXT NOT NULL DEFAULT '',
				acked_at DATETIME
			);

			-- Delivery attempts, one row per attempt
			CREATE TABLE IF NOT EXISTS alert_deliveries (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL,
				status TEXT NOT NULL,
				at DATETIME NOT NULL,
				masked_reason TEXT NOT NULL DEFAULT '',
				provider_ref TEXT NOT NULL DEFAULT '',
				window_label TEXT NOT NULL DEFAULT '',
				FOREIGN KEY (event_id) REFERENCES alert_events(id)
			);

			-- Incident cases, keyed by request id, never hard-deleted
			CREATE TABLE IF NOT EXISTS cases (
				request_id TEXT PRIMARY KEY,
				status TEXT NOT NULL DEFAULT 'open',
				priority TEXT NOT NULL DEFAULT 'normal',
				assigned_to_user_id TEXT NOT NULL DEFAULT '',
				claimed_at DATETIME,
				resolved_at DATETIME,
				closed_at DATETIME,
				last_touched_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Credit ledger rows supplied by the billing collaborator
			CREATE TABLE IF NOT EXISTS credit_ledger (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				request_id TEXT NOT NULL DEFAULT '',
				delta INTEGER NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);

			-- Best-effort audit log
			CREATE TABLE IF NOT EXISTS audit_log (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				request_id TEXT NOT NULL DEFAULT '',
				actor_id TEXT NOT NULL DEFAULT '',
				detail TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alert_events_key ON alert_events(key);
			CREATE INDEX IF NOT EXISTS idx_alert_events_at ON alert_events(at);
			CREATE INDEX IF NOT EXISTS idx_alert_deliveries_event ON alert_deliveries(event_id);
			CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
			CREATE INDEX IF NOT EXISTS idx_cases_assignee ON cases(assigned_to_user_id);
			CREATE INDEX IF NOT EXISTS idx_ledger_created ON credit_ledger(created_at);
			CREATE INDEX IF NOT EXISTS idx_ledger_request ON credit_ledger(request_id);
			CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

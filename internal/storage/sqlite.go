package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	alertStates *sqliteAlertStateRepo
	alertEvents *sqliteAlertEventRepo
	deliveries  *sqliteDeliveryRepo
	cases       *sqliteCaseRepo
	ledger      *sqliteLedgerRepo
	audit       *sqliteAuditRepo
}

// NewSQLiteStorage creates a new SQLite storage. Use ":memory:" for
// an in-memory database in tests.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	s.alertStates = &sqliteAlertStateRepo{db: db}
	s.alertEvents = &sqliteAlertEventRepo{db: db}
	s.deliveries = &sqliteDeliveryRepo{db: db}
	s.cases = &sqliteCaseRepo{db: db}
	s.ledger = &sqliteLedgerRepo{db: db}
	s.audit = &sqliteAuditRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// AlertStates returns the alert state repository.
func (s *SQLiteStorage) AlertStates() AlertStateRepository {
	return s.alertStates
}

// AlertEvents returns the alert event repository.
func (s *SQLiteStorage) AlertEvents() AlertEventRepository {
	return s.alertEvents
}

// Deliveries returns the delivery repository.
func (s *SQLiteStorage) Deliveries() DeliveryRepository {
	return s.deliveries
}

// Cases returns the case repository.
func (s *SQLiteStorage) Cases() CaseRepository {
	return s.cases
}

// Ledger returns the credit ledger repository.
func (s *SQLiteStorage) Ledger() LedgerRepository {
	return s.ledger
}

// Audit returns the audit log repository.
func (s *SQLiteStorage) Audit() AuditRepository {
	return s.audit
}

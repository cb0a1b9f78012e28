package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for event retention.
	RetentionDays int
}

// ClickHouseEventStorage implements EventStorage for ClickHouse. It
// holds the high-volume activity event rows that the signal
// aggregator and billing correlator query per window.
type ClickHouseEventStorage struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseEventStorage creates a new ClickHouse event storage.
func NewClickHouseEventStorage(config *ClickHouseConfig) *ClickHouseEventStorage {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &ClickHouseEventStorage{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseEventStorage) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *ClickHouseEventStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection health.
func (s *ClickHouseEventStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the events table if it doesn't exist.
func (s *ClickHouseEventStorage) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS activity_events (
			id UUID DEFAULT generateUUIDv4(),
			occurred_at DateTime64(3, 'UTC'),
			type LowCardinality(String),
			request_id String DEFAULT '',
			route String DEFAULT '',
			masked_body String DEFAULT '',
			_date Date DEFAULT toDate(occurred_at)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (type, occurred_at, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create activity_events table: %w", err)
	}

	indexes := []string{
		"ALTER TABLE activity_events ADD INDEX IF NOT EXISTS idx_request_id request_id TYPE bloom_filter(0.01) GRANULARITY 4",
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			// Index creation is best-effort; older server versions
			// reject ALTER ADD INDEX.
			fmt.Printf("warning: failed to create index: %v\n", err)
		}
	}

	return nil
}

// Insert writes events using a batch insert.
func (s *ClickHouseEventStorage) Insert(ctx context.Context, events []*models.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activity_events (id, occurred_at, type, request_id, route, masked_body)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		id := event.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx,
			id,
			event.OccurredAt,
			event.Type,
			event.RequestID,
			event.Route,
			event.MaskedBody,
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

const eventColumns = `id, occurred_at, type, request_id, route, masked_body`

// ListByWindow returns events within [from, to] whose type starts with
// typePrefix, oldest first.
func (s *ClickHouseEventStorage) ListByWindow(ctx context.Context, from, to time.Time, typePrefix string, limit int) ([]*models.ActivityEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT ` + eventColumns + `
		FROM activity_events
		WHERE occurred_at >= ? AND occurred_at <= ? AND startsWith(type, ?)
		ORDER BY occurred_at, id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, from, to, typePrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountByType returns per-type counts within [from, to] for the given
// exact types.
func (s *ClickHouseEventStorage) CountByType(ctx context.Context, from, to time.Time, types []string) (map[string]int, error) {
	counts := make(map[string]int, len(types))
	if len(types) == 0 {
		return counts, nil
	}

	query := `
		SELECT type, count() AS n
		FROM activity_events
		WHERE occurred_at >= ? AND occurred_at <= ? AND type IN (?)
		GROUP BY type
	`
	rows, err := s.db.QueryContext(ctx, query, from, to, types)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var n uint64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[typ] = int(n)
	}
	return counts, rows.Err()
}

// ListByRequestID returns events sharing a request id, oldest first.
func (s *ClickHouseEventStorage) ListByRequestID(ctx context.Context, requestID string, limit int) ([]*models.ActivityEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT ` + eventColumns + `
		FROM activity_events
		WHERE request_id = ?
		ORDER BY occurred_at, id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, requestID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events by request: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*models.ActivityEvent, error) {
	var events []*models.ActivityEvent
	for rows.Next() {
		e := &models.ActivityEvent{}
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Type, &e.RequestID, &e.Route, &e.MaskedBody); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

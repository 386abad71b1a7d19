// Package store persists investigation events and final aggregates to
// SQLite. Tables are append-only: the engine writes through the sink and
// never reads state back mid-investigation; rows exist for audit and
// after-the-fact queries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/events"
	"github.com/anderson-ufrj/cidadao.ai-backend-sub002/internal/types"
)

// Config holds SQLite store configuration.
type Config struct {
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// DefaultConfig returns sensible defaults for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	investigation_id TEXT    NOT NULL,
	type             TEXT    NOT NULL,
	node_id          TEXT,
	capability       TEXT,
	occurred_at      TIMESTAMP NOT NULL,
	payload          TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_investigation ON events(investigation_id, occurred_at);

CREATE TABLE IF NOT EXISTS aggregates (
	investigation_id TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	finalized_at     TIMESTAMP NOT NULL,
	payload          TEXT NOT NULL
);
`

// Store is a SQLite-backed event sink and aggregate archive.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates the store, enabling WAL mode and applying the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.STORE_OPEN_FAILED, "store path is empty")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "opening sqlite database", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "pinging sqlite database", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "applying schema", err)
	}

	return &Store{conn: conn, path: cfg.Path}, nil
}

// Save implements events.Sink: one append-only row per event.
func (s *Store) Save(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "marshaling event", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO events (investigation_id, type, node_id, capability, occurred_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.InvestigationID.String(),
		string(event.Type),
		event.NodeID,
		event.Capability,
		event.Timestamp.UTC(),
		string(payload),
	)
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "inserting event", err)
	}
	return nil
}

// SaveAggregate archives a finalized aggregate. The aggregate is frozen when
// it reaches the store, so replacement only happens if an investigation ID is
// ever reused.
func (s *Store) SaveAggregate(ctx context.Context, investigationID types.ID, status types.InvestigationStatus, aggregate any) error {
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "marshaling aggregate", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO aggregates (investigation_id, status, finalized_at, payload)
		 VALUES (?, ?, ?, ?)`,
		investigationID.String(),
		string(status),
		time.Now().UTC(),
		string(payload),
	)
	if err != nil {
		return types.WrapError(types.STORE_WRITE_FAILED, "inserting aggregate", err)
	}
	return nil
}

// EventCount returns the number of stored events for an investigation.
func (s *Store) EventCount(ctx context.Context, investigationID types.ID) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE investigation_id = ?`,
		investigationID.String()).Scan(&n)
	if err != nil {
		return 0, types.WrapError(types.STORE_WRITE_FAILED, "counting events", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Health pings the connection.
func (s *Store) Health(ctx context.Context) types.HealthStatus {
	if err := s.conn.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("sqlite ping failed: %v", err))
	}
	return types.Healthy(s.path)
}

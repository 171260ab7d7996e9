package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection. Writes are serialized.
type DB struct {
	conn       *sql.DB
	mu         sync.RWMutex
	maxHazards int
}

// Open opens or creates the database at path. The hazard log keeps at most
// maxHazards rows, oldest pruned first; zero or less keeps everything.
func Open(path string, maxHazards int) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn, maxHazards: maxHazards}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hazards (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		hazard_type TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL,
		confidence REAL DEFAULT 0,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_hazards_created_at ON hazards(created_at);
	CREATE INDEX IF NOT EXISTS idx_hazards_session_id ON hazards(session_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Settings() *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (db *DB) Hazards() *HazardRepository {
	return &HazardRepository{db: db}
}

package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// MemoryDSN opens a private in-memory sqlite database
const MemoryDSN = ":memory:"

// Connect opens the database and creates the schema if needed.
// dbType is "sqlite" (dsn is a file path) or "postgres" (dsn is a connection URL).
func Connect(dbType, dsn string) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch dbType {
	case TypeSQLite, "":
		if dsn != MemoryDSN && !strings.HasPrefix(dsn, "file:") {
			// Create data directory if it doesn't exist
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return nil, fmt.Errorf("failed to create data directory: %w", err)
				}
			}
		}
		db, err = sqlx.Connect("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// Enable foreign keys
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers; a single connection also keeps :memory: alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case TypePostgres:
		db, err = sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	historyKey := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == "postgres" {
		historyKey = "seq BIGSERIAL PRIMARY KEY"
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"learners", `
			CREATE TABLE IF NOT EXISTS learners (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				chat_id BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"words", `
			CREATE TABLE IF NOT EXISTS words (
				id INTEGER PRIMARY KEY,
				hanzi TEXT NOT NULL,
				pinyin TEXT NOT NULL DEFAULT '',
				english TEXT NOT NULL DEFAULT '',
				category TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"interval_states", `
			CREATE TABLE IF NOT EXISTS interval_states (
				learner_id TEXT NOT NULL,
				card_id TEXT NOT NULL,
				interval_days INTEGER NOT NULL,
				repetitions INTEGER NOT NULL,
				ease_factor DOUBLE PRECISION NOT NULL,
				due_date TEXT NOT NULL,
				lapses INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (learner_id, card_id)
			)`},
		{"mastery_states", `
			CREATE TABLE IF NOT EXISTS mastery_states (
				learner_id TEXT NOT NULL,
				component TEXT NOT NULL,
				p_known DOUBLE PRECISION NOT NULL,
				p_learn DOUBLE PRECISION NOT NULL,
				p_guess DOUBLE PRECISION NOT NULL,
				p_slip DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (learner_id, component)
			)`},
		{"review_history", `
			CREATE TABLE IF NOT EXISTS review_history (
				` + historyKey + `,
				id TEXT NOT NULL UNIQUE,
				learner_id TEXT NOT NULL,
				card_id TEXT NOT NULL,
				component TEXT NOT NULL,
				correct BOOLEAN NOT NULL,
				override BOOLEAN NOT NULL DEFAULT FALSE,
				reviewed_at TIMESTAMP NOT NULL
			)`},
	}

	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_review_history_learner ON review_history (learner_id, seq)`); err != nil {
		return fmt.Errorf("failed to create review_history index: %w", err)
	}
	return nil
}

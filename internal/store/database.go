package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"visionpanel/internal/logger"
)

// Database manages the SQLite database for application state.
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase opens the database and initializes the schema.
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support concurrent writes well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetDB returns the underlying database connection.
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// initSchema initializes the database schema.
func (d *Database) initSchema() error {
	schema := `
	-- Users table
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Cameras table
	CREATE TABLE IF NOT EXISTS cameras (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	-- Per-camera processing settings
	CREATE TABLE IF NOT EXISTS cameras_settings (
		camera_id TEXT PRIMARY KEY,
		model_name TEXT DEFAULT 'None',
		confidence_threshold INTEGER DEFAULT 30,
		FOREIGN KEY (camera_id) REFERENCES cameras(id) ON DELETE CASCADE
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_cameras_user ON cameras(user_id, created_at);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// ensureDir ensures a directory exists.
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// Store coordinates access to persisted users, cameras and settings.
type Store struct {
	db     *Database
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewStore opens the database at dbPath and returns a store over it.
func NewStore(dbPath string, log *logger.Logger) (*Store, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	log.Info("Store initialized", "path", dbPath)

	return &Store{
		db:     db,
		logger: log,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

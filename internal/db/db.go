package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	migrations := []string{
		migrationContacts,
		migrationEmailTracking,
		migrationTaskScheduler,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Migrations returns the migration statements so tests can build the same
// schema against an in-memory database.
func Migrations() []string {
	return []string{migrationContacts, migrationEmailTracking, migrationTaskScheduler}
}

const migrationContacts = `
CREATE TABLE IF NOT EXISTS contacts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    company_name TEXT,
    company_country TEXT,
    contact_name TEXT,
    contact_position TEXT,
    contact_email TEXT UNIQUE,
    contact_email_sent INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_contacts_sent ON contacts(contact_email_sent);
CREATE INDEX IF NOT EXISTS idx_contacts_country ON contacts(company_country);
`

const migrationEmailTracking = `
CREATE TABLE IF NOT EXISTS email_tracking (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id TEXT UNIQUE NOT NULL,
    company_name TEXT,
    contact_name TEXT,
    email TEXT NOT NULL,
    sent_time TIMESTAMP NOT NULL,
    is_opened INTEGER NOT NULL DEFAULT 0,
    open_time TIMESTAMP,
    is_replied INTEGER NOT NULL DEFAULT 0,
    reply_time TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_email_tracking_email ON email_tracking(email);
CREATE INDEX IF NOT EXISTS idx_email_tracking_sent_time ON email_tracking(sent_time);
`

const migrationTaskScheduler = `
CREATE TABLE IF NOT EXISTS task_scheduler (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    is_running INTEGER NOT NULL DEFAULT 0,
    daily_count INTEGER NOT NULL,
    target_countries TEXT,
    target_regions TEXT,
    send_time TEXT NOT NULL,
    workdays TEXT NOT NULL,
    template_name TEXT NOT NULL,
    last_run_date TEXT,
    last_sent_count INTEGER NOT NULL DEFAULT 0,
    last_opened_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

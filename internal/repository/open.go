package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sharpsend/sendqueue/internal/config"
)

// Stores bundles the concrete repositories for one database connection so the
// mains can wire everything in one call.
type Stores struct {
	DB         *sql.DB
	Queue      QueueRepositoryInterface
	Campaigns  CampaignRepositoryInterface
	Recipients RecipientRepositoryInterface
}

// Open connects to the configured database, ensures the schema exists and
// returns the repository set.
func Open(cfg config.DatabaseConfig, grace time.Duration) (*Stores, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := ensureSchema(db, postgresSchema); err != nil {
			return nil, err
		}
		return &Stores{
			DB:         db,
			Queue:      NewPostgresQueueRepository(db, grace),
			Campaigns:  NewPostgresCampaignRepository(db),
			Recipients: NewPostgresRecipientRepository(db),
		}, nil

	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite3", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}
		// The sqlite driver serializes writes; a single connection avoids
		// table-lock errors under concurrent dispatch.
		db.SetMaxOpenConns(1)
		if err := ensureSchema(db, sqliteSchema); err != nil {
			return nil, err
		}
		return &Stores{
			DB:         db,
			Queue:      NewSQLiteQueueRepository(db, grace),
			Campaigns:  NewSQLiteCampaignRepository(db),
			Recipients: NewSQLiteRecipientRepository(db),
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func ensureSchema(db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS queue_entries (
        seq BIGSERIAL UNIQUE,
        id TEXT PRIMARY KEY,
        publisher_id TEXT NOT NULL,
        campaign_id TEXT NOT NULL DEFAULT '',
        recipient_email TEXT NOT NULL,
        recipient_name TEXT NOT NULL DEFAULT '',
        subject TEXT NOT NULL,
        content TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        priority INT NOT NULL DEFAULT 0,
        scheduled_for TIMESTAMPTZ NOT NULL,
        last_attempt TIMESTAMPTZ,
        sent_at TIMESTAMPTZ,
        retry_count INT NOT NULL DEFAULT 0,
        last_error TEXT NOT NULL DEFAULT '',
        metadata TEXT NOT NULL DEFAULT '{}',
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_queue_due ON queue_entries (publisher_id, status, scheduled_for)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_campaign ON queue_entries (publisher_id, campaign_id)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
        id TEXT PRIMARY KEY,
        publisher_id TEXT NOT NULL,
        name TEXT NOT NULL,
        subject TEXT NOT NULL DEFAULT '',
        base_template TEXT NOT NULL DEFAULT '',
        urgency TEXT NOT NULL DEFAULT 'normal',
        status TEXT NOT NULL DEFAULT 'draft',
        scheduled_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ
    )`,
	`CREATE TABLE IF NOT EXISTS recipients (
        id TEXT PRIMARY KEY,
        publisher_id TEXT NOT NULL,
        email TEXT NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        segment TEXT NOT NULL DEFAULT '',
        attributes TEXT NOT NULL DEFAULT '{}'
    )`,
	`CREATE INDEX IF NOT EXISTS idx_recipients_publisher ON recipients (publisher_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS queue_entries (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL,
        publisher_id TEXT NOT NULL,
        campaign_id TEXT NOT NULL DEFAULT '',
        recipient_email TEXT NOT NULL,
        recipient_name TEXT NOT NULL DEFAULT '',
        subject TEXT NOT NULL,
        content TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        priority INTEGER NOT NULL DEFAULT 0,
        scheduled_for DATETIME NOT NULL,
        last_attempt DATETIME,
        sent_at DATETIME,
        retry_count INTEGER NOT NULL DEFAULT 0,
        last_error TEXT NOT NULL DEFAULT '',
        metadata TEXT NOT NULL DEFAULT '{}',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_queue_due ON queue_entries (publisher_id, status, scheduled_for)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_campaign ON queue_entries (publisher_id, campaign_id)`,
	`CREATE TABLE IF NOT EXISTS campaigns (
        id TEXT PRIMARY KEY,
        publisher_id TEXT NOT NULL,
        name TEXT NOT NULL,
        subject TEXT NOT NULL DEFAULT '',
        base_template TEXT NOT NULL DEFAULT '',
        urgency TEXT NOT NULL DEFAULT 'normal',
        status TEXT NOT NULL DEFAULT 'draft',
        scheduled_at DATETIME,
        created_at DATETIME NOT NULL,
        updated_at DATETIME
    )`,
	`CREATE TABLE IF NOT EXISTS recipients (
        id TEXT PRIMARY KEY,
        publisher_id TEXT NOT NULL,
        email TEXT NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        segment TEXT NOT NULL DEFAULT '',
        attributes TEXT NOT NULL DEFAULT '{}'
    )`,
	`CREATE INDEX IF NOT EXISTS idx_recipients_publisher ON recipients (publisher_id)`,
}

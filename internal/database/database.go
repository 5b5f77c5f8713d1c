package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

var dbLog = logging.Component("database")

// Database persists the key-value records (image registry, legacy cache maps)
// and the clothing item store.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (creating if needed) the SQLite database at dbPath.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	dbLog.Info("database path: %s", dbPath)

	if err := checkDirectoryWritable(filepath.Dir(dbPath)); err != nil {
		dbLog.Warn("permission diagnostics: %v", err)
	}

	// busy_timeout keeps concurrent writers from failing with "database is locked"
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dbLog.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db, dbPath: dbPath}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			dbLog.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	dbLog.Info("database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	-- Serialized key-value records (image registry, legacy cache maps)
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	-- Clothing items
	CREATE TABLE IF NOT EXISTS clothing_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		original_image_uri TEXT NOT NULL DEFAULT '',
		thumbnail_image_uri TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_clothing_items_category ON clothing_items(category);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	err = d.runMigrations(ctx)
	return err
}

// runMigrations applies schema migrations for databases created by older
// releases.
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: is_image_missing was added after the first release.
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('clothing_items')
		WHERE name='is_image_missing'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for is_image_missing column: %w", err)
	}

	if !columnExists {
		dbLog.Info("migrating database: adding is_image_missing column to clothing_items")
		if _, err := d.db.ExecContext(ctx, `
			ALTER TABLE clothing_items ADD COLUMN is_image_missing INTEGER NOT NULL DEFAULT 0
		`); err != nil {
			return fmt.Errorf("failed to add is_image_missing column: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func checkDirectoryWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	dbLog.Debug("database directory: %s (mode: %v)", dir, info.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}

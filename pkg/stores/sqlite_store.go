package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested record does not exist. Expired
// inventory cache entries are reported the same way.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements local persistence using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Run history

// CreateRun records the start of a reconcile.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, resource_type, resource_name, operation, changed, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.ResourceType,
		run.ResourceName,
		run.Operation,
		run.Changed,
		run.Status,
		run.Error,
		run.StartedAt.UTC().Format(sqliteTimeFormat),
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// CompleteRun marks a reconcile as finished.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, status RunStatus, changed bool, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, changed = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC().Format(sqliteTimeFormat)
	result, err := s.db.ExecContext(ctx, query, status, changed, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, resource_type, resource_name, operation, changed, status, error, started_at, completed_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.ResourceType,
		&run.ResourceName,
		&run.Operation,
		&run.Changed,
		&run.Status,
		&run.Error,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest-first with pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, resource_type, resource_name, operation, changed, status, error, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.ResourceType,
			&run.ResourceName,
			&run.Operation,
			&run.Changed,
			&run.Status,
			&run.Error,
			&run.StartedAt,
			&run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a run by ID.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Inventory cache

const sqliteTimeFormat = "2006-01-02 15:04:05"

// PutInventoryCache stores an inventory payload, replacing any previous
// entry for the same configuration hash.
func (s *SQLiteStore) PutInventoryCache(ctx context.Context, entry *InventoryCacheEntry) error {
	query := `
		INSERT INTO inventory_cache (config_hash, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(config_hash) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ConfigHash,
		entry.Payload,
		entry.CreatedAt.UTC().Format(sqliteTimeFormat),
		entry.ExpiresAt.UTC().Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to put inventory cache entry: %w", err)
	}
	return nil
}

// GetInventoryCache retrieves a non-expired cache entry by configuration
// hash. Expired entries report ErrNotFound.
func (s *SQLiteStore) GetInventoryCache(ctx context.Context, configHash string) (*InventoryCacheEntry, error) {
	query := `
		SELECT config_hash, payload, created_at, expires_at
		FROM inventory_cache
		WHERE config_hash = ?
		  AND datetime(expires_at) > datetime('now')
	`

	entry := &InventoryCacheEntry{}
	err := s.db.QueryRowContext(ctx, query, configHash).Scan(
		&entry.ConfigHash,
		&entry.Payload,
		&entry.CreatedAt,
		&entry.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("inventory cache %s: %w", configHash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory cache entry: %w", err)
	}
	return entry, nil
}

// DeleteInventoryCache removes the cache entry for a configuration hash.
// Deleting a missing entry is not an error.
func (s *SQLiteStore) DeleteInventoryCache(ctx context.Context, configHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inventory_cache WHERE config_hash = ?`, configHash)
	if err != nil {
		return fmt.Errorf("failed to delete inventory cache entry: %w", err)
	}
	return nil
}

// PurgeExpiredInventory deletes all expired cache entries and returns the
// number removed.
func (s *SQLiteStore) PurgeExpiredInventory(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM inventory_cache WHERE datetime(expires_at) <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired inventory cache: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

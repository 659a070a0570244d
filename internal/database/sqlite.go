package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteDatabase represents SQLite specific implementation
type SQLiteDatabase struct {
	*Database
	path string
}

// NewSQLiteDatabase creates new SQLite database instance
func NewSQLiteDatabase(dsn string, opts Options, logger *zap.Logger) (Interface, error) {
	// Ensure the database directory exists
	if err := ensureDBDir(dsn); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	path := dsn
	dsn = addSQLiteParams(dsn)

	base, err := newDatabase("sqlite3", dsn, opts, logger)
	if err != nil {
		return nil, err
	}
	base.txOptions = &sql.TxOptions{Isolation: sql.LevelDefault}

	d := &SQLiteDatabase{
		Database: base,
		path:     path,
	}

	if err := d.init(); err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	return d, nil
}

// init checks the connection parameters took effect
func (d *SQLiteDatabase) init() error {
	var mode string
	if err := d.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	d.logger.Debug("Opened SQLite database",
		zap.String("path", d.path),
		zap.String("journal_mode", mode))
	return nil
}

// Backup creates a backup of the database
func (d *SQLiteDatabase) Backup(ctx context.Context, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if _, err := d.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	return nil
}

// ensureDBDir ensures database directory exists
func ensureDBDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// addSQLiteParams adds SQLite specific connection parameters. Every
// connection gets them, so pragmas do not depend on pool reuse.
// Transactions start with BEGIN IMMEDIATE so concurrent writers queue on
// the busy timeout instead of failing on lock upgrade.
func addSQLiteParams(dsn string) string {
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_synchronous=NORMAL",
		"_foreign_keys=1",
		"_txlock=immediate",
	}

	query := "?" + strings.Join(params, "&")
	if strings.Contains(dsn, "?") {
		query = "&" + strings.Join(params, "&")
	}

	return dsn + query
}

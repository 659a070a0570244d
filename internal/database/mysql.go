package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLDatabase represents MySQL specific implementation
type MySQLDatabase struct {
	*Database
}

// NewMySQLDatabase creates new MySQL database instance
func NewMySQLDatabase(dsn string, opts Options, logger *zap.Logger) (Interface, error) {
	dsn = addMySQLParams(dsn)

	base, err := newDatabase("mysql", dsn, opts, logger)
	if err != nil {
		return nil, err
	}
	// Compare-and-swap updates re-read the latest committed row under
	// READ COMMITTED, which is what the version check needs.
	base.txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

	d := &MySQLDatabase{
		Database: base,
	}

	if err := d.init(); err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("failed to initialize MySQL: %w", err)
	}

	return d, nil
}

// init checks connectivity and logs the server version
func (d *MySQLDatabase) init() error {
	var version string
	if err := d.QueryRowContext(context.Background(), "SELECT VERSION()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query server version: %w", err)
	}
	d.logger.Info("Connected to MySQL", zap.String("version", version))
	return nil
}

// addMySQLParams adds connection parameters. Session variables are passed
// in the DSN so every pooled connection carries them. clientFoundRows makes
// RowsAffected count matched rows like the other drivers.
func addMySQLParams(dsn string) string {
	params := []string{
		"charset=utf8mb4",
		"clientFoundRows=true",
		"interpolateParams=true",
		"multiStatements=true",
		"loc=UTC",
		"sql_mode=%27STRICT_ALL_TABLES%2CNO_ENGINE_SUBSTITUTION%27",
		"time_zone=%27%2B00%3A00%27",
	}

	if !strings.Contains(dsn, "parseTime=true") {
		params = append(params, "parseTime=true")
	}

	queryStart := "?"
	if strings.Contains(dsn, "?") {
		queryStart = "&"
	}
	return dsn + queryStart + strings.Join(params, "&")
}

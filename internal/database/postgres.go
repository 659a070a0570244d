package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// PostgresDatabase represents PostgreSQL database implementation
type PostgresDatabase struct {
	*Database
}

// NewPostgresDatabase creates new PostgreSQL database instance
func NewPostgresDatabase(dsn string, opts Options, logger *zap.Logger) (Interface, error) {
	if !strings.Contains(dsn, "sslmode=") {
		if strings.Contains(dsn, "?") {
			dsn += "&sslmode=disable"
		} else {
			dsn += "?sslmode=disable"
		}
	}

	base, err := newDatabase("pgx", dsn, opts, logger)
	if err != nil {
		return nil, err
	}
	// UPDATE ... WHERE version = ? re-evaluates against the latest committed
	// row after acquiring the row lock under READ COMMITTED.
	base.txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

	d := &PostgresDatabase{
		Database: base,
	}

	if err := d.init(); err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	return d, nil
}

// init checks connectivity and logs the server version
func (d *PostgresDatabase) init() error {
	var version string
	if err := d.QueryRowContext(context.Background(), "SELECT VERSION()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query server version: %w", err)
	}
	d.logger.Info("Connected to PostgreSQL", zap.String("version", version))
	return nil
}

// Rebind converts `?` placeholders to `$1`, `$2`, ...
func (d *PostgresDatabase) Rebind(query string) string {
	return ConvertPlaceholders(query)
}

// ConvertPlaceholders converts positional `?` placeholders to PostgreSQL
// `$n` placeholders. Question marks inside quoted literals are kept.
func ConvertPlaceholders(query string) string {
	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"confhub/internal/server/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed sql
var migrations embed.FS

// Migrator handles database migrations
type Migrator struct {
	config  *config.DatabaseConfig
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrator creates a new migrator instance over the embedded migrations
func NewMigrator(db *sql.DB, cfg *config.DatabaseConfig, logger *zap.Logger) (*Migrator, error) {
	var (
		driver database.Driver
		name   string
		err    error
	)

	switch cfg.Driver {
	case "sqlite":
		name = "sqlite3"
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "mysql":
		name = "mysql"
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case "postgres":
		name = "pgx5"
		driver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migration driver: %w", cfg.Driver, err)
	}

	source, err := iofs.New(migrations, "sql/"+cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator instance: %w", err)
	}

	return &Migrator{
		config:  cfg,
		migrate: instance,
		logger:  logger,
	}, nil
}

// RunMigrations executes pending migrations
func (m *Migrator) RunMigrations(ctx context.Context) error {
	m.logger.Info("Starting migrations...")
	err := m.run(ctx, "migration", func() error {
		if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
	if err == nil {
		m.logger.Info("Migrations completed successfully")
	}
	return err
}

// RollbackMigrations rolls back the last `steps` migrations
func (m *Migrator) RollbackMigrations(ctx context.Context, steps int) error {
	return m.run(ctx, "rollback", func() error {
		return m.migrate.Steps(-steps)
	})
}

// MigrateToVersion migrates to a specific version
func (m *Migrator) MigrateToVersion(ctx context.Context, version uint) error {
	return m.run(ctx, fmt.Sprintf("migration to version %d", version), func() error {
		if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	})
}

// run executes fn and stops waiting once ctx is done. GracefulStop asks
// golang-migrate to finish the current step and return.
func (m *Migrator) run(ctx context.Context, op string, fn func() error) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- fn()
	}()

	select {
	case <-ctx.Done():
		m.migrate.GracefulStop <- true
		m.logger.Warn("Migration cancelled by context", zap.String("op", op))
		return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
	case err := <-errChan:
		if err != nil {
			m.logger.Error("Migration failed", zap.String("op", op), zap.Error(err))
			return fmt.Errorf("%s failed: %w", op, err)
		}
		return nil
	}
}

// GetVersion returns the current migration version
func (m *Migrator) GetVersion() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close releases the migration source and the database handle
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr == nil && dbErr == nil {
		return nil
	}
	return fmt.Errorf("failed to close migrator: %w", errors.Join(sourceErr, dbErr))
}

package database

import (
	"context"
	"fmt"
	"time"

	"confhub/internal/database/migration"
	"confhub/internal/server/config"

	"go.uber.org/zap"
)

// New creates new database instance based on configuration
func New(cfg *config.DatabaseConfig, logger *zap.Logger) (Interface, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	// Run migrations first so the instance never sees a partial schema
	if cfg.AutoMigrate {
		if err := runMigrations(cfg, logger); err != nil {
			logger.Error("Failed to run migrations", zap.Error(err))
			return nil, err
		}
	}

	db, err := newInstance(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return db, nil
}

// newInstance creates new database instance based on configuration
func newInstance(cfg *config.DatabaseConfig, logger *zap.Logger) (Interface, error) {
	opts := Options{
		MaxOpenConns:       cfg.MaxConnections,
		MaxIdleConns:       cfg.MaxIdleConns,
		ConnMaxLifetime:    cfg.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.ConnMaxLifetime,
		QueryTimeout:       cfg.QueryTimeout,
		SlowQueryThreshold: cfg.SlowQueryTime,
	}

	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteDatabase(cfg.DSN, opts, logger)
	case "mysql":
		return NewMySQLDatabase(cfg.DSN, opts, logger)
	case "postgres":
		return NewPostgresDatabase(cfg.DSN, opts, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// runMigrations runs the embedded migrations on a dedicated connection,
// since closing the migrator also closes its database handle.
func runMigrations(cfg *config.DatabaseConfig, logger *zap.Logger) error {
	db, err := newInstance(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection for migrations: %w", err)
	}

	migrator, err := migration.NewMigrator(db.Unwrap(), cfg, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Error("Failed to close migrator", zap.Error(err))
		}
		_ = db.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch {
	case cfg.RollbackSteps > 0:
		logger.Info("Rolling back migrations", zap.Int("steps", cfg.RollbackSteps))
		if err := migrator.RollbackMigrations(ctx, cfg.RollbackSteps); err != nil {
			return fmt.Errorf("failed to rollback migrations: %w", err)
		}
	case cfg.TargetVersion > 0:
		logger.Info("Migrating to target version", zap.Int("target_version", cfg.TargetVersion))
		if err := migrator.MigrateToVersion(ctx, uint(cfg.TargetVersion)); err != nil {
			return fmt.Errorf("failed to migrate to target version: %w", err)
		}
	default:
		logger.Info("Running migrations to latest version")
		if err := migrator.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return nil
}

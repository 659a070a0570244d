package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Database represents the base database implementation
type Database struct {
	db          *sql.DB
	driver      string
	logger      *zap.Logger
	opts        Options
	txOptions   *sql.TxOptions
	metrics     *metrics
	closeCtx    context.Context
	closeCancel context.CancelFunc
	closeOnce   sync.Once
}

// metrics represents database metrics
type metrics struct {
	queryCount   int64
	queryErrors  int64
	slowQueries  int64
	queryTime    int64
	txCommitted  int64
	txRolledBack int64
}

// newDatabase creates new base database instance
func newDatabase(driver, dsn string, opts Options, logger *zap.Logger) (*Database, error) {
	// Set default options
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.SlowQueryThreshold <= 0 {
		opts.SlowQueryThreshold = time.Second
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	closeCtx, closeCancel := context.WithCancel(context.Background())

	d := &Database{
		db:          db,
		driver:      driver,
		logger:      logger,
		opts:        opts,
		metrics:     &metrics{},
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}

	// Health check
	go d.healthCheck()

	return d, nil
}

// withTimeout applies the default query timeout when ctx has no deadline
func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.opts.QueryTimeout)
}

// ExecContext executes query and returns result
func (d *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := d.db.ExecContext(ctx, query, args...)
	d.recordMetrics(start, query, err)

	return result, err
}

// QueryContext executes query and returns rows.
// The default timeout is not applied because rows outlive this call.
func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, args...)
	d.recordMetrics(start, query, err)

	return rows, err
}

// QueryRowContext executes query and returns row
func (d *Database) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := d.db.QueryRowContext(ctx, query, args...)
	d.recordMetrics(start, query, row.Err())
	return row
}

// BeginTx starts a transaction
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.db.BeginTx(ctx, opts)
}

// WithTransaction runs fn inside a transaction using the driver's isolation
// level. The transaction is rolled back when fn returns an error or panics.
func (d *Database) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, d.txOptions)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Error("Transaction rollback failed during panic",
					zap.Error(rbErr))
			}
			atomic.AddInt64(&d.metrics.txRolledBack, 1)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		atomic.AddInt64(&d.metrics.txRolledBack, 1)
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		atomic.AddInt64(&d.metrics.txRolledBack, 1)
		return fmt.Errorf("commit transaction: %w", err)
	}
	atomic.AddInt64(&d.metrics.txCommitted, 1)
	return nil
}

// Rebind returns query unchanged; drivers with other placeholders override it
func (d *Database) Rebind(query string) string {
	return query
}

// Ping pings the database
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection and cleans up resources
func (d *Database) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closeCancel()
		if cerr := d.db.Close(); cerr != nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	})
	return err
}

// Stats returns database statistics
func (d *Database) Stats() Stats {
	dbStats := d.db.Stats()
	count := atomic.LoadInt64(&d.metrics.queryCount)

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(atomic.LoadInt64(&d.metrics.queryTime) / count)
	}

	return Stats{
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
		WaitCount:       dbStats.WaitCount,
		WaitDuration:    dbStats.WaitDuration,
		QueryCount:      count,
		QueryErrors:     atomic.LoadInt64(&d.metrics.queryErrors),
		SlowQueries:     atomic.LoadInt64(&d.metrics.slowQueries),
		AvgQueryTime:    avg,
		TxCommitted:     atomic.LoadInt64(&d.metrics.txCommitted),
		TxRolledBack:    atomic.LoadInt64(&d.metrics.txRolledBack),
	}
}

// Driver returns the database driver
func (d *Database) Driver() string {
	return d.driver
}

// Unwrap returns the underlying database connection
func (d *Database) Unwrap() *sql.DB {
	return d.db
}

// recordMetrics safely records operation metrics
func (d *Database) recordMetrics(start time.Time, query string, err error) {
	duration := time.Since(start)

	atomic.AddInt64(&d.metrics.queryCount, 1)
	atomic.AddInt64(&d.metrics.queryTime, int64(duration))

	if err != nil && err != sql.ErrNoRows {
		atomic.AddInt64(&d.metrics.queryErrors, 1)
	}

	if duration > d.opts.SlowQueryThreshold {
		atomic.AddInt64(&d.metrics.slowQueries, 1)
		d.logger.Warn("Slow query detected",
			zap.Duration("duration", duration),
			zap.String("query", query))
	}
}

// healthCheck performs periodic health checks
func (d *Database) healthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.closeCtx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(d.closeCtx, 5*time.Second)
			if err := d.db.PingContext(ctx); err != nil && d.closeCtx.Err() == nil {
				d.logger.Error("Database health check failed",
					zap.Error(err),
					zap.String("driver", d.driver))
			}
			cancel()
		}
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"confhub/internal/server/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestDB(t *testing.T) Interface {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "confhub.db"),
		AutoMigrate: true,
	}
	db, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewRunsMigrations(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"projects", "configs", "config_variants", "config_versions", "proposals"} {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
	assert.Equal(t, "sqlite3", db.Driver())
}

func TestWithTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	insert := "INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)"

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insert, "p1", "first"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count))
	assert.Zero(t, count)

	require.NoError(t, db.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insert, "p1", "first")
		return err
	}))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count))
	assert.Equal(t, 1, count)

	stats := db.Stats()
	assert.Equal(t, int64(1), stats.TxCommitted)
	assert.Equal(t, int64(1), stats.TxRolledBack)
}

func TestUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	insert := "INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)"

	_, err := db.ExecContext(ctx, insert, "p1", "payments")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "p2", "payments")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.ErrorIs(t, NewError("create project", err), ErrDuplicate)
}

// Concurrent compare-and-swap updates on the same row must serialize: exactly
// one writer observes the expected version.
func TestConcurrentCompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		"INSERT INTO projects (id, name, created_at, updated_at) VALUES ('p1', 'p', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO configs
		(id, project_id, name, version, value_json, overrides_json, maintainers, editors, created_at, updated_at)
		VALUES ('c1', 'p1', 'limit', 3, '10', '[]', '[]', '[]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
				res, err := tx.ExecContext(ctx, "UPDATE configs SET version = version + 1 WHERE id = ? AND version = ?", "c1", 3)
				if err != nil {
					return err
				}
				n, err := res.RowsAffected()
				if err != nil {
					return err
				}
				if n == 1 {
					mu.Lock()
					winners++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	var version int64
	require.NoError(t, db.QueryRowContext(ctx, "SELECT version FROM configs WHERE id = 'c1'").Scan(&version))
	assert.Equal(t, int64(4), version)
}

func TestStatsWithoutQueries(t *testing.T) {
	db := newTestDB(t)
	assert.NotPanics(t, func() { db.Stats() })
}

package repository

import (
	"context"
	"database/sql"

	"confhub/internal/database"

	"go.uber.org/zap"
)

// sqlStore implements Store over database.Interface
type sqlStore struct {
	db     database.Interface
	logger *zap.Logger
	repos  Repositories
}

// NewStore creates a new SQL backed store
func NewStore(db database.Interface, logger *zap.Logger) Store {
	return &sqlStore{
		db:     db,
		logger: logger,
		repos:  newRepositories(db, logger),
	}
}

func newRepositories(q Queryer, logger *zap.Logger) Repositories {
	return Repositories{
		Projects:  NewProjectRepository(q, logger),
		Configs:   NewConfigRepository(q, logger),
		Proposals: NewProposalRepository(q, logger),
	}
}

// Repos returns repositories running outside a transaction
func (s *sqlStore) Repos() Repositories {
	return s.repos
}

// WithTx runs fn with repositories bound to a single transaction
func (s *sqlStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	return s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return fn(newRepositories(&txQueryer{Tx: tx, db: s.db}, s.logger))
	})
}

// Ping checks the database connection
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// txQueryer binds a transaction to the placeholder style of its database
type txQueryer struct {
	*sql.Tx
	db database.Interface
}

func (q *txQueryer) Rebind(query string) string {
	return q.db.Rebind(query)
}

func (q *txQueryer) Driver() string {
	return q.db.Driver()
}

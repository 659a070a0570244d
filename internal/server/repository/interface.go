package repository

import (
	"context"
	"database/sql"
	"time"

	"confhub/internal/types"
)

// Queryer is satisfied by database.Interface and by a transaction bound to
// it, so every repository can run standalone or inside a transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Rebind(query string) string
	Driver() string
}

// ProjectRepository defines project storage operations
type ProjectRepository interface {
	Create(ctx context.Context, project *types.Project) error
	FindByID(ctx context.Context, id string) (*types.Project, error)
	List(ctx context.Context) ([]*types.Project, error)
	UpdatePolicy(ctx context.Context, project *types.Project) error
}

// ConfigRepository defines config and version history storage operations
type ConfigRepository interface {
	// Create inserts the config row and its variants
	Create(ctx context.Context, config *types.Config) error
	FindByID(ctx context.Context, id string) (*types.Config, error)
	FindByName(ctx context.Context, projectID, name string) (*types.Config, error)
	List(ctx context.Context, projectID string) ([]*types.Config, error)

	// CompareAndSwapVersion bumps the version from expected to expected+1.
	// It fails with a conflict when the stored version differs.
	CompareAndSwapVersion(ctx context.Context, id string, expected int64, updatedAt time.Time) error

	// UpdateContent rewrites the editable content and the variants
	UpdateContent(ctx context.Context, config *types.Config) error

	CreateVersion(ctx context.Context, version *types.ConfigVersion) error
	FindVersion(ctx context.Context, configID string, version int64) (*types.ConfigVersion, error)
	ListVersions(ctx context.Context, configID string) ([]types.ConfigVersionInfo, error)
}

// ProposalRepository defines proposal storage operations
type ProposalRepository interface {
	Create(ctx context.Context, proposal *types.Proposal) error
	FindByID(ctx context.Context, id string) (*types.Proposal, error)
	List(ctx context.Context, params ProposalQuery) ([]*types.Proposal, error)

	// Close moves a pending proposal to its final status.
	// It fails with a conflict when the proposal is no longer pending.
	Close(ctx context.Context, proposal *types.Proposal) error

	// SupersedeStale closes pending proposals drafted against a version older than current
	SupersedeStale(ctx context.Context, configID string, current int64, at time.Time) (int64, error)
}

// ProposalQuery represents proposal list filters
type ProposalQuery struct {
	ConfigID string               `json:"config_id,omitempty"`
	Status   types.ProposalStatus `json:"status,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// Repositories groups the repositories bound to one connection or transaction
type Repositories struct {
	Projects  ProjectRepository
	Configs   ConfigRepository
	Proposals ProposalRepository
}

// Store is the transactional persistence boundary
type Store interface {
	// Repos returns repositories running outside a transaction
	Repos() Repositories

	// WithTx runs fn with repositories bound to a single transaction
	WithTx(ctx context.Context, fn func(Repositories) error) error

	Ping(ctx context.Context) error
	Close() error
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"confhub/internal/database"
	"confhub/internal/types"

	"go.uber.org/zap"
)

const projectColumns = "id, name, require_proposals, allow_self_approvals, created_at, updated_at"

// projectRepository implements ProjectRepository
type projectRepository struct {
	db     Queryer
	logger *zap.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db Queryer, logger *zap.Logger) ProjectRepository {
	return &projectRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new project
func (r *projectRepository) Create(ctx context.Context, project *types.Project) error {
	query := r.db.Rebind(`
		INSERT INTO projects (` + projectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.RequireProposals,
		project.AllowSelfApprovals,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return types.Conflict("project %q already exists", project.Name)
		}
		return database.NewError("insert project", err)
	}
	return nil
}

// FindByID finds a project by ID
func (r *projectRepository) FindByID(ctx context.Context, id string) (*types.Project, error) {
	query := r.db.Rebind(`SELECT ` + projectColumns + ` FROM projects WHERE id = ?`)

	project, err := scanProject(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("project %q not found", id)
		}
		return nil, database.NewError("find project", err)
	}
	return project, nil
}

// List lists all projects ordered by name
func (r *projectRepository) List(ctx context.Context) ([]*types.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, database.NewError("list projects", err)
	}
	defer rows.Close()

	var projects []*types.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewError("list projects", err)
	}
	return projects, nil
}

// UpdatePolicy updates the review policy flags of a project
func (r *projectRepository) UpdatePolicy(ctx context.Context, project *types.Project) error {
	query := r.db.Rebind(`
		UPDATE projects
		SET require_proposals = ?, allow_self_approvals = ?, updated_at = ?
		WHERE id = ?`)

	result, err := r.db.ExecContext(ctx, query,
		project.RequireProposals,
		project.AllowSelfApprovals,
		project.UpdatedAt,
		project.ID,
	)
	if err != nil {
		return database.NewError("update project", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return database.NewError("update project", err)
	}
	if affected == 0 {
		return types.NotFound("project %q not found", project.ID)
	}
	return nil
}

func scanProject(row scanner) (*types.Project, error) {
	var p types.Project
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.RequireProposals,
		&p.AllowSelfApprovals,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

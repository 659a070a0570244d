package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"confhub/internal/database"
	"confhub/internal/types"

	"go.uber.org/zap"
)

const proposalColumns = "id, config_id, base_version, proposed_value, proposed_description, proposed_schema, " +
	"proposed_overrides, message, author_email, status, reviewer_email, rejection_reason, applied_version, " +
	"created_at, reviewed_at"

// proposalRepository implements ProposalRepository
type proposalRepository struct {
	db     Queryer
	logger *zap.Logger
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db Queryer, logger *zap.Logger) ProposalRepository {
	return &proposalRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new pending proposal
func (r *proposalRepository) Create(ctx context.Context, p *types.Proposal) error {
	val, err := encodeValue(p.ProposedValue)
	if err != nil {
		return fmt.Errorf("failed to encode proposed value: %w", err)
	}
	schema, err := encodeValue(p.ProposedSchema)
	if err != nil {
		return fmt.Errorf("failed to encode proposed schema: %w", err)
	}
	var overrides sql.NullString
	if p.ProposedOverrides != nil {
		s, err := encodeJSON(nonNilOverrides(*p.ProposedOverrides))
		if err != nil {
			return fmt.Errorf("failed to encode proposed overrides: %w", err)
		}
		overrides = sql.NullString{String: s, Valid: true}
	}
	var description sql.NullString
	if p.ProposedDescription != nil {
		description = sql.NullString{String: *p.ProposedDescription, Valid: true}
	}

	query := r.db.Rebind(`
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.ConfigID,
		p.BaseVersion,
		val,
		description,
		schema,
		overrides,
		p.Message,
		p.AuthorEmail,
		string(p.Status),
		p.ReviewerEmail,
		p.RejectionReason,
		p.AppliedVersion,
		p.CreatedAt,
		p.ReviewedAt,
	)
	if err != nil {
		return database.NewError("insert proposal", err)
	}
	return nil
}

// FindByID finds a proposal by ID
func (r *proposalRepository) FindByID(ctx context.Context, id string) (*types.Proposal, error) {
	query := r.db.Rebind(`SELECT ` + proposalColumns + ` FROM proposals WHERE id = ?`)

	p, err := scanProposal(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("proposal %q not found", id)
		}
		return nil, database.NewError("find proposal", err)
	}
	return p, nil
}

// List lists proposals newest first
func (r *proposalRepository) List(ctx context.Context, params ProposalQuery) ([]*types.Proposal, error) {
	qb := database.NewQueryBuilder(r.db.Driver()).
		Select(proposalColumns).
		From("proposals").
		WhereIf(params.ConfigID != "", "config_id = ?", params.ConfigID).
		WhereIf(params.Status != "", "status = ?", string(params.Status)).
		OrderBy("created_at DESC", "id").
		Limit(params.Limit).
		Offset(params.Offset)

	rows, err := r.db.QueryContext(ctx, qb.SQL(), qb.Args()...)
	if err != nil {
		return nil, database.NewError("list proposals", err)
	}
	defer rows.Close()

	proposals := []*types.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewError("list proposals", err)
	}
	return proposals, nil
}

// Close moves a pending proposal to its final status
func (r *proposalRepository) Close(ctx context.Context, p *types.Proposal) error {
	query := r.db.Rebind(`
		UPDATE proposals
		SET status = ?, reviewer_email = ?, rejection_reason = ?, applied_version = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`)

	result, err := r.db.ExecContext(ctx, query,
		string(p.Status),
		p.ReviewerEmail,
		p.RejectionReason,
		p.AppliedVersion,
		p.ReviewedAt,
		p.ID,
		string(types.ProposalStatusPending),
	)
	if err != nil {
		return database.NewError("close proposal", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return database.NewError("close proposal", err)
	}
	if affected == 0 {
		return types.Conflict("proposal %q is no longer pending", p.ID)
	}
	return nil
}

// SupersedeStale closes pending proposals drafted against a version older than current
func (r *proposalRepository) SupersedeStale(ctx context.Context, configID string, current int64, at time.Time) (int64, error) {
	query := r.db.Rebind(`
		UPDATE proposals
		SET status = ?, reviewed_at = ?
		WHERE config_id = ? AND status = ? AND base_version < ?`)

	result, err := r.db.ExecContext(ctx, query,
		string(types.ProposalStatusSuperseded),
		at,
		configID,
		string(types.ProposalStatusPending),
		current,
	)
	if err != nil {
		return 0, database.NewError("supersede proposals", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, database.NewError("supersede proposals", err)
	}
	if affected > 0 {
		r.logger.Debug("Superseded stale proposals",
			zap.String("config_id", configID),
			zap.Int64("current_version", current),
			zap.Int64("count", affected))
	}
	return affected, nil
}

func scanProposal(row scanner) (*types.Proposal, error) {
	var (
		p                      types.Proposal
		status                 string
		val, schema, overrides sql.NullString
		description            sql.NullString
		reviewedAt             sql.NullTime
	)
	if err := row.Scan(
		&p.ID,
		&p.ConfigID,
		&p.BaseVersion,
		&val,
		&description,
		&schema,
		&overrides,
		&p.Message,
		&p.AuthorEmail,
		&status,
		&p.ReviewerEmail,
		&p.RejectionReason,
		&p.AppliedVersion,
		&p.CreatedAt,
		&reviewedAt,
	); err != nil {
		return nil, err
	}

	p.Status = types.ProposalStatus(status)
	if description.Valid {
		p.ProposedDescription = &description.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		p.ReviewedAt = &t
	}

	var err error
	if p.ProposedValue, err = decodeNullValue(val); err != nil {
		return nil, err
	}
	if p.ProposedSchema, err = decodeNullValue(schema); err != nil {
		return nil, err
	}
	if overrides.Valid {
		var list []types.Override
		if err := json.Unmarshal([]byte(overrides.String), &list); err != nil {
			return nil, fmt.Errorf("failed to decode proposed overrides: %w", err)
		}
		p.ProposedOverrides = &list
	}
	return &p, nil
}

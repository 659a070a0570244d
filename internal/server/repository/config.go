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

const configColumns = "id, project_id, name, description, version, value_json, schema_json, " +
	"overrides_json, maintainers, editors, created_at, updated_at"

const variantColumns = "config_id, environment_id, value_json, schema_json, overrides_json, use_default_schema"

// configRepository implements ConfigRepository
type configRepository struct {
	db     Queryer
	logger *zap.Logger
}

// NewConfigRepository creates a new config repository
func NewConfigRepository(db Queryer, logger *zap.Logger) ConfigRepository {
	return &configRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the config row and its variants
func (r *configRepository) Create(ctx context.Context, config *types.Config) error {
	row, err := encodeConfig(config)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		INSERT INTO configs (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		config.ID,
		config.ProjectID,
		config.Name,
		config.Description,
		config.Version,
		row.value,
		row.schema,
		row.overrides,
		row.maintainers,
		row.editors,
		config.CreatedAt,
		config.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return types.Conflict("config %q already exists", config.Name)
		}
		return database.NewError("insert config", err)
	}

	return r.insertVariants(ctx, config)
}

// FindByID finds a config with its variants by ID
func (r *configRepository) FindByID(ctx context.Context, id string) (*types.Config, error) {
	query := r.db.Rebind(`SELECT ` + configColumns + ` FROM configs WHERE id = ?`)
	return r.findOne(ctx, query, fmt.Sprintf("config %q not found", id), id)
}

// FindByName finds a config with its variants by project and name
func (r *configRepository) FindByName(ctx context.Context, projectID, name string) (*types.Config, error) {
	query := r.db.Rebind(`SELECT ` + configColumns + ` FROM configs WHERE project_id = ? AND name = ?`)
	return r.findOne(ctx, query, fmt.Sprintf("config %q not found", name), projectID, name)
}

func (r *configRepository) findOne(ctx context.Context, query, notFound string, args ...any) (*types.Config, error) {
	config, err := scanConfig(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("%s", notFound)
		}
		return nil, database.NewError("find config", err)
	}

	variants, err := r.listVariants(ctx,
		r.db.Rebind(`SELECT `+variantColumns+` FROM config_variants WHERE config_id = ? ORDER BY position`),
		config.ID)
	if err != nil {
		return nil, err
	}
	config.Variants = variants[config.ID]
	if config.Variants == nil {
		config.Variants = []types.Variant{}
	}
	return config, nil
}

// List lists the configs of a project ordered by name
func (r *configRepository) List(ctx context.Context, projectID string) ([]*types.Config, error) {
	query := r.db.Rebind(`SELECT ` + configColumns + ` FROM configs WHERE project_id = ? ORDER BY name`)

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, database.NewError("list configs", err)
	}
	defer rows.Close()

	var configs []*types.Config
	for rows.Next() {
		config, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, config)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewError("list configs", err)
	}
	// Release the connection before loading variants
	rows.Close()

	variants, err := r.listVariants(ctx, r.db.Rebind(`
		SELECT v.config_id, v.environment_id, v.value_json, v.schema_json, v.overrides_json, v.use_default_schema
		FROM config_variants v
		JOIN configs c ON c.id = v.config_id
		WHERE c.project_id = ?
		ORDER BY v.config_id, v.position`), projectID)
	if err != nil {
		return nil, err
	}

	for _, config := range configs {
		config.Variants = variants[config.ID]
		if config.Variants == nil {
			config.Variants = []types.Variant{}
		}
	}
	return configs, nil
}

// CompareAndSwapVersion bumps the version from expected to expected+1
func (r *configRepository) CompareAndSwapVersion(ctx context.Context, id string, expected int64, updatedAt time.Time) error {
	query := r.db.Rebind(`
		UPDATE configs
		SET version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`)

	result, err := r.db.ExecContext(ctx, query, updatedAt, id, expected)
	if err != nil {
		return database.NewError("swap config version", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return database.NewError("swap config version", err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT 1 FROM configs WHERE id = ?`), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return types.NotFound("config %q not found", id)
	}
	if err != nil {
		return database.NewError("swap config version", err)
	}

	r.logger.Debug("Config version compare and swap lost",
		zap.String("config_id", id),
		zap.Int64("expected_version", expected))
	return types.Conflict("config was changed by someone else, reload and retry")
}

// UpdateContent rewrites the editable content and the variants
func (r *configRepository) UpdateContent(ctx context.Context, config *types.Config) error {
	row, err := encodeConfig(config)
	if err != nil {
		return err
	}

	query := r.db.Rebind(`
		UPDATE configs
		SET description = ?, value_json = ?, schema_json = ?, overrides_json = ?,
			maintainers = ?, editors = ?, updated_at = ?
		WHERE id = ?`)

	if _, err := r.db.ExecContext(ctx, query,
		config.Description,
		row.value,
		row.schema,
		row.overrides,
		row.maintainers,
		row.editors,
		config.UpdatedAt,
		config.ID,
	); err != nil {
		return database.NewError("update config", err)
	}

	if _, err := r.db.ExecContext(ctx,
		r.db.Rebind(`DELETE FROM config_variants WHERE config_id = ?`), config.ID); err != nil {
		return database.NewError("delete config variants", err)
	}
	return r.insertVariants(ctx, config)
}

// CreateVersion records an immutable version snapshot
func (r *configRepository) CreateVersion(ctx context.Context, version *types.ConfigVersion) error {
	content, err := encodeJSON(version.Content)
	if err != nil {
		return fmt.Errorf("failed to encode version content: %w", err)
	}

	query := r.db.Rebind(`
		INSERT INTO config_versions (config_id, version, description, content_json, author_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err = r.db.ExecContext(ctx, query,
		version.ConfigID,
		version.Version,
		version.Content.Description,
		content,
		version.AuthorEmail,
		version.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return types.Conflict("config was changed by someone else, reload and retry")
		}
		return database.NewError("insert config version", err)
	}
	return nil
}

// FindVersion finds a single version snapshot
func (r *configRepository) FindVersion(ctx context.Context, configID string, version int64) (*types.ConfigVersion, error) {
	query := r.db.Rebind(`
		SELECT config_id, version, content_json, author_email, created_at
		FROM config_versions
		WHERE config_id = ? AND version = ?`)

	var (
		v       types.ConfigVersion
		content string
	)
	err := r.db.QueryRowContext(ctx, query, configID, version).Scan(
		&v.ConfigID,
		&v.Version,
		&content,
		&v.AuthorEmail,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NotFound("version %d not found", version)
		}
		return nil, database.NewError("find config version", err)
	}

	if err := json.Unmarshal([]byte(content), &v.Content); err != nil {
		return nil, fmt.Errorf("failed to decode version content: %w", err)
	}
	return &v, nil
}

// ListVersions lists version history newest first
func (r *configRepository) ListVersions(ctx context.Context, configID string) ([]types.ConfigVersionInfo, error) {
	query := r.db.Rebind(`
		SELECT version, description, author_email, created_at
		FROM config_versions
		WHERE config_id = ?
		ORDER BY version DESC`)

	rows, err := r.db.QueryContext(ctx, query, configID)
	if err != nil {
		return nil, database.NewError("list config versions", err)
	}
	defer rows.Close()

	versions := []types.ConfigVersionInfo{}
	for rows.Next() {
		var v types.ConfigVersionInfo
		if err := rows.Scan(&v.Version, &v.Description, &v.AuthorEmail, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan config version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewError("list config versions", err)
	}
	return versions, nil
}

func (r *configRepository) insertVariants(ctx context.Context, config *types.Config) error {
	query := r.db.Rebind(`
		INSERT INTO config_variants
			(config_id, environment_id, position, value_json, schema_json, overrides_json, use_default_schema)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for i, variant := range config.Variants {
		val, err := encodeJSON(variant.Value)
		if err != nil {
			return fmt.Errorf("failed to encode variant value: %w", err)
		}
		schema, err := encodeValue(variant.Schema)
		if err != nil {
			return fmt.Errorf("failed to encode variant schema: %w", err)
		}
		overrides, err := encodeJSON(nonNilOverrides(variant.Overrides))
		if err != nil {
			return fmt.Errorf("failed to encode variant overrides: %w", err)
		}

		if _, err := r.db.ExecContext(ctx, query,
			config.ID,
			variant.EnvironmentID,
			i,
			val,
			schema,
			overrides,
			variant.UseDefaultSchema,
		); err != nil {
			if database.IsUniqueViolation(err) {
				return types.BadRequest("duplicate variant for environment %q", variant.EnvironmentID)
			}
			return database.NewError("insert config variant", err)
		}
	}
	return nil
}

// listVariants runs a variant query and groups the rows by config ID
func (r *configRepository) listVariants(ctx context.Context, query string, args ...any) (map[string][]types.Variant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, database.NewError("list config variants", err)
	}
	defer rows.Close()

	variants := make(map[string][]types.Variant)
	for rows.Next() {
		var (
			configID, val, overrides string
			schema                   sql.NullString
			v                        types.Variant
		)
		if err := rows.Scan(&configID, &v.EnvironmentID, &val, &schema, &overrides, &v.UseDefaultSchema); err != nil {
			return nil, fmt.Errorf("failed to scan config variant: %w", err)
		}
		if v.Value, err = decodeValue(val); err != nil {
			return nil, err
		}
		if v.Schema, err = decodeNullValue(schema); err != nil {
			return nil, err
		}
		if v.Overrides, err = decodeOverrides(overrides); err != nil {
			return nil, err
		}
		variants[configID] = append(variants[configID], v)
	}
	if err := rows.Err(); err != nil {
		return nil, database.NewError("list config variants", err)
	}
	return variants, nil
}

// configRow holds the encoded JSON columns of a config
type configRow struct {
	value       string
	schema      sql.NullString
	overrides   string
	maintainers string
	editors     string
}

func encodeConfig(config *types.Config) (configRow, error) {
	var (
		row configRow
		err error
	)
	if row.value, err = encodeJSON(config.Value); err != nil {
		return row, fmt.Errorf("failed to encode config value: %w", err)
	}
	if row.schema, err = encodeValue(config.Schema); err != nil {
		return row, fmt.Errorf("failed to encode config schema: %w", err)
	}
	if row.overrides, err = encodeJSON(nonNilOverrides(config.Overrides)); err != nil {
		return row, fmt.Errorf("failed to encode config overrides: %w", err)
	}
	if row.maintainers, err = encodeJSON(nonNilEmails(config.Maintainers)); err != nil {
		return row, fmt.Errorf("failed to encode maintainers: %w", err)
	}
	if row.editors, err = encodeJSON(nonNilEmails(config.Editors)); err != nil {
		return row, fmt.Errorf("failed to encode editors: %w", err)
	}
	return row, nil
}

func scanConfig(row scanner) (*types.Config, error) {
	var (
		c                                    types.Config
		val, overrides, maintainers, editors string
		schema                               sql.NullString
	)
	if err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.Name,
		&c.Description,
		&c.Version,
		&val,
		&schema,
		&overrides,
		&maintainers,
		&editors,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if c.Value, err = decodeValue(val); err != nil {
		return nil, err
	}
	if c.Schema, err = decodeNullValue(schema); err != nil {
		return nil, err
	}
	if c.Overrides, err = decodeOverrides(overrides); err != nil {
		return nil, err
	}
	if c.Maintainers, err = decodeEmails(maintainers); err != nil {
		return nil, err
	}
	if c.Editors, err = decodeEmails(editors); err != nil {
		return nil, err
	}
	return &c, nil
}

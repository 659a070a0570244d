package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"confhub/internal/database"
	"confhub/internal/server/config"
	"confhub/internal/types"
	"confhub/internal/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	logger := zaptest.NewLogger(t)
	db, err := database.New(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "repository.db"),
		AutoMigrate: true,
	}, logger)
	require.NoError(t, err)

	store := NewStore(db, logger)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedProject(t *testing.T, store Store) *types.Project {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	project := &types.Project{ID: "p1", Name: "checkout", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Repos().Projects.Create(context.Background(), project))
	return project
}

func testConfig(projectID string) *types.Config {
	now := time.Now().UTC().Truncate(time.Second)
	schema := value.MustParse(`{"type":"number"}`)
	return &types.Config{
		ID:          "c1",
		ProjectID:   projectID,
		Name:        "limit",
		Description: "request limit",
		Version:     1,
		Value:       value.Number(10),
		Schema:      &schema,
		Overrides: []types.Override{{
			Name: "pro",
			Conditions: []types.Condition{{
				Operator: types.OperatorEquals,
				Property: "user.plan",
				Value:    types.Literal(value.String("pro")),
			}},
			Value: value.Number(100),
		}},
		Variants: []types.Variant{
			{EnvironmentID: "production", Value: value.Number(20), UseDefaultSchema: true, Overrides: []types.Override{}},
			{EnvironmentID: "staging", Value: value.Number(5), UseDefaultSchema: true, Overrides: []types.Override{}},
		},
		Maintainers: []string{"alice@example.com"},
		Editors:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestProjectRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)

	got, err := store.Repos().Projects.FindByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.Name)
	assert.False(t, got.RequireProposals)

	dup := *project
	dup.ID = "p2"
	err = store.Repos().Projects.Create(ctx, &dup)
	assert.ErrorIs(t, err, types.ErrConflict)

	project.RequireProposals = true
	require.NoError(t, store.Repos().Projects.UpdatePolicy(ctx, project))
	got, err = store.Repos().Projects.FindByID(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, got.RequireProposals)

	_, err = store.Repos().Projects.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	projects, err := store.Repos().Projects.List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestConfigRepositoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)
	cfg := testConfig(project.ID)

	require.NoError(t, store.WithTx(ctx, func(repos Repositories) error {
		return repos.Configs.Create(ctx, cfg)
	}))

	got, err := store.Repos().Configs.FindByName(ctx, project.ID, "limit")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, value.Equal(cfg.Value, got.Value))
	require.NotNil(t, got.Schema)
	assert.True(t, value.Equal(*cfg.Schema, *got.Schema))
	require.Len(t, got.Overrides, 1)
	assert.Equal(t, "user.plan", got.Overrides[0].Conditions[0].Property)
	require.Len(t, got.Variants, 2)
	assert.Equal(t, "production", got.Variants[0].EnvironmentID)
	assert.Equal(t, "staging", got.Variants[1].EnvironmentID)
	assert.Equal(t, []string{"alice@example.com"}, got.Maintainers)

	err = store.Repos().Configs.Create(ctx, testConfig(project.ID))
	assert.ErrorIs(t, err, types.ErrConflict)

	_, err = store.Repos().Configs.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)

	configs, err := store.Repos().Configs.List(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Len(t, configs[0].Variants, 2)
}

func TestCompareAndSwapVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)
	cfg := testConfig(project.ID)
	require.NoError(t, store.Repos().Configs.Create(ctx, cfg))

	now := time.Now().UTC()
	require.NoError(t, store.Repos().Configs.CompareAndSwapVersion(ctx, cfg.ID, 1, now))

	err := store.Repos().Configs.CompareAndSwapVersion(ctx, cfg.ID, 1, now)
	assert.ErrorIs(t, err, types.ErrConflict)

	err = store.Repos().Configs.CompareAndSwapVersion(ctx, "missing", 1, now)
	assert.ErrorIs(t, err, types.ErrNotFound)

	got, err := store.Repos().Configs.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateContentReplacesVariants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)
	cfg := testConfig(project.ID)
	require.NoError(t, store.Repos().Configs.Create(ctx, cfg))

	cfg.Value = value.Number(42)
	cfg.Schema = nil
	cfg.Variants = []types.Variant{{EnvironmentID: "development", Value: value.Number(1)}}
	cfg.Editors = []string{"bob@example.com"}
	require.NoError(t, store.Repos().Configs.UpdateContent(ctx, cfg))

	got, err := store.Repos().Configs.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Number(42), got.Value))
	assert.Nil(t, got.Schema)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, "development", got.Variants[0].EnvironmentID)
	assert.Equal(t, []string{"bob@example.com"}, got.Editors)
}

func TestVersions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)
	cfg := testConfig(project.ID)
	require.NoError(t, store.Repos().Configs.Create(ctx, cfg))

	for v := int64(1); v <= 3; v++ {
		cfg.Value = value.Number(float64(v))
		require.NoError(t, store.Repos().Configs.CreateVersion(ctx, &types.ConfigVersion{
			ConfigID:    cfg.ID,
			Version:     v,
			Content:     cfg.Content(),
			AuthorEmail: "alice@example.com",
			CreatedAt:   time.Now().UTC(),
		}))
	}

	err := store.Repos().Configs.CreateVersion(ctx, &types.ConfigVersion{
		ConfigID: cfg.ID, Version: 3, Content: cfg.Content(), AuthorEmail: "x", CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, types.ErrConflict)

	list, err := store.Repos().Configs.ListVersions(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].Version)
	assert.Equal(t, "request limit", list[0].Description)

	v2, err := store.Repos().Configs.FindVersion(ctx, cfg.ID, 2)
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Number(2), v2.Content.Value))
	assert.Len(t, v2.Content.Variants, 2)
	require.Len(t, v2.Content.Overrides, 1)

	_, err = store.Repos().Configs.FindVersion(ctx, cfg.ID, 9)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestProposalRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)
	cfg := testConfig(project.ID)
	require.NoError(t, store.Repos().Configs.Create(ctx, cfg))

	proposed := value.Number(50)
	description := "raise the limit"
	created := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"pr1", "pr2"} {
		require.NoError(t, store.Repos().Proposals.Create(ctx, &types.Proposal{
			ID:                  id,
			ConfigID:            cfg.ID,
			BaseVersion:         int64(i + 1),
			ProposedValue:       &proposed,
			ProposedDescription: &description,
			AuthorEmail:         "bob@example.com",
			Status:              types.ProposalStatusPending,
			CreatedAt:           created.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := store.Repos().Proposals.FindByID(ctx, "pr1")
	require.NoError(t, err)
	require.NotNil(t, got.ProposedValue)
	assert.True(t, value.Equal(proposed, *got.ProposedValue))
	require.NotNil(t, got.ProposedDescription)
	assert.Equal(t, description, *got.ProposedDescription)
	assert.Nil(t, got.ProposedSchema)
	assert.Nil(t, got.ProposedOverrides)
	assert.Nil(t, got.ReviewedAt)

	n, err := store.Repos().Proposals.SupersedeStale(ctx, cfg.ID, 2, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := store.Repos().Proposals.List(ctx, ProposalQuery{
		ConfigID: cfg.ID,
		Status:   types.ProposalStatusPending,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pr2", pending[0].ID)

	all, err := store.Repos().Proposals.List(ctx, ProposalQuery{ConfigID: cfg.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "pr2", all[0].ID)

	reviewed := time.Now().UTC()
	pr2 := pending[0]
	pr2.Status = types.ProposalStatusRejected
	pr2.ReviewerEmail = "alice@example.com"
	pr2.RejectionReason = "too high"
	pr2.ReviewedAt = &reviewed
	require.NoError(t, store.Repos().Proposals.Close(ctx, pr2))

	// Closing twice loses the status compare and swap
	err = store.Repos().Proposals.Close(ctx, pr2)
	assert.ErrorIs(t, err, types.ErrConflict)

	got, err = store.Repos().Proposals.FindByID(ctx, "pr2")
	require.NoError(t, err)
	assert.Equal(t, types.ProposalStatusRejected, got.Status)
	assert.Equal(t, "too high", got.RejectionReason)
	assert.NotNil(t, got.ReviewedAt)
}

func TestWithTxRollsBackAllRepositories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, store)
	cfg := testConfig(project.ID)

	err := store.WithTx(ctx, func(repos Repositories) error {
		if err := repos.Configs.Create(ctx, cfg); err != nil {
			return err
		}
		return repos.Configs.CompareAndSwapVersion(ctx, cfg.ID, 7, time.Now().UTC())
	})
	require.ErrorIs(t, err, types.ErrConflict)

	_, err = store.Repos().Configs.FindByID(ctx, cfg.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

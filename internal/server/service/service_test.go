package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"confhub/internal/database"
	"confhub/internal/events"
	"confhub/internal/retry"
	"confhub/internal/server/config"
	"confhub/internal/server/repository"
	"confhub/internal/types"
	"confhub/internal/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	owner  = types.Identity{Email: "owner@example.com", Role: types.RoleOwner}
	alice  = types.Identity{Email: "alice@example.com", Role: types.RoleMember}
	bob    = types.Identity{Email: "bob@example.com", Role: types.RoleMember}
	viewer = types.Identity{Email: "viewer@example.com", Role: types.RoleViewer}
)

type fixture struct {
	svc     *Service
	bus     *events.MemoryBus
	project *types.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	dbCfg := &config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "service.db"),
		AutoMigrate: true,
	}
	db, err := database.New(dbCfg, logger)
	require.NoError(t, err)

	cfg := &config.Config{Database: *dbCfg, Retry: *retry.DefaultRetryConfig()}
	bus := events.NewMemoryBus(logger)
	svc, err := NewService(cfg, repository.NewStore(db, logger), bus, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Stop() })

	project, err := svc.CreateProject(context.Background(), owner, CreateProjectParams{Name: "checkout"})
	require.NoError(t, err)
	return &fixture{svc: svc, bus: bus, project: project}
}

func (f *fixture) createConfig(t *testing.T, name string, base value.Value, editors ...string) *types.Config {
	t.Helper()
	cfg, err := f.svc.CreateConfig(context.Background(), owner, f.project.ID, CreateConfigParams{
		Name:    name,
		Default: DefaultVariant{Value: base},
		Editors: editors,
	})
	require.NoError(t, err)
	return cfg
}

func (f *fixture) setPolicy(t *testing.T, policy ProjectPolicy) {
	t.Helper()
	_, err := f.svc.UpdateProjectPolicy(context.Background(), owner, f.project.ID, policy)
	require.NoError(t, err)
}

func setValue(v value.Value) ConfigChanges {
	return ConfigChanges{Default: &DefaultVariant{Value: v}}
}

func ptr[T any](v T) *T { return &v }

func requireKind(t *testing.T, err error, kind error, message string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	if message != "" {
		var typed *types.Error
		require.True(t, errors.As(err, &typed))
		assert.Equal(t, message, typed.Message)
	}
}

func TestCreateConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg, err := f.svc.CreateConfig(ctx, alice, f.project.ID, CreateConfigParams{
		Name:        "limit",
		Description: "request limit",
		Default:     DefaultVariant{Value: value.Number(10)},
		Variants:    []types.Variant{{EnvironmentID: "production", Value: value.Number(50)}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Version)
	assert.Equal(t, []string{alice.Email}, cfg.Maintainers)

	versions, err := f.svc.GetConfigVersionList(ctx, viewer, cfg.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, int64(1), versions[0].Version)
	assert.Equal(t, alice.Email, versions[0].AuthorEmail)

	_, err = f.svc.CreateConfig(ctx, alice, f.project.ID, CreateConfigParams{Name: "limit"})
	requireKind(t, err, types.ErrConflict, "")

	_, err = f.svc.CreateConfig(ctx, viewer, f.project.ID, CreateConfigParams{Name: "other"})
	requireKind(t, err, types.ErrForbidden, "")

	_, err = f.svc.CreateConfig(ctx, alice, f.project.ID, CreateConfigParams{Name: "bad name"})
	requireKind(t, err, types.ErrBadRequest, "")

	_, err = f.svc.CreateConfig(ctx, alice, "missing", CreateConfigParams{Name: "other"})
	requireKind(t, err, types.ErrNotFound, "")
}

func TestCreateConfigValidatesSchema(t *testing.T) {
	f := newFixture(t)
	schema := value.MustParse(`{"type":"number","maximum":100}`)

	_, err := f.svc.CreateConfig(context.Background(), owner, f.project.ID, CreateConfigParams{
		Name:    "limit",
		Default: DefaultVariant{Value: value.String("ten"), Schema: &schema},
	})
	requireKind(t, err, types.ErrBadRequest, "")

	// Override values are checked against the same schema
	_, err = f.svc.CreateConfig(context.Background(), owner, f.project.ID, CreateConfigParams{
		Name: "limit",
		Default: DefaultVariant{
			Value:  value.Number(10),
			Schema: &schema,
			Overrides: []types.Override{{
				Name: "huge",
				Conditions: []types.Condition{{
					Operator: types.OperatorEquals,
					Property: "user.plan",
					Value:    types.Literal(value.String("pro")),
				}},
				Value: value.Number(1000),
			}},
		},
	})
	requireKind(t, err, types.ErrBadRequest, "")

	// Variants using the default schema are checked too
	_, err = f.svc.CreateConfig(context.Background(), owner, f.project.ID, CreateConfigParams{
		Name:     "limit",
		Default:  DefaultVariant{Value: value.Number(10), Schema: &schema},
		Variants: []types.Variant{{EnvironmentID: "production", Value: value.Bool(true), UseDefaultSchema: true}},
	})
	requireKind(t, err, types.ErrBadRequest, "")

	_, err = f.svc.CreateConfig(context.Background(), owner, f.project.ID, CreateConfigParams{
		Name:    "limit",
		Default: DefaultVariant{Value: value.Number(10), Schema: &schema},
	})
	require.NoError(t, err)
}

func TestUpdateConfigConflictScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10))

	// Bring the config to version 3
	_, err := f.svc.UpdateConfig(ctx, owner, cfg.ID, 1, ConfigChanges{Description: ptr("first")})
	require.NoError(t, err)
	_, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, 2, ConfigChanges{Description: ptr("second")})
	require.NoError(t, err)

	// Client A wins
	updated, err := f.svc.UpdateConfig(ctx, owner, cfg.ID, 3, setValue(value.Number(20)))
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated.Version)
	assert.True(t, value.Equal(value.Number(20), updated.Value))

	// Client B still holds version 3
	_, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, 3, setValue(value.Number(30)))
	requireKind(t, err, types.ErrConflict, "config was changed by someone else, reload and retry")

	current, err := f.svc.GetConfig(ctx, viewer, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), current.Version)
	assert.True(t, value.Equal(value.Number(20), current.Value))
}

func TestStaleNoopUpdateIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10), alice.Email)

	_, err := f.svc.UpdateConfig(ctx, alice, cfg.ID, 1, setValue(value.Number(20)))
	require.NoError(t, err)

	// Already matches the latest version, but the caller read version 1
	_, err = f.svc.UpdateConfig(ctx, alice, cfg.ID, 1, setValue(value.Number(20)))
	requireKind(t, err, types.ErrConflict, "config was changed by someone else, reload and retry")

	_, err = f.svc.UpdateConfig(ctx, alice, cfg.ID, 2, setValue(value.Number(20)))
	requireKind(t, err, types.ErrBadRequest, "update does not change anything")
}

func TestConcurrentUpdatesHaveSingleWinner(t *testing.T) {
	f := newFixture(t)
	cfg := f.createConfig(t, "limit", value.Number(10))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.UpdateConfig(context.Background(), owner, cfg.ID, 1, setValue(value.Number(float64(100+i))))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case types.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)

	versions, err := f.svc.GetConfigVersionList(context.Background(), owner, cfg.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestUpdateConfigAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10), alice.Email)

	// Members that are neither editors nor maintainers
	_, err := f.svc.UpdateConfig(ctx, bob, cfg.ID, 1, setValue(value.Number(11)))
	requireKind(t, err, types.ErrForbidden, "")

	// Editors can change content but not members
	_, err = f.svc.UpdateConfig(ctx, alice, cfg.ID, 1, ConfigChanges{Editors: &[]string{alice.Email, bob.Email}})
	requireKind(t, err, types.ErrForbidden, "")

	updated, err := f.svc.UpdateConfig(ctx, alice, cfg.ID, 1, setValue(value.Number(11)))
	require.NoError(t, err)

	// The maintainer (creator) can change members
	updated, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, updated.Version, ConfigChanges{Editors: &[]string{alice.Email, bob.Email}})
	require.NoError(t, err)
	assert.Equal(t, []string{alice.Email, bob.Email}, updated.Editors)

	_, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, updated.Version, ConfigChanges{})
	requireKind(t, err, types.ErrBadRequest, "")
}

func TestRequireProposalsBlocksDirectEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10))
	f.setPolicy(t, ProjectPolicy{RequireProposals: ptr(true)})

	_, err := f.svc.UpdateConfig(ctx, owner, cfg.ID, 1, setValue(value.Number(11)))
	requireKind(t, err, types.ErrForbidden, "")

	_, err = f.svc.RestoreVersion(ctx, owner, cfg.ID, 1, 1)
	requireKind(t, err, types.ErrForbidden, "")

	// Member lists are not reviewed content
	_, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, 1, ConfigChanges{Editors: &[]string{bob.Email}})
	require.NoError(t, err)
}

func TestEditConfigRetriesOnConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10))

	calls := 0
	updated, err := f.svc.EditConfig(ctx, owner, cfg.ID, func(current *types.Config) (ConfigChanges, error) {
		calls++
		if calls == 1 {
			// Someone else commits between our read and our write
			_, err := f.svc.UpdateConfig(ctx, owner, cfg.ID, current.Version, ConfigChanges{Description: ptr("concurrent")})
			require.NoError(t, err)
		}
		n, _ := current.Value.AsNumber()
		return setValue(value.Number(n + 1)), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(3), updated.Version)
	assert.Equal(t, "concurrent", updated.Description)
	assert.True(t, value.Equal(value.Number(11), updated.Value))

	// Non conflict errors are returned immediately
	boom := errors.New("boom")
	_, err = f.svc.EditConfig(ctx, owner, cfg.ID, func(*types.Config) (ConfigChanges, error) { return ConfigChanges{}, boom })
	assert.ErrorIs(t, err, boom)
}

func TestRestoreVersionRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schema := value.MustParse(`{"type":"number"}`)
	cfg, err := f.svc.CreateConfig(ctx, owner, f.project.ID, CreateConfigParams{
		Name:    "limit",
		Default: DefaultVariant{Value: value.Number(10), Schema: &schema},
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, 1, ConfigChanges{Default: &DefaultVariant{
		Value: value.Number(20),
		Overrides: []types.Override{{
			Name: "pro",
			Conditions: []types.Condition{{
				Operator: types.OperatorEquals,
				Property: "user.plan",
				Value:    types.Literal(value.String("pro")),
			}},
			Value: value.Number(100),
		}},
	}})
	require.NoError(t, err)

	_, err = f.svc.RestoreVersion(ctx, owner, cfg.ID, 1, 1)
	requireKind(t, err, types.ErrConflict, "")

	restored, err := f.svc.RestoreVersion(ctx, owner, cfg.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), restored.Version)

	original, err := f.svc.GetConfigVersion(ctx, owner, cfg.ID, 1)
	require.NoError(t, err)
	latest, err := f.svc.GetConfigVersion(ctx, owner, cfg.ID, 3)
	require.NoError(t, err)
	assert.True(t, value.Equal(original.Content.Value, latest.Content.Value))
	require.NotNil(t, latest.Content.Schema)
	assert.True(t, value.Equal(*original.Content.Schema, *latest.Content.Schema))
	assert.Empty(t, latest.Content.Overrides)
	assert.True(t, sameJSON(original.Content, latest.Content))

	_, err = f.svc.RestoreVersion(ctx, owner, cfg.ID, 42, 3)
	requireKind(t, err, types.ErrNotFound, "")
}

func TestProposalApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10), alice.Email)

	proposed := value.Number(25)
	proposal, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{
		Value: value.Some(proposed),
		Description: ptr(""),
		Message:     "raise it",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ProposalStatusPending, proposal.Status)
	assert.NotNil(t, proposal.ProposedValue)
	assert.Nil(t, proposal.ProposedDescription, "unchanged fields are dropped")

	// The author cannot approve their own proposal
	bobEditor := f.createConfig(t, "other", value.Number(1), bob.Email)
	own, err := f.svc.CreateProposal(ctx, bob, bobEditor.ID, 1, ProposalParams{Value: value.Some(proposed)})
	require.NoError(t, err)
	_, err = f.svc.ApproveProposal(ctx, bob, own.ID, 1)
	requireKind(t, err, types.ErrForbidden, "")

	// Members without edit rights cannot approve
	_, err = f.svc.ApproveProposal(ctx, bob, proposal.ID, 1)
	requireKind(t, err, types.ErrForbidden, "")

	sub := f.bus.Subscribe(8)
	defer sub.Close()

	approved, err := f.svc.ApproveProposal(ctx, alice, proposal.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalStatusApproved, approved.Status)
	assert.Equal(t, int64(2), approved.AppliedVersion)
	assert.Equal(t, alice.Email, approved.ReviewerEmail)

	current, err := f.svc.GetConfig(ctx, owner, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.True(t, value.Equal(proposed, current.Value))

	select {
	case event := <-sub.C:
		assert.Equal(t, "limit", event.Name)
		assert.Equal(t, int64(2), event.Version)
		assert.Equal(t, OperationApprove, event.Operation)
	case <-time.After(time.Second):
		t.Fatal("no change event published")
	}

	_, err = f.svc.ApproveProposal(ctx, alice, proposal.ID, 2)
	requireKind(t, err, types.ErrConflict, "")
}

func TestSelfApprovalAllowedByPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10), bob.Email)
	f.setPolicy(t, ProjectPolicy{AllowSelfApprovals: ptr(true), RequireProposals: ptr(true)})

	proposed := value.Number(11)
	proposal, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Value: value.Some(proposed)})
	require.NoError(t, err)

	approved, err := f.svc.ApproveProposal(ctx, bob, proposal.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), approved.AppliedVersion)
}

func TestStaleProposalIsOutOfDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10))

	proposed := value.Number(25)
	proposal, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Value: value.Some(proposed)})
	require.NoError(t, err)

	_, err = f.svc.UpdateConfig(ctx, owner, cfg.ID, 1, setValue(value.Number(30)))
	require.NoError(t, err)

	_, err = f.svc.ApproveProposal(ctx, owner, proposal.ID, 2)
	requireKind(t, err, types.ErrConflict, "proposal is out of date")

	got, err := f.svc.GetProposal(ctx, owner, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalStatusSuperseded, got.Status)

	current, err := f.svc.GetConfig(ctx, owner, cfg.ID)
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Number(30), current.Value), "stale proposal is never applied")

	// Proposals against a stale base are refused up front
	_, err = f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Value: value.Some(proposed)})
	requireKind(t, err, types.ErrConflict, "")
}

func TestCreateProposalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10))

	same := value.Number(10)
	_, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Value: value.Some(same)})
	requireKind(t, err, types.ErrBadRequest, "")

	other := value.Number(11)
	_, err = f.svc.CreateProposal(ctx, viewer, cfg.ID, 1, ProposalParams{Value: value.Some(other)})
	requireKind(t, err, types.ErrForbidden, "")

	bad := []types.Override{{Name: "x", Conditions: []types.Condition{{Operator: "bogus", Property: "a"}}}}
	_, err = f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Overrides: &bad})
	requireKind(t, err, types.ErrBadRequest, "")
}

func TestProposalExplicitNulls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schema := value.MustParse(`{"type":"number"}`)
	cfg, err := f.svc.CreateConfig(ctx, owner, f.project.ID, CreateConfigParams{
		Name:    "limit",
		Default: DefaultVariant{Value: value.Number(10), Schema: &schema},
	})
	require.NoError(t, err)

	var params ProposalParams
	require.NoError(t, json.Unmarshal([]byte(`{"value":null,"schema":null,"message":"clear"}`), &params))
	assert.True(t, params.Value.Set)
	assert.True(t, params.Value.Value.IsNull())
	assert.True(t, params.Schema.Set)

	var absent ProposalParams
	require.NoError(t, json.Unmarshal([]byte(`{"message":"nothing"}`), &absent))
	assert.False(t, absent.Value.Set)
	assert.False(t, absent.Schema.Set)

	proposal, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, params)
	require.NoError(t, err)
	require.NotNil(t, proposal.ProposedValue)
	assert.True(t, proposal.ProposedValue.IsNull())
	require.NotNil(t, proposal.ProposedSchema)

	_, err = f.svc.ApproveProposal(ctx, owner, proposal.ID, 1)
	require.NoError(t, err)

	current, err := f.svc.GetConfig(ctx, owner, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.True(t, current.Value.IsNull())
	assert.Nil(t, current.Schema)
}

func TestRejectProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.createConfig(t, "limit", value.Number(10), alice.Email)

	proposed := value.Number(25)
	first, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Value: value.Some(proposed)})
	require.NoError(t, err)
	second, err := f.svc.CreateProposal(ctx, bob, cfg.ID, 1, ProposalParams{Value: value.Some(proposed)})
	require.NoError(t, err)

	_, err = f.svc.RejectProposal(ctx, viewer, first.ID, "no")
	requireKind(t, err, types.ErrForbidden, "")

	rejected, err := f.svc.RejectProposal(ctx, alice, first.ID, "too high")
	require.NoError(t, err)
	assert.Equal(t, types.ProposalStatusRejected, rejected.Status)
	assert.Equal(t, "too high", rejected.RejectionReason)

	// Authors can withdraw their own proposals
	_, err = f.svc.RejectProposal(ctx, bob, second.ID, "withdrawn")
	require.NoError(t, err)

	_, err = f.svc.RejectProposal(ctx, alice, first.ID, "again")
	requireKind(t, err, types.ErrConflict, "")

	current, err := f.svc.GetConfig(ctx, owner, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Version)

	list, err := f.svc.ListProposals(ctx, owner, repository.ProposalQuery{ConfigID: cfg.ID, Status: types.ProposalStatusRejected})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGetConfigValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateConfig(ctx, owner, f.project.ID, CreateConfigParams{
		Name:    "plans",
		Default: DefaultVariant{Value: value.MustParse(`{"paid":"pro"}`)},
	})
	require.NoError(t, err)

	_, err = f.svc.CreateConfig(ctx, owner, f.project.ID, CreateConfigParams{
		Name: "limit",
		Default: DefaultVariant{
			Value: value.Number(10),
			Overrides: []types.Override{{
				Name: "paid",
				Conditions: []types.Condition{{
					Operator: types.OperatorEquals,
					Property: "user.plan",
					Value: types.ConditionValue{
						Type:       types.ConditionValueReference,
						ConfigName: "plans",
						Path:       []string{"paid"},
					},
				}},
				Value: value.Number(100),
			}},
		},
		Variants: []types.Variant{{EnvironmentID: "development", Value: value.Number(1)}},
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		env  string
		ctx  string
		want float64
	}{
		{"matching plan", "production", `{"user":{"plan":"pro"}}`, 100},
		{"other plan", "production", `{"user":{"plan":"free"}}`, 10},
		{"missing path", "production", `{}`, 10},
		{"environment variant", "development", `{"user":{"plan":"pro"}}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.GetConfigValue(ctx, f.project.ID, tt.env, "limit", value.MustParse(tt.ctx))
			require.NoError(t, err)
			assert.True(t, value.Equal(value.Number(tt.want), res.Value), "got %s", res.Value)
		})
	}

	_, err = f.svc.GetConfigValue(ctx, f.project.ID, "production", "missing", value.Null())
	requireKind(t, err, types.ErrNotFound, "")
}

func TestProjectPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProjectPolicy(ctx, alice, f.project.ID, ProjectPolicy{RequireProposals: ptr(true)})
	requireKind(t, err, types.ErrForbidden, "")

	updated, err := f.svc.UpdateProjectPolicy(ctx, owner, f.project.ID, ProjectPolicy{RequireProposals: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.RequireProposals)
	assert.False(t, updated.AllowSelfApprovals)

	_, err = f.svc.CreateProject(ctx, owner, CreateProjectParams{Name: "checkout"})
	requireKind(t, err, types.ErrConflict, "")

	status := f.svc.HealthCheck(ctx)
	assert.True(t, status.Healthy)
}

package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
)

// testClock is the frozen "now" every test starts from.
var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Admin  domain.Principal
	Owner  domain.Principal
	Lead   domain.Principal
	Field  domain.Principal
	Viewer domain.Principal
	// Outsider belongs to a second organization.
	Outsider domain.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default("org-1")
	require.NoError(t, cfg.Validate())
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return testClock }
	eng.Events.Now = eng.Now

	ctx := context.Background()
	env := &testEnv{
		Engine:   eng,
		Ctx:      ctx,
		Admin:    domain.Principal{UserID: "admin-1", Email: "admin@org1.test", Role: domain.RolePlatformAdmin, OrgID: "org-1"},
		Owner:    domain.Principal{UserID: "owner-1", Email: "owner@org1.test", Role: domain.RoleProgramOwner, OrgID: "org-1"},
		Lead:     domain.Principal{UserID: "lead-1", Email: "lead@org1.test", Role: domain.RoleWorkstreamLead, OrgID: "org-1"},
		Field:    domain.Principal{UserID: "field-1", Email: "field@org1.test", Role: domain.RoleFieldContributor, OrgID: "org-1"},
		Viewer:   domain.Principal{UserID: "viewer-1", Email: "viewer@org1.test", Role: domain.RoleClientViewer, OrgID: "org-1"},
		Outsider: domain.Principal{UserID: "owner-2", Email: "owner@org2.test", Role: domain.RoleProgramOwner, OrgID: "org-2"},
	}
	require.NoError(t, eng.Seed(ctx, engine.SeedOptions{
		OrgID: "org-1", OrgName: "Org One",
		ClientID: "client-1", ClientName: "Acme",
		ProgramID: "program-1", ProgramName: "Rollout",
		WorkstreamID: "ws-1", WorkstreamName: "Sites North",
		Actors: []domain.Actor{
			{ID: env.Admin.UserID, Email: env.Admin.Email, Role: env.Admin.Role},
			{ID: env.Owner.UserID, Email: env.Owner.Email, Role: env.Owner.Role},
			{ID: env.Lead.UserID, Email: env.Lead.Email, Role: env.Lead.Role},
			{ID: env.Field.UserID, Email: env.Field.Email, Role: env.Field.Role},
			{ID: env.Viewer.UserID, Email: env.Viewer.Email, Role: env.Viewer.Role},
		},
	}))
	require.NoError(t, eng.Seed(ctx, engine.SeedOptions{
		OrgID: "org-2", OrgName: "Org Two",
		ClientID: "client-2", ClientName: "Globex",
		ProgramID: "program-2", ProgramName: "Upgrade",
		WorkstreamID: "ws-2", WorkstreamName: "Sites South",
		Actors: []domain.Actor{
			{ID: env.Outsider.UserID, Email: env.Outsider.Email, Role: env.Outsider.Role},
		},
	}))
	return env
}

// setClock moves the frozen engine clock.
func (env *testEnv) setClock(t time.Time) {
	env.Engine.Now = func() time.Time { return t }
	env.Engine.Events.Now = env.Engine.Now
}

func (env *testEnv) createUnit(t *testing.T, p domain.Principal, opts engine.CreateUnitOptions) domain.Unit {
	t.Helper()
	if opts.WorkstreamID == "" {
		opts.WorkstreamID = "ws-1"
	}
	if opts.Title == "" {
		opts.Title = "Install cabinet"
	}
	u, err := env.Engine.CreateUnit(env.Ctx, p, opts)
	require.NoError(t, err)
	return u
}

// submitAndApprove walks one evidence record through upload and approval.
func (env *testEnv) submitAndApprove(t *testing.T, unitID string) domain.Evidence {
	t.Helper()
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{
		UnitID: unitID, Type: "photo", BlobPath: "proof/" + unitID + ".jpg",
	})
	require.NoError(t, err)
	ev, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "approve", "")
	require.NoError(t, err)
	return ev
}

func TestSeedIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.Seed(env.Ctx, engine.SeedOptions{
		OrgID: "org-1", OrgName: "Org One",
		ClientID: "client-1", ClientName: "Acme",
	}))
	orgs, err := env.Engine.Repo.ListOrganizations(env.Ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
}

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/engine"
	"trackline/internal/engine/guard"
	"trackline/internal/repo"
)

func TestViewerMayNotCreateUnit(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateUnit(env.Ctx, env.Viewer, engine.CreateUnitOptions{
		WorkstreamID: "ws-1", Title: "nope",
	})
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestCreateUnitValidatesDeadline(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateUnit(env.Ctx, env.Lead, engine.CreateUnitOptions{
		WorkstreamID: "ws-1", Title: "bad date", Deadline: "next tuesday",
	})
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestCreateUnitRejectsForeignWorkstream(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateUnit(env.Ctx, env.Lead, engine.CreateUnitOptions{
		WorkstreamID: "ws-2", Title: "wrong org",
	})
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestContributorUnitNeedsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.CreateUnit(env.Ctx, env.Field, engine.CreateUnitOptions{
		WorkstreamID: "ws-1", Title: "field find",
	})
	require.NoError(t, err)
	assert.False(t, u.IsConfirmed)

	// contributors cannot ratify their own creations
	_, err = env.Engine.ConfirmUnit(env.Ctx, env.Field, u.ID)
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	u, err = env.Engine.ConfirmUnit(env.Ctx, env.Lead, u.ID)
	require.NoError(t, err)
	assert.True(t, u.IsConfirmed)

	_, err = env.Engine.ConfirmUnit(env.Ctx, env.Lead, u.ID)
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestArchiveIsOwnerGatedAndTerminal(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})

	_, err := env.Engine.ArchiveUnit(env.Ctx, env.Lead, u.ID)
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	got, err := env.Engine.ArchiveUnit(env.Ctx, env.Owner, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived)

	_, err = env.Engine.ArchiveUnit(env.Ctx, env.Owner, u.ID)
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)

	// archived units drop out of listings
	units, err := env.Engine.ListUnits(env.Ctx, env.Owner, repo.UnitFilters{})
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestGetUnitHiddenAcrossTenants(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	_, err := env.Engine.GetUnit(env.Ctx, env.Outsider, u.ID)
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	// viewers in the same org can read
	got, err := env.Engine.GetUnit(env.Ctx, env.Viewer, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestListUnitsScopedToViewerOrg(t *testing.T) {
	env := newTestEnv(t)
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "ours"})
	env.createUnit(t, env.Outsider, engine.CreateUnitOptions{WorkstreamID: "ws-2", Title: "theirs"})

	units, err := env.Engine.ListUnits(env.Ctx, env.Owner, repo.UnitFilters{})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "ours", units[0].Title)

	all, err := env.Engine.ListUnits(env.Ctx, env.Admin, repo.UnitFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	env.submitAndApprove(t, u.ID)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "org-1", "", "unit", u.ID)
	require.NoError(t, err)
	types := map[string]bool{}
	for _, e := range evts {
		types[e.Type] = true
	}
	assert.True(t, types["unit.created"])
	assert.True(t, types["unit.status.changed"])
}

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/engine/guard"
	"trackline/internal/repo"
)

func TestViewerMayNotSubmitEvidence(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	_, err := env.Engine.SubmitEvidence(env.Ctx, env.Viewer, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestCrossTenantSubmitRejected(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	_, err := env.Engine.SubmitEvidence(env.Ctx, env.Outsider, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestSubmitToArchivedUnitRejected(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	_, err := env.Engine.ArchiveUnit(env.Ctx, env.Owner, u.ID)
	require.NoError(t, err)
	_, err = env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestUploaderMayNotDecideOwnEvidence(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Lead, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "note"})
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "approve", "")
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	// a different lead-level actor may decide it
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Owner, ev.ID, "approve", "")
	require.NoError(t, err)
}

func TestUploaderMatchedByEmailCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Lead, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "note"})
	require.NoError(t, err)

	// same person under a different user id but the same mailbox
	sneaky := domain.Principal{UserID: "lead-1-alt", Email: "LEAD@ORG1.TEST", Role: domain.RoleWorkstreamLead, OrgID: "org-1"}
	_, err = env.Engine.DecideEvidence(env.Ctx, sneaky, ev.ID, "approve", "")
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestContributorMayNotDecide(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)
	other := domain.Principal{UserID: "field-2", Email: "field2@org1.test", Role: domain.RoleFieldContributor, OrgID: "org-1"}
	_, err = env.Engine.DecideEvidence(env.Ctx, other, ev.ID, "approve", "")
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestHighCriticalityRequiresOwnerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{HighCriticality: true})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)

	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "approve", "")
	var forbidden guard.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = env.Engine.DecideEvidence(env.Ctx, env.Owner, ev.ID, "approve", "")
	require.NoError(t, err)
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "reject", "  ")
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestDecisionIsFinal(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "approve", "")
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Owner, ev.ID, "reject", "changed my mind")
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestApprovalSupersedesPriorApproved(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	first := env.submitAndApprove(t, u.ID)
	second := env.submitAndApprove(t, u.ID)

	old, err := env.Engine.Repo.GetEvidence(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, old.IsSuperseded)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, second.ID, *old.SupersededBy)

	// unit stays GREEN through the handover
	u, err = env.Engine.GetUnit(env.Ctx, env.Lead, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGreen, u.ComputedStatus)
}

func TestPendingUploadDoesNotSupersede(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	approved := env.submitAndApprove(t, u.ID)

	_, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)

	still, err := env.Engine.Repo.GetEvidence(env.Ctx, approved.ID)
	require.NoError(t, err)
	assert.False(t, still.IsSuperseded)
}

func TestDecisionQueuesUploaderNotification(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "reject", "wrong site")
	require.NoError(t, err)

	pending, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{Status: domain.NotifyPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, env.Field.Email, pending[0].RecipientEmail)
	assert.Contains(t, pending[0].Body, "wrong site")
}

func TestFileURLResolvedFromBlobPath(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{
		UnitID: u.ID, Type: "photo", BlobPath: "proof/site.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.trackline.local/proof/site.jpg", ev.FileURL)
}

package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

func TestNewUnitStartsRed(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	assert.Equal(t, domain.StatusRed, u.ComputedStatus)
	assert.True(t, u.IsConfirmed)
}

func TestApprovedEvidenceTurnsUnitGreen(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})

	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{
		UnitID: u.ID, Type: "photo", BlobPath: "proof/a.jpg",
	})
	require.NoError(t, err)

	// still RED while pending
	u, err = env.Engine.ComputeStatus(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRed, u.ComputedStatus)

	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "approve", "")
	require.NoError(t, err)

	u, err = env.Engine.GetUnit(env.Ctx, env.Lead, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGreen, u.ComputedStatus)
}

func TestRejectedEvidenceLeavesUnitRed(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{
		UnitID: u.ID, Type: "photo",
	})
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "reject", "blurry photo")
	require.NoError(t, err)

	u, err = env.Engine.GetUnit(env.Ctx, env.Lead, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRed, u.ComputedStatus)
}

func TestEvidencePolicyTypesAndMinCount(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{
		EvidencePolicyJSON: `{"types":["certificate"],"min_count":2}`,
	})

	// an approved photo does not count toward a certificate policy
	ev, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: u.ID, Type: "photo"})
	require.NoError(t, err)
	_, err = env.Engine.DecideEvidence(env.Ctx, env.Lead, ev.ID, "approve", "")
	require.NoError(t, err)
	u, err = env.Engine.GetUnit(env.Ctx, env.Lead, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRed, u.ComputedStatus)
}

func TestMalformedEvidencePolicyRejectedAtCreate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateUnit(env.Ctx, env.Lead, engine.CreateUnitOptions{
		WorkstreamID: "ws-1", Title: "Bad policy",
		EvidencePolicyJSON: `{"min_count":0}`,
	})
	var invalid engine.InvalidStateError
	require.ErrorAs(t, err, &invalid)
}

func TestMalformedPolicyNeverComputesGreen(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	env.submitAndApprove(t, u.ID)

	// corrupt the stored policy behind the engine's back
	_, err := env.Engine.DB.Exec(`UPDATE units SET evidence_policy_json='not json' WHERE id=?`, u.ID)
	require.NoError(t, err)

	_, err = env.Engine.ComputeStatus(env.Ctx, u.ID)
	require.Error(t, err)

	// prior status survives the failed recompute
	u, err = env.Engine.Repo.GetUnit(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusGreen, u.ComputedStatus)
}

func TestBlockedOverridesEvidence(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{})
	env.submitAndApprove(t, u.ID)

	_, err := env.Engine.ManualEscalate(env.Ctx, env.Lead, engine.ManualEscalateOptions{
		UnitID: u.ID, Reason: "access dispute", MarkBlocked: true,
	})
	require.NoError(t, err)

	u, err = env.Engine.GetUnit(env.Ctx, env.Lead, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, u.ComputedStatus)
	assert.True(t, u.IsBlocked)
}

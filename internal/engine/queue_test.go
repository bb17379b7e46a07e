package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/engine"
)

func TestQueueEmptyForQuietOrg(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestManualEscalationOutranksPendingEvidence(t *testing.T) {
	env := newTestEnv(t)

	// high-criticality unit with evidence waiting for a decision
	critical := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "critical", HighCriticality: true})
	_, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: critical.ID, Type: "photo"})
	require.NoError(t, err)

	// ordinary unit with a manual escalation
	plain := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "plain"})
	_, err = env.Engine.ManualEscalate(env.Ctx, env.Field, engine.ManualEscalateOptions{
		UnitID: plain.ID, Reason: "crew walked off",
	})
	require.NoError(t, err)

	res, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)
	assert.Equal(t, engine.ClassManualEscalation, res.Items[0].Class)
	assert.Equal(t, plain.ID, res.Items[0].UnitID)
}

func TestQueueScoresDeadlineUrgency(t *testing.T) {
	env := newTestEnv(t)

	soon := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "due soon", Deadline: deadlineIn(12 * time.Hour)})
	later := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "due later", Deadline: deadlineIn(5 * 24 * time.Hour)})

	res, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)

	var soonScore, laterScore int
	for _, it := range res.Items {
		if it.Class != engine.ClassAtRisk {
			continue
		}
		switch it.UnitID {
		case soon.ID:
			soonScore = it.Score
		case later.ID:
			laterScore = it.Score
		}
	}
	require.NotZero(t, soonScore)
	require.NotZero(t, laterScore)
	assert.Greater(t, soonScore, laterScore)
}

func TestQueueCountsClasses(t *testing.T) {
	env := newTestEnv(t)

	red := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "red", Deadline: deadlineIn(24 * time.Hour)})
	_, err := env.Engine.SubmitEvidence(env.Ctx, env.Field, engine.SubmitEvidenceOptions{UnitID: red.ID, Type: "photo"})
	require.NoError(t, err)

	unconfirmed, err := env.Engine.CreateUnit(env.Ctx, env.Field, engine.CreateUnitOptions{
		WorkstreamID: "ws-1", Title: "contributor draft",
	})
	require.NoError(t, err)
	assert.False(t, unconfirmed.IsConfirmed)

	res, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts[engine.ClassPendingEvidence])
	assert.Equal(t, 1, res.Counts[engine.ClassUnconfirmed])
	assert.Equal(t, 1, res.Counts[engine.ClassAtRisk])
}

func TestQueueIsTenantScoped(t *testing.T) {
	env := newTestEnv(t)

	mine := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "mine", Deadline: deadlineIn(24 * time.Hour)})
	theirs := env.createUnit(t, env.Outsider, engine.CreateUnitOptions{
		WorkstreamID: "ws-2", Title: "theirs", Deadline: deadlineIn(24 * time.Hour),
	})

	res, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)
	for _, it := range res.Items {
		assert.NotEqual(t, theirs.ID, it.UnitID)
	}

	// platform admins see both organizations
	adminRes, err := env.Engine.AttentionQueue(env.Ctx, env.Admin, testClock)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, it := range adminRes.Items {
		seen[it.UnitID] = true
	}
	assert.True(t, seen[mine.ID])
	assert.True(t, seen[theirs.ID])
}

func TestQueueIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"a", "b", "c"} {
		env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: title, Deadline: deadlineIn(24 * time.Hour)})
	}
	first, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)
	second, err := env.Engine.AttentionQueue(env.Ctx, env.Owner, testClock)
	require.NoError(t, err)
	assert.Equal(t, first.Items, second.Items)
}

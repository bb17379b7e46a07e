package engine_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/repo"
)

// deadlineIn formats a deadline the given duration after the test clock.
func deadlineIn(d time.Duration) string {
	return testClock.Add(d).UTC().Format(time.RFC3339)
}

func TestSweepAdvancesLevelAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(10 * 24 * time.Hour)})

	// 60% of the creation->deadline window has elapsed
	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnitsChecked)
	assert.Equal(t, 1, report.EscalationsCreated)
	assert.Empty(t, report.Errors)

	u, err = env.Engine.Repo.GetUnit(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.EscalationLevel)

	escalations, err := env.Engine.Repo.ListEscalations(env.Ctx, repo.EscalationFilters{UnitID: u.ID})
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, domain.EscalationAutomatic, escalations[0].Type)
	assert.Equal(t, 1, escalations[0].Level)

	// level 1 notifies workstream leads only
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, env.Lead.Email, notes[0].RecipientEmail)
}

func TestSweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(10 * 24 * time.Hour)})

	at := testClock.Add(6 * 24 * time.Hour)
	env.setClock(at)
	first, err := env.Engine.RunSweep(env.Ctx, at)
	require.NoError(t, err)
	require.Equal(t, 1, first.EscalationsCreated)

	second, err := env.Engine.RunSweep(env.Ctx, at)
	require.NoError(t, err)
	assert.Zero(t, second.EscalationsCreated)
	assert.Zero(t, second.NotificationsCreated)
	assert.Zero(t, second.RemindersSent)
}

func TestSweepJumpsStraightToHighestReachedLevel(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(10 * 24 * time.Hour)})

	// first sweep only happens at 95%: one transition, straight to level 3
	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(9*24*time.Hour+12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.EscalationsCreated)

	u, err = env.Engine.Repo.GetUnit(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, u.EscalationLevel)

	escalations, err := env.Engine.Repo.ListEscalations(env.Ctx, repo.EscalationFilters{UnitID: u.ID})
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, 3, escalations[0].Level)
}

func TestSweepSkipsGreenBlockedAndArchived(t *testing.T) {
	env := newTestEnv(t)

	green := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "green", Deadline: deadlineIn(10 * 24 * time.Hour)})
	env.submitAndApprove(t, green.ID)

	blocked := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "blocked", Deadline: deadlineIn(10 * 24 * time.Hour)})
	_, err := env.Engine.ManualEscalate(env.Ctx, env.Lead, engine.ManualEscalateOptions{
		UnitID: blocked.ID, Reason: "site dispute", MarkBlocked: true,
	})
	require.NoError(t, err)

	archived := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "archived", Deadline: deadlineIn(10 * 24 * time.Hour)})
	_, err = env.Engine.ArchiveUnit(env.Ctx, env.Owner, archived.ID)
	require.NoError(t, err)

	noDeadline := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Title: "open-ended"})

	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(9*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.UnitsChecked)
	assert.Zero(t, report.EscalationsCreated)

	for _, id := range []string{green.ID, blocked.ID, archived.ID, noDeadline.ID} {
		u, err := env.Engine.Repo.GetUnit(env.Ctx, id)
		require.NoError(t, err)
		if id == blocked.ID {
			// manual escalation already raised it before the block
			assert.Equal(t, 1, u.EscalationLevel)
			continue
		}
		assert.Zero(t, u.EscalationLevel)
	}
}

func TestSweepApproachingReminder(t *testing.T) {
	env := newTestEnv(t)
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(30 * 24 * time.Hour)})

	// two days out: approaching reminder to the lead, owner not yet in window
	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(28*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.RemindersSent)

	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{})
	require.NoError(t, err)
	var reminded []string
	for _, n := range notes {
		if containsReminder(n.PayloadJSON) {
			reminded = append(reminded, n.RecipientEmail)
		}
	}
	require.Len(t, reminded, 1)
	assert.Equal(t, env.Lead.Email, reminded[0])
}

func containsReminder(payload string) bool {
	return strings.Contains(payload, `"reminder"`)
}

func TestSweepOverdueReminderIncludesOwner(t *testing.T) {
	env := newTestEnv(t)
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(24 * time.Hour)})

	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.RemindersSent)

	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{})
	require.NoError(t, err)
	emails := map[string]bool{}
	for _, n := range notes {
		if containsReminder(n.PayloadJSON) {
			emails[n.RecipientEmail] = true
		}
	}
	assert.True(t, emails[env.Lead.Email])
	assert.True(t, emails[env.Owner.Email])
}

func TestReminderFiresOncePerKind(t *testing.T) {
	env := newTestEnv(t)
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(30 * 24 * time.Hour)})

	approaching := testClock.Add(28 * 24 * time.Hour)
	overdue := testClock.Add(31 * 24 * time.Hour)

	r1, err := env.Engine.RunSweep(env.Ctx, approaching)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.RemindersSent)

	r2, err := env.Engine.RunSweep(env.Ctx, approaching)
	require.NoError(t, err)
	assert.Zero(t, r2.RemindersSent)

	// the overdue kind is a distinct mark and fires once too
	r3, err := env.Engine.RunSweep(env.Ctx, overdue)
	require.NoError(t, err)
	assert.Equal(t, 1, r3.RemindersSent)

	r4, err := env.Engine.RunSweep(env.Ctx, overdue)
	require.NoError(t, err)
	assert.Zero(t, r4.RemindersSent)
}

func TestLevelThreeNotifiesAdminsAcrossOrgs(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.Seed(env.Ctx, engine.SeedOptions{
		OrgID: "org-2", OrgName: "Org Two",
		ClientID: "client-2", ClientName: "Globex",
		ProgramID: "program-2", ProgramName: "Upgrade",
		WorkstreamID: "ws-2", WorkstreamName: "Sites South",
		Actors: []domain.Actor{
			{ID: "admin-2", Email: "admin@org2.test", Role: domain.RolePlatformAdmin},
		},
	}))
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(10 * 24 * time.Hour)})

	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(9*24*time.Hour+12*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.EscalationsCreated)

	u, err = env.Engine.Repo.GetUnit(env.Ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 3, u.EscalationLevel)

	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{})
	require.NoError(t, err)
	emails := map[string]bool{}
	for _, n := range notes {
		emails[n.RecipientEmail] = true
	}
	// platform admins hear about level 3 regardless of organization
	assert.True(t, emails["admin@org1.test"])
	assert.True(t, emails["admin@org2.test"])
	// leads and owners stay scoped to the unit's organization
	assert.True(t, emails[env.Lead.Email])
	assert.False(t, emails[env.Outsider.Email])
}

func TestLevelBelowThreeKeepsAdminsScoped(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.Seed(env.Ctx, engine.SeedOptions{
		OrgID: "org-2", OrgName: "Org Two",
		ClientID: "client-2", ClientName: "Globex",
		ProgramID: "program-2", ProgramName: "Upgrade",
		WorkstreamID: "ws-2", WorkstreamName: "Sites South",
		Actors: []domain.Actor{
			{ID: "admin-2", Email: "admin@org2.test", Role: domain.RolePlatformAdmin},
		},
	}))
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(10 * 24 * time.Hour)})

	// 80% elapsed: level 2, leads and owners only
	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.EscalationsCreated)

	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{})
	require.NoError(t, err)
	for _, n := range notes {
		assert.NotEqual(t, "admin@org2.test", n.RecipientEmail)
	}
}

func TestSweepSkipsNonPositiveDeadlineWindow(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(0)})

	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.UnitsChecked)
	assert.Zero(t, report.EscalationsCreated)
	// the reminder pass still applies: the unit is overdue
	assert.Equal(t, 1, report.RemindersSent)

	u, err = env.Engine.Repo.GetUnit(env.Ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, u.EscalationLevel)

	escalations, err := env.Engine.Repo.ListEscalations(env.Ctx, repo.EscalationFilters{UnitID: u.ID})
	require.NoError(t, err)
	assert.Empty(t, escalations)
}

func TestEscalationNotificationsDedupeSharedInbox(t *testing.T) {
	env := newTestEnv(t)
	// a program owner sharing the lead's inbox must not double the mail
	require.NoError(t, env.Engine.Seed(env.Ctx, engine.SeedOptions{
		OrgID: "org-1", OrgName: "Org One",
		ClientID: "client-1", ClientName: "Acme",
		ProgramID: "program-1", ProgramName: "Rollout",
		WorkstreamID: "ws-1", WorkstreamName: "Sites North",
		Actors: []domain.Actor{
			{ID: "owner-3", Email: env.Lead.Email, Role: domain.RoleProgramOwner},
		},
	}))
	env.createUnit(t, env.Lead, engine.CreateUnitOptions{Deadline: deadlineIn(30 * 24 * time.Hour)})

	// 80% elapsed: level 2 targets leads and owners; deadline still six
	// days out, so no reminder muddies the count
	report, err := env.Engine.RunSweep(env.Ctx, testClock.Add(24*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.EscalationsCreated)
	assert.Equal(t, 2, report.NotificationsCreated)

	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{})
	require.NoError(t, err)
	emails := map[string]int{}
	for _, n := range notes {
		emails[n.RecipientEmail]++
	}
	assert.Equal(t, 1, emails[env.Lead.Email])
	assert.Equal(t, 1, emails[env.Owner.Email])
}

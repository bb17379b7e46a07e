package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/events"
	"trackline/internal/repo"
)

// SweepReport summarizes one sweep run. Errors carries per-unit failures; a
// bad unit never aborts the rest of the pass.
type SweepReport struct {
	UnitsChecked         int      `json:"units_checked"`
	EscalationsCreated   int      `json:"escalations_created"`
	NotificationsCreated int      `json:"notifications_created"`
	RemindersSent        int      `json:"reminders_sent"`
	Errors               []string `json:"errors,omitempty"`
}

const (
	reminderApproaching = "approaching"
	reminderOverdue     = "overdue"
)

// RunSweep walks every escalatable unit once: non-GREEN, not blocked, not
// archived, with a deadline. Each unit is advanced to the highest level its
// elapsed percentage has reached, at most once per level, then checked for
// deadline reminders. The whole pass reads a single clock value so repeated
// runs over an unchanged database are no-ops.
func (e Engine) RunSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport
	units, err := e.Repo.ListEscalatable(ctx)
	if err != nil {
		return report, err
	}
	for _, u := range units {
		report.UnitsChecked++
		if err := e.sweepUnit(ctx, u, now, &report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("unit %s: %v", u.ID, err))
		}
	}
	return report, nil
}

func (e Engine) sweepUnit(ctx context.Context, u domain.Unit, now time.Time, report *SweepReport) error {
	if u.Deadline == nil {
		return nil
	}
	deadline, err := time.Parse(time.RFC3339, *u.Deadline)
	if err != nil {
		return fmt.Errorf("deadline: %w", err)
	}
	created, err := time.Parse(time.RFC3339, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}

	// a non-positive window cannot be mapped onto elapsed percent; such
	// units never escalate automatically, only the reminder pass applies
	if deadline.After(created) {
		target := e.Config.Escalation.LevelFor(percentElapsed(created, deadline, now))
		if target > u.EscalationLevel {
			if err := e.escalateAutomatic(ctx, u, target, now, report); err != nil {
				return err
			}
		}
	}
	return e.remindDeadline(ctx, u, deadline, now, report)
}

// percentElapsed maps the creation->deadline window onto 0..N percent. The
// caller guarantees a positive window.
func percentElapsed(created, deadline, now time.Time) float64 {
	return float64(now.Sub(created)) / float64(deadline.Sub(created)) * 100
}

// escalateAutomatic advances the unit level with a compare-and-set so two
// overlapping sweeps cannot both record the same transition. The level
// advance, the escalation row, the audit event, and the recipient
// notifications commit together or not at all.
func (e Engine) escalateAutomatic(ctx context.Context, u domain.Unit, target int, now time.Time, report *SweepReport) error {
	ts := timestamp(now)
	roles, recipients, err := e.escalationRecipients(ctx, u.OrgID, target)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.AdvanceEscalationLevel(ctx, tx, u.ID, u.EscalationLevel, target, ts); err != nil {
		if errors.Is(err, repo.ErrStaleLevel) {
			// Another sweep already moved this unit.
			return nil
		}
		return err
	}

	es := domain.Escalation{
		ID:               uuid.New().String(),
		UnitID:           u.ID,
		OrgID:            u.OrgID,
		Level:            target,
		Type:             domain.EscalationAutomatic,
		Reason:           fmt.Sprintf("deadline threshold for level %d reached", target),
		Status:           domain.EscalationActive,
		VisibleRolesJSON: mustJSON(roles),
		CreatedBy:        "system",
		CreatedAt:        ts,
	}
	if err := e.Repo.InsertEscalation(ctx, tx, es); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "unit.escalated", u.OrgID, "unit", u.ID, "system", events.EventPayload{
		"escalation_id": es.ID,
		"from_level":    u.EscalationLevel,
		"to_level":      target,
		"type":          domain.EscalationAutomatic,
	}); err != nil {
		return err
	}

	sent, err := e.queueNotifications(ctx, tx, recipients, ts,
		fmt.Sprintf("Unit %q escalated to level %d", u.Title, target),
		fmt.Sprintf("Unit %q (deadline %s) reached escalation level %d: %s", u.Title, *u.Deadline, target, es.Reason),
		map[string]any{"unit_id": u.ID, "escalation_id": es.ID, "level": target})
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	report.EscalationsCreated++
	report.NotificationsCreated += sent
	return nil
}

// remindDeadline fires the approaching and overdue reminders. Each (unit,
// kind) pair fires exactly once ever; the mark row is what remembers that.
func (e Engine) remindDeadline(ctx context.Context, u domain.Unit, deadline, now time.Time, report *SweepReport) error {
	until := deadline.Sub(now)
	overdue := until < 0
	approachingWindow := time.Duration(e.Config.Escalation.Reminders.ApproachingDays) * 24 * time.Hour
	ownerWindow := time.Duration(e.Config.Escalation.Reminders.OwnerWithinDays) * 24 * time.Hour

	kind := ""
	switch {
	case overdue:
		kind = reminderOverdue
	case until <= approachingWindow:
		kind = reminderApproaching
	default:
		return nil
	}

	roles := []domain.Role{domain.RoleWorkstreamLead}
	if overdue || until <= ownerWindow {
		roles = append(roles, domain.RoleProgramOwner)
	}
	recipients, err := e.Repo.ActorsByRole(ctx, u.OrgID, roles)
	if err != nil {
		return err
	}

	ts := timestamp(now)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	fresh, err := e.Repo.MarkDeadlineReminded(ctx, tx, u.ID, kind, ts)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	subject := fmt.Sprintf("Deadline approaching for unit %q", u.Title)
	body := fmt.Sprintf("Unit %q is due %s.", u.Title, *u.Deadline)
	if overdue {
		subject = fmt.Sprintf("Unit %q is overdue", u.Title)
		body = fmt.Sprintf("Unit %q was due %s and has no approved evidence.", u.Title, *u.Deadline)
	}
	sent, err := e.queueNotifications(ctx, tx, recipients, ts, subject, body,
		map[string]any{"unit_id": u.ID, "reminder": kind})
	if err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "unit.deadline.reminded", u.OrgID, "unit", u.ID, "system", events.EventPayload{
		"kind": kind,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	report.RemindersSent++
	report.NotificationsCreated += sent
	return nil
}

// escalationRecipients resolves who hears about a level transition. Below the
// top level every role stays inside the unit's organization; at the top level
// platform admins from all organizations are pulled in as well.
func (e Engine) escalationRecipients(ctx context.Context, orgID string, target int) ([]domain.Role, []domain.Actor, error) {
	roles := e.Config.Escalation.RolesFor(target)
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleWorkstreamLead}
	}
	var scoped, global []domain.Role
	for _, role := range roles {
		if target >= domain.MaxEscalationLevel && role == domain.RolePlatformAdmin {
			global = append(global, role)
			continue
		}
		scoped = append(scoped, role)
	}
	recipients, err := e.Repo.ActorsByRole(ctx, orgID, scoped)
	if err != nil {
		return nil, nil, err
	}
	if len(global) > 0 {
		admins, err := e.Repo.ActorsByRole(ctx, "", global)
		if err != nil {
			return nil, nil, err
		}
		recipients = append(recipients, admins...)
	}
	return roles, recipients, nil
}

// queueNotifications inserts one pending notification per distinct recipient
// email. Actors resolved through several matching roles, or sharing an inbox,
// are notified once.
func (e Engine) queueNotifications(ctx context.Context, tx *sql.Tx, actors []domain.Actor, ts, subject, body string, payload map[string]any) (int, error) {
	seen := make(map[string]bool, len(actors))
	sent := 0
	for _, a := range actors {
		key := strings.ToLower(a.Email)
		if key == "" {
			key = a.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		n := domain.Notification{
			ID:             uuid.New().String(),
			RecipientID:    a.ID,
			RecipientEmail: a.Email,
			Channel:        "email",
			Subject:        subject,
			Body:           body,
			PayloadJSON:    mustJSON(payload),
			Status:         domain.NotifyPending,
			CreatedAt:      ts,
		}
		if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

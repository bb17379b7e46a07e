package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/guard"
	"trackline/internal/events"
)

// ManualEscalateOptions carries an attention request raised by a person
// rather than the sweep.
type ManualEscalateOptions struct {
	UnitID      string
	Reason      string
	MarkBlocked bool
	BlockReason string
}

// ManualEscalate raises the unit one level (capped at the maximum) and
// records a manual escalation. A block requested alongside is applied only
// when the caller's role carries block authority; otherwise it is recorded as
// a proposal for someone who does.
func (e Engine) ManualEscalate(ctx context.Context, p domain.Principal, opts ManualEscalateOptions) (domain.Escalation, error) {
	if strings.TrimSpace(opts.Reason) == "" {
		return domain.Escalation{}, InvalidStateError{Violation: "escalation requires a reason"}
	}
	u, err := e.Repo.GetUnit(ctx, opts.UnitID)
	if err != nil {
		return domain.Escalation{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Escalation{}, err
	}
	if p.Role == domain.RoleClientViewer {
		return domain.Escalation{}, guard.ForbiddenError{Reason: "client viewers may not escalate"}
	}
	if u.IsArchived {
		return domain.Escalation{}, InvalidStateError{Violation: "unit is archived"}
	}

	target := u.EscalationLevel + 1
	if target > domain.MaxEscalationLevel {
		target = domain.MaxEscalationLevel
	}
	applyBlock := opts.MarkBlocked && guard.CanConfirmBlock(p.Role)
	proposeBlock := opts.MarkBlocked && !applyBlock

	roles, recipients, err := e.escalationRecipients(ctx, u.OrgID, target)
	if err != nil {
		return domain.Escalation{}, err
	}

	now := timestamp(e.now())
	es := domain.Escalation{
		ID:               uuid.New().String(),
		UnitID:           u.ID,
		OrgID:            u.OrgID,
		Level:            target,
		Type:             domain.EscalationManual,
		Reason:           opts.Reason,
		Status:           domain.EscalationActive,
		VisibleRolesJSON: mustJSON(roles),
		ProposedBlocked:  proposeBlock,
		CreatedBy:        p.UserID,
		CreatedAt:        now,
	}
	if proposeBlock {
		role := string(p.Role)
		es.ProposedByRole = &role
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Escalation{}, err
	}
	defer tx.Rollback()
	if target > u.EscalationLevel {
		if err := e.Repo.AdvanceEscalationLevel(ctx, tx, u.ID, u.EscalationLevel, target, now); err != nil {
			return domain.Escalation{}, err
		}
	}
	if err := e.Repo.InsertEscalation(ctx, tx, es); err != nil {
		return domain.Escalation{}, err
	}
	if applyBlock {
		reason := opts.BlockReason
		if reason == "" {
			reason = opts.Reason
		}
		if err := e.Repo.SetUnitBlocked(ctx, tx, u.ID, reason, p.UserID, now); err != nil {
			return domain.Escalation{}, err
		}
		if err := e.Events.Append(ctx, tx, "unit.blocked", u.OrgID, "unit", u.ID, p.UserID, events.EventPayload{
			"reason": reason,
		}); err != nil {
			return domain.Escalation{}, err
		}
		blocked := u
		blocked.IsBlocked = true
		if _, err := e.recomputeStatusTx(ctx, tx, blocked, nil); err != nil {
			return domain.Escalation{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "unit.escalated", u.OrgID, "unit", u.ID, p.UserID, events.EventPayload{
		"escalation_id":    es.ID,
		"from_level":       u.EscalationLevel,
		"to_level":         target,
		"type":             domain.EscalationManual,
		"proposed_blocked": proposeBlock,
	}); err != nil {
		return domain.Escalation{}, err
	}
	subject := fmt.Sprintf("Unit %q escalated to level %d", u.Title, target)
	body := fmt.Sprintf("Unit %q was manually escalated to level %d: %s", u.Title, target, opts.Reason)
	if proposeBlock {
		body += " A block was proposed and awaits confirmation."
	}
	if _, err := e.queueNotifications(ctx, tx, recipients, now, subject, body,
		map[string]any{"unit_id": u.ID, "escalation_id": es.ID, "level": target}); err != nil {
		return domain.Escalation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Escalation{}, err
	}
	return es, nil
}

// Unblock lifts a confirmed block, resets the escalation level, and
// recomputes status from the unit's surviving evidence.
func (e Engine) Unblock(ctx context.Context, p domain.Principal, unitID, reason string) (domain.Unit, error) {
	u, err := e.Repo.GetUnit(ctx, unitID)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Unit{}, err
	}
	if !guard.CanUnblock(p.Role) {
		return domain.Unit{}, guard.ForbiddenError{Reason: "only program owners or platform admins may unblock"}
	}
	if !u.IsBlocked {
		return domain.Unit{}, InvalidStateError{Violation: "unit is not blocked"}
	}

	now := timestamp(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unit{}, err
	}
	defer tx.Rollback()
	// re-read under the tx: a concurrent unblock must not double-fire
	u, err = e.Repo.GetUnitTx(ctx, tx, u.ID)
	if err != nil {
		return domain.Unit{}, err
	}
	if !u.IsBlocked {
		return domain.Unit{}, InvalidStateError{Violation: "unit is not blocked"}
	}
	if err := e.Repo.ClearUnitBlocked(ctx, tx, u.ID, now); err != nil {
		return domain.Unit{}, err
	}
	if err := e.Events.Append(ctx, tx, "unit.unblocked", u.OrgID, "unit", u.ID, p.UserID, events.EventPayload{
		"reason": reason,
	}); err != nil {
		return domain.Unit{}, err
	}
	unblocked := u
	unblocked.IsBlocked = false
	unblocked.EscalationLevel = 0
	evidence, err := e.Repo.ListUnitEvidenceTx(ctx, tx, u.ID)
	if err != nil {
		return domain.Unit{}, err
	}
	status, err := e.recomputeStatusTx(ctx, tx, unblocked, evidence)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Unit{}, err
	}
	return e.applyUnblock(u, status, now), nil
}

func (e Engine) applyUnblock(u domain.Unit, status, now string) domain.Unit {
	u.IsBlocked = false
	u.BlockedReason = nil
	u.BlockedAt = nil
	u.BlockedBy = nil
	u.EscalationLevel = 0
	u.ComputedStatus = status
	u.StatusComputedAt = &now
	u.UpdatedAt = now
	return u
}

// ResolveEscalation closes an active escalation. The escalation row survives
// as audit history.
func (e Engine) ResolveEscalation(ctx context.Context, p domain.Principal, escalationID, note string) (domain.Escalation, error) {
	es, err := e.Repo.GetEscalation(ctx, escalationID)
	if err != nil {
		return domain.Escalation{}, err
	}
	if err := guard.CheckTenant(p, es.OrgID); err != nil {
		return domain.Escalation{}, err
	}
	if !guard.CanResolveEscalation(p.Role) {
		return domain.Escalation{}, guard.ForbiddenError{Reason: "role may not resolve escalations"}
	}
	if es.Status != domain.EscalationActive {
		return domain.Escalation{}, InvalidStateError{Violation: "escalation already resolved"}
	}

	now := timestamp(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Escalation{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ResolveEscalation(ctx, tx, es.ID, p.UserID, now); err != nil {
		return domain.Escalation{}, err
	}
	if err := e.Events.Append(ctx, tx, "escalation.resolved", es.OrgID, "escalation", es.ID, p.UserID, events.EventPayload{
		"unit_id": es.UnitID,
		"note":    note,
	}); err != nil {
		return domain.Escalation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Escalation{}, err
	}
	es.Status = domain.EscalationResolved
	es.ResolvedAt = &now
	es.ResolvedBy = &p.UserID
	return es, nil
}

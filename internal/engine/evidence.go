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

// SubmitEvidenceOptions carries an evidence upload.
type SubmitEvidenceOptions struct {
	UnitID   string
	Type     string
	BlobPath string
}

var evidenceTypes = map[string]bool{
	"photo":       true,
	"document":    true,
	"certificate": true,
	"note":        true,
}

// SubmitEvidence records a pending proof against a unit. Supersession of any
// previously approved record is deferred until this record is itself
// approved.
func (e Engine) SubmitEvidence(ctx context.Context, p domain.Principal, opts SubmitEvidenceOptions) (domain.Evidence, error) {
	if !evidenceTypes[opts.Type] {
		return domain.Evidence{}, fmt.Errorf("unknown evidence type %q", opts.Type)
	}
	u, err := e.Repo.GetUnit(ctx, opts.UnitID)
	if err != nil {
		return domain.Evidence{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Evidence{}, err
	}
	if !guard.CanSubmitEvidence(p.Role) {
		return domain.Evidence{}, guard.ForbiddenError{Reason: "role may not submit evidence"}
	}
	if u.IsArchived {
		return domain.Evidence{}, InvalidStateError{Violation: "unit is archived"}
	}
	fileURL := ""
	if opts.BlobPath != "" {
		fileURL, err = e.Storage.PublicURL(opts.BlobPath)
		if err != nil {
			return domain.Evidence{}, err
		}
	}
	now := timestamp(e.now())
	ev := domain.Evidence{
		ID:             uuid.New().String(),
		UnitID:         u.ID,
		OrgID:          u.OrgID,
		Type:           opts.Type,
		FileURL:        fileURL,
		UploaderID:     p.UserID,
		UploaderEmail:  strings.ToLower(p.Email),
		UploadedAt:     now,
		ApprovalStatus: domain.ApprovalPending,
		IsValid:        true,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Evidence{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEvidence(ctx, tx, ev); err != nil {
		return domain.Evidence{}, err
	}
	if err := e.Events.Append(ctx, tx, "evidence.submitted", u.OrgID, "evidence", ev.ID, p.UserID, events.EventPayload{
		"unit_id": u.ID,
		"type":    ev.Type,
	}); err != nil {
		return domain.Evidence{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Evidence{}, err
	}
	return ev, nil
}

// DecideEvidence approves or rejects a pending record. This is the primary
// trust boundary: role authority, separation of duties, and criticality
// authority are each enforced before any state change.
func (e Engine) DecideEvidence(ctx context.Context, p domain.Principal, evidenceID, action, reason string) (domain.Evidence, error) {
	if action != "approve" && action != "reject" {
		return domain.Evidence{}, fmt.Errorf("unknown decision action %q", action)
	}
	ev, err := e.Repo.GetEvidence(ctx, evidenceID)
	if err != nil {
		return domain.Evidence{}, err
	}
	u, err := e.Repo.GetUnit(ctx, ev.UnitID)
	if err != nil {
		return domain.Evidence{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Evidence{}, err
	}
	if !guard.CanDecideEvidence(p.Role, u.HighCriticality) {
		if u.HighCriticality && p.Role == domain.RoleWorkstreamLead {
			return domain.Evidence{}, guard.ForbiddenError{Reason: "high-criticality unit requires program owner or platform admin"}
		}
		return domain.Evidence{}, guard.ForbiddenError{Reason: "role may not decide evidence"}
	}
	if guard.SameActor(p, ev.UploaderID, ev.UploaderEmail) {
		return domain.Evidence{}, guard.ForbiddenError{Reason: "uploader may not decide their own evidence"}
	}
	if ev.ApprovalStatus != domain.ApprovalPending {
		return domain.Evidence{}, InvalidStateError{Violation: "evidence already decided"}
	}
	if action == "reject" && strings.TrimSpace(reason) == "" {
		return domain.Evidence{}, InvalidStateError{Violation: "rejection requires a reason"}
	}

	now := timestamp(e.now())
	status := domain.ApprovalApproved
	var rejectionReason *string
	if action == "reject" {
		status = domain.ApprovalRejected
		rejectionReason = &reason
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Evidence{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DecideEvidence(ctx, tx, ev.ID, status, p.UserID, now, rejectionReason); err != nil {
		return domain.Evidence{}, err
	}
	if status == domain.ApprovalApproved {
		// The new approval displaces whatever previously satisfied the unit.
		if err := e.Repo.SupersedeApproved(ctx, tx, u.ID, ev.ID, ev.ID); err != nil {
			return domain.Evidence{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "evidence."+status, u.OrgID, "evidence", ev.ID, p.UserID, events.EventPayload{
		"unit_id": u.ID,
		"reason":  reason,
	}); err != nil {
		return domain.Evidence{}, err
	}

	// Recompute from the post-decision evidence set within the same tx.
	updatedSet, err := e.Repo.ListUnitEvidenceTx(ctx, tx, u.ID)
	if err != nil {
		return domain.Evidence{}, err
	}
	if _, err := e.recomputeStatusTx(ctx, tx, u, updatedSet); err != nil {
		return domain.Evidence{}, err
	}

	uploaderNote := domain.Notification{
		ID:             uuid.New().String(),
		RecipientID:    ev.UploaderID,
		RecipientEmail: ev.UploaderEmail,
		Channel:        "email",
		Subject:        fmt.Sprintf("Evidence %s for unit %q", status, u.Title),
		Body:           evidenceDecisionBody(u, ev, status, reason),
		PayloadJSON:    mustJSON(map[string]any{"unit_id": u.ID, "evidence_id": ev.ID, "decision": status}),
		Status:         domain.NotifyPending,
		CreatedAt:      now,
	}
	if err := e.Repo.InsertNotification(ctx, tx, uploaderNote); err != nil {
		return domain.Evidence{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Evidence{}, err
	}

	ev.ApprovalStatus = status
	ev.DecidedBy = &p.UserID
	ev.DecidedAt = &now
	ev.RejectionReason = rejectionReason
	return ev, nil
}

func evidenceDecisionBody(u domain.Unit, ev domain.Evidence, status, reason string) string {
	if status == domain.ApprovalRejected {
		return fmt.Sprintf("Your %s evidence for unit %q was rejected: %s", ev.Type, u.Title, reason)
	}
	return fmt.Sprintf("Your %s evidence for unit %q was approved.", ev.Type, u.Title)
}

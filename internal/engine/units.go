package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/guard"
	"trackline/internal/events"
	"trackline/internal/repo"
)

type CreateUnitOptions struct {
	WorkstreamID       string
	Title              string
	Description        string
	Deadline           string
	HighCriticality    bool
	EvidencePolicyJSON string
}

// CreateUnit registers a new deliverable. Units start RED: nothing is done
// until proven done. A contributor-created unit additionally starts
// unconfirmed and waits for a lead or above to ratify it.
func (e Engine) CreateUnit(ctx context.Context, p domain.Principal, opts CreateUnitOptions) (domain.Unit, error) {
	if !guard.CanCreateUnit(p.Role) {
		return domain.Unit{}, guard.ForbiddenError{Reason: "role may not create units"}
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Unit{}, InvalidStateError{Violation: "unit requires a title"}
	}
	ws, err := e.Repo.GetWorkstream(ctx, opts.WorkstreamID)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := guard.CheckTenant(p, ws.OrgID); err != nil {
		return domain.Unit{}, err
	}
	var deadline *string
	if opts.Deadline != "" {
		t, err := time.Parse(time.RFC3339, opts.Deadline)
		if err != nil {
			return domain.Unit{}, InvalidStateError{Violation: "deadline must be RFC3339"}
		}
		d := timestamp(t)
		deadline = &d
	}
	var policy *string
	if opts.EvidencePolicyJSON != "" {
		if _, err := parseEvidencePolicy(&opts.EvidencePolicyJSON); err != nil {
			return domain.Unit{}, InvalidStateError{Violation: err.Error()}
		}
		policy = &opts.EvidencePolicyJSON
	}

	now := timestamp(e.now())
	u := domain.Unit{
		ID:                 uuid.New().String(),
		WorkstreamID:       ws.ID,
		OrgID:              ws.OrgID,
		Title:              opts.Title,
		Description:        opts.Description,
		Deadline:           deadline,
		ComputedStatus:     domain.StatusRed,
		StatusComputedAt:   &now,
		IsConfirmed:        p.Role != domain.RoleFieldContributor,
		HighCriticality:    opts.HighCriticality,
		EvidencePolicyJSON: policy,
		CreatedBy:          p.UserID,
		CreatedByRole:      p.Role,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unit{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUnit(ctx, tx, u); err != nil {
		return domain.Unit{}, err
	}
	if err := e.Events.Append(ctx, tx, "unit.created", u.OrgID, "unit", u.ID, p.UserID, events.EventPayload{
		"workstream_id": ws.ID,
		"title":         u.Title,
		"confirmed":     u.IsConfirmed,
	}); err != nil {
		return domain.Unit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Unit{}, err
	}
	return u, nil
}

// ConfirmUnit ratifies a contributor-created unit.
func (e Engine) ConfirmUnit(ctx context.Context, p domain.Principal, unitID string) (domain.Unit, error) {
	u, err := e.Repo.GetUnit(ctx, unitID)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Unit{}, err
	}
	if !guard.CanConfirmUnit(p.Role) {
		return domain.Unit{}, guard.ForbiddenError{Reason: "role may not confirm units"}
	}
	if u.IsConfirmed {
		return domain.Unit{}, InvalidStateError{Violation: "unit already confirmed"}
	}
	if u.IsArchived {
		return domain.Unit{}, InvalidStateError{Violation: "unit is archived"}
	}

	now := timestamp(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unit{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ConfirmUnit(ctx, tx, u.ID, now); err != nil {
		return domain.Unit{}, err
	}
	if err := e.Events.Append(ctx, tx, "unit.confirmed", u.OrgID, "unit", u.ID, p.UserID, nil); err != nil {
		return domain.Unit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Unit{}, err
	}
	u.IsConfirmed = true
	u.UpdatedAt = now
	return u, nil
}

// ArchiveUnit retires a unit from all escalation evaluation. History stays.
func (e Engine) ArchiveUnit(ctx context.Context, p domain.Principal, unitID string) (domain.Unit, error) {
	u, err := e.Repo.GetUnit(ctx, unitID)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Unit{}, err
	}
	if !guard.CanArchiveUnit(p.Role) {
		return domain.Unit{}, guard.ForbiddenError{Reason: "only program owners or platform admins may archive"}
	}
	if u.IsArchived {
		return domain.Unit{}, InvalidStateError{Violation: "unit already archived"}
	}

	now := timestamp(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Unit{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ArchiveUnit(ctx, tx, u.ID, now); err != nil {
		return domain.Unit{}, err
	}
	if err := e.Events.Append(ctx, tx, "unit.archived", u.OrgID, "unit", u.ID, p.UserID, nil); err != nil {
		return domain.Unit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Unit{}, err
	}
	u.IsArchived = true
	u.UpdatedAt = now
	return u, nil
}

// GetUnit is the tenant-checked read path for the API and CLI.
func (e Engine) GetUnit(ctx context.Context, p domain.Principal, unitID string) (domain.Unit, error) {
	u, err := e.Repo.GetUnit(ctx, unitID)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return domain.Unit{}, err
	}
	return u, nil
}

// ListUnits lists live units within the viewer's organization. Platform
// admins see every organization.
func (e Engine) ListUnits(ctx context.Context, p domain.Principal, f repo.UnitFilters) ([]domain.Unit, error) {
	if p.Role != domain.RolePlatformAdmin {
		f.OrgID = p.OrgID
	}
	return e.Repo.ListUnits(ctx, f)
}

// ListUnitEvidence returns the non-superseded evidence for a unit the viewer
// can see.
func (e Engine) ListUnitEvidence(ctx context.Context, p domain.Principal, unitID string) ([]domain.Evidence, error) {
	u, err := e.Repo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if err := guard.CheckTenant(p, u.OrgID); err != nil {
		return nil, err
	}
	return e.Repo.ListUnitEvidence(ctx, u.ID)
}

package engine

import (
	"context"

	"trackline/internal/domain"
)

// SeedOptions describes an organization skeleton: one client, program and
// workstream plus the initial actor roster. Every part is upserted, so
// seeding is safe to repeat.
type SeedOptions struct {
	OrgID          string
	OrgName        string
	ClientID       string
	ClientName     string
	ProgramID      string
	ProgramName    string
	WorkstreamID   string
	WorkstreamName string
	Actors         []domain.Actor
}

// Seed provisions the hierarchy a fresh deployment needs before any unit can
// exist.
func (e Engine) Seed(ctx context.Context, opts SeedOptions) error {
	now := timestamp(e.now())
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureOrg(ctx, tx, opts.OrgID, opts.OrgName, now); err != nil {
		return err
	}
	if opts.ClientID != "" {
		if err := e.Repo.EnsureClient(ctx, tx, opts.ClientID, opts.OrgID, opts.ClientName, now); err != nil {
			return err
		}
	}
	if opts.ProgramID != "" {
		if err := e.Repo.EnsureProgram(ctx, tx, opts.ProgramID, opts.ClientID, opts.OrgID, opts.ProgramName, now); err != nil {
			return err
		}
	}
	if opts.WorkstreamID != "" {
		if err := e.Repo.EnsureWorkstream(ctx, tx, opts.WorkstreamID, opts.ProgramID, opts.OrgID, opts.WorkstreamName, now); err != nil {
			return err
		}
	}
	for _, a := range opts.Actors {
		if a.OrgID == "" {
			a.OrgID = opts.OrgID
		}
		if a.CreatedAt == "" {
			a.CreatedAt = now
		}
		if err := e.Repo.EnsureActor(ctx, tx, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

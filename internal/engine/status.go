package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"trackline/internal/domain"
	"trackline/internal/events"
)

// EvidencePolicy configures what counts toward a unit's GREEN status.
// A nil policy on the unit means: one approved record of any type.
type EvidencePolicy struct {
	Types    []string `json:"types,omitempty"`
	MinCount int      `json:"min_count"`
}

func parseEvidencePolicy(raw *string) (EvidencePolicy, error) {
	if raw == nil || *raw == "" {
		return EvidencePolicy{MinCount: 1}, nil
	}
	var p EvidencePolicy
	if err := json.Unmarshal([]byte(*raw), &p); err != nil {
		return p, fmt.Errorf("evidence policy: %w", err)
	}
	if p.MinCount <= 0 {
		return p, fmt.Errorf("evidence policy: min_count must be positive")
	}
	for _, t := range p.Types {
		if t == "" {
			return p, fmt.Errorf("evidence policy: empty evidence type")
		}
	}
	return p, nil
}

func (p EvidencePolicy) accepts(evType string) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, t := range p.Types {
		if t == evType {
			return true
		}
	}
	return false
}

// statusFor derives the lifecycle status from a unit and its non-superseded
// evidence. A confirmed block overrides everything. A malformed policy is an
// error, never a silent promotion to GREEN.
func statusFor(u domain.Unit, evidence []domain.Evidence) (string, error) {
	if u.IsBlocked {
		return domain.StatusBlocked, nil
	}
	policy, err := parseEvidencePolicy(u.EvidencePolicyJSON)
	if err != nil {
		return "", err
	}
	satisfied := 0
	for _, ev := range evidence {
		if ev.ApprovalStatus != domain.ApprovalApproved || !ev.IsValid || ev.IsSuperseded {
			continue
		}
		if policy.accepts(ev.Type) {
			satisfied++
		}
	}
	if satisfied >= policy.MinCount {
		return domain.StatusGreen, nil
	}
	return domain.StatusRed, nil
}

// ComputeStatus recomputes and persists a unit's status. On a malformed
// evidence policy the prior status is left untouched and the error surfaced.
func (e Engine) ComputeStatus(ctx context.Context, unitID string) (domain.Unit, error) {
	u, err := e.Repo.GetUnit(ctx, unitID)
	if err != nil {
		return domain.Unit{}, err
	}
	evidence, err := e.Repo.ListUnitEvidence(ctx, unitID)
	if err != nil {
		return u, err
	}
	status, err := statusFor(u, evidence)
	if err != nil {
		return u, err
	}
	now := timestamp(e.now())

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUnitStatus(ctx, tx, u.ID, status, now, now); err != nil {
		return u, err
	}
	if status != u.ComputedStatus {
		if err := e.Events.Append(ctx, tx, "unit.status.changed", u.OrgID, "unit", u.ID, "system", events.EventPayload{
			"from": u.ComputedStatus,
			"to":   status,
		}); err != nil {
			return u, err
		}
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	u.ComputedStatus = status
	u.StatusComputedAt = &now
	u.UpdatedAt = now
	return u, nil
}

// recomputeStatusTx is the in-transaction variant used after evidence
// decisions and unblocks so the status write shares the caller's transaction.
func (e Engine) recomputeStatusTx(ctx context.Context, tx *sql.Tx, u domain.Unit, evidence []domain.Evidence) (string, error) {
	status, err := statusFor(u, evidence)
	if err != nil {
		return "", err
	}
	now := timestamp(e.now())
	if err := e.Repo.UpdateUnitStatus(ctx, tx, u.ID, status, now, now); err != nil {
		return "", err
	}
	if status != u.ComputedStatus {
		if err := e.Events.Append(ctx, tx, "unit.status.changed", u.OrgID, "unit", u.ID, "system", events.EventPayload{
			"from": u.ComputedStatus,
			"to":   status,
		}); err != nil {
			return "", err
		}
	}
	return status, nil
}

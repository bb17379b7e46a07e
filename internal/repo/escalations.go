package repo

import (
	"context"
	"database/sql"

	"trackline/internal/domain"
)

const escalationColumns = `id, unit_id, org_id, level, escalation_type, reason, status, visible_roles_json,
proposed_blocked, proposed_by_role, created_by, created_at, resolved_at, resolved_by`

func scanEscalation(scan func(dest ...any) error) (domain.Escalation, error) {
	var es domain.Escalation
	var visibleRoles, proposedByRole, resolvedAt, resolvedBy sql.NullString
	var proposed int
	err := scan(&es.ID, &es.UnitID, &es.OrgID, &es.Level, &es.Type, &es.Reason, &es.Status, &visibleRoles,
		&proposed, &proposedByRole, &es.CreatedBy, &es.CreatedAt, &resolvedAt, &resolvedBy)
	if err == sql.ErrNoRows {
		return es, ErrNotFound
	}
	if err != nil {
		return es, err
	}
	if visibleRoles.Valid {
		es.VisibleRolesJSON = visibleRoles.String
	}
	if proposedByRole.Valid {
		es.ProposedByRole = &proposedByRole.String
	}
	if resolvedAt.Valid {
		es.ResolvedAt = &resolvedAt.String
	}
	if resolvedBy.Valid {
		es.ResolvedBy = &resolvedBy.String
	}
	es.ProposedBlocked = proposed == 1
	return es, nil
}

func (r Repo) InsertEscalation(ctx context.Context, tx *sql.Tx, es domain.Escalation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO escalations(`+escalationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		es.ID, es.UnitID, es.OrgID, es.Level, es.Type, es.Reason, es.Status, nullable(es.VisibleRolesJSON),
		boolInt(es.ProposedBlocked), nullableStringPtr(es.ProposedByRole), es.CreatedBy, es.CreatedAt,
		nullableStringPtr(es.ResolvedAt), nullableStringPtr(es.ResolvedBy))
	return err
}

func (r Repo) GetEscalation(ctx context.Context, id string) (domain.Escalation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id=?`, id)
	return scanEscalation(row.Scan)
}

type EscalationFilters struct {
	UnitID string
	OrgID  string
	Status string
	Type   string
}

func (r Repo) ListEscalations(ctx context.Context, f EscalationFilters) ([]domain.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE 1=1`
	var args []any
	if f.UnitID != "" {
		query += ` AND unit_id=?`
		args = append(args, f.UnitID)
	}
	if f.OrgID != "" {
		query += ` AND org_id=?`
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += ` AND escalation_type=?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Escalation
	for rows.Next() {
		es, err := scanEscalation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, es)
	}
	return res, rows.Err()
}

// ResolveEscalation flips an active row to resolved. Escalations are
// append-only audit facts; this is the only mutation they ever see.
func (r Repo) ResolveEscalation(ctx context.Context, tx *sql.Tx, id, resolvedBy, resolvedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE escalations SET status=?, resolved_at=?, resolved_by=? WHERE id=? AND status=?`,
		domain.EscalationResolved, resolvedAt, resolvedBy, id, domain.EscalationActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeadlineReminded records that a reminder of the given kind fired for a
// unit. Returns false without error when the mark already exists, which is
// what makes the reminder pass idempotent.
func (r Repo) MarkDeadlineReminded(ctx context.Context, tx *sql.Tx, unitID, kind, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO deadline_reminders(unit_id, kind, created_at) VALUES (?,?,?)`,
		unitID, kind, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

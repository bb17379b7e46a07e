package repo

import (
	"context"
	"database/sql"

	"trackline/internal/domain"
)

const evidenceColumns = `id, unit_id, org_id, type, file_url, uploader_id, uploader_email, uploaded_at,
approval_status, decided_by, decided_at, rejection_reason, is_valid, is_superseded, superseded_by`

func scanEvidence(scan func(dest ...any) error) (domain.Evidence, error) {
	var ev domain.Evidence
	var fileURL, decidedBy, decidedAt, rejectionReason, supersededBy sql.NullString
	var valid, superseded int
	err := scan(&ev.ID, &ev.UnitID, &ev.OrgID, &ev.Type, &fileURL, &ev.UploaderID, &ev.UploaderEmail, &ev.UploadedAt,
		&ev.ApprovalStatus, &decidedBy, &decidedAt, &rejectionReason, &valid, &superseded, &supersededBy)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	if err != nil {
		return ev, err
	}
	if fileURL.Valid {
		ev.FileURL = fileURL.String
	}
	if decidedBy.Valid {
		ev.DecidedBy = &decidedBy.String
	}
	if decidedAt.Valid {
		ev.DecidedAt = &decidedAt.String
	}
	if rejectionReason.Valid {
		ev.RejectionReason = &rejectionReason.String
	}
	if supersededBy.Valid {
		ev.SupersededBy = &supersededBy.String
	}
	ev.IsValid = valid == 1
	ev.IsSuperseded = superseded == 1
	return ev, nil
}

func (r Repo) InsertEvidence(ctx context.Context, tx *sql.Tx, ev domain.Evidence) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO evidence(`+evidenceColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.UnitID, ev.OrgID, ev.Type, nullable(ev.FileURL), ev.UploaderID, ev.UploaderEmail, ev.UploadedAt,
		ev.ApprovalStatus, nullableStringPtr(ev.DecidedBy), nullableStringPtr(ev.DecidedAt),
		nullableStringPtr(ev.RejectionReason), boolInt(ev.IsValid), boolInt(ev.IsSuperseded), nullableStringPtr(ev.SupersededBy))
	return err
}

func (r Repo) GetEvidence(ctx context.Context, id string) (domain.Evidence, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE id=?`, id)
	return scanEvidence(row.Scan)
}

// ListUnitEvidence returns every non-superseded record for a unit; the
// status computer and the approval gate both read through this.
func (r Repo) ListUnitEvidence(ctx context.Context, unitID string) ([]domain.Evidence, error) {
	return r.queryEvidence(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE unit_id=? AND is_superseded=0 ORDER BY uploaded_at, id`, unitID)
}

// ListPendingEvidence returns pending-approval records, org-scoped unless
// orgID is empty (platform admin view).
func (r Repo) ListPendingEvidence(ctx context.Context, orgID string) ([]domain.Evidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence WHERE approval_status=? AND is_superseded=0`
	args := []any{domain.ApprovalPending}
	if orgID != "" {
		query += ` AND org_id=?`
		args = append(args, orgID)
	}
	query += ` ORDER BY uploaded_at, id`
	return r.queryEvidence(ctx, query, args...)
}

// ListUnitEvidenceTx is the in-transaction variant used when a decision and
// the resulting status recompute must read through the same transaction.
func (r Repo) ListUnitEvidenceTx(ctx context.Context, tx *sql.Tx, unitID string) ([]domain.Evidence, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE unit_id=? AND is_superseded=0 ORDER BY uploaded_at, id`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (r Repo) queryEvidence(ctx context.Context, query string, args ...any) ([]domain.Evidence, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (r Repo) DecideEvidence(ctx context.Context, tx *sql.Tx, id, status, decidedBy, decidedAt string, rejectionReason *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE evidence SET approval_status=?, decided_by=?, decided_at=?, rejection_reason=? WHERE id=? AND approval_status=?`,
		status, decidedBy, decidedAt, nullableStringPtr(rejectionReason), id, domain.ApprovalPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SupersedeApproved marks all previously approved records for the unit as
// superseded by the newly approved one. Supersession happens at approval
// time, never at upload time.
func (r Repo) SupersedeApproved(ctx context.Context, tx *sql.Tx, unitID, exceptID, supersededByID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE evidence SET is_superseded=1, superseded_by=? WHERE unit_id=? AND approval_status=? AND is_superseded=0 AND id != ?`,
		supersededByID, unitID, domain.ApprovalApproved, exceptID)
	return err
}

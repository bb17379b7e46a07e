package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"trackline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrStaleLevel signals a lost compare-and-set race on a unit's escalation
// level. The caller treats it as transient and leaves the unit for the next
// scheduled pass.
var ErrStaleLevel = errors.New("escalation level changed concurrently")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- tenant hierarchy seed helpers (org/program/workstream CRUD is external;
// these exist for the CLI seeder and tests) ---

func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	if name == "" {
		name = id
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO organizations(id, name, created_at) VALUES (?,?,?)`, id, name, now)
	return err
}

func (r Repo) EnsureClient(ctx context.Context, tx *sql.Tx, id, orgID, name, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO clients(id, org_id, name, created_at) VALUES (?,?,?,?)`, id, orgID, name, now)
	return err
}

func (r Repo) EnsureProgram(ctx context.Context, tx *sql.Tx, id, clientID, orgID, name, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO programs(id, client_id, org_id, name, created_at) VALUES (?,?,?,?,?)`, id, clientID, orgID, name, now)
	return err
}

func (r Repo) EnsureWorkstream(ctx context.Context, tx *sql.Tx, id, programID, orgID, name, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO workstreams(id, program_id, org_id, name, created_at) VALUES (?,?,?,?,?)`, id, programID, orgID, name, now)
	return err
}

func (r Repo) GetWorkstream(ctx context.Context, id string) (domain.Workstream, error) {
	var w domain.Workstream
	err := r.DB.QueryRowContext(ctx, `SELECT id, program_id, org_id, name, created_at FROM workstreams WHERE id=?`, id).
		Scan(&w.ID, &w.ProgramID, &w.OrgID, &w.Name, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, created_at FROM organizations ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// --- units ---

const unitColumns = `id, workstream_id, org_id, title, description, deadline, computed_status, status_computed_at,
current_escalation_level, is_blocked, blocked_reason, blocked_at, blocked_by, is_confirmed, high_criticality,
is_archived, evidence_policy_json, created_by, created_by_role, created_at, updated_at`

func scanUnit(scan func(dest ...any) error) (domain.Unit, error) {
	var u domain.Unit
	var description, deadline, statusComputedAt, blockedReason, blockedAt, blockedBy, policy sql.NullString
	var blocked, confirmed, critical, archived int
	err := scan(&u.ID, &u.WorkstreamID, &u.OrgID, &u.Title, &description, &deadline, &u.ComputedStatus, &statusComputedAt,
		&u.EscalationLevel, &blocked, &blockedReason, &blockedAt, &blockedBy, &confirmed, &critical,
		&archived, &policy, &u.CreatedBy, &u.CreatedByRole, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if description.Valid {
		u.Description = description.String
	}
	if deadline.Valid {
		u.Deadline = &deadline.String
	}
	if statusComputedAt.Valid {
		u.StatusComputedAt = &statusComputedAt.String
	}
	if blockedReason.Valid {
		u.BlockedReason = &blockedReason.String
	}
	if blockedAt.Valid {
		u.BlockedAt = &blockedAt.String
	}
	if blockedBy.Valid {
		u.BlockedBy = &blockedBy.String
	}
	if policy.Valid {
		u.EvidencePolicyJSON = &policy.String
	}
	u.IsBlocked = blocked == 1
	u.IsConfirmed = confirmed == 1
	u.HighCriticality = critical == 1
	u.IsArchived = archived == 1
	return u, nil
}

func (r Repo) InsertUnit(ctx context.Context, tx *sql.Tx, u domain.Unit) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO units(`+unitColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.WorkstreamID, u.OrgID, u.Title, nullable(u.Description), nullableStringPtr(u.Deadline), u.ComputedStatus,
		nullableStringPtr(u.StatusComputedAt), u.EscalationLevel, boolInt(u.IsBlocked), nullableStringPtr(u.BlockedReason),
		nullableStringPtr(u.BlockedAt), nullableStringPtr(u.BlockedBy), boolInt(u.IsConfirmed), boolInt(u.HighCriticality),
		boolInt(u.IsArchived), nullableStringPtr(u.EvidencePolicyJSON), u.CreatedBy, string(u.CreatedByRole), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUnit(ctx context.Context, id string) (domain.Unit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id=?`, id)
	return scanUnit(row.Scan)
}

func (r Repo) GetUnitTx(ctx context.Context, tx *sql.Tx, id string) (domain.Unit, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id=?`, id)
	return scanUnit(row.Scan)
}

type UnitFilters struct {
	OrgID        string
	WorkstreamID string
	Status       string
	Unconfirmed  bool
	Limit        int
}

func (r Repo) ListUnits(ctx context.Context, f UnitFilters) ([]domain.Unit, error) {
	clauses := []string{"is_archived=0"}
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.WorkstreamID != "" {
		clauses = append(clauses, "workstream_id=?")
		args = append(args, f.WorkstreamID)
	}
	if f.Status != "" {
		clauses = append(clauses, "computed_status=?")
		args = append(args, f.Status)
	}
	if f.Unconfirmed {
		clauses = append(clauses, "is_confirmed=0")
	}
	query := `SELECT ` + unitColumns + ` FROM units WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryUnits(ctx, query, args...)
}

// ListEscalatable returns the sweep's candidate set: live units with a
// deadline that are not GREEN and not blocked (a confirmed block means a
// human already owns the issue).
func (r Repo) ListEscalatable(ctx context.Context) ([]domain.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units
WHERE is_archived=0 AND is_blocked=0 AND deadline IS NOT NULL AND computed_status != ?`
	return r.queryUnits(ctx, query, domain.StatusGreen)
}

func (r Repo) queryUnits(ctx context.Context, query string, args ...any) ([]domain.Unit, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Unit
	for rows.Next() {
		u, err := scanUnit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUnitStatus persists a freshly computed status.
func (r Repo) UpdateUnitStatus(ctx context.Context, tx *sql.Tx, id, status, computedAt, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE units SET computed_status=?, status_computed_at=?, updated_at=? WHERE id=?`,
		status, computedAt, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceEscalationLevel performs the compare-and-set level write: it only
// succeeds if the stored level still equals the level the caller read.
func (r Repo) AdvanceEscalationLevel(ctx context.Context, tx *sql.Tx, id string, fromLevel, toLevel int, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE units SET current_escalation_level=?, updated_at=? WHERE id=? AND current_escalation_level=?`,
		toLevel, updatedAt, id, fromLevel)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleLevel
	}
	return nil
}

func (r Repo) SetUnitBlocked(ctx context.Context, tx *sql.Tx, id, reason, actorID, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE units SET is_blocked=1, computed_status=?, blocked_reason=?, blocked_at=?, blocked_by=?, updated_at=? WHERE id=?`,
		domain.StatusBlocked, reason, now, actorID, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ClearUnitBlocked(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE units SET is_blocked=0, blocked_reason=NULL, blocked_at=NULL, blocked_by=NULL, current_escalation_level=0, updated_at=? WHERE id=?`,
		now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ConfirmUnit(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE units SET is_confirmed=1, updated_at=? WHERE id=?`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ArchiveUnit(ctx context.Context, tx *sql.Tx, id, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE units SET is_archived=1, updated_at=? WHERE id=?`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- audit events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, orgID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id, ts, type, COALESCE(org_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OrgID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

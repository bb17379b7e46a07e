package repo

import (
	"context"
	"database/sql"
	"strings"

	"trackline/internal/domain"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, email, role, org_id, created_at) VALUES (?,?,?,?,?)`,
		a.ID, strings.ToLower(a.Email), string(a.Role), a.OrgID, a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	err := r.DB.QueryRowContext(ctx, `SELECT id, email, role, org_id, created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Email, &a.Role, &a.OrgID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// ActorsByRole returns actors holding one of the given roles. When orgID is
// empty the lookup spans all organizations (the level-3 platform-admin case).
func (r Repo) ActorsByRole(ctx context.Context, orgID string, roles []domain.Role) ([]domain.Actor, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	query := `SELECT id, email, role, org_id, created_at FROM actors WHERE role IN (` + placeholders + `)`
	var args []any
	for _, role := range roles {
		args = append(args, string(role))
	}
	if orgID != "" {
		query += ` AND org_id=?`
		args = append(args, orgID)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Email, &a.Role, &a.OrgID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) ListActors(ctx context.Context, orgID string) ([]domain.Actor, error) {
	query := `SELECT id, email, role, org_id, created_at FROM actors`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id=?`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Email, &a.Role, &a.OrgID, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

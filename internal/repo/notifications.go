package repo

import (
	"context"
	"database/sql"

	"trackline/internal/domain"
)

const notificationColumns = `id, recipient_id, recipient_email, channel, subject, body, payload_json,
status, attempts, last_error, created_at, sent_at`

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var recipientID, payload, lastError, sentAt sql.NullString
	err := scan(&n.ID, &recipientID, &n.RecipientEmail, &n.Channel, &n.Subject, &n.Body, &payload,
		&n.Status, &n.Attempts, &lastError, &n.CreatedAt, &sentAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if recipientID.Valid {
		n.RecipientID = recipientID.String
	}
	if payload.Valid {
		n.PayloadJSON = payload.String
	}
	if lastError.Valid {
		n.LastError = &lastError.String
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.String
	}
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, nullable(n.RecipientID), n.RecipientEmail, n.Channel, n.Subject, n.Body, nullable(n.PayloadJSON),
		n.Status, n.Attempts, nullableStringPtr(n.LastError), n.CreatedAt, nullableStringPtr(n.SentAt))
	return err
}

// ListDeliverable returns pending rows plus failed rows still under the
// attempt cap, oldest first. The dispatcher drains these on its own clock.
func (r Repo) ListDeliverable(ctx context.Context, maxAttempts, limit int) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications
WHERE status=? OR (status=? AND attempts < ?) ORDER BY created_at, id LIMIT ?`,
		domain.NotifyPending, domain.NotifyFailed, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

type NotificationFilters struct {
	Status string
	Limit  int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationSent(ctx context.Context, id, sentAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET status=?, attempts=attempts+1, sent_at=?, last_error=NULL WHERE id=?`,
		domain.NotifySent, sentAt, id)
	return err
}

func (r Repo) MarkNotificationFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET status=?, attempts=attempts+1, last_error=? WHERE id=?`,
		domain.NotifyFailed, errMsg, id)
	return err
}

func (r Repo) CountNotifications(ctx context.Context, status string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE status=?`, status).Scan(&n)
	return n, err
}

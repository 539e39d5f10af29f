package repository

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
)

func (q *Queries) EnqueueNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO notification_outbox (id, kind, recipient_id, to_address, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, n.ID, n.Kind, n.RecipientID, n.ToAddress, n.Subject, n.Body, n.Status).Scan(&n.CreatedAt)
	return mapErr(err)
}

// ClaimNotifications stamps a lease on up to limit pending rows in a single
// statement. Row locks last only for that statement; the lease keeps other
// relays off the rows while they are delivered.
func (q *Queries) ClaimNotifications(ctx context.Context, limit int, lease time.Duration) ([]models.Notification, error) {
	rows, err := q.db.QueryContext(ctx, `
		UPDATE notification_outbox SET claimed_until = NOW() + $2 * INTERVAL '1 millisecond'
		WHERE id IN (
			SELECT id FROM notification_outbox
			WHERE status = 'pending' AND (claimed_until IS NULL OR claimed_until < NOW())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, recipient_id, to_address, subject, body, status, attempts, last_error, created_at, sent_at, claimed_until
	`, limit, lease.Milliseconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var sentAt, claimedUntil sql.NullTime
		if err := rows.Scan(&n.ID, &n.Kind, &n.RecipientID, &n.ToAddress, &n.Subject, &n.Body,
			&n.Status, &n.Attempts, &n.LastError, &n.CreatedAt, &sentAt, &claimedUntil); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			t := sentAt.Time
			n.SentAt = &t
		}
		if claimedUntil.Valid {
			t := claimedUntil.Time
			n.ClaimedUntil = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery's order.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *Queries) MarkNotificationSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET status = 'sent', attempts = attempts + 1, sent_at = $2, last_error = '', claimed_until = NULL
		WHERE id = $1
	`, id, at))
}

// MarkNotificationAttempt records a failed attempt; failed=true retires the row.
func (q *Queries) MarkNotificationAttempt(ctx context.Context, id uuid.UUID, lastErr string, failed bool) error {
	status := models.NotificationPending
	if failed {
		status = models.NotificationFailed
	}
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE notification_outbox
		SET attempts = attempts + 1, last_error = $2, status = $3, claimed_until = NULL
		WHERE id = $1
	`, id, lastErr, status))
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
	"github.com/google/uuid"
)

const conversationColumns = `c.id, c.user_id, c.influencer_id, c.last_message_at, c.created_at`

func conversationDest(c *models.Conversation) []interface{} {
	return []interface{}{&c.ID, &c.UserID, &c.InfluencerID, &c.LastMessageAt, &c.CreatedAt}
}

// UpsertConversation returns the pair's conversation, creating it when absent.
// UNIQUE(user_id, influencer_id) makes concurrent first contact converge on one row.
func (q *Queries) UpsertConversation(ctx context.Context, userID, influencerID string) (*models.Conversation, error) {
	var c models.Conversation
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO conversations AS c (id, user_id, influencer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, influencer_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+conversationColumns,
		uuid.New(), userID, influencerID,
	).Scan(conversationDest(&c)...)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (q *Queries) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	err := q.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id).
		Scan(conversationDest(&c)...)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// TouchConversation advances last_message_at; it never moves backwards.
func (q *Queries) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	return requireRow(q.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id = $1
	`, id, at))
}

func (q *Queries) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.IsRead, m.CreatedAt)
	return mapErr(err)
}

func (q *Queries) InsertVoiceMemo(ctx context.Context, v *models.VoiceMemo) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO voice_memos (id, message_id, influencer_id, file_url, duration, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.MessageID, v.InfluencerID, v.FileURL, v.Duration, v.IsRead, v.CreatedAt)
	return mapErr(err)
}

// MarkMessagesRead flips the counterpart's unread messages and their voice memos.
func (q *Queries) MarkMessagesRead(ctx context.Context, conversationID uuid.UUID, viewerID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		WITH flipped AS (
			UPDATE messages SET is_read = TRUE
			WHERE conversation_id = $1 AND sender_id <> $2 AND is_read = FALSE
			RETURNING id
		), memos AS (
			UPDATE voice_memos SET is_read = TRUE
			WHERE message_id IN (SELECT id FROM flipped)
		)
		SELECT COUNT(*) FROM flipped
	`, conversationID, viewerID).Scan(&n)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// ListMessages returns up to limit messages positioned before the cursor,
// newest first.
func (q *Queries) ListMessages(ctx context.Context, conversationID uuid.UUID, before *models.MessageCursor, limit int) ([]models.Message, error) {
	var beforeAt, beforeID interface{}
	if before != nil {
		beforeAt, beforeID = before.CreatedAt.UTC(), before.ID
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.is_read, m.created_at,
			v.id, v.influencer_id, v.file_url, v.duration, v.is_read, v.created_at
		FROM messages m
		LEFT JOIN voice_memos v ON v.message_id = m.id
		WHERE m.conversation_id = $1
			AND ($2::timestamptz IS NULL OR (m.created_at, m.id) < ($2::timestamptz, $3::uuid))
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4
	`, conversationID, beforeAt, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var (
			memoID       uuid.NullUUID
			influencerID sql.NullString
			fileURL      sql.NullString
			duration     sql.NullInt64
			memoRead     sql.NullBool
			memoCreated  sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt,
			&memoID, &influencerID, &fileURL, &duration, &memoRead, &memoCreated); err != nil {
			return nil, err
		}
		if memoID.Valid {
			m.VoiceMemo = &models.VoiceMemo{
				ID:           memoID.UUID,
				MessageID:    m.ID,
				InfluencerID: influencerID.String,
				FileURL:      fileURL.String,
				Duration:     int(duration.Int64),
				IsRead:       memoRead.Bool,
				CreatedAt:    memoCreated.Time,
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListConversationsForUser lists one side's inbox with counterpart, preview and unread count.
func (q *Queries) ListConversationsForUser(ctx context.Context, userID string, influencerSide bool) ([]models.ConversationSummary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`,
			u.id, u.first_name, u.last_name, u.image_url,
			lm.content, lm.sender_id, lm.created_at,
			(SELECT COUNT(*) FROM messages um
				WHERE um.conversation_id = c.id AND um.sender_id <> $1 AND um.is_read = FALSE)
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN $2 THEN c.user_id ELSE c.influencer_id END
		LEFT JOIN LATERAL (
			SELECT m.content, m.sender_id, m.created_at FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC
			LIMIT 1
		) lm ON TRUE
		WHERE (CASE WHEN $2 THEN c.influencer_id ELSE c.user_id END) = $1
		ORDER BY c.last_message_at DESC
	`, userID, influencerSide)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var s models.ConversationSummary
		var (
			content  sql.NullString
			senderID sql.NullString
			sentAt   sql.NullTime
		)
		dest := append(conversationDest(&s.Conversation),
			&s.CounterpartID, &s.CounterpartFirstName, &s.CounterpartLastName, &s.CounterpartImageURL,
			&content, &senderID, &sentAt, &s.UnreadCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.LastMessage = content.String
		s.LastMessageSenderID = senderID.String
		if sentAt.Valid {
			t := sentAt.Time
			s.LastMessageCreatedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *Queries) CountUnreadForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.user_id = $1 OR c.influencer_id = $1) AND m.sender_id <> $1 AND m.is_read = FALSE
	`, userID).Scan(&n)
	return n, err
}

func (q *Queries) CountConversationsForUser(ctx context.Context, userID string, influencerSide bool) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM conversations
		WHERE (CASE WHEN $2 THEN influencer_id ELSE user_id END) = $1
	`, userID, influencerSide).Scan(&n)
	return n, err
}

// InfluencerStats counts messages fans sent the influencer and distinct fans.
func (q *Queries) InfluencerStats(ctx context.Context, influencerID string) (int64, int64, error) {
	var messages, fans int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(m.id), COUNT(DISTINCT c.user_id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id AND m.sender_id = c.user_id
		WHERE c.influencer_id = $1
	`, influencerID).Scan(&messages, &fans)
	return messages, fans, err
}

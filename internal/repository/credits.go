package repository

import (
	"context"
	"database/sql"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

func (q *Queries) CreateCreditBalance(ctx context.Context, userID string, balance int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, balance)
	return mapErr(err)
}

// AddCredits creates the balance at amount or increments it in one statement.
func (q *Queries) AddCredits(ctx context.Context, userID string, amount int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO user_credits (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_credits.balance + EXCLUDED.balance, updated_at = NOW()
	`, userID, amount)
	return mapErr(err)
}

// DebitCredits decrements only when the balance covers amount. false means it did not.
func (q *Queries) DebitCredits(ctx context.Context, userID string, amount int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE user_credits
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
	`, amount, userID)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *Queries) GetCreditBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx, `SELECT balance FROM user_credits WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, mapErr(err)
	}
	return balance, nil
}

// InsertCreditTransaction reports false when external_ref was already recorded.
func (q *Queries) InsertCreditTransaction(ctx context.Context, t *models.CreditTransaction) (bool, error) {
	var ref sql.NullString
	if t.ExternalRef != "" {
		ref = sql.NullString{String: t.ExternalRef, Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO credit_transactions (user_id, amount, type, external_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_ref) WHERE external_ref IS NOT NULL DO NOTHING
	`, t.UserID, t.Amount, t.Type, ref)
	if err != nil {
		return false, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *Queries) ListCreditTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, COALESCE(external_ref, ''), created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.ExternalRef, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

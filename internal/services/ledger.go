package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/AnshRaj112/voiceconnect-backend/internal/models"
)

const defaultHistoryLimit = 100

// Ledger owns credit balances. Every balance change writes exactly one
// transaction row in the same database transaction.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

type CreditResult struct {
	Balance   int64 `json:"balance"`
	Duplicate bool  `json:"duplicate"`
}

// Credit adds amount for a confirmed purchase or a refund. A repeated
// externalRef is a redelivery and changes nothing.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason models.TransactionType, externalRef string) (*CreditResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", ErrValidation)
	}
	if reason != models.TransactionPurchase && reason != models.TransactionRefund {
		return nil, fmt.Errorf("%w: credit reason %q", ErrValidation, reason)
	}

	result := &CreditResult{}
	err := l.store.WithTx(ctx, func(r Repo) error {
		inserted, err := r.InsertCreditTransaction(ctx, &models.CreditTransaction{
			UserID:      userID,
			Amount:      amount,
			Type:        reason,
			ExternalRef: externalRef,
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
		} else if err := r.AddCredits(ctx, userID, amount); err != nil {
			return err
		}
		result.Balance, err = r.GetCreditBalance(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Debit spends amount or fails with ErrInsufficientCredits, leaving no trace.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason models.TransactionType) error {
	return l.store.WithTx(ctx, func(r Repo) error {
		return debitIn(ctx, r, userID, amount, reason)
	})
}

// debitIn is the debit step for callers that already hold a transaction.
func debitIn(ctx context.Context, r Repo, userID string, amount int64, reason models.TransactionType) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit amount must be positive", ErrValidation)
	}
	if reason != models.TransactionUsage {
		return fmt.Errorf("%w: debit reason %q", ErrValidation, reason)
	}
	ok, err := r.DebitCredits(ctx, userID, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInsufficientCredits
	}
	_, err = r.InsertCreditTransaction(ctx, &models.CreditTransaction{
		UserID: userID,
		Amount: -amount,
		Type:   models.TransactionUsage,
	})
	return err
}

// Balance is zero for users without a balance row.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := l.store.GetCreditBalance(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	return balance, err
}

// History lists the actor's transactions, newest first.
func (l *Ledger) History(ctx context.Context, actor *models.User, limit int) ([]models.CreditTransaction, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return l.store.ListCreditTransactions(ctx, actor.ID, limit)
}

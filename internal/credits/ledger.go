// Package credits implements the append-only credit ledger. Balance is a fold
// over transactions; idempotency comes from the uniqueness constraint on
// trans_no rather than a read-then-write check.
package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"videoforge/internal/domain"
	"videoforge/internal/infra"
)

// Ledger posts and reads credit transactions for users.
type Ledger struct {
	repo   domain.CreditRepository
	logger infra.Logger
}

// NewLedger constructs a ledger over the given repository.
func NewLedger(repo domain.CreditRepository, logger infra.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// PostOptions carries optional transaction fields.
type PostOptions struct {
	Reason       string
	RelatedJobID string
	ExpiresAt    *time.Time
}

// Post appends one transaction. Amount is signed micro-units; deductions are
// negative. If transNo already exists and the existing row has the same type
// and amount, the existing row is returned (a crash-and-retry is
// success-equivalent); any other duplicate is an error.
func (l *Ledger) Post(ctx context.Context, userID string, txType domain.TransactionType, amount int64, transNo string, opts PostOptions) (*domain.CreditTransaction, error) {
	tx := &domain.CreditTransaction{
		ID:           uuid.NewString(),
		TransNo:      transNo,
		UserID:       userID,
		Type:         txType,
		Amount:       amount,
		Reason:       opts.Reason,
		RelatedJobID: opts.RelatedJobID,
		ExpiresAt:    opts.ExpiresAt,
		CreatedAt:    time.Now().UTC(),
	}
	err := l.repo.Insert(ctx, tx)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		return nil, fmt.Errorf("post transaction %s: %w", transNo, err)
	}
	existing, getErr := l.repo.GetByTransNo(ctx, transNo)
	if getErr != nil {
		return nil, fmt.Errorf("load duplicate transaction %s: %w", transNo, getErr)
	}
	if existing.Type != txType || existing.Amount != amount || existing.UserID != userID {
		return nil, fmt.Errorf("%w: %s exists with different type or amount", domain.ErrDuplicateTransaction, transNo)
	}
	l.logger.Debug().Str("trans_no", transNo).Msg("ledger: duplicate post matched existing transaction")
	return existing, nil
}

// Balance returns the raw signed sum of a user's transactions in micro-units.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.repo.SumByUserID(ctx, userID)
}

// DisplayBalance clamps the balance at zero for presentation.
func (l *Ledger) DisplayBalance(ctx context.Context, userID string) (int64, error) {
	sum, err := l.repo.SumByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if sum < 0 {
		return 0, nil
	}
	return sum, nil
}

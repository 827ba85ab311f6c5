package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoforge/internal/domain"
)

const uniqueViolation = "23505"

// CreditRepositoryPG implements domain.CreditRepository backed by PostgreSQL.
// The unique index on trans_no is the idempotency mechanism: a duplicate
// insert fails at the constraint, not at an application-level read.
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new credit transaction repository.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// Insert appends a ledger entry. Entries are never updated or deleted.
func (r *CreditRepositoryPG) Insert(ctx context.Context, tx *domain.CreditTransaction) error {
	query := `
INSERT INTO credit_transactions (id, trans_no, user_id, type, amount, reason, related_job_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.TransNo,
		tx.UserID,
		tx.Type,
		tx.Amount,
		tx.Reason,
		tx.RelatedJobID,
		tx.ExpiresAt,
		tx.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

// GetByTransNo fetches a transaction by its idempotency key.
func (r *CreditRepositoryPG) GetByTransNo(ctx context.Context, transNo string) (*domain.CreditTransaction, error) {
	row := r.pool.QueryRow(ctx, selectTransactionColumns+` WHERE trans_no = $1;`, transNo)
	return scanTransactionRow(row)
}

// SumByUserID folds a user's ledger into its raw signed balance.
func (r *CreditRepositoryPG) SumByUserID(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1;`, userID).Scan(&sum)
	return sum, err
}

// ListExpiredGrants returns grant/bonus entries whose expiry has passed and
// that have no matching expire entry yet.
func (r *CreditRepositoryPG) ListExpiredGrants(ctx context.Context, now time.Time, limit int) ([]domain.CreditTransaction, error) {
	query := selectTransactionColumns + `
WHERE type IN ('grant', 'bonus')
  AND expires_at IS NOT NULL
  AND expires_at < $1
  AND NOT EXISTS (
    SELECT 1 FROM credit_transactions e WHERE e.trans_no = 'expire:' || credit_transactions.trans_no
  )
ORDER BY expires_at ASC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		tx, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const selectTransactionColumns = `
SELECT id, trans_no, user_id, type, amount, reason, related_job_id, expires_at, created_at
FROM credit_transactions`

func scanTransactionRow(row pgx.Row) (*domain.CreditTransaction, error) {
	var tx domain.CreditTransaction
	if err := row.Scan(
		&tx.ID,
		&tx.TransNo,
		&tx.UserID,
		&tx.Type,
		&tx.Amount,
		&tx.Reason,
		&tx.RelatedJobID,
		&tx.ExpiresAt,
		&tx.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

package domain

import "time"

// TransactionType enumerates ledger entry categories.
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "charge"
	TransactionTypeDeduct TransactionType = "deduct"
	TransactionTypeRefund TransactionType = "refund"
	TransactionTypeGrant  TransactionType = "grant"
	TransactionTypeBonus  TransactionType = "bonus"
	TransactionTypeExpire TransactionType = "expire"
)

// CreditTransaction is one signed, append-only ledger entry. Amount is in
// micro-units (1 credit = 10 micro-units); deductions are negative. TransNo is
// the idempotency key: a uniqueness constraint on it closes the double-post
// race. Entries are never updated or deleted; corrections are new entries.
type CreditTransaction struct {
	ID           string
	TransNo      string
	UserID       string
	Type         TransactionType
	Amount       int64
	Reason       string
	RelatedJobID string
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

package credits

import (
	"context"
	"errors"
	"testing"

	"videoforge/internal/adapter/memrepo"
	"videoforge/internal/domain"
	"videoforge/internal/infra"
)

func newTestLedger() *Ledger {
	return NewLedger(memrepo.NewStore().Credits(), infra.NewLogger("test", "test"))
}

func TestBalanceIsSumOfTransactions(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeGrant, 100, "grant-1", PostOptions{}); err != nil {
		t.Fatalf("post grant: %v", err)
	}
	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -30, "job:a", PostOptions{}); err != nil {
		t.Fatalf("post deduct: %v", err)
	}
	if _, err := ledger.Post(ctx, "u2", domain.TransactionTypeGrant, 500, "grant-2", PostOptions{}); err != nil {
		t.Fatalf("post other-user grant: %v", err)
	}

	balance, err := ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 70 {
		t.Fatalf("balance = %d, want 70", balance)
	}
}

func TestDuplicatePostIsIdempotent(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	first, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -50, "job:xyz", PostOptions{})
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	second, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -50, "job:xyz", PostOptions{})
	if err != nil {
		t.Fatalf("duplicate post should be success-equivalent, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate post created a second row: %s vs %s", second.ID, first.ID)
	}

	balance, err := ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != -50 {
		t.Fatalf("balance after duplicate post = %d, want -50", balance)
	}
}

func TestDuplicatePostWithDifferentAmountIsFatal(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -50, "job:xyz", PostOptions{}); err != nil {
		t.Fatalf("first post: %v", err)
	}
	_, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -60, "job:xyz", PostOptions{})
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Fatalf("mismatched duplicate error = %v, want ErrDuplicateTransaction", err)
	}
}

func TestDisplayBalanceClampsAtZero(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -40, "job:a", PostOptions{}); err != nil {
		t.Fatalf("post: %v", err)
	}
	display, err := ledger.DisplayBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("display balance: %v", err)
	}
	if display != 0 {
		t.Fatalf("display balance = %d, want 0", display)
	}
	raw, err := ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if raw != -40 {
		t.Fatalf("raw balance = %d, want -40", raw)
	}
}

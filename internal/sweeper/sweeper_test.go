package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"videoforge/internal/adapter/memrepo"
	"videoforge/internal/credits"
	"videoforge/internal/domain"
	"videoforge/internal/infra"
)

func TestSweepExpiresLapsedGrants(t *testing.T) {
	store := memrepo.NewStore()
	logger := infra.NewLogger("test", "test")
	ledger := credits.NewLedger(store.Credits(), logger)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeGrant, 100, "grant-old", credits.PostOptions{ExpiresAt: &past}); err != nil {
		t.Fatalf("post old grant: %v", err)
	}
	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeGrant, 50, "grant-new", credits.PostOptions{ExpiresAt: &future}); err != nil {
		t.Fatalf("post new grant: %v", err)
	}

	s := New(store.Credits(), store.Artifacts(), ledger, logger)
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	balance, err := ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance = %d, want 50 (old grant expired, new kept)", balance)
	}

	// A second sweep must not expire the same grant again.
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	balance, _ = ledger.Balance(ctx, "u1")
	if balance != 50 {
		t.Fatalf("balance after rerun = %d, want 50", balance)
	}
}

func TestExpiryClawsBackFullGrantEvenWhenSpent(t *testing.T) {
	store := memrepo.NewStore()
	logger := infra.NewLogger("test", "test")
	ledger := credits.NewLedger(store.Credits(), logger)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeGrant, 100, "grant-promo", credits.PostOptions{ExpiresAt: &past}); err != nil {
		t.Fatalf("post grant: %v", err)
	}
	if _, err := ledger.Post(ctx, "u1", domain.TransactionTypeDeduct, -80, "job:1", credits.PostOptions{}); err != nil {
		t.Fatalf("post deduct: %v", err)
	}

	s := New(store.Credits(), store.Artifacts(), ledger, logger)
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// The expire entry is the grant's full amount; spend is not allocated
	// against individual grants, so the raw balance can go negative.
	raw, err := ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if raw != -80 {
		t.Fatalf("raw balance = %d, want -80 (100 - 80 - 100)", raw)
	}
	display, err := ledger.DisplayBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("display balance: %v", err)
	}
	if display != 0 {
		t.Fatalf("display balance = %d, want 0", display)
	}
}

func TestSweepPurgesExpiredArtifacts(t *testing.T) {
	store := memrepo.NewStore()
	logger := infra.NewLogger("test", "test")
	ledger := credits.NewLedger(store.Credits(), logger)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	expired := &domain.Artifact{ID: "a1", UserID: "u1", RunID: "r1", JobID: "j1", Kind: domain.ArtifactKindImage, URL: "u", ExpiresAt: &past, CreatedAt: time.Now().UTC()}
	kept := &domain.Artifact{ID: "a2", UserID: "u1", RunID: "r1", JobID: "j2", Kind: domain.ArtifactKindImage, URL: "u", CreatedAt: time.Now().UTC()}
	if err := store.Artifacts().Create(ctx, expired); err != nil {
		t.Fatalf("create expired artifact: %v", err)
	}
	if err := store.Artifacts().Create(ctx, kept); err != nil {
		t.Fatalf("create kept artifact: %v", err)
	}

	s := New(store.Credits(), store.Artifacts(), ledger, logger)
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := store.Artifacts().GetByID(ctx, "a1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired artifact still present, err=%v", err)
	}
	if _, err := store.Artifacts().GetByID(ctx, "a2"); err != nil {
		t.Fatalf("unexpired artifact purged: %v", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/proyectoio2/back/internal/core/domain"
)

func TestLedgerRecordUsedTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.ledger.RecordUsed(ctx, "token-a", domain.TokenTypeRefresh, "u1"); err != nil {
		t.Fatalf("record used: %v", err)
	}
	if err := f.ledger.RecordUsed(ctx, "token-a", domain.TokenTypeRefresh, "u1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on replay, got %v", err)
	}
	consumed, err := f.ledger.IsConsumed(ctx, "token-a")
	if err != nil || !consumed {
		t.Fatalf("expected token-a consumed, got %v, %v", consumed, err)
	}
	if consumed, _ := f.ledger.IsConsumed(ctx, "token-b"); consumed {
		t.Fatalf("expected token-b unseen")
	}

	rows := f.db.ledgerRows()
	if len(rows) != 1 || rows[0].TokenHash == "token-a" || rows[0].UsedAt.Nanosecond() != 0 {
		t.Fatalf("expected a digested row stamped to the second, got %+v", rows)
	}
}

func TestLedgerSupersessionUsesIssueTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.clock.Now()

	f.clock.Advance(2 * time.Second)
	if err := f.ledger.RecordInvalidation(ctx, "u1", domain.TokenTypePasswordReset); err != nil {
		t.Fatalf("record invalidation: %v", err)
	}

	withIat := domain.TokenClaims{Subject: "u1", Type: domain.TokenTypePasswordReset, ExpiresAt: issued.Add(30 * time.Minute), IssuedAt: &issued}
	if superseded, err := f.ledger.IsSuperseded(ctx, "u1", withIat); err != nil || !superseded {
		t.Fatalf("expected superseded, got %v, %v", superseded, err)
	}

	// Without iat the issue time is derived from exp minus the type lifetime.
	derived := domain.TokenClaims{Subject: "u1", Type: domain.TokenTypePasswordReset, ExpiresAt: f.clock.Now().Add(30 * time.Minute)}
	if superseded, err := f.ledger.IsSuperseded(ctx, "u1", derived); err != nil || superseded {
		t.Fatalf("expected a token issued with the marker to survive, got %v, %v", superseded, err)
	}

	other := domain.TokenClaims{Subject: "u1", Type: domain.TokenTypeRefresh, ExpiresAt: issued.Add(time.Hour), IssuedAt: &issued}
	if superseded, _ := f.ledger.IsSuperseded(ctx, "u1", other); superseded {
		t.Fatalf("expected markers to be scoped by token type")
	}

	unknown := domain.TokenClaims{Subject: "u1", Type: domain.TokenType("api_key"), ExpiresAt: issued.Add(time.Hour)}
	if _, err := f.ledger.IsSuperseded(ctx, "u1", unknown); !errors.Is(err, ErrIssueTimeUnknown) {
		t.Fatalf("expected ErrIssueTimeUnknown, got %v", err)
	}
}

func TestLedgerPurge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.ledger.RecordUsed(ctx, "old", domain.TokenTypeRefresh, "u1"); err != nil {
		t.Fatalf("record used: %v", err)
	}
	f.clock.Advance(6 * 24 * time.Hour)
	if err := f.ledger.RecordUsed(ctx, "recent", domain.TokenTypeRefresh, "u1"); err != nil {
		t.Fatalf("record used: %v", err)
	}
	f.clock.Advance(2 * 24 * time.Hour)

	removed, err := f.ledger.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one row older than the refresh lifetime, got %d", removed)
	}
	if consumed, _ := f.ledger.IsConsumed(ctx, "recent"); !consumed {
		t.Fatalf("expected recent row kept")
	}
}

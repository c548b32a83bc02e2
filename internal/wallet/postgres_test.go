package wallet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/radieske/elimination-zones/internal/testutil"
	"github.com/radieske/elimination-zones/internal/wallet"
)

func TestRepo_DepositIdempotentByRef(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	r := wallet.NewRepo(conn)
	ctx := context.Background()

	id, bal, err := r.Deposit(ctx, "u1", testutil.D("25.50"), "pix-1")
	if err != nil || !bal.Equal(testutil.D("25.50")) {
		t.Fatalf("first deposit: %s %v", bal, err)
	}
	again, bal, err := r.Deposit(ctx, "u1", testutil.D("25.50"), "pix-1")
	if err != nil || again != id || !bal.Equal(testutil.D("25.50")) {
		t.Fatalf("replayed deposit: %s %s %v", again, bal, err)
	}
	_, bal, _ = r.Deposit(ctx, "u1", testutil.D("0.50"), "")
	if !bal.Equal(testutil.D("26")) {
		t.Fatalf("balance = %s", bal)
	}

	var entries int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM wallet_ledger WHERE wallet_id=$1`, id).Scan(&entries); err != nil {
		t.Fatal(err)
	}
	if entries != 2 {
		t.Fatalf("ledger entries = %d, want 2", entries)
	}
}

func TestRepo_GetOrCreateWallet(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	r := wallet.NewRepo(conn)
	ctx := context.Background()

	id, bal, err := r.GetOrCreateWallet(ctx, "new-user")
	if err != nil || id == "" || !bal.IsZero() {
		t.Fatalf("create: %q %s %v", id, bal, err)
	}
	same, _, _ := r.GetOrCreateWallet(ctx, "new-user")
	if same != id {
		t.Fatalf("wallet recreated: %s != %s", same, id)
	}
}

func TestRepo_DepositRejects(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	r := wallet.NewRepo(conn)
	ctx := context.Background()

	if _, _, err := r.Deposit(ctx, "u1", testutil.D("0"), ""); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Fatalf("zero: got %v", err)
	}
	if _, _, err := r.Deposit(ctx, "u1", testutil.D("1000000000.01"), ""); !errors.Is(err, wallet.ErrBalanceLimit) {
		t.Fatalf("limit: got %v", err)
	}
}

package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestLedgerStoreInsertEntries(t *testing.T) {
	ctx := context.Background()
	calls := 0
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO ledger_entries") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 9 {
				t.Fatalf("unexpected args: %#v", args)
			}
			calls++
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	entries := []LedgerEntryInput{
		{ID: "1", TransactionID: "tx", WalletID: "wallet-1", Direction: "debit", Amount: -100, BalanceAfter: 900, Currency: "USD"},
		{ID: "2", TransactionID: "tx", WalletID: "wallet-2", Direction: "credit", Amount: 100, BalanceAfter: 1100, Currency: "USD"},
	}
	if err := store.InsertEntries(ctx, execer, entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 inserts, got %d", calls)
	}
}

func TestLedgerStoreSumByWallet(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM ledger_entries") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != "wallet-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int64) = 1000
			return nil
		},
	})
	sum, err := store.SumByWallet(ctx, "wallet-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 1000 {
		t.Fatalf("unexpected sum: %d", sum)
	}
}

func TestLedgerStoreListByWallet(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "ORDER BY created_at DESC") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 3 || args[0] != "wallet-1" || args[1] != 10 || args[2] != 0 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]ledgerEntryRow) = []ledgerEntryRow{{ID: "entry-1", Direction: "credit", Amount: 500}}
			return nil
		},
	})
	rows, err := store.ListByWallet(ctx, "wallet-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "entry-1" || rows[0]["direction"] != "credit" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

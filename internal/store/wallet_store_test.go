package store

import (
	"context"
	"database/sql"
	"reflect"
	"strings"
	"testing"
)

func TestWalletStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO wallet_accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 4 || args[0] != "wallet-1" || args[2] != "main" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewWalletStore(stubDB{})
	if err := store.Create(ctx, execer, "wallet-1", "user-1", "main", "USD"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWalletStoreGetForUpdateByOwnerKind(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected row lock in query: %s", query)
			}
			if len(args) != 2 || args[0] != "user-1" || args[1] != "main" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*Wallet) = Wallet{ID: "wallet-1", OwnerID: "user-1", Kind: "main", Balance: 500}
			return nil
		},
	}
	store := NewWalletStore(stubDB{})
	wallet, err := store.GetForUpdateByOwnerKind(ctx, getter, "user-1", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wallet.ID != "wallet-1" || wallet.Balance != 500 {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}
}

func TestWalletStoreGetForUpdateByOwnerKindNoRows(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	}
	store := NewWalletStore(stubDB{})
	_, err := store.GetForUpdateByOwnerKind(ctx, getter, "user-1", "main")
	if !IsNoRows(err) {
		t.Fatalf("expected no-rows error, got %v", err)
	}
}

func TestWalletStoreUpdateBalance(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "UPDATE wallet_accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || args[0] != int64(750) || args[1] != "wallet-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewWalletStore(stubDB{})
	if err := store.UpdateBalance(ctx, execer, "wallet-1", 750); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWalletStoreGetByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewWalletStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "LEFT JOIN ledger_entries") {
				t.Fatalf("expected ledger join in query: %s", query)
			}
			if len(args) != 1 || args[0] != "user-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]WalletBalanceSummary) = []WalletBalanceSummary{
				{ID: "wallet-1", Kind: "main", StoredBalance: 1000, CalculatedBalance: 1000, Difference: 0},
				{ID: "wallet-2", Kind: "bonus", StoredBalance: 200, CalculatedBalance: 150, Difference: 50},
			}
			return nil
		},
	})
	rows, err := store.GetByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{0, 50}
	got := []int64{rows[0].Difference, rows[1].Difference}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("unexpected differences: %v", got)
	}
}

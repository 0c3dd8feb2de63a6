package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"coopledger/internal/money"
	"coopledger/internal/services"
	"coopledger/internal/store"
)

func TestGetSharePool(t *testing.T) {
	handler := newTestHandler(testDeps{
		shares: stubShareReadStore{
			getPoolFn: func(_ context.Context, poolID string) (store.SharePool, error) {
				if poolID != "pool-1" {
					t.Fatalf("unexpected pool id: %s", poolID)
				}
				return store.SharePool{
					ID:              "pool-1",
					TotalShares:     10000,
					AvailableShares: 7500,
					PricePerShare:   250,
					Currency:        "USD",
				}, nil
			},
		},
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/shares/pool", "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["price_per_share"] != "2.50" {
		t.Fatalf("expected price 2.50, got %v", payload["price_per_share"])
	}
}

func TestBuySharesSuccess(t *testing.T) {
	handler := newTestHandler(testDeps{
		shareSvc: stubShareService{
			buyFn: func(_ context.Context, ownerID string, quantity int64, actorID string) (services.BuyResult, error) {
				if ownerID != "user-1" || actorID != "user-1" || quantity != 8 {
					t.Fatalf("unexpected buy args: owner=%s actor=%s qty=%d", ownerID, actorID, quantity)
				}
				return services.BuyResult{
					TransactionID: "share-tx-1",
					TotalAmount:   money.New(2000, "USD"),
					BalanceAfter:  money.New(3000, "USD"),
				}, nil
			},
		},
	})

	body := []byte(`{"quantity":8,"confirm":true}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/shares/buy", "user-1", bytes.NewReader(body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["total_amount"] != "20.00" || payload["balance"] != "30.00" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestBuySharesBelowMinimum(t *testing.T) {
	handler := newTestHandler(testDeps{
		shareSvc: stubShareService{
			buyFn: func(context.Context, string, int64, string) (services.BuyResult, error) {
				return services.BuyResult{}, services.ErrBelowMinimumPurchase
			},
		},
	})

	body := []byte(`{"quantity":2,"confirm":true}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/shares/buy", "user-1", bytes.NewReader(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["error"] != "below_minimum_purchase" {
		t.Fatalf("unexpected error code: %s", payload["error"])
	}
}

func TestBuySharesRejectsZeroQuantity(t *testing.T) {
	handler := newTestHandler(testDeps{})

	body := []byte(`{"quantity":0,"confirm":true}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/shares/buy", "user-1", bytes.NewReader(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSellSharesReturnsPending(t *testing.T) {
	handler := newTestHandler(testDeps{
		shareSvc: stubShareService{
			sellFn: func(_ context.Context, _ string, quantity int64, _ string) (string, error) {
				if quantity != 4 {
					t.Fatalf("unexpected quantity: %d", quantity)
				}
				return "share-tx-2", nil
			},
		},
	})

	body := []byte(`{"quantity":4,"confirm":true}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/shares/sell", "user-1", bytes.NewReader(body))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "pending" {
		t.Fatalf("expected pending status, got %s", payload["status"])
	}
}

func TestSellSharesInsufficientHoldings(t *testing.T) {
	handler := newTestHandler(testDeps{
		shareSvc: stubShareService{
			sellFn: func(context.Context, string, int64, string) (string, error) {
				return "", services.ErrInsufficientShares
			},
		},
	})

	body := []byte(`{"quantity":100,"confirm":true}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/shares/sell", "user-1", bytes.NewReader(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestListShareTransactions(t *testing.T) {
	handler := newTestHandler(testDeps{
		shares: stubShareReadStore{
			listByOwnerFn: func(_ context.Context, ownerID string, _, _ int) ([]store.ShareTransaction, error) {
				if ownerID != "user-1" {
					t.Fatalf("unexpected owner: %s", ownerID)
				}
				return []store.ShareTransaction{{
					ID:            "share-tx-1",
					OwnerID:       "user-1",
					PoolID:        "pool-1",
					Kind:          "buy",
					Quantity:      8,
					PricePerShare: 250,
					TotalAmount:   2000,
					Status:        "completed",
				}}, nil
			},
		},
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/shares/transactions", "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rows []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rows) != 1 || rows[0]["total_amount"] != "20.00" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestApproveSale(t *testing.T) {
	approved := ""
	handler := newTestHandler(testDeps{
		admin: adminStoreAllowingAll(),
		shareSvc: stubShareService{
			approveFn: func(_ context.Context, transactionID, actorID string) error {
				if actorID != "admin-1" {
					t.Fatalf("unexpected actor: %s", actorID)
				}
				approved = transactionID
				return nil
			},
		},
	})

	rr := serveAuthed(t, handler, http.MethodPost, "/admin/shares/share-tx-2/approve", "admin-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if approved != "share-tx-2" {
		t.Fatalf("expected share-tx-2 approved, got %q", approved)
	}
}

func TestApproveSaleAlreadySettled(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: adminStoreAllowingAll(),
		shareSvc: stubShareService{
			approveFn: func(context.Context, string, string) error {
				return services.ErrInvalidStateTransition
			},
		},
	})

	rr := serveAuthed(t, handler, http.MethodPost, "/admin/shares/share-tx-2/approve", "admin-1", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestRejectSale(t *testing.T) {
	var gotReason string
	handler := newTestHandler(testDeps{
		admin: adminStoreAllowingAll(),
		shareSvc: stubShareService{
			rejectFn: func(_ context.Context, _, reason, _ string) error {
				gotReason = reason
				return nil
			},
		},
	})

	body := []byte(`{"reason":"pool frozen"}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/admin/shares/share-tx-2/reject", "admin-1", bytes.NewReader(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotReason != "pool frozen" {
		t.Fatalf("unexpected reason: %q", gotReason)
	}
}

func TestApproveSaleNotFound(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: adminStoreAllowingAll(),
		shareSvc: stubShareService{
			approveFn: func(context.Context, string, string) error {
				return sql.ErrNoRows
			},
		},
	})

	rr := serveAuthed(t, handler, http.MethodPost, "/admin/shares/missing/approve", "admin-1", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

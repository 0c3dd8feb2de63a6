package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"coopledger/internal/store"
)

func TestPromoteAdminForbidden(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: stubAdminStore{
			isAdminFn: func(context.Context, string) (bool, bool, error) {
				return true, false, nil
			},
		},
	})

	body := []byte(`{"identifier":"bob"}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/admin/promote", "admin-1", bytes.NewReader(body))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestPromoteAdminSuccess(t *testing.T) {
	promoted := ""
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			getByUsernameFn: func(_ context.Context, username string) (map[string]any, error) {
				if username != "bob" {
					t.Fatalf("unexpected username lookup: %s", username)
				}
				return map[string]any{"id": "user-2"}, nil
			},
		},
		admin: stubAdminStore{
			isAdminFn: func(context.Context, string) (bool, bool, error) {
				return true, true, nil
			},
			createAdminFn: func(_ context.Context, _ store.Execer, userID string, isSuper bool, createdBy *string) error {
				if isSuper {
					t.Fatalf("promoted admins must not be super")
				}
				if createdBy == nil || *createdBy != "admin-1" {
					t.Fatalf("expected promoter to be recorded")
				}
				promoted = userID
				return nil
			},
		},
	})

	body := []byte(`{"identifier":"bob"}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/admin/promote", "admin-1", bytes.NewReader(body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if promoted != "user-2" {
		t.Fatalf("expected user-2 promoted, got %q", promoted)
	}
}

func TestGrantRoleSuccess(t *testing.T) {
	granted := ""
	handler := newTestHandler(testDeps{
		admin: stubAdminStore{
			isAdminFn: func(_ context.Context, userID string) (bool, bool, error) {
				if userID == "admin-1" {
					return true, true, nil
				}
				return true, false, nil
			},
			grantRoleFn: func(_ context.Context, _ store.Execer, adminUserID, role string) error {
				granted = adminUserID + ":" + role
				return nil
			},
		},
	})

	body := []byte(`{"admin_user_id":"admin-2","role":"CanSettleShares"}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/admin/roles/grant", "admin-1", bytes.NewReader(body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if granted != "admin-2:CanSettleShares" {
		t.Fatalf("unexpected grant: %s", granted)
	}
}

func TestGrantRoleRejectsSuperTarget(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: stubAdminStore{
			isAdminFn: func(context.Context, string) (bool, bool, error) {
				return true, true, nil
			},
		},
	})

	body := []byte(`{"admin_user_id":"admin-2","role":"CanManageLoans"}`)
	rr := serveAuthed(t, handler, http.MethodPost, "/admin/roles/grant", "admin-1", bytes.NewReader(body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminListTransactions(t *testing.T) {
	handler := newTestHandler(testDeps{
		transactions: stubTransactionStore{
			listAllFn: func(_ context.Context, limit, offset int) ([]map[string]any, error) {
				if limit != 50 || offset != 0 {
					t.Fatalf("unexpected pagination: limit=%d offset=%d", limit, offset)
				}
				return []map[string]any{{
					"id":       "tx-1",
					"owner_id": "user-1",
					"username": "alice",
					"type":     "deposit",
					"status":   "completed",
					"amount":   int64(1500),
					"currency": "USD",
				}}, nil
			},
		},
		admin: adminStoreAllowingAll(),
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/admin/transactions", "admin-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rows []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["amount"] != "15.00" {
		t.Fatalf("expected formatted amount, got %v", rows[0]["amount"])
	}
}

func TestListAuditLogs(t *testing.T) {
	handler := newTestHandler(testDeps{
		audit: stubAuditStore{
			listFn: func(context.Context, int, int) ([]map[string]any, error) {
				return []map[string]any{{"action": "register"}}, nil
			},
		},
		admin: adminStoreAllowingAll(),
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/admin/audit", "admin-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rows []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rows) != 1 || rows[0]["action"] != "register" {
		t.Fatalf("unexpected audit rows: %v", rows)
	}
}

func TestReconcile(t *testing.T) {
	handler := newTestHandler(testDeps{
		reconcileDB: stubReconcileDB{
			selectFn: func(_ context.Context, dest any, _ string, _ ...any) error {
				value := reflect.ValueOf(dest)
				if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Slice {
					return nil
				}
				slice := reflect.MakeSlice(value.Elem().Type(), 1, 1)
				row := slice.Index(0)
				row.FieldByName("WalletID").SetString("wallet-1")
				row.FieldByName("OwnerID").SetString("user-1")
				row.FieldByName("Kind").SetString("main")
				row.FieldByName("LedgerSum").SetInt(1000)
				row.FieldByName("WalletBalance").SetInt(1200)
				row.FieldByName("Difference").SetInt(200)
				value.Elem().Set(slice)
				return nil
			},
		},
		admin: adminStoreAllowingAll(),
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/admin/reconcile", "admin-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rows []map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["difference"] != "2.00" {
		t.Fatalf("expected difference 2.00, got %v", rows[0]["difference"])
	}
}

func TestWSBalancesMissingToken(t *testing.T) {
	handler := newTestHandler(testDeps{})

	req := httptest.NewRequest(http.MethodGet, "/ws/balances", nil)
	rr := httptest.NewRecorder()
	handler.WSBalances(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWSBalancesInvalidToken(t *testing.T) {
	handler := newTestHandler(testDeps{})

	req := httptest.NewRequest(http.MethodGet, "/ws/balances?token=garbage", nil)
	rr := httptest.NewRecorder()
	handler.WSBalances(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"coopledger/internal/auth"
	"coopledger/internal/store"

	"github.com/lib/pq"
)

func TestRegisterSuccess(t *testing.T) {
	createdUsers := 0
	createdAdmins := 0
	auditActions := make([]string, 0, 1)
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			createFn: func(_ context.Context, _ store.Execer, _, _, _, _ string) error {
				createdUsers++
				return nil
			},
		},
		admin: stubAdminStore{
			hasAnyAdminFn: func(context.Context) (bool, error) {
				return false, nil
			},
			createAdminFn: func(_ context.Context, _ store.Execer, _ string, isSuper bool, createdBy *string) error {
				if !isSuper || createdBy != nil {
					t.Fatalf("first admin should be a self-created super admin")
				}
				createdAdmins++
				return nil
			},
		},
		audit: stubAuditStore{
			logFn: func(_ context.Context, _ store.Execer, _, action, _, _, _ string) error {
				auditActions = append(auditActions, action)
				return nil
			},
		},
	})

	body := []byte(`{"username":"alice","email":"alice@example.com","password":"pass1234"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["token"] == "" {
		t.Fatalf("expected token")
	}
	if createdUsers != 1 || createdAdmins != 1 {
		t.Fatalf("unexpected create counts: users=%d admins=%d", createdUsers, createdAdmins)
	}
	if len(auditActions) != 1 || auditActions[0] != "register" {
		t.Fatalf("unexpected audit actions: %v", auditActions)
	}
}

func TestRegisterSkipsAdminBootstrapWhenAdminExists(t *testing.T) {
	handler := newTestHandler(testDeps{
		admin: stubAdminStore{
			hasAnyAdminFn: func(context.Context) (bool, error) {
				return true, nil
			},
			createAdminFn: func(context.Context, store.Execer, string, bool, *string) error {
				t.Fatalf("admin bootstrap should not run when an admin exists")
				return nil
			},
		},
	})

	body := []byte(`{"username":"bob","email":"bob@example.com","password":"pass1234"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
}

func TestRegisterDuplicateUser(t *testing.T) {
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			createFn: func(context.Context, store.Execer, string, string, string, string) error {
				return &pq.Error{Code: "23505"}
			},
		},
	})

	body := []byte(`{"username":"alice","email":"alice@example.com","password":"pass1234"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	handler := newTestHandler(testDeps{})

	body := []byte(`{"username":"alice","email":"not-an-email","password":"pass1234"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestLoginSuccess(t *testing.T) {
	passwordHash, err := auth.HashPassword("pass1234")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			getByEmailFn: func(context.Context, string) (map[string]any, error) {
				return map[string]any{"id": "user-1", "password_hash": passwordHash}, nil
			},
		},
	})

	body := []byte(`{"email":"alice@example.com","password":"pass1234"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	claims, err := auth.ParseToken("secret", payload["token"])
	if err != nil {
		t.Fatalf("expected a valid token: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("unexpected token subject: %s", claims.UserID)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			getByEmailFn: func(context.Context, string) (map[string]any, error) {
				return nil, sql.ErrNoRows
			},
		},
	})

	body := []byte(`{"email":"alice@example.com","password":"pass1234"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	passwordHash, err := auth.HashPassword("pass1234")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			getByEmailFn: func(context.Context, string) (map[string]any, error) {
				return map[string]any{"id": "user-1", "password_hash": passwordHash}, nil
			},
		},
	})

	body := []byte(`{"email":"alice@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestMe(t *testing.T) {
	handler := newTestHandler(testDeps{
		users: stubUserStore{
			getByIDFn: func(context.Context, string) (map[string]any, error) {
				return map[string]any{"id": "user-1", "username": "alice", "email": "a@b.com"}, nil
			},
		},
	})

	rr := serveAuthed(t, handler, http.MethodGet, "/auth/me", "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["username"] != "alice" {
		t.Fatalf("unexpected username: %v", payload["username"])
	}
}

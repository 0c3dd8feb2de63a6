package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"coopledger/internal/db"
	"coopledger/internal/middleware"
	"coopledger/internal/money"
	"coopledger/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallets, err := h.wallets.GetByOwner(r.Context(), ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load wallets")
		return
	}
	normalized := make([]map[string]any, 0, len(wallets))
	for _, wallet := range wallets {
		normalized = append(normalized, map[string]any{
			"id":             wallet.ID,
			"owner_id":       wallet.OwnerID,
			"kind":           wallet.Kind,
			"currency":       wallet.Currency,
			"balance":        valueToMoney(wallet.StoredBalance),
			"ledger_balance": valueToMoney(wallet.CalculatedBalance),
			"difference":     valueToMoney(wallet.Difference),
			"created_at":     wallet.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListWalletEntries(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	kind := chi.URLParam(r, "kind")
	wallet, err := h.wallets.GetByOwnerKind(r.Context(), ownerID, kind)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "wallet not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	entries, err := h.ledger.ListByWallet(r.Context(), wallet.ID, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load entries")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_id": wallet.ID,
		"kind":      wallet.Kind,
		"balance":   valueToMoney(wallet.Balance),
		"entries":   entries,
	})
}

type withdrawRequest struct {
	Kind      string  `json:"kind"`
	Amount    string  `json:"amount"`
	Reference *string `json:"reference"`
	Notes     string  `json:"notes"`
	Confirm   bool    `json:"confirm"`
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation_required")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.walletSvc.Withdraw(r.Context(), services.WithdrawRequest{
		OwnerID:   ownerID,
		Kind:      req.Kind,
		Amount:    money.New(amountMinor, h.cfg.Wallet.Currency),
		Reference: req.Reference,
		Notes:     req.Notes,
		ActorID:   ownerID,
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"transaction_id": result.TransactionID,
		"balance":        money.FormatMinor(result.BalanceAfter.AmountMinor),
	})
}

type transferRequest struct {
	ToOwnerID  string  `json:"to_owner_id"`
	ToUsername string  `json:"to_username"`
	ToEmail    string  `json:"to_email"`
	Kind       string  `json:"kind"`
	Amount     string  `json:"amount"`
	Reference  *string `json:"reference"`
	Confirm    bool    `json:"confirm"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation_required")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = "main"
	}
	toOwnerID := strings.TrimSpace(req.ToOwnerID)
	if toOwnerID == "" {
		toOwnerID, err = h.resolveUserID(r.Context(), req.ToUsername, req.ToEmail)
		if err != nil {
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "recipient not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "unable to resolve recipient")
			return
		}
	}
	transactionID, err := h.walletSvc.Transfer(r.Context(), services.TransferRequest{
		FromOwnerID: ownerID,
		ToOwnerID:   toOwnerID,
		Kind:        kind,
		Amount:      money.New(amountMinor, h.cfg.Wallet.Currency),
		Reference:   req.Reference,
		ActorID:     ownerID,
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": transactionID})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	txType := query.Get("type")
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	transactions, err := h.transactions.ListByOwner(r.Context(), ownerID, txType, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(transactions))
	for _, row := range transactions {
		normalized = append(normalized, map[string]any{
			"id":             valueToString(row["id"]),
			"owner_id":       valueToString(row["owner_id"]),
			"username":       valueToString(row["username"]),
			"type":           valueToString(row["type"]),
			"status":         valueToString(row["status"]),
			"amount":         valueToMoney(row["amount"]),
			"currency":       valueToString(row["currency"]),
			"from_wallet_id": valueToString(row["from_wallet_id"]),
			"to_wallet_id":   valueToString(row["to_wallet_id"]),
			"metadata":       row["metadata"],
			"created_at":     row["created_at"],
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type adminDepositRequest struct {
	OwnerID   string  `json:"owner_id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Kind      string  `json:"kind"`
	Amount    string  `json:"amount"`
	Reference *string `json:"reference"`
	Notes     string  `json:"notes"`
}

func (h *Handler) AdminDeposit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req adminDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		ownerID, err = h.resolveUserID(r.Context(), req.Username, req.Email)
		if err != nil {
			if err == sql.ErrNoRows {
				respondError(w, http.StatusNotFound, "member not found")
				return
			}
			respondError(w, http.StatusInternalServerError, "unable to resolve member")
			return
		}
	}
	result, err := h.walletSvc.Deposit(r.Context(), services.DepositRequest{
		OwnerID:   ownerID,
		Kind:      req.Kind,
		Amount:    money.New(amountMinor, h.cfg.Wallet.Currency),
		Reference: req.Reference,
		Notes:     req.Notes,
		ActorID:   actorID,
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"transaction_id": result.TransactionID,
		"balance":        money.FormatMinor(result.BalanceAfter.AmountMinor),
	})
}

type bulkDepositLine struct {
	OwnerID string `json:"owner_id"`
	Kind    string `json:"kind"`
	Amount  string `json:"amount"`
	Notes   string `json:"notes"`
}

type bulkDepositRequest struct {
	Lines []bulkDepositLine `json:"lines"`
}

func (h *Handler) AdminBulkDeposit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req bulkDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	lines := make([]services.BulkDepositLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		amountMinor, err := parseAmountMinor(line.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		lines = append(lines, services.BulkDepositLine{
			OwnerID: line.OwnerID,
			Kind:    line.Kind,
			Amount:  money.New(amountMinor, h.cfg.Wallet.Currency),
			Notes:   line.Notes,
		})
	}
	batchID, err := h.walletSvc.BulkDeposit(r.Context(), services.BulkDepositRequest{
		Lines:   lines,
		ActorID: actorID,
	})
	if err != nil {
		respondWalletError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"batch_id": batchID,
		"credited": len(lines),
	})
}

func (h *Handler) resolveUserID(ctx context.Context, username, email string) (string, error) {
	if username != "" {
		user, err := h.users.GetByUsername(ctx, username)
		if err != nil {
			return "", err
		}
		return valueToString(user["id"]), nil
	}
	if email != "" {
		user, err := h.users.GetByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		return valueToString(user["id"]), nil
	}
	return "", sql.ErrNoRows
}

func respondWalletError(w http.ResponseWriter, err error) {
	switch err {
	case services.ErrInvalidAmount:
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case services.ErrInvalidWalletKind:
		respondError(w, http.StatusBadRequest, "invalid_wallet_kind")
	case services.ErrInsufficientBalance:
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case services.ErrSameWalletTransfer:
		respondError(w, http.StatusBadRequest, "same_owner_transfer")
	case services.ErrEmptyBatch:
		respondError(w, http.StatusBadRequest, "empty_batch")
	case services.ErrBatchTooLarge:
		respondError(w, http.StatusBadRequest, "batch_too_large")
	case services.ErrDuplicateReference:
		respondError(w, http.StatusConflict, "duplicate_reference")
	case db.ErrConcurrencyExhausted:
		respondError(w, http.StatusConflict, "transaction_conflict")
	default:
		respondError(w, http.StatusInternalServerError, "wallet_operation_failed")
	}
}

package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"coopledger/internal/db"
	"coopledger/internal/middleware"
	"coopledger/internal/money"
	"coopledger/internal/services"
	"coopledger/internal/store"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetSharePool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.shares.GetPool(r.Context(), h.cfg.Shares.PoolID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "share pool not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load share pool")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":               pool.ID,
		"total_shares":     pool.TotalShares,
		"available_shares": pool.AvailableShares,
		"price_per_share":  valueToMoney(pool.PricePerShare),
		"currency":         pool.Currency,
	})
}

type shareTradeRequest struct {
	Quantity int64 `json:"quantity"`
	Confirm  bool  `json:"confirm"`
}

func (h *Handler) BuyShares(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req shareTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation_required")
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity")
		return
	}
	result, err := h.shareSvc.BuyShares(r.Context(), ownerID, quantity, ownerID)
	if err != nil {
		respondShareError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"transaction_id": result.TransactionID,
		"total_amount":   money.FormatMinor(result.TotalAmount.AmountMinor),
		"balance":        money.FormatMinor(result.BalanceAfter.AmountMinor),
	})
}

func (h *Handler) SellShares(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req shareTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation_required")
		return
	}
	quantity, err := parseQuantity(req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity")
		return
	}
	transactionID, err := h.shareSvc.SellShares(r.Context(), ownerID, quantity, ownerID)
	if err != nil {
		respondShareError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"transaction_id": transactionID,
		"status":         "pending",
	})
}

func (h *Handler) ListShareTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 20)
	page := parseInt(query.Get("page"), 1)
	rows, err := h.shares.ListTransactionsByOwner(r.Context(), ownerID, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load share transactions")
		return
	}
	respondJSON(w, http.StatusOK, normalizeShareTransactions(rows))
}

func (h *Handler) ListPendingSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	rows, err := h.shares.ListPendingSales(r.Context(), limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load pending sales")
		return
	}
	respondJSON(w, http.StatusOK, normalizeShareTransactions(rows))
}

func (h *Handler) ApproveSale(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactionID := chi.URLParam(r, "id")
	if err := h.shareSvc.ApproveSale(r.Context(), transactionID, actorID); err != nil {
		respondShareError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type rejectSaleRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectSale(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactionID := chi.URLParam(r, "id")
	var req rejectSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.shareSvc.RejectSale(r.Context(), transactionID, req.Reason, actorID); err != nil {
		respondShareError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func normalizeShareTransactions(rows []store.ShareTransaction) []map[string]any {
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":              row.ID,
			"owner_id":        row.OwnerID,
			"pool_id":         row.PoolID,
			"kind":            row.Kind,
			"quantity":        row.Quantity,
			"price_per_share": valueToMoney(row.PricePerShare),
			"total_amount":    valueToMoney(row.TotalAmount),
			"fees":            valueToMoney(row.Fees),
			"net_amount":      valueToMoney(row.NetAmount),
			"status":          row.Status,
			"notes":           row.Notes,
			"created_at":      row.CreatedAt,
			"executed_at":     row.ExecutedAt,
		})
	}
	return normalized
}

func respondShareError(w http.ResponseWriter, err error) {
	switch err {
	case services.ErrInvalidQuantity:
		respondError(w, http.StatusBadRequest, "invalid_quantity")
	case services.ErrBelowMinimumPurchase:
		respondError(w, http.StatusBadRequest, "below_minimum_purchase")
	case services.ErrInsufficientShares:
		respondError(w, http.StatusBadRequest, "insufficient_shares")
	case services.ErrInsufficientBalance:
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case services.ErrInvalidStateTransition:
		respondError(w, http.StatusConflict, "sale_already_settled")
	case services.ErrNotASale:
		respondError(w, http.StatusBadRequest, "not_a_sale")
	case db.ErrConcurrencyExhausted:
		respondError(w, http.StatusConflict, "transaction_conflict")
	default:
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "transaction not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "share_operation_failed")
	}
}

package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"coopledger/internal/db"
	"coopledger/internal/loan"
	"coopledger/internal/middleware"
	"coopledger/internal/money"
	"coopledger/internal/services"

	"github.com/go-chi/chi/v5"
)

type loanApplicationRequest struct {
	Amount             string `json:"amount"`
	AnnualRatePercent  string `json:"annual_rate_percent"`
	TermMonths         int    `json:"term_months"`
	Frequency          string `json:"frequency"`
	DisbursementMethod string `json:"disbursement_method"`
}

func (h *Handler) ApplyLoan(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req loanApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	rate, err := parseRatePercent(req.AnnualRatePercent)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_rate")
		return
	}
	loanID, err := h.loanSvc.Apply(r.Context(), services.LoanApplication{
		OwnerID:            ownerID,
		Principal:          money.New(amountMinor, h.cfg.Wallet.Currency),
		AnnualRatePercent:  rate,
		TermMonths:         req.TermMonths,
		Frequency:          loan.Frequency(req.Frequency),
		DisbursementMethod: loan.DisbursementMethod(req.DisbursementMethod),
		ActorID:            ownerID,
	})
	if err != nil {
		respondLoanError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"loan_id": loanID,
		"status":  string(loan.StatusPending),
	})
}

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 20)
	page := parseInt(query.Get("page"), 1)
	rows, err := h.loans.ListByOwner(r.Context(), ownerID, limit, (page-1)*limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load loans")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, normalizeLoan(row.ID, row.OwnerID, row.Principal, row.Currency, row.InterestRate, row.TermMonths, row.Frequency, row.DisbursementMethod, row.Status, row.CreatedAt))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	row, err := h.loans.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "loan not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load loan")
		return
	}
	if row.OwnerID != ownerID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	respondJSON(w, http.StatusOK, normalizeLoan(row.ID, row.OwnerID, row.Principal, row.Currency, row.InterestRate, row.TermMonths, row.Frequency, row.DisbursementMethod, row.Status, row.CreatedAt))
}

func (h *Handler) LoanSchedule(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	loanID := chi.URLParam(r, "id")
	row, err := h.loans.GetByID(r.Context(), loanID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "loan not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load loan")
		return
	}
	if row.OwnerID != ownerID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	payments, err := h.loans.ListPayments(r.Context(), loanID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load schedule")
		return
	}
	normalized := make([]map[string]any, 0, len(payments))
	for _, payment := range payments {
		normalized = append(normalized, map[string]any{
			"installment":       payment.InstallmentNumber,
			"amount_due":        valueToMoney(payment.AmountDue),
			"amount_paid":       valueToMoney(payment.AmountPaid),
			"principal_portion": valueToMoney(payment.PrincipalPortion),
			"interest_portion":  valueToMoney(payment.InterestPortion),
			"due_date":          payment.DueDate,
			"status":            payment.Status,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"loan_id":  loanID,
		"status":   row.Status,
		"schedule": normalized,
	})
}

// LoanTerms quotes a disbursement method before anyone applies: fee table,
// fee for an optional amount, and the estimated delivery date from today.
func (h *Handler) LoanTerms(w http.ResponseWriter, r *http.Request) {
	method := loan.DisbursementMethod(chi.URLParam(r, "method"))
	terms, err := loan.TermsFor(method)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown disbursement method")
		return
	}
	response := map[string]any{
		"method":        string(method),
		"fee_percent":   terms.FeePercent.String(),
		"min_fee":       valueToMoney(terms.MinFeeMinor),
		"max_fee":       valueToMoney(terms.MaxFeeMinor),
		"business_days": terms.BusinessDays,
	}
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amountMinor, err := parseAmountMinor(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		fee, err := loan.DisbursementFee(method, money.New(amountMinor, h.cfg.Wallet.Currency))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		response["fee"] = money.FormatMinor(fee.AmountMinor)
		response["net_amount"] = money.FormatMinor(amountMinor - fee.AmountMinor)
	}
	if delivery, err := loan.EstimatedDelivery(method, time.Now().UTC()); err == nil {
		response["estimated_delivery"] = delivery.Format("2006-01-02")
	}
	respondJSON(w, http.StatusOK, response)
}

type repayRequest struct {
	Amount  string `json:"amount"`
	Confirm bool   `json:"confirm"`
}

func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	loanID := chi.URLParam(r, "id")
	row, err := h.loans.GetByID(r.Context(), loanID)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "loan not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load loan")
		return
	}
	if row.OwnerID != ownerID {
		respondError(w, http.StatusForbidden, "access denied")
		return
	}
	var req repayRequest
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
	result, err := h.loanSvc.Repay(r.Context(), loanID, money.New(amountMinor, h.cfg.Wallet.Currency), ownerID)
	if err != nil {
		respondLoanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"installments_paid": result.InstallmentsPaid,
		"loan_completed":    result.LoanCompleted,
		"balance":           money.FormatMinor(result.BalanceAfter.AmountMinor),
	})
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) TransitionLoan(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	to := loan.Status(req.Status)
	if !loan.ValidStatus(to) {
		respondError(w, http.StatusBadRequest, "unknown_status")
		return
	}
	loanID := chi.URLParam(r, "id")
	if err := h.loanSvc.Transition(r.Context(), loanID, to, actorID); err != nil {
		respondLoanError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"loan_id": loanID,
		"status":  string(to),
	})
}

func normalizeLoan(id, ownerID string, principal int64, currency, interestRate string, termMonths int, frequency, method, status string, createdAt any) map[string]any {
	return map[string]any{
		"id":                  id,
		"owner_id":            ownerID,
		"principal":           valueToMoney(principal),
		"currency":            currency,
		"annual_rate_percent": interestRate,
		"term_months":         termMonths,
		"frequency":           frequency,
		"disbursement_method": method,
		"status":              status,
		"created_at":          createdAt,
	}
}

func respondLoanError(w http.ResponseWriter, err error) {
	switch err {
	case services.ErrInvalidPrincipal:
		respondError(w, http.StatusBadRequest, "invalid_principal")
	case services.ErrInvalidLoanTerm:
		respondError(w, http.StatusBadRequest, "invalid_term")
	case services.ErrInvalidAmount:
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case services.ErrInsufficientBalance:
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case services.ErrLoanNotRepayable:
		respondError(w, http.StatusBadRequest, "loan_not_repayable")
	case services.ErrLoanOverpayment:
		respondError(w, http.StatusBadRequest, "overpayment")
	case loan.ErrUnknownMethod:
		respondError(w, http.StatusBadRequest, "unknown_disbursement_method")
	case loan.ErrUnknownFrequency:
		respondError(w, http.StatusBadRequest, "unknown_frequency")
	case loan.ErrIllegalTransition:
		respondError(w, http.StatusConflict, "illegal_transition")
	case db.ErrConcurrencyExhausted:
		respondError(w, http.StatusConflict, "transaction_conflict")
	default:
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "loan not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "loan_operation_failed")
	}
}

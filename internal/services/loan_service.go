package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coopledger/internal/config"
	"coopledger/internal/db"
	"coopledger/internal/loan"
	"coopledger/internal/metrics"
	"coopledger/internal/money"
	"coopledger/internal/store"
	"coopledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrincipal = errors.New("principal outside configured limits")
	ErrInvalidLoanTerm  = errors.New("invalid loan term")
	ErrLoanNotRepayable = errors.New("loan is not accepting repayments")
	ErrLoanOverpayment  = errors.New("repayment exceeds outstanding balance")
)

type LoanStore interface {
	Create(ctx context.Context, tx store.Execer, input store.LoanInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, loanID string) (store.Loan, error)
	UpdateStatus(ctx context.Context, tx store.Execer, loanID, status string) error
	InsertPayments(ctx context.Context, tx store.Execer, payments []store.LoanPaymentInput) error
	NextOpenPaymentForUpdate(ctx context.Context, tx store.Getter, loanID string) (store.LoanPayment, error)
	UpdatePayment(ctx context.Context, tx store.Execer, paymentID string, amountPaid int64, status string) error
	CountOpenPayments(ctx context.Context, tx store.Getter, loanID string) (int, error)
}

// LoanNotifier receives one event per committed lifecycle transition.
// Delivery (email, push) is outside the ledger core.
type LoanNotifier interface {
	LoanStatusChanged(ownerID, loanID string, from, to loan.Status)
}

// LoanService owns the loan state machine and its postings. A transition to
// disbursed computes the method fee, credits the borrower's main wallet for
// wallet-transfer payouts, and persists the full repayment schedule, all in
// the same transaction as the status change.
type LoanService struct {
	txRunner     db.TxRunner
	loans        LoanStore
	wallets      WalletStore
	ledger       LedgerStore
	transactions TransactionStore
	audit        AuditStore
	hub          BalanceHub
	notifier     LoanNotifier
	cfg          config.LoanConfig
	currency     string
	now          func() time.Time
}

func NewLoanService(txRunner db.TxRunner, loans LoanStore, wallets WalletStore, ledger LedgerStore, transactions TransactionStore, audit AuditStore, hub BalanceHub, notifier LoanNotifier, currency string, cfg config.LoanConfig) *LoanService {
	return &LoanService{
		txRunner:     txRunner,
		loans:        loans,
		wallets:      wallets,
		ledger:       ledger,
		transactions: transactions,
		audit:        audit,
		hub:          hub,
		notifier:     notifier,
		cfg:          cfg,
		currency:     currency,
		now:          time.Now,
	}
}

type LoanApplication struct {
	OwnerID            string
	Principal          money.Money
	AnnualRatePercent  decimal.Decimal
	TermMonths         int
	Frequency          loan.Frequency
	DisbursementMethod loan.DisbursementMethod
	ActorID            string
}

func (s *LoanService) Apply(ctx context.Context, req LoanApplication) (string, error) {
	if req.Principal.AmountMinor < s.cfg.MinPrincipalMinor || req.Principal.AmountMinor > s.cfg.MaxPrincipalMinor || req.Principal.Currency != s.currency {
		return "", ErrInvalidPrincipal
	}
	if req.TermMonths <= 0 || req.TermMonths > s.cfg.MaxTermMonths {
		return "", ErrInvalidLoanTerm
	}
	if _, err := loan.TermsFor(req.DisbursementMethod); err != nil {
		return "", err
	}
	if !loan.ValidFrequency(req.Frequency) {
		return "", loan.ErrUnknownFrequency
	}
	loanID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.loans.Create(ctx, tx, store.LoanInput{
			ID:                 loanID,
			OwnerID:            req.OwnerID,
			Principal:          req.Principal.AmountMinor,
			Currency:           req.Principal.Currency,
			InterestRate:       req.AnnualRatePercent.String(),
			TermMonths:         req.TermMonths,
			Frequency:          string(req.Frequency),
			DisbursementMethod: string(req.DisbursementMethod),
			Status:             string(loan.StatusPending),
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"principal": req.Principal.AmountMinor, "term_months": req.TermMonths})
		return s.audit.Log(ctx, tx, req.ActorID, "loan_apply", "loan", loanID, string(data))
	})
	if err != nil {
		return "", err
	}
	return loanID, nil
}

// Transition moves a loan to a new status. Illegal moves fail with
// loan.ErrIllegalTransition and nothing is written.
func (s *LoanService) Transition(ctx context.Context, loanID string, to loan.Status, actorID string) error {
	var ownerID string
	var from loan.Status
	var credited *websocket.WalletUpdate
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		credited = nil
		row, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		ownerID = row.OwnerID
		from = loan.Status(row.Status)
		next, err := loan.Transition(from, to)
		if err != nil {
			return err
		}
		if next == loan.StatusDisbursed {
			update, err := s.postDisbursement(ctx, tx, row, actorID)
			if err != nil {
				return err
			}
			credited = update
		}
		if err := s.loans.UpdateStatus(ctx, tx, loanID, string(next)); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"from": string(from), "to": string(next)})
		return s.audit.Log(ctx, tx, actorID, "loan_transition", "loan", loanID, string(data))
	})
	if err != nil {
		return err
	}
	if credited != nil {
		s.hub.BroadcastBalance(ownerID, *credited)
	}
	metrics.LoanTransitions.WithLabelValues(string(to)).Inc()
	s.notifier.LoanStatusChanged(ownerID, loanID, from, to)
	return nil
}

// postDisbursement runs inside the transition transaction: it prices the
// payout fee, credits the borrower's main wallet when the payout channel is
// the wallet itself, and persists the repayment schedule. The returned update
// (nil for external payouts) is broadcast by the caller after commit.
func (s *LoanService) postDisbursement(ctx context.Context, tx *sqlx.Tx, row store.Loan, actorID string) (*websocket.WalletUpdate, error) {
	principal := money.New(row.Principal, row.Currency)
	fee, err := loan.DisbursementFee(loan.DisbursementMethod(row.DisbursementMethod), principal)
	if err != nil {
		return nil, err
	}
	net, err := principal.Sub(fee)
	if err != nil {
		return nil, err
	}
	var credited *websocket.WalletUpdate

	if loan.DisbursementMethod(row.DisbursementMethod) == loan.MethodWalletTransfer {
		wallet, err := s.wallets.GetForUpdateByOwnerKind(ctx, tx, row.OwnerID, "main")
		if err != nil {
			if !store.IsNoRows(err) {
				return nil, err
			}
			if err := s.wallets.Create(ctx, tx, uuid.NewString(), row.OwnerID, "main", row.Currency); err != nil {
				return nil, err
			}
			wallet, err = s.wallets.GetForUpdateByOwnerKind(ctx, tx, row.OwnerID, "main")
			if err != nil {
				return nil, err
			}
		}
		newBalance := wallet.Balance + net.AmountMinor
		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
			return nil, err
		}
		walletTxID := uuid.NewString()
		metadata, _ := json.Marshal(map[string]any{"loan_id": row.ID, "fee": fee.AmountMinor})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:         walletTxID,
			OwnerID:    row.OwnerID,
			Type:       "loan_disbursement",
			Status:     "completed",
			Amount:     net.AmountMinor,
			Currency:   row.Currency,
			ToWalletID: &wallet.ID,
			Metadata:   string(metadata),
		}); err != nil {
			return nil, err
		}
		if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
			ID:            uuid.NewString(),
			TransactionID: walletTxID,
			WalletID:      wallet.ID,
			Direction:     DirectionCredit,
			Amount:        net.AmountMinor,
			BalanceAfter:  newBalance,
			Currency:      row.Currency,
			Notes:         "Loan disbursement",
		}}); err != nil {
			return nil, err
		}
		credited = &websocket.WalletUpdate{
			Kind:     "main",
			Balance:  money.FormatMinor(newBalance),
			Currency: row.Currency,
		}
	}

	rate, err := decimal.NewFromString(row.InterestRate)
	if err != nil {
		return nil, err
	}
	schedule, err := loan.RepaymentSchedule(loan.ScheduleRequest{
		Principal:         principal,
		AnnualRatePercent: rate,
		TermMonths:        row.TermMonths,
		Frequency:         loan.Frequency(row.Frequency),
		StartDate:         s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	payments := make([]store.LoanPaymentInput, 0, len(schedule))
	for _, installment := range schedule {
		payments = append(payments, store.LoanPaymentInput{
			ID:                uuid.NewString(),
			LoanID:            row.ID,
			InstallmentNumber: installment.Number,
			AmountDue:         installment.AmountDue.AmountMinor,
			PrincipalPortion:  installment.PrincipalPortion.AmountMinor,
			InterestPortion:   installment.InterestPortion.AmountMinor,
			DueDate:           installment.DueDate,
			Status:            "pending",
		})
	}
	return credited, s.loans.InsertPayments(ctx, tx, payments)
}

type RepaymentResult struct {
	InstallmentsPaid int
	LoanCompleted    bool
	BalanceAfter     money.Money
}

// Repay debits the borrower's main wallet and applies the amount to the open
// installments in order, rolling any excess forward. An amount larger than
// the total outstanding fails with ErrLoanOverpayment and nothing is debited.
// A loan still in disbursed state activates on its first repayment; paying
// off the last installment completes it.
func (s *LoanService) Repay(ctx context.Context, loanID string, amount money.Money, actorID string) (RepaymentResult, error) {
	if !amount.IsPositive() || amount.Currency != s.currency {
		return RepaymentResult{}, ErrInvalidAmount
	}
	var result RepaymentResult
	var ownerID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		row, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		ownerID = row.OwnerID
		status := loan.Status(row.Status)
		if status != loan.StatusDisbursed && status != loan.StatusActive {
			return ErrLoanNotRepayable
		}

		wallet, err := s.wallets.GetForUpdateByOwnerKind(ctx, tx, row.OwnerID, "main")
		if err != nil {
			if store.IsNoRows(err) {
				return ErrInsufficientBalance
			}
			return err
		}
		newBalance := wallet.Balance - amount.AmountMinor
		if newBalance < 0 {
			return ErrInsufficientBalance
		}

		remaining := amount.AmountMinor
		for remaining > 0 {
			payment, err := s.loans.NextOpenPaymentForUpdate(ctx, tx, loanID)
			if err != nil {
				if store.IsNoRows(err) {
					break
				}
				return err
			}
			outstanding := payment.AmountDue - payment.AmountPaid
			applied := remaining
			if applied > outstanding {
				applied = outstanding
			}
			paid := payment.AmountPaid + applied
			newStatus := "partial"
			if paid >= payment.AmountDue {
				newStatus = "paid"
				result.InstallmentsPaid++
			}
			if err := s.loans.UpdatePayment(ctx, tx, payment.ID, paid, newStatus); err != nil {
				return err
			}
			remaining -= applied
		}
		// Every debited minor unit must land on an installment; an amount
		// beyond the total outstanding aborts the whole transaction.
		if remaining > 0 {
			return ErrLoanOverpayment
		}

		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
			return err
		}
		walletTxID := uuid.NewString()
		metadata, _ := json.Marshal(map[string]string{"loan_id": loanID})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:           walletTxID,
			OwnerID:      row.OwnerID,
			Type:         "loan_repayment",
			Status:       "completed",
			Amount:       amount.AmountMinor,
			Currency:     row.Currency,
			FromWalletID: &wallet.ID,
			Metadata:     string(metadata),
		}); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
			ID:            uuid.NewString(),
			TransactionID: walletTxID,
			WalletID:      wallet.ID,
			Direction:     DirectionDebit,
			Amount:        -amount.AmountMinor,
			BalanceAfter:  newBalance,
			Currency:      row.Currency,
			Notes:         "Loan repayment",
		}}); err != nil {
			return err
		}

		if status == loan.StatusDisbursed {
			if _, err := loan.Transition(status, loan.StatusActive); err != nil {
				return err
			}
			status = loan.StatusActive
			if err := s.loans.UpdateStatus(ctx, tx, loanID, string(status)); err != nil {
				return err
			}
		}
		open, err := s.loans.CountOpenPayments(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if open == 0 {
			if _, err := loan.Transition(status, loan.StatusCompleted); err != nil {
				return err
			}
			if err := s.loans.UpdateStatus(ctx, tx, loanID, string(loan.StatusCompleted)); err != nil {
				return err
			}
			result.LoanCompleted = true
		}
		result.BalanceAfter = money.New(newBalance, row.Currency)
		data, _ := json.Marshal(map[string]any{"amount": amount.AmountMinor, "installments_paid": result.InstallmentsPaid})
		return s.audit.Log(ctx, tx, actorID, "loan_repayment", "loan", loanID, string(data))
	})
	if err != nil {
		return RepaymentResult{}, err
	}
	s.hub.BroadcastBalance(ownerID, websocket.WalletUpdate{
		Kind:     "main",
		Balance:  money.FormatMinor(result.BalanceAfter.AmountMinor),
		Currency: result.BalanceAfter.Currency,
	})
	if result.LoanCompleted {
		metrics.LoanTransitions.WithLabelValues(string(loan.StatusCompleted)).Inc()
		s.notifier.LoanStatusChanged(ownerID, loanID, loan.StatusActive, loan.StatusCompleted)
	}
	return result, nil
}

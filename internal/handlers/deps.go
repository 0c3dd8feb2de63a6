package handlers

import (
	"context"

	"coopledger/internal/loan"
	"coopledger/internal/money"
	"coopledger/internal/services"
	"coopledger/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (map[string]any, error)
	GetByUsername(ctx context.Context, username string) (map[string]any, error)
	GetByID(ctx context.Context, userID string) (map[string]any, error)
}

type WalletReadStore interface {
	GetByOwner(ctx context.Context, ownerID string) ([]store.WalletBalanceSummary, error)
	GetByOwnerKind(ctx context.Context, ownerID, kind string) (store.Wallet, error)
}

type LedgerReadStore interface {
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]map[string]any, error)
}

type TransactionStore interface {
	ListByOwner(ctx context.Context, ownerID, txType string, limit, offset int) ([]map[string]any, error)
	ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type ShareReadStore interface {
	GetPool(ctx context.Context, poolID string) (store.SharePool, error)
	ListTransactionsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]store.ShareTransaction, error)
	ListPendingSales(ctx context.Context, limit, offset int) ([]store.ShareTransaction, error)
}

type LoanReadStore interface {
	GetByID(ctx context.Context, loanID string) (store.Loan, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]store.Loan, error)
	ListPayments(ctx context.Context, loanID string) ([]store.LoanPayment, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type WalletService interface {
	Deposit(ctx context.Context, req services.DepositRequest) (services.MutationResult, error)
	Withdraw(ctx context.Context, req services.WithdrawRequest) (services.MutationResult, error)
	Transfer(ctx context.Context, req services.TransferRequest) (string, error)
	BulkDeposit(ctx context.Context, req services.BulkDepositRequest) (string, error)
}

type ShareService interface {
	BuyShares(ctx context.Context, ownerID string, quantity int64, actorID string) (services.BuyResult, error)
	SellShares(ctx context.Context, ownerID string, quantity int64, actorID string) (string, error)
	ApproveSale(ctx context.Context, transactionID, actorID string) error
	RejectSale(ctx context.Context, transactionID, reason, actorID string) error
}

type LoanService interface {
	Apply(ctx context.Context, req services.LoanApplication) (string, error)
	Transition(ctx context.Context, loanID string, to loan.Status, actorID string) error
	Repay(ctx context.Context, loanID string, amount money.Money, actorID string) (services.RepaymentResult, error)
}

package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"coopledger/internal/auth"
	"coopledger/internal/config"
	"coopledger/internal/db"
	"coopledger/internal/loan"
	"coopledger/internal/money"
	"coopledger/internal/services"
	"coopledger/internal/store"
	"coopledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubReconcileDB struct {
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubReconcileDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn    func(ctx context.Context, email string) (map[string]any, error)
	getByUsernameFn func(ctx context.Context, username string) (map[string]any, error)
	getByIDFn       func(ctx context.Context, userID string) (map[string]any, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (map[string]any, error) {
	if s.getByEmailFn == nil {
		return nil, nil
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (map[string]any, error) {
	if s.getByUsernameFn == nil {
		return nil, nil
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (map[string]any, error) {
	if s.getByIDFn == nil {
		return nil, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubWalletReadStore struct {
	getByOwnerFn     func(ctx context.Context, ownerID string) ([]store.WalletBalanceSummary, error)
	getByOwnerKindFn func(ctx context.Context, ownerID, kind string) (store.Wallet, error)
}

func (s stubWalletReadStore) GetByOwner(ctx context.Context, ownerID string) ([]store.WalletBalanceSummary, error) {
	if s.getByOwnerFn == nil {
		return nil, nil
	}
	return s.getByOwnerFn(ctx, ownerID)
}

func (s stubWalletReadStore) GetByOwnerKind(ctx context.Context, ownerID, kind string) (store.Wallet, error) {
	if s.getByOwnerKindFn == nil {
		return store.Wallet{}, nil
	}
	return s.getByOwnerKindFn(ctx, ownerID, kind)
}

type stubLedgerReadStore struct {
	listByWalletFn func(ctx context.Context, walletID string, limit, offset int) ([]map[string]any, error)
}

func (s stubLedgerReadStore) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]map[string]any, error) {
	if s.listByWalletFn == nil {
		return nil, nil
	}
	return s.listByWalletFn(ctx, walletID, limit, offset)
}

type stubTransactionStore struct {
	listByOwnerFn func(ctx context.Context, ownerID, txType string, limit, offset int) ([]map[string]any, error)
	listAllFn     func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubTransactionStore) ListByOwner(ctx context.Context, ownerID, txType string, limit, offset int) ([]map[string]any, error) {
	if s.listByOwnerFn == nil {
		return nil, nil
	}
	return s.listByOwnerFn(ctx, ownerID, txType, limit, offset)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

type stubShareReadStore struct {
	getPoolFn     func(ctx context.Context, poolID string) (store.SharePool, error)
	listByOwnerFn func(ctx context.Context, ownerID string, limit, offset int) ([]store.ShareTransaction, error)
	listPendingFn func(ctx context.Context, limit, offset int) ([]store.ShareTransaction, error)
}

func (s stubShareReadStore) GetPool(ctx context.Context, poolID string) (store.SharePool, error) {
	if s.getPoolFn == nil {
		return store.SharePool{}, nil
	}
	return s.getPoolFn(ctx, poolID)
}

func (s stubShareReadStore) ListTransactionsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]store.ShareTransaction, error) {
	if s.listByOwnerFn == nil {
		return nil, nil
	}
	return s.listByOwnerFn(ctx, ownerID, limit, offset)
}

func (s stubShareReadStore) ListPendingSales(ctx context.Context, limit, offset int) ([]store.ShareTransaction, error) {
	if s.listPendingFn == nil {
		return nil, nil
	}
	return s.listPendingFn(ctx, limit, offset)
}

type stubLoanReadStore struct {
	getByIDFn      func(ctx context.Context, loanID string) (store.Loan, error)
	listByOwnerFn  func(ctx context.Context, ownerID string, limit, offset int) ([]store.Loan, error)
	listPaymentsFn func(ctx context.Context, loanID string) ([]store.LoanPayment, error)
}

func (s stubLoanReadStore) GetByID(ctx context.Context, loanID string) (store.Loan, error) {
	if s.getByIDFn == nil {
		return store.Loan{}, nil
	}
	return s.getByIDFn(ctx, loanID)
}

func (s stubLoanReadStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]store.Loan, error) {
	if s.listByOwnerFn == nil {
		return nil, nil
	}
	return s.listByOwnerFn(ctx, ownerID, limit, offset)
}

func (s stubLoanReadStore) ListPayments(ctx context.Context, loanID string) ([]store.LoanPayment, error) {
	if s.listPaymentsFn == nil {
		return nil, nil
	}
	return s.listPaymentsFn(ctx, loanID)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return false, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubWalletService struct {
	depositFn  func(ctx context.Context, req services.DepositRequest) (services.MutationResult, error)
	withdrawFn func(ctx context.Context, req services.WithdrawRequest) (services.MutationResult, error)
	transferFn func(ctx context.Context, req services.TransferRequest) (string, error)
	bulkFn     func(ctx context.Context, req services.BulkDepositRequest) (string, error)
}

func (s stubWalletService) Deposit(ctx context.Context, req services.DepositRequest) (services.MutationResult, error) {
	if s.depositFn == nil {
		return services.MutationResult{}, nil
	}
	return s.depositFn(ctx, req)
}

func (s stubWalletService) Withdraw(ctx context.Context, req services.WithdrawRequest) (services.MutationResult, error) {
	if s.withdrawFn == nil {
		return services.MutationResult{}, nil
	}
	return s.withdrawFn(ctx, req)
}

func (s stubWalletService) Transfer(ctx context.Context, req services.TransferRequest) (string, error) {
	if s.transferFn == nil {
		return "", nil
	}
	return s.transferFn(ctx, req)
}

func (s stubWalletService) BulkDeposit(ctx context.Context, req services.BulkDepositRequest) (string, error) {
	if s.bulkFn == nil {
		return "", nil
	}
	return s.bulkFn(ctx, req)
}

type stubShareService struct {
	buyFn     func(ctx context.Context, ownerID string, quantity int64, actorID string) (services.BuyResult, error)
	sellFn    func(ctx context.Context, ownerID string, quantity int64, actorID string) (string, error)
	approveFn func(ctx context.Context, transactionID, actorID string) error
	rejectFn  func(ctx context.Context, transactionID, reason, actorID string) error
}

func (s stubShareService) BuyShares(ctx context.Context, ownerID string, quantity int64, actorID string) (services.BuyResult, error) {
	if s.buyFn == nil {
		return services.BuyResult{}, nil
	}
	return s.buyFn(ctx, ownerID, quantity, actorID)
}

func (s stubShareService) SellShares(ctx context.Context, ownerID string, quantity int64, actorID string) (string, error) {
	if s.sellFn == nil {
		return "", nil
	}
	return s.sellFn(ctx, ownerID, quantity, actorID)
}

func (s stubShareService) ApproveSale(ctx context.Context, transactionID, actorID string) error {
	if s.approveFn == nil {
		return nil
	}
	return s.approveFn(ctx, transactionID, actorID)
}

func (s stubShareService) RejectSale(ctx context.Context, transactionID, reason, actorID string) error {
	if s.rejectFn == nil {
		return nil
	}
	return s.rejectFn(ctx, transactionID, reason, actorID)
}

type stubLoanService struct {
	applyFn      func(ctx context.Context, req services.LoanApplication) (string, error)
	transitionFn func(ctx context.Context, loanID string, to loan.Status, actorID string) error
	repayFn      func(ctx context.Context, loanID string, amount money.Money, actorID string) (services.RepaymentResult, error)
}

func (s stubLoanService) Apply(ctx context.Context, req services.LoanApplication) (string, error) {
	if s.applyFn == nil {
		return "", nil
	}
	return s.applyFn(ctx, req)
}

func (s stubLoanService) Transition(ctx context.Context, loanID string, to loan.Status, actorID string) error {
	if s.transitionFn == nil {
		return nil
	}
	return s.transitionFn(ctx, loanID, to, actorID)
}

func (s stubLoanService) Repay(ctx context.Context, loanID string, amount money.Money, actorID string) (services.RepaymentResult, error) {
	if s.repayFn == nil {
		return services.RepaymentResult{}, nil
	}
	return s.repayFn(ctx, loanID, amount, actorID)
}

// testDeps lets each test supply only the collaborators it cares about; nil
// fields fall back to inert stubs.
type testDeps struct {
	reconcileDB  store.Selecter
	txRunner     db.TxRunner
	users        UserStore
	wallets      WalletReadStore
	ledger       LedgerReadStore
	transactions TransactionStore
	shares       ShareReadStore
	loans        LoanReadStore
	admin        AdminStore
	audit        AuditStore
	walletSvc    WalletService
	shareSvc     ShareService
	loanSvc      LoanService
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
		Wallet: config.WalletConfig{
			Currency:         "USD",
			DepositableKinds: []string{"main", "bonus", "cashback", "referral", "commission"},
			BulkBatchLimit:   100,
		},
		Shares: config.ShareConfig{
			PoolID:          "pool-1",
			MinimumPurchase: 1,
			SaleFeePercent:  decimal.NewFromInt(1),
		},
		Loans: config.LoanConfig{
			MinPrincipalMinor: 10000,
			MaxPrincipalMinor: 10000000,
			MaxTermMonths:     60,
		},
	}
	if deps.reconcileDB == nil {
		deps.reconcileDB = stubReconcileDB{}
	}
	if deps.txRunner == nil {
		deps.txRunner = fakeTxRunner{}
	}
	if deps.users == nil {
		deps.users = stubUserStore{}
	}
	if deps.wallets == nil {
		deps.wallets = stubWalletReadStore{}
	}
	if deps.ledger == nil {
		deps.ledger = stubLedgerReadStore{}
	}
	if deps.transactions == nil {
		deps.transactions = stubTransactionStore{}
	}
	if deps.shares == nil {
		deps.shares = stubShareReadStore{}
	}
	if deps.loans == nil {
		deps.loans = stubLoanReadStore{}
	}
	if deps.admin == nil {
		deps.admin = stubAdminStore{}
	}
	if deps.audit == nil {
		deps.audit = stubAuditStore{}
	}
	if deps.walletSvc == nil {
		deps.walletSvc = stubWalletService{}
	}
	if deps.shareSvc == nil {
		deps.shareSvc = stubShareService{}
	}
	if deps.loanSvc == nil {
		deps.loanSvc = stubLoanService{}
	}
	return New(deps.reconcileDB, deps.txRunner, cfg, deps.users, deps.wallets, deps.ledger, deps.transactions, deps.shares, deps.loans, deps.admin, deps.audit, deps.walletSvc, deps.shareSvc, deps.loanSvc, websocket.NewHub())
}

// serveAuthed runs a request through the full router with a valid bearer
// token so route params and middleware behave as in production.
func serveAuthed(t *testing.T, handler *Handler, method, target, userID string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func adminStoreAllowingAll() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, bool, error) {
			return true, true, nil
		},
	}
}

func stringPtr(value string) *string {
	return &value
}

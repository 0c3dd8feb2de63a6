package services

import (
	"context"
	"encoding/json"
	"errors"

	"coopledger/internal/config"
	"coopledger/internal/db"
	"coopledger/internal/metrics"
	"coopledger/internal/money"
	"coopledger/internal/store"
	"coopledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidWalletKind   = errors.New("invalid wallet kind")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrSameWalletTransfer  = errors.New("cannot transfer to the same owner")
	ErrEmptyBatch          = errors.New("empty bulk deposit batch")
	ErrBatchTooLarge       = errors.New("bulk deposit batch too large")
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, id, ownerID, kind, currency string) error
	GetForUpdateByOwnerKind(ctx context.Context, tx store.Getter, ownerID, kind string) (store.Wallet, error)
	UpdateBalance(ctx context.Context, tx store.Execer, walletID string, balance int64) error
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
}

type IdempotencyStore interface {
	Insert(ctx context.Context, tx store.Execer, reference, walletID, status string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(ownerID string, update websocket.WalletUpdate)
}

// WalletService is the transfer engine: the only writer of wallet balances
// and ledger entries. Every mutation runs inside one serializable transaction
// scoped to the wallet rows it touches; the idempotency insert shares that
// transaction so a racing duplicate reference aborts the mutation with it.
type WalletService struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	ledger       LedgerStore
	transactions TransactionStore
	idempotency  IdempotencyStore
	audit        AuditStore
	hub          BalanceHub
	cfg          config.WalletConfig
}

func NewWalletService(txRunner db.TxRunner, wallets WalletStore, ledger LedgerStore, transactions TransactionStore, idempotency IdempotencyStore, audit AuditStore, hub BalanceHub, cfg config.WalletConfig) *WalletService {
	return &WalletService{
		txRunner:     txRunner,
		wallets:      wallets,
		ledger:       ledger,
		transactions: transactions,
		idempotency:  idempotency,
		audit:        audit,
		hub:          hub,
		cfg:          cfg,
	}
}

func (s *WalletService) knownKind(kind string) bool {
	for _, k := range s.cfg.DepositableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// getOrCreateForUpdate returns the locked wallet row for (owner, kind),
// creating it with a zero balance on first use.
func (s *WalletService) getOrCreateForUpdate(ctx context.Context, tx *sqlx.Tx, ownerID, kind string) (store.Wallet, error) {
	wallet, err := s.wallets.GetForUpdateByOwnerKind(ctx, tx, ownerID, kind)
	if err == nil {
		return wallet, nil
	}
	if !store.IsNoRows(err) {
		return store.Wallet{}, err
	}
	if err := s.wallets.Create(ctx, tx, uuid.NewString(), ownerID, kind, s.cfg.Currency); err != nil {
		return store.Wallet{}, err
	}
	return s.wallets.GetForUpdateByOwnerKind(ctx, tx, ownerID, kind)
}

type DepositRequest struct {
	OwnerID   string
	Kind      string
	Amount    money.Money
	Reference *string
	Notes     string
	ActorID   string
}

type MutationResult struct {
	TransactionID string
	EntryID       string
	BalanceAfter  money.Money
}

func (s *WalletService) Deposit(ctx context.Context, req DepositRequest) (MutationResult, error) {
	if !req.Amount.IsPositive() || req.Amount.Currency != s.cfg.Currency {
		return MutationResult{}, ErrInvalidAmount
	}
	if !s.knownKind(req.Kind) {
		return MutationResult{}, ErrInvalidWalletKind
	}
	var result MutationResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.getOrCreateForUpdate(ctx, tx, req.OwnerID, req.Kind)
		if err != nil {
			return err
		}
		if req.Reference != nil {
			if err := s.idempotency.Insert(ctx, tx, *req.Reference, wallet.ID, "processed"); err != nil {
				if store.IsUniqueViolation(err) {
					return ErrDuplicateReference
				}
				return err
			}
		}
		newBalance := wallet.Balance + req.Amount.AmountMinor
		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
			return err
		}
		transactionID := uuid.NewString()
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:         transactionID,
			OwnerID:    req.OwnerID,
			Type:       "deposit",
			Status:     "completed",
			Amount:     req.Amount.AmountMinor,
			Currency:   wallet.Currency,
			ToWalletID: &wallet.ID,
			Metadata:   "{}",
		}); err != nil {
			return err
		}
		entryID := uuid.NewString()
		if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
			ID:            entryID,
			TransactionID: transactionID,
			WalletID:      wallet.ID,
			Direction:     DirectionCredit,
			Amount:        req.Amount.AmountMinor,
			BalanceAfter:  newBalance,
			Currency:      wallet.Currency,
			Reference:     req.Reference,
			Notes:         req.Notes,
		}}); err != nil {
			return err
		}
		result = MutationResult{
			TransactionID: transactionID,
			EntryID:       entryID,
			BalanceAfter:  money.New(newBalance, wallet.Currency),
		}
		data, _ := json.Marshal(map[string]string{"transaction_id": transactionID, "kind": req.Kind})
		return s.audit.Log(ctx, tx, req.ActorID, "wallet_deposit", "wallet", wallet.ID, string(data))
	})
	if err != nil {
		metrics.WalletOperations.WithLabelValues("deposit", "failure").Inc()
		return MutationResult{}, err
	}
	metrics.WalletOperations.WithLabelValues("deposit", "success").Inc()
	s.hub.BroadcastBalance(req.OwnerID, websocket.WalletUpdate{
		Kind:     req.Kind,
		Balance:  money.FormatMinor(result.BalanceAfter.AmountMinor),
		Currency: result.BalanceAfter.Currency,
	})
	return result, nil
}

type WithdrawRequest struct {
	OwnerID        string
	Kind           string
	Amount         money.Money
	Reference      *string
	Notes          string
	ActorID        string
	AllowOverdraft bool
}

func (s *WalletService) Withdraw(ctx context.Context, req WithdrawRequest) (MutationResult, error) {
	if !req.Amount.IsPositive() || req.Amount.Currency != s.cfg.Currency {
		return MutationResult{}, ErrInvalidAmount
	}
	if !s.knownKind(req.Kind) {
		return MutationResult{}, ErrInvalidWalletKind
	}
	var result MutationResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.wallets.GetForUpdateByOwnerKind(ctx, tx, req.OwnerID, req.Kind)
		if err != nil {
			if store.IsNoRows(err) {
				return ErrInsufficientBalance
			}
			return err
		}
		newBalance := wallet.Balance - req.Amount.AmountMinor
		if newBalance < 0 && !req.AllowOverdraft {
			return ErrInsufficientBalance
		}
		if req.Reference != nil {
			if err := s.idempotency.Insert(ctx, tx, *req.Reference, wallet.ID, "processed"); err != nil {
				if store.IsUniqueViolation(err) {
					return ErrDuplicateReference
				}
				return err
			}
		}
		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
			return err
		}
		transactionID := uuid.NewString()
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:           transactionID,
			OwnerID:      req.OwnerID,
			Type:         "withdrawal",
			Status:       "completed",
			Amount:       req.Amount.AmountMinor,
			Currency:     wallet.Currency,
			FromWalletID: &wallet.ID,
			Metadata:     "{}",
		}); err != nil {
			return err
		}
		entryID := uuid.NewString()
		if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
			ID:            entryID,
			TransactionID: transactionID,
			WalletID:      wallet.ID,
			Direction:     DirectionDebit,
			Amount:        -req.Amount.AmountMinor,
			BalanceAfter:  newBalance,
			Currency:      wallet.Currency,
			Reference:     req.Reference,
			Notes:         req.Notes,
		}}); err != nil {
			return err
		}
		result = MutationResult{
			TransactionID: transactionID,
			EntryID:       entryID,
			BalanceAfter:  money.New(newBalance, wallet.Currency),
		}
		data, _ := json.Marshal(map[string]string{"transaction_id": transactionID, "kind": req.Kind})
		return s.audit.Log(ctx, tx, req.ActorID, "wallet_withdrawal", "wallet", wallet.ID, string(data))
	})
	if err != nil {
		metrics.WalletOperations.WithLabelValues("withdraw", "failure").Inc()
		return MutationResult{}, err
	}
	metrics.WalletOperations.WithLabelValues("withdraw", "success").Inc()
	s.hub.BroadcastBalance(req.OwnerID, websocket.WalletUpdate{
		Kind:     req.Kind,
		Balance:  money.FormatMinor(result.BalanceAfter.AmountMinor),
		Currency: result.BalanceAfter.Currency,
	})
	return result, nil
}

type TransferRequest struct {
	FromOwnerID string
	ToOwnerID   string
	Kind        string
	Amount      money.Money
	Reference   *string
	Notes       string
	ActorID     string
}

// Transfer is a withdraw on the source and a deposit on the destination in
// one atomic unit. Wallet rows are locked in owner-id order so two opposing
// transfers cannot deadlock.
func (s *WalletService) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if !req.Amount.IsPositive() || req.Amount.Currency != s.cfg.Currency {
		return "", ErrInvalidAmount
	}
	if !s.knownKind(req.Kind) {
		return "", ErrInvalidWalletKind
	}
	if req.FromOwnerID == req.ToOwnerID {
		return "", ErrSameWalletTransfer
	}
	var transactionID string
	var fromAfter, toAfter int64
	var currency string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		firstOwner, secondOwner := req.FromOwnerID, req.ToOwnerID
		if secondOwner < firstOwner {
			firstOwner, secondOwner = secondOwner, firstOwner
		}
		first, err := s.getOrCreateForUpdate(ctx, tx, firstOwner, req.Kind)
		if err != nil {
			return err
		}
		second, err := s.getOrCreateForUpdate(ctx, tx, secondOwner, req.Kind)
		if err != nil {
			return err
		}
		fromWallet, toWallet := first, second
		if fromWallet.OwnerID != req.FromOwnerID {
			fromWallet, toWallet = second, first
		}
		currency = fromWallet.Currency
		if fromWallet.Balance < req.Amount.AmountMinor {
			return ErrInsufficientBalance
		}
		if req.Reference != nil {
			if err := s.idempotency.Insert(ctx, tx, *req.Reference, fromWallet.ID, "processed"); err != nil {
				if store.IsUniqueViolation(err) {
					return ErrDuplicateReference
				}
				return err
			}
		}
		fromAfter = fromWallet.Balance - req.Amount.AmountMinor
		toAfter = toWallet.Balance + req.Amount.AmountMinor
		if err := s.wallets.UpdateBalance(ctx, tx, fromWallet.ID, fromAfter); err != nil {
			return err
		}
		if err := s.wallets.UpdateBalance(ctx, tx, toWallet.ID, toAfter); err != nil {
			return err
		}
		transactionID = uuid.NewString()
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:           transactionID,
			OwnerID:      req.FromOwnerID,
			Type:         "transfer",
			Status:       "completed",
			Amount:       req.Amount.AmountMinor,
			Currency:     currency,
			FromWalletID: &fromWallet.ID,
			ToWalletID:   &toWallet.ID,
			Metadata:     "{}",
		}); err != nil {
			return err
		}
		entries := []store.LedgerEntryInput{
			{
				ID:            uuid.NewString(),
				TransactionID: transactionID,
				WalletID:      fromWallet.ID,
				Direction:     DirectionDebit,
				Amount:        -req.Amount.AmountMinor,
				BalanceAfter:  fromAfter,
				Currency:      currency,
				Reference:     req.Reference,
				Notes:         "Transfer debit",
			},
			{
				ID:            uuid.NewString(),
				TransactionID: transactionID,
				WalletID:      toWallet.ID,
				Direction:     DirectionCredit,
				Amount:        req.Amount.AmountMinor,
				BalanceAfter:  toAfter,
				Currency:      currency,
				Notes:         "Transfer credit",
			},
		}
		if err := ensureBalanced(entries); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"transaction_id": transactionID})
		return s.audit.Log(ctx, tx, req.ActorID, "wallet_transfer", "transaction", transactionID, string(data))
	})
	if err != nil {
		metrics.WalletOperations.WithLabelValues("transfer", "failure").Inc()
		return "", err
	}
	metrics.WalletOperations.WithLabelValues("transfer", "success").Inc()
	s.hub.BroadcastBalance(req.FromOwnerID, websocket.WalletUpdate{
		Kind:     req.Kind,
		Balance:  money.FormatMinor(fromAfter),
		Currency: currency,
	})
	s.hub.BroadcastBalance(req.ToOwnerID, websocket.WalletUpdate{
		Kind:     req.Kind,
		Balance:  money.FormatMinor(toAfter),
		Currency: currency,
	})
	return transactionID, nil
}

type BulkDepositLine struct {
	OwnerID string
	Kind    string
	Amount  money.Money
	Notes   string
}

type BulkDepositRequest struct {
	Lines   []BulkDepositLine
	ActorID string
}

type balanceEvent struct {
	ownerID string
	update  websocket.WalletUpdate
}

// BulkDeposit credits every line or none: the whole batch is one transaction
// and a single invalid line aborts it without partial crediting.
func (s *WalletService) BulkDeposit(ctx context.Context, req BulkDepositRequest) (string, error) {
	if len(req.Lines) == 0 {
		return "", ErrEmptyBatch
	}
	if s.cfg.BulkBatchLimit > 0 && len(req.Lines) > s.cfg.BulkBatchLimit {
		return "", ErrBatchTooLarge
	}
	for _, line := range req.Lines {
		if !line.Amount.IsPositive() || line.Amount.Currency != s.cfg.Currency {
			return "", ErrInvalidAmount
		}
		if !s.knownKind(line.Kind) {
			return "", ErrInvalidWalletKind
		}
	}
	batchID := uuid.NewString()
	var events []balanceEvent
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		events = events[:0]
		metadata, _ := json.Marshal(map[string]any{"batch_size": len(req.Lines)})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:       batchID,
			OwnerID:  req.ActorID,
			Type:     "bulk_deposit",
			Status:   "completed",
			Amount:   batchTotal(req.Lines),
			Currency: s.cfg.Currency,
			Metadata: string(metadata),
		}); err != nil {
			return err
		}
		for _, line := range req.Lines {
			wallet, err := s.getOrCreateForUpdate(ctx, tx, line.OwnerID, line.Kind)
			if err != nil {
				return err
			}
			newBalance := wallet.Balance + line.Amount.AmountMinor
			if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
				return err
			}
			if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
				ID:            uuid.NewString(),
				TransactionID: batchID,
				WalletID:      wallet.ID,
				Direction:     DirectionCredit,
				Amount:        line.Amount.AmountMinor,
				BalanceAfter:  newBalance,
				Currency:      wallet.Currency,
				Notes:         line.Notes,
			}}); err != nil {
				return err
			}
			events = append(events, balanceEvent{
				ownerID: line.OwnerID,
				update: websocket.WalletUpdate{
					WalletID: wallet.ID,
					Kind:     line.Kind,
					Balance:  money.FormatMinor(newBalance),
					Currency: wallet.Currency,
				},
			})
		}
		data, _ := json.Marshal(map[string]any{"batch_id": batchID, "lines": len(req.Lines)})
		return s.audit.Log(ctx, tx, req.ActorID, "wallet_bulk_deposit", "transaction", batchID, string(data))
	})
	if err != nil {
		metrics.WalletOperations.WithLabelValues("bulk_deposit", "failure").Inc()
		return "", err
	}
	metrics.WalletOperations.WithLabelValues("bulk_deposit", "success").Inc()
	for _, event := range events {
		s.hub.BroadcastBalance(event.ownerID, event.update)
	}
	return batchID, nil
}

func batchTotal(lines []BulkDepositLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.Amount.AmountMinor
	}
	return total
}

func ensureBalanced(entries []store.LedgerEntryInput) error {
	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	if sum != 0 {
		return errors.New("ledger entries are not balanced")
	}
	return nil
}

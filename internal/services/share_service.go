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
	ErrInsufficientShares     = errors.New("insufficient shares")
	ErrBelowMinimumPurchase   = errors.New("quantity below minimum purchase")
	ErrInvalidQuantity        = errors.New("invalid share quantity")
	ErrInvalidStateTransition = errors.New("invalid share transaction state transition")
	ErrNotASale               = errors.New("transaction is not a sale")
)

type ShareStore interface {
	GetPoolForUpdate(ctx context.Context, tx store.Getter, poolID string) (store.SharePool, error)
	UpdateAvailable(ctx context.Context, tx store.Execer, poolID string, available int64) error
	GetHoldingForUpdate(ctx context.Context, tx store.Getter, ownerID, poolID string) (store.ShareHolding, error)
	CreateHolding(ctx context.Context, tx store.Execer, ownerID, poolID string) error
	UpdateHolding(ctx context.Context, tx store.Execer, ownerID, poolID string, active, reserved int64) error
	CreateTransaction(ctx context.Context, tx store.Execer, input store.ShareTransactionInput) error
	GetTransactionForUpdate(ctx context.Context, tx store.Getter, transactionID string) (store.ShareTransaction, error)
	SettleTransaction(ctx context.Context, tx store.Execer, transactionID, status, notes string) error
}

// PoolInvalidator is implemented by the cached share store; settlements call
// it after commit so display reads re-populate from postgres.
type PoolInvalidator interface {
	InvalidatePool(ctx context.Context, poolID string)
}

// ShareService settles ownership-share trades against a single pool. Buys
// complete synchronously; sells are two-phase and hold a reservation until an
// admin approves or rejects them.
type ShareService struct {
	txRunner    db.TxRunner
	shares      ShareStore
	wallets     WalletStore
	ledger      LedgerStore
	transaction TransactionStore
	audit       AuditStore
	hub         BalanceHub
	invalidator PoolInvalidator
	poolID      string
	cfg         config.ShareConfig
	currency    string
}

func NewShareService(txRunner db.TxRunner, shares ShareStore, wallets WalletStore, ledger LedgerStore, transactions TransactionStore, audit AuditStore, hub BalanceHub, invalidator PoolInvalidator, poolID, currency string, cfg config.ShareConfig) *ShareService {
	return &ShareService{
		txRunner:    txRunner,
		shares:      shares,
		wallets:     wallets,
		ledger:      ledger,
		transaction: transactions,
		audit:       audit,
		hub:         hub,
		invalidator: invalidator,
		poolID:      poolID,
		cfg:         cfg,
		currency:    currency,
	}
}

func (s *ShareService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidatePool(ctx, s.poolID)
	}
}

type BuyResult struct {
	TransactionID string
	TotalAmount   money.Money
	BalanceAfter  money.Money
}

// BuyShares debits the buyer's main wallet and grants the shares in one
// atomic unit. The pool row lock serializes concurrent buys against the
// available count.
func (s *ShareService) BuyShares(ctx context.Context, ownerID string, quantity int64, actorID string) (BuyResult, error) {
	if quantity <= 0 {
		return BuyResult{}, ErrInvalidQuantity
	}
	if quantity < s.cfg.MinimumPurchase {
		return BuyResult{}, ErrBelowMinimumPurchase
	}
	var result BuyResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		pool, err := s.shares.GetPoolForUpdate(ctx, tx, s.poolID)
		if err != nil {
			return err
		}
		if quantity > pool.AvailableShares {
			return ErrInsufficientShares
		}
		total := money.New(pool.PricePerShare, pool.Currency).MulInt(quantity)

		wallet, err := s.wallets.GetForUpdateByOwnerKind(ctx, tx, ownerID, "main")
		if err != nil {
			if store.IsNoRows(err) {
				return ErrInsufficientBalance
			}
			return err
		}
		newBalance := wallet.Balance - total.AmountMinor
		if newBalance < 0 {
			return ErrInsufficientBalance
		}
		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
			return err
		}

		holding, err := s.shares.GetHoldingForUpdate(ctx, tx, ownerID, s.poolID)
		if err != nil {
			if !store.IsNoRows(err) {
				return err
			}
			if err := s.shares.CreateHolding(ctx, tx, ownerID, s.poolID); err != nil {
				return err
			}
			holding, err = s.shares.GetHoldingForUpdate(ctx, tx, ownerID, s.poolID)
			if err != nil {
				return err
			}
		}
		if err := s.shares.UpdateHolding(ctx, tx, ownerID, s.poolID, holding.ActiveQuantity+quantity, holding.ReservedQuantity); err != nil {
			return err
		}
		if err := s.shares.UpdateAvailable(ctx, tx, s.poolID, pool.AvailableShares-quantity); err != nil {
			return err
		}

		walletTxID := uuid.NewString()
		if err := s.transaction.Create(ctx, tx, store.TransactionInput{
			ID:           walletTxID,
			OwnerID:      ownerID,
			Type:         "share_buy",
			Status:       "completed",
			Amount:       total.AmountMinor,
			Currency:     pool.Currency,
			FromWalletID: &wallet.ID,
			Metadata:     "{}",
		}); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
			ID:            uuid.NewString(),
			TransactionID: walletTxID,
			WalletID:      wallet.ID,
			Direction:     DirectionDebit,
			Amount:        -total.AmountMinor,
			BalanceAfter:  newBalance,
			Currency:      pool.Currency,
			Notes:         "Share purchase",
		}}); err != nil {
			return err
		}

		shareTxID := uuid.NewString()
		if err := s.shares.CreateTransaction(ctx, tx, store.ShareTransactionInput{
			ID:            shareTxID,
			OwnerID:       ownerID,
			PoolID:        s.poolID,
			WalletID:      &wallet.ID,
			Kind:          "buy",
			Quantity:      quantity,
			PricePerShare: pool.PricePerShare,
			TotalAmount:   total.AmountMinor,
			NetAmount:     total.AmountMinor,
			Status:        "completed",
		}); err != nil {
			return err
		}
		if err := s.shares.SettleTransaction(ctx, tx, shareTxID, "completed", ""); err != nil {
			return err
		}
		result = BuyResult{
			TransactionID: shareTxID,
			TotalAmount:   total,
			BalanceAfter:  money.New(newBalance, pool.Currency),
		}
		data, _ := json.Marshal(map[string]any{"quantity": quantity, "total": total.AmountMinor})
		return s.audit.Log(ctx, tx, actorID, "share_buy", "share_transaction", shareTxID, string(data))
	})
	if err != nil {
		metrics.ShareTrades.WithLabelValues("buy", "failure").Inc()
		return BuyResult{}, err
	}
	metrics.ShareTrades.WithLabelValues("buy", "success").Inc()
	s.invalidate(ctx)
	s.hub.BroadcastBalance(ownerID, websocket.WalletUpdate{
		Kind:     "main",
		Balance:  money.FormatMinor(result.BalanceAfter.AmountMinor),
		Currency: result.BalanceAfter.Currency,
	})
	return result, nil
}

// SellShares opens the two-phase sale: the quantity moves from the seller's
// active holding into a reservation so it cannot be double-sold, a pending
// transaction holds the quoted proceeds, and no wallet is touched until an
// admin approves.
func (s *ShareService) SellShares(ctx context.Context, ownerID string, quantity int64, actorID string) (string, error) {
	if quantity <= 0 {
		return "", ErrInvalidQuantity
	}
	var shareTxID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		pool, err := s.shares.GetPoolForUpdate(ctx, tx, s.poolID)
		if err != nil {
			return err
		}
		holding, err := s.shares.GetHoldingForUpdate(ctx, tx, ownerID, s.poolID)
		if err != nil {
			if store.IsNoRows(err) {
				return ErrInsufficientShares
			}
			return err
		}
		if holding.ActiveQuantity < quantity {
			return ErrInsufficientShares
		}
		if err := s.shares.UpdateHolding(ctx, tx, ownerID, s.poolID,
			holding.ActiveQuantity-quantity, holding.ReservedQuantity+quantity); err != nil {
			return err
		}
		total := money.New(pool.PricePerShare, pool.Currency).MulInt(quantity)
		fee := total.Percent(s.cfg.SaleFeePercent)
		shareTxID = uuid.NewString()
		if err := s.shares.CreateTransaction(ctx, tx, store.ShareTransactionInput{
			ID:            shareTxID,
			OwnerID:       ownerID,
			PoolID:        s.poolID,
			Kind:          "sell",
			Quantity:      quantity,
			PricePerShare: pool.PricePerShare,
			TotalAmount:   total.AmountMinor,
			Fees:          fee.AmountMinor,
			NetAmount:     total.AmountMinor - fee.AmountMinor,
			Status:        "pending",
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"quantity": quantity, "total": total.AmountMinor})
		return s.audit.Log(ctx, tx, actorID, "share_sell_request", "share_transaction", shareTxID, string(data))
	})
	if err != nil {
		metrics.ShareTrades.WithLabelValues("sell", "failure").Inc()
		return "", err
	}
	metrics.ShareTrades.WithLabelValues("sell", "success").Inc()
	return shareTxID, nil
}

// ApproveSale credits the seller's main wallet with the net proceeds, returns
// the reserved quantity to the pool, and completes the transaction. A second
// approval of the same id fails on the pending-status check.
func (s *ShareService) ApproveSale(ctx context.Context, transactionID, actorID string) error {
	var ownerID string
	var balanceAfter int64
	var currency string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		shareTx, err := s.shares.GetTransactionForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if shareTx.Kind != "sell" {
			return ErrNotASale
		}
		if shareTx.Status != "pending" {
			return ErrInvalidStateTransition
		}
		ownerID = shareTx.OwnerID
		pool, err := s.shares.GetPoolForUpdate(ctx, tx, shareTx.PoolID)
		if err != nil {
			return err
		}
		holding, err := s.shares.GetHoldingForUpdate(ctx, tx, shareTx.OwnerID, shareTx.PoolID)
		if err != nil {
			return err
		}
		if holding.ReservedQuantity < shareTx.Quantity {
			return ErrInsufficientShares
		}
		if err := s.shares.UpdateHolding(ctx, tx, shareTx.OwnerID, shareTx.PoolID,
			holding.ActiveQuantity, holding.ReservedQuantity-shareTx.Quantity); err != nil {
			return err
		}
		if err := s.shares.UpdateAvailable(ctx, tx, shareTx.PoolID, pool.AvailableShares+shareTx.Quantity); err != nil {
			return err
		}

		wallet, err := s.wallets.GetForUpdateByOwnerKind(ctx, tx, shareTx.OwnerID, "main")
		if err != nil {
			if !store.IsNoRows(err) {
				return err
			}
			if err := s.wallets.Create(ctx, tx, uuid.NewString(), shareTx.OwnerID, "main", s.currency); err != nil {
				return err
			}
			wallet, err = s.wallets.GetForUpdateByOwnerKind(ctx, tx, shareTx.OwnerID, "main")
			if err != nil {
				return err
			}
		}
		balanceAfter = wallet.Balance + shareTx.NetAmount
		currency = wallet.Currency
		if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, balanceAfter); err != nil {
			return err
		}
		walletTxID := uuid.NewString()
		if err := s.transaction.Create(ctx, tx, store.TransactionInput{
			ID:         walletTxID,
			OwnerID:    shareTx.OwnerID,
			Type:       "share_sale",
			Status:     "completed",
			Amount:     shareTx.NetAmount,
			Currency:   wallet.Currency,
			ToWalletID: &wallet.ID,
			Metadata:   "{}",
		}); err != nil {
			return err
		}
		if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
			ID:            uuid.NewString(),
			TransactionID: walletTxID,
			WalletID:      wallet.ID,
			Direction:     DirectionCredit,
			Amount:        shareTx.NetAmount,
			BalanceAfter:  balanceAfter,
			Currency:      wallet.Currency,
			Notes:         "Share sale proceeds",
		}}); err != nil {
			return err
		}
		if err := s.shares.SettleTransaction(ctx, tx, transactionID, "completed", ""); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"net_amount": shareTx.NetAmount})
		return s.audit.Log(ctx, tx, actorID, "share_sale_approved", "share_transaction", transactionID, string(data))
	})
	if err != nil {
		metrics.ShareTrades.WithLabelValues("approve", "failure").Inc()
		return err
	}
	metrics.ShareTrades.WithLabelValues("approve", "success").Inc()
	s.invalidate(ctx)
	s.hub.BroadcastBalance(ownerID, websocket.WalletUpdate{
		Kind:     "main",
		Balance:  money.FormatMinor(balanceAfter),
		Currency: currency,
	})
	return nil
}

// RejectSale releases the reservation back to the seller. The shares never
// reach the pool and no wallet mutation happens.
func (s *ShareService) RejectSale(ctx context.Context, transactionID, reason, actorID string) error {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		shareTx, err := s.shares.GetTransactionForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if shareTx.Kind != "sell" {
			return ErrNotASale
		}
		if shareTx.Status != "pending" {
			return ErrInvalidStateTransition
		}
		holding, err := s.shares.GetHoldingForUpdate(ctx, tx, shareTx.OwnerID, shareTx.PoolID)
		if err != nil {
			return err
		}
		if holding.ReservedQuantity < shareTx.Quantity {
			return ErrInsufficientShares
		}
		if err := s.shares.UpdateHolding(ctx, tx, shareTx.OwnerID, shareTx.PoolID,
			holding.ActiveQuantity+shareTx.Quantity, holding.ReservedQuantity-shareTx.Quantity); err != nil {
			return err
		}
		if err := s.shares.SettleTransaction(ctx, tx, transactionID, "cancelled", reason); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		return s.audit.Log(ctx, tx, actorID, "share_sale_rejected", "share_transaction", transactionID, string(data))
	})
	if err != nil {
		metrics.ShareTrades.WithLabelValues("reject", "failure").Inc()
		return err
	}
	metrics.ShareTrades.WithLabelValues("reject", "success").Inc()
	return nil
}

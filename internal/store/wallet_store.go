package store

import (
	"context"
	"database/sql"
	"errors"
)

type WalletStore struct {
	db DB
}

type Wallet struct {
	ID        string `db:"id"`
	OwnerID   string `db:"owner_id"`
	Kind      string `db:"kind"`
	Currency  string `db:"currency"`
	Balance   int64  `db:"balance"`
	CreatedAt any    `db:"created_at"`
}

type WalletBalanceSummary struct {
	ID                string `db:"id"`
	OwnerID           string `db:"owner_id"`
	Kind              string `db:"kind"`
	Currency          string `db:"currency"`
	StoredBalance     int64  `db:"stored_balance"`
	CalculatedBalance int64  `db:"calculated_balance"`
	Difference        int64  `db:"difference"`
	CreatedAt         any    `db:"created_at"`
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, id, ownerID, kind, currency string) error {
	query := `
		INSERT INTO wallet_accounts (id, owner_id, kind, currency, balance)
		VALUES ($1, $2, $3, $4, 0)
	`
	_, err := tx.ExecContext(ctx, query, id, ownerID, kind, currency)
	return err
}

// GetForUpdateByOwnerKind locks the wallet row for the duration of the
// enclosing transaction. sql.ErrNoRows means the (owner, kind) pair has never
// been deposited to.
func (s *WalletStore) GetForUpdateByOwnerKind(ctx context.Context, tx Getter, ownerID, kind string) (Wallet, error) {
	var row Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, kind, currency, balance
		FROM wallet_accounts
		WHERE owner_id = $1 AND kind = $2
		FOR UPDATE
	`, ownerID, kind)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, walletID string) (Wallet, error) {
	var row Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, kind, currency, balance
		FROM wallet_accounts
		WHERE id = $1
		FOR UPDATE
	`, walletID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetByOwnerKind(ctx context.Context, ownerID, kind string) (Wallet, error) {
	var row Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, kind, currency, balance, created_at
		FROM wallet_accounts
		WHERE owner_id = $1 AND kind = $2
	`, ownerID, kind)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) UpdateBalance(ctx context.Context, tx Execer, walletID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallet_accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, walletID)
	return err
}

// GetByOwner lists an owner's wallets together with the ledger-derived
// balance, so callers can spot any divergence from the stored balance.
func (s *WalletStore) GetByOwner(ctx context.Context, ownerID string) ([]WalletBalanceSummary, error) {
	var rows []WalletBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id,
		       w.owner_id,
		       w.kind,
		       w.currency,
		       w.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS calculated_balance,
		       (w.balance - COALESCE(SUM(l.amount), 0)) AS difference,
		       w.created_at
		FROM wallet_accounts w
		LEFT JOIN ledger_entries l ON l.wallet_id = w.id
		WHERE w.owner_id = $1
		GROUP BY w.id, w.owner_id, w.kind, w.currency, w.balance, w.created_at
		ORDER BY w.kind
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

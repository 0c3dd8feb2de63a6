package store

import "context"

type ShareStore struct {
	db DB
}

type SharePool struct {
	ID              string `db:"id"`
	TotalShares     int64  `db:"total_shares"`
	AvailableShares int64  `db:"available_shares"`
	PricePerShare   int64  `db:"price_per_share"`
	Currency        string `db:"currency"`
}

type ShareHolding struct {
	OwnerID          string `db:"owner_id"`
	PoolID           string `db:"pool_id"`
	ActiveQuantity   int64  `db:"active_quantity"`
	ReservedQuantity int64  `db:"reserved_quantity"`
}

type ShareTransaction struct {
	ID            string  `db:"id"`
	OwnerID       string  `db:"owner_id"`
	PoolID        string  `db:"pool_id"`
	WalletID      *string `db:"wallet_id"`
	Kind          string  `db:"kind"`
	Quantity      int64   `db:"quantity"`
	PricePerShare int64   `db:"price_per_share"`
	TotalAmount   int64   `db:"total_amount"`
	Fees          int64   `db:"fees"`
	NetAmount     int64   `db:"net_amount"`
	Status        string  `db:"status"`
	Notes         string  `db:"notes"`
	CreatedAt     any     `db:"created_at"`
	ExecutedAt    any     `db:"executed_at"`
}

func NewShareStore(db DB) *ShareStore {
	return &ShareStore{db: db}
}

func (s *ShareStore) GetPool(ctx context.Context, poolID string) (SharePool, error) {
	var row SharePool
	err := s.db.GetContext(ctx, &row, `
		SELECT id, total_shares, available_shares, price_per_share, currency
		FROM share_pools
		WHERE id = $1
	`, poolID)
	if err != nil {
		return SharePool{}, err
	}
	return row, nil
}

func (s *ShareStore) GetPoolForUpdate(ctx context.Context, tx Getter, poolID string) (SharePool, error) {
	var row SharePool
	err := tx.GetContext(ctx, &row, `
		SELECT id, total_shares, available_shares, price_per_share, currency
		FROM share_pools
		WHERE id = $1
		FOR UPDATE
	`, poolID)
	if err != nil {
		return SharePool{}, err
	}
	return row, nil
}

func (s *ShareStore) UpdateAvailable(ctx context.Context, tx Execer, poolID string, available int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE share_pools
		SET available_shares = $1, updated_at = NOW()
		WHERE id = $2
	`, available, poolID)
	return err
}

func (s *ShareStore) GetHoldingForUpdate(ctx context.Context, tx Getter, ownerID, poolID string) (ShareHolding, error) {
	var row ShareHolding
	err := tx.GetContext(ctx, &row, `
		SELECT owner_id, pool_id, active_quantity, reserved_quantity
		FROM share_holdings
		WHERE owner_id = $1 AND pool_id = $2
		FOR UPDATE
	`, ownerID, poolID)
	if err != nil {
		return ShareHolding{}, err
	}
	return row, nil
}

func (s *ShareStore) CreateHolding(ctx context.Context, tx Execer, ownerID, poolID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO share_holdings (owner_id, pool_id, active_quantity, reserved_quantity)
		VALUES ($1, $2, 0, 0)
	`, ownerID, poolID)
	return err
}

func (s *ShareStore) UpdateHolding(ctx context.Context, tx Execer, ownerID, poolID string, active, reserved int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE share_holdings
		SET active_quantity = $1, reserved_quantity = $2
		WHERE owner_id = $3 AND pool_id = $4
	`, active, reserved, ownerID, poolID)
	return err
}

type ShareTransactionInput struct {
	ID            string
	OwnerID       string
	PoolID        string
	WalletID      *string
	Kind          string
	Quantity      int64
	PricePerShare int64
	TotalAmount   int64
	Fees          int64
	NetAmount     int64
	Status        string
	Notes         string
}

func (s *ShareStore) CreateTransaction(ctx context.Context, tx Execer, input ShareTransactionInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO share_transactions (id, owner_id, pool_id, wallet_id, kind, quantity, price_per_share, total_amount, fees, net_amount, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, input.ID, input.OwnerID, input.PoolID, input.WalletID, input.Kind, input.Quantity,
		input.PricePerShare, input.TotalAmount, input.Fees, input.NetAmount, input.Status, input.Notes)
	return err
}

// GetTransactionForUpdate locks the transaction row so approval and rejection
// of the same pending sale cannot race.
func (s *ShareStore) GetTransactionForUpdate(ctx context.Context, tx Getter, transactionID string) (ShareTransaction, error) {
	var row ShareTransaction
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, pool_id, wallet_id, kind, quantity, price_per_share, total_amount, fees, net_amount, status, notes, created_at, executed_at
		FROM share_transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID)
	if err != nil {
		return ShareTransaction{}, err
	}
	return row, nil
}

func (s *ShareStore) SettleTransaction(ctx context.Context, tx Execer, transactionID, status, notes string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE share_transactions
		SET status = $1, notes = $2, executed_at = NOW()
		WHERE id = $3
	`, status, notes, transactionID)
	return err
}

func (s *ShareStore) ListTransactionsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]ShareTransaction, error) {
	var rows []ShareTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, pool_id, wallet_id, kind, quantity, price_per_share, total_amount, fees, net_amount, status, notes, created_at, executed_at
		FROM share_transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *ShareStore) ListPendingSales(ctx context.Context, limit, offset int) ([]ShareTransaction, error) {
	var rows []ShareTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, pool_id, wallet_id, kind, quantity, price_per_share, total_amount, fees, net_amount, status, notes, created_at, executed_at
		FROM share_transactions
		WHERE kind = 'sell' AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

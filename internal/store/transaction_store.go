package store

import (
	"context"
	"fmt"
)

type TransactionStore struct {
	db DB
}

type transactionRow struct {
	ID           string  `db:"id"`
	OwnerID      string  `db:"owner_id"`
	Username     *string `db:"username"`
	Type         string  `db:"type"`
	Status       string  `db:"status"`
	Amount       int64   `db:"amount"`
	Currency     string  `db:"currency"`
	FromWalletID *string `db:"from_wallet_id"`
	ToWalletID   *string `db:"to_wallet_id"`
	Metadata     string  `db:"metadata"`
	CreatedAt    any     `db:"created_at"`
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

type TransactionInput struct {
	ID           string
	OwnerID      string
	Type         string
	Status       string
	Amount       int64
	Currency     string
	FromWalletID *string
	ToWalletID   *string
	Metadata     string
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO wallet_transactions (id, owner_id, type, status, amount, currency, from_wallet_id, to_wallet_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.OwnerID, input.Type, input.Status, input.Amount, input.Currency,
		input.FromWalletID, input.ToWalletID, input.Metadata,
	)
	return err
}

func (s *TransactionStore) ListByOwner(ctx context.Context, ownerID, txType string, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	query := `
		SELECT t.id, t.owner_id, u.username, t.type, t.status, t.amount, t.currency,
		       t.from_wallet_id, t.to_wallet_id, t.metadata, t.created_at
		FROM wallet_transactions t
		LEFT JOIN users u ON u.id = t.owner_id
		WHERE t.owner_id = $1
	`
	args := []any{ownerID}
	param := 2
	if txType != "" {
		query += " AND t.type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY t.created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.owner_id, u.username, t.type, t.status, t.amount, t.currency,
		       t.from_wallet_id, t.to_wallet_id, t.metadata, t.created_at
		FROM wallet_transactions t
		LEFT JOIN users u ON u.id = t.owner_id
		ORDER BY t.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}

func transactionRowsToMaps(rows []transactionRow) []map[string]any {
	maps := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		maps = append(maps, map[string]any{
			"id":             row.ID,
			"owner_id":       row.OwnerID,
			"username":       derefStringPtr(row.Username),
			"type":           row.Type,
			"status":         row.Status,
			"amount":         row.Amount,
			"currency":       row.Currency,
			"from_wallet_id": derefStringPtr(row.FromWalletID),
			"to_wallet_id":   derefStringPtr(row.ToWalletID),
			"metadata":       row.Metadata,
			"created_at":     row.CreatedAt,
		})
	}
	return maps
}

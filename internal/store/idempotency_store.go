package store

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// IdempotencyStore records processed external references. The reference
// column carries a unique constraint; Insert therefore doubles as the
// check-and-insert step and must run inside the same transaction as the
// balance mutation it guards.
type IdempotencyStore struct {
	db DB
}

func NewIdempotencyStore(db DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func (s *IdempotencyStore) Insert(ctx context.Context, tx Execer, reference, walletID, status string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_references (reference, wallet_id, status)
		VALUES ($1, $2, $3)
	`, reference, walletID, status)
	return err
}

func (s *IdempotencyStore) Get(ctx context.Context, reference string) (map[string]any, error) {
	var row struct {
		Reference string `db:"reference"`
		WalletID  string `db:"wallet_id"`
		Status    string `db:"status"`
		CreatedAt any    `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT reference, wallet_id, status, created_at
		FROM wallet_references
		WHERE reference = $1
	`, reference)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"reference":  row.Reference,
		"wallet_id":  row.WalletID,
		"status":     row.Status,
		"created_at": row.CreatedAt,
	}, nil
}

// IsUniqueViolation reports whether err is the postgres duplicate-key error,
// which is how a racing duplicate reference surfaces.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

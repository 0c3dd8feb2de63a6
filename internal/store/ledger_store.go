package store

import "context"

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// LedgerEntryInput is one signed balance mutation. Amount is negative for
// debits; Direction is stored redundantly for audit queries. BalanceAfter is
// the wallet balance at commit and is what makes the log replayable in order.
type LedgerEntryInput struct {
	ID            string
	TransactionID string
	WalletID      string
	Direction     string
	Amount        int64
	BalanceAfter  int64
	Currency      string
	Reference     *string
	Notes         string
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	query := `
		INSERT INTO ledger_entries (id, transaction_id, wallet_id, direction, amount, balance_after, currency, reference, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query,
			entry.ID, entry.TransactionID, entry.WalletID, entry.Direction,
			entry.Amount, entry.BalanceAfter, entry.Currency, entry.Reference, entry.Notes,
		); err != nil {
			return err
		}
	}
	return nil
}

// SumByWallet reconstructs a wallet balance from the append-only log.
func (s *LedgerStore) SumByWallet(ctx context.Context, walletID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE wallet_id = $1
	`, walletID)
	return sum, err
}

type ledgerEntryRow struct {
	ID            string  `db:"id"`
	TransactionID string  `db:"transaction_id"`
	WalletID      string  `db:"wallet_id"`
	Direction     string  `db:"direction"`
	Amount        int64   `db:"amount"`
	BalanceAfter  int64   `db:"balance_after"`
	Currency      string  `db:"currency"`
	Reference     *string `db:"reference"`
	Notes         string  `db:"notes"`
	CreatedAt     any     `db:"created_at"`
}

func (s *LedgerStore) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]map[string]any, error) {
	var rows []ledgerEntryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, transaction_id, wallet_id, direction, amount, balance_after, currency, reference, notes, created_at
		FROM ledger_entries
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, map[string]any{
			"id":             row.ID,
			"transaction_id": row.TransactionID,
			"wallet_id":      row.WalletID,
			"direction":      row.Direction,
			"amount":         row.Amount,
			"balance_after":  row.BalanceAfter,
			"currency":       row.Currency,
			"reference":      derefStringPtr(row.Reference),
			"notes":          row.Notes,
			"created_at":     row.CreatedAt,
		})
	}
	return entries, nil
}

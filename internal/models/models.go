package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type WalletAccount struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Kind      string    `db:"kind" json:"kind"`
	Currency  string    `db:"currency" json:"currency"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LedgerEntry is one immutable signed balance mutation. BalanceAfter snapshots
// the wallet balance at commit, making the log order reconstructible.
type LedgerEntry struct {
	ID            string    `db:"id" json:"id"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	WalletID      string    `db:"wallet_id" json:"wallet_id"`
	Direction     string    `db:"direction" json:"direction"`
	Amount        int64     `db:"amount" json:"amount"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	Currency      string    `db:"currency" json:"currency"`
	Reference     *string   `db:"reference" json:"reference,omitempty"`
	Notes         string    `db:"notes" json:"notes"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type WalletTransaction struct {
	ID           string    `db:"id" json:"id"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	Type         string    `db:"type" json:"type"`
	Status       string    `db:"status" json:"status"`
	Amount       int64     `db:"amount" json:"amount"`
	Currency     string    `db:"currency" json:"currency"`
	FromWalletID *string   `db:"from_wallet_id" json:"from_wallet_id,omitempty"`
	ToWalletID   *string   `db:"to_wallet_id" json:"to_wallet_id,omitempty"`
	Metadata     string    `db:"metadata" json:"metadata"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IdempotencyRecord maps an external payment reference to at most one
// processed mutation.
type IdempotencyRecord struct {
	Reference string    `db:"reference" json:"reference"`
	WalletID  string    `db:"wallet_id" json:"wallet_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type SharePool struct {
	ID              string    `db:"id" json:"id"`
	TotalShares     int64     `db:"total_shares" json:"total_shares"`
	AvailableShares int64     `db:"available_shares" json:"available_shares"`
	PricePerShare   int64     `db:"price_per_share" json:"price_per_share"`
	Currency        string    `db:"currency" json:"currency"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type ShareHolding struct {
	OwnerID          string `db:"owner_id" json:"owner_id"`
	PoolID           string `db:"pool_id" json:"pool_id"`
	ActiveQuantity   int64  `db:"active_quantity" json:"active_quantity"`
	ReservedQuantity int64  `db:"reserved_quantity" json:"reserved_quantity"`
}

type ShareTransaction struct {
	ID            string     `db:"id" json:"id"`
	OwnerID       string     `db:"owner_id" json:"owner_id"`
	PoolID        string     `db:"pool_id" json:"pool_id"`
	WalletID      *string    `db:"wallet_id" json:"wallet_id,omitempty"`
	Kind          string     `db:"kind" json:"kind"`
	Quantity      int64      `db:"quantity" json:"quantity"`
	PricePerShare int64      `db:"price_per_share" json:"price_per_share"`
	TotalAmount   int64      `db:"total_amount" json:"total_amount"`
	Fees          int64      `db:"fees" json:"fees"`
	NetAmount     int64      `db:"net_amount" json:"net_amount"`
	Status        string     `db:"status" json:"status"`
	Notes         string     `db:"notes" json:"notes"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ExecutedAt    *time.Time `db:"executed_at" json:"executed_at,omitempty"`
}

type Loan struct {
	ID                 string    `db:"id" json:"id"`
	OwnerID            string    `db:"owner_id" json:"owner_id"`
	Principal          int64     `db:"principal" json:"principal"`
	Currency           string    `db:"currency" json:"currency"`
	InterestRate       string    `db:"interest_rate" json:"interest_rate"`
	TermMonths         int       `db:"term_months" json:"term_months"`
	Frequency          string    `db:"frequency" json:"frequency"`
	DisbursementMethod string    `db:"disbursement_method" json:"disbursement_method"`
	Status             string    `db:"status" json:"status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type LoanPayment struct {
	ID                string    `db:"id" json:"id"`
	LoanID            string    `db:"loan_id" json:"loan_id"`
	InstallmentNumber int       `db:"installment_number" json:"installment_number"`
	AmountDue         int64     `db:"amount_due" json:"amount_due"`
	AmountPaid        int64     `db:"amount_paid" json:"amount_paid"`
	PrincipalPortion  int64     `db:"principal_portion" json:"principal_portion"`
	InterestPortion   int64     `db:"interest_portion" json:"interest_portion"`
	DueDate           time.Time `db:"due_date" json:"due_date"`
	Status            string    `db:"status" json:"status"`
}

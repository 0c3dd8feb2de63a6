package store

import "context"

type LoanStore struct {
	db DB
}

type Loan struct {
	ID                 string `db:"id"`
	OwnerID            string `db:"owner_id"`
	Principal          int64  `db:"principal"`
	Currency           string `db:"currency"`
	InterestRate       string `db:"interest_rate"`
	TermMonths         int    `db:"term_months"`
	Frequency          string `db:"frequency"`
	DisbursementMethod string `db:"disbursement_method"`
	Status             string `db:"status"`
	CreatedAt          any    `db:"created_at"`
}

type LoanPayment struct {
	ID                string `db:"id"`
	LoanID            string `db:"loan_id"`
	InstallmentNumber int    `db:"installment_number"`
	AmountDue         int64  `db:"amount_due"`
	AmountPaid        int64  `db:"amount_paid"`
	PrincipalPortion  int64  `db:"principal_portion"`
	InterestPortion   int64  `db:"interest_portion"`
	DueDate           any    `db:"due_date"`
	Status            string `db:"status"`
}

func NewLoanStore(db DB) *LoanStore {
	return &LoanStore{db: db}
}

type LoanInput struct {
	ID                 string
	OwnerID            string
	Principal          int64
	Currency           string
	InterestRate       string
	TermMonths         int
	Frequency          string
	DisbursementMethod string
	Status             string
}

func (s *LoanStore) Create(ctx context.Context, tx Execer, input LoanInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loans (id, owner_id, principal, currency, interest_rate, term_months, frequency, disbursement_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, input.ID, input.OwnerID, input.Principal, input.Currency, input.InterestRate,
		input.TermMonths, input.Frequency, input.DisbursementMethod, input.Status)
	return err
}

func (s *LoanStore) GetByID(ctx context.Context, loanID string) (Loan, error) {
	var row Loan
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, principal, currency, interest_rate, term_months, frequency, disbursement_method, status, created_at
		FROM loans
		WHERE id = $1
	`, loanID)
	if err != nil {
		return Loan{}, err
	}
	return row, nil
}

// GetForUpdate locks the loan row so two admin transitions cannot interleave.
func (s *LoanStore) GetForUpdate(ctx context.Context, tx Getter, loanID string) (Loan, error) {
	var row Loan
	err := tx.GetContext(ctx, &row, `
		SELECT id, owner_id, principal, currency, interest_rate, term_months, frequency, disbursement_method, status
		FROM loans
		WHERE id = $1
		FOR UPDATE
	`, loanID)
	if err != nil {
		return Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) UpdateStatus(ctx context.Context, tx Execer, loanID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, loanID)
	return err
}

func (s *LoanStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Loan, error) {
	var rows []Loan
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, principal, currency, interest_rate, term_months, frequency, disbursement_method, status, created_at
		FROM loans
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type LoanPaymentInput struct {
	ID                string
	LoanID            string
	InstallmentNumber int
	AmountDue         int64
	PrincipalPortion  int64
	InterestPortion   int64
	DueDate           any
	Status            string
}

func (s *LoanStore) InsertPayments(ctx context.Context, tx Execer, payments []LoanPaymentInput) error {
	query := `
		INSERT INTO loan_payments (id, loan_id, installment_number, amount_due, amount_paid, principal_portion, interest_portion, due_date, status)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)
	`
	for _, payment := range payments {
		if _, err := tx.ExecContext(ctx, query,
			payment.ID, payment.LoanID, payment.InstallmentNumber, payment.AmountDue,
			payment.PrincipalPortion, payment.InterestPortion, payment.DueDate, payment.Status,
		); err != nil {
			return err
		}
	}
	return nil
}

// NextOpenPaymentForUpdate returns the earliest installment that still has an
// outstanding amount, locked for the repayment posting.
func (s *LoanStore) NextOpenPaymentForUpdate(ctx context.Context, tx Getter, loanID string) (LoanPayment, error) {
	var row LoanPayment
	err := tx.GetContext(ctx, &row, `
		SELECT id, loan_id, installment_number, amount_due, amount_paid, principal_portion, interest_portion, due_date, status
		FROM loan_payments
		WHERE loan_id = $1 AND status IN ('pending', 'partial', 'late')
		ORDER BY installment_number ASC
		LIMIT 1
		FOR UPDATE
	`, loanID)
	if err != nil {
		return LoanPayment{}, err
	}
	return row, nil
}

func (s *LoanStore) UpdatePayment(ctx context.Context, tx Execer, paymentID string, amountPaid int64, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE loan_payments SET amount_paid = $1, status = $2 WHERE id = $3
	`, amountPaid, status, paymentID)
	return err
}

func (s *LoanStore) ListPayments(ctx context.Context, loanID string) ([]LoanPayment, error) {
	var rows []LoanPayment
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, loan_id, installment_number, amount_due, amount_paid, principal_portion, interest_portion, due_date, status
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY installment_number ASC
	`, loanID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CountOpenPayments reports how many installments are not yet fully paid,
// used to decide when an active loan can complete.
func (s *LoanStore) CountOpenPayments(ctx context.Context, tx Getter, loanID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM loan_payments
		WHERE loan_id = $1 AND status NOT IN ('paid')
	`, loanID)
	return count, err
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
)

type LoanRepoImpl struct{ pool *pgxpool.Pool }

func NewLoanRepo(pool *pgxpool.Pool) *LoanRepoImpl { return &LoanRepoImpl{pool: pool} }

const loanCols = `loan_id, user_id, item_id,
date_borrowed, date_due, date_returned, is_returned,
fine_amount, renewal_count, loan_period_days`

func (r *LoanRepoImpl) Save(ctx context.Context, l *domain.Loan) error {
	const q = `INSERT INTO loans (` + loanCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (loan_id) DO UPDATE SET
  user_id=EXCLUDED.user_id, item_id=EXCLUDED.item_id,
  date_borrowed=EXCLUDED.date_borrowed, date_due=EXCLUDED.date_due,
  date_returned=EXCLUDED.date_returned, is_returned=EXCLUDED.is_returned,
  fine_amount=EXCLUDED.fine_amount, renewal_count=EXCLUDED.renewal_count,
  loan_period_days=EXCLUDED.loan_period_days,
  updated_at=now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		l.ID, l.UserID, l.ItemID,
		l.DateBorrowed, l.DateDue, l.DateReturned, l.Returned,
		l.FineAmount, l.RenewalCount, l.LoanPeriodDays,
	)
	return err
}

func (r *LoanRepoImpl) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans WHERE loan_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	l, err := scanLoan(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// GetAll replays loans in borrow order so count ties in the popularity
// report break the same way every run.
func (r *LoanRepoImpl) GetAll(ctx context.Context) ([]*domain.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans ORDER BY date_borrowed, created_at, loan_id`
	return r.queryLoans(ctx, q)
}

func (r *LoanRepoImpl) GetByUser(ctx context.Context, userID string) ([]*domain.Loan, error) {
	const q = `SELECT ` + loanCols + ` FROM loans
WHERE user_id=$1
ORDER BY date_borrowed DESC, created_at DESC, loan_id DESC`
	return r.queryLoans(ctx, q, userID)
}

func (r *LoanRepoImpl) queryLoans(ctx context.Context, q string, args ...any) ([]*domain.Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func (r *LoanRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM loans WHERE loan_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var l domain.Loan
	if err := row.Scan(
		&l.ID, &l.UserID, &l.ItemID,
		&l.DateBorrowed, &l.DateDue, &l.DateReturned, &l.Returned,
		&l.FineAmount, &l.RenewalCount, &l.LoanPeriodDays,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

var _ repo.LoanRepo = (*LoanRepoImpl)(nil)

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
)

type UserRepoImpl struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *UserRepoImpl { return &UserRepoImpl{pool: pool} }

const userCols = `user_id, kind, name, email, phone,
registered_at, borrowed_items, loan_history,
fines_owed, membership_expiry, staff_role, hire_date`

func (r *UserRepoImpl) Save(ctx context.Context, u *domain.User) error {
	const q = `INSERT INTO users (` + userCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (user_id) DO UPDATE SET
  kind=EXCLUDED.kind, name=EXCLUDED.name, email=EXCLUDED.email,
  phone=EXCLUDED.phone, registered_at=EXCLUDED.registered_at,
  borrowed_items=EXCLUDED.borrowed_items, loan_history=EXCLUDED.loan_history,
  fines_owed=EXCLUDED.fines_owed, membership_expiry=EXCLUDED.membership_expiry,
  staff_role=EXCLUDED.staff_role, hire_date=EXCLUDED.hire_date,
  updated_at=now()`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q,
		u.ID, u.Kind, u.Name, u.Email, u.Phone,
		u.RegisteredAt, orEmpty(u.BorrowedItems), orEmpty(u.LoanHistory),
		u.FinesOwed, nullableTime(u.MembershipExpiry), u.StaffRole, nullableTime(u.HireDate),
	)
	return err
}

func (r *UserRepoImpl) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE user_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *UserRepoImpl) GetAll(ctx context.Context) ([]*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY name, user_id`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM users WHERE user_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var expiry, hire *time.Time
	if err := row.Scan(
		&u.ID, &u.Kind, &u.Name, &u.Email, &u.Phone,
		&u.RegisteredAt, &u.BorrowedItems, &u.LoanHistory,
		&u.FinesOwed, &expiry, &u.StaffRole, &hire,
	); err != nil {
		return nil, err
	}
	if expiry != nil {
		u.MembershipExpiry = *expiry
	}
	if hire != nil {
		u.HireDate = *hire
	}
	return &u, nil
}

// orEmpty keeps nil slices out of NOT NULL array columns.
func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ repo.UserRepo = (*UserRepoImpl)(nil)

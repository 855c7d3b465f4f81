package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxRenewalCount caps how many times a single loan can be extended.
const MaxRenewalCount = 2

// DefaultDailyFineRate applies until the directory is configured with a
// different rate.
var DefaultDailyFineRate = decimal.NewFromFloat(0.50)

// Loan is one borrowing transaction. User and item are referenced by
// identifier only; the directory owns the record. Overdue is never
// stored, it is recomputed from the clock on every call, so a loan
// crossing its due date needs no state transition to start accruing.
type Loan struct {
	ID             string          `json:"loan_id"`
	UserID         string          `json:"user_id"`
	ItemID         string          `json:"item_id"`
	DateBorrowed   time.Time       `json:"date_borrowed"`
	DateDue        time.Time       `json:"date_due"`
	DateReturned   *time.Time      `json:"date_returned,omitempty"`
	Returned       bool            `json:"is_returned"`
	FineAmount     decimal.Decimal `json:"fine_amount"`
	RenewalCount   int             `json:"renewal_count"`
	LoanPeriodDays int             `json:"loan_period_days"`
}

func NewLoan(id, userID, itemID string, loanPeriodDays int, now time.Time) (*Loan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("loan_id", "cannot be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user_id", "cannot be empty")
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, invalid("item_id", "cannot be empty")
	}
	if loanPeriodDays <= 0 {
		return nil, invalid("loan_period_days", "must be positive")
	}
	return &Loan{
		ID:             id,
		UserID:         userID,
		ItemID:         itemID,
		DateBorrowed:   now,
		DateDue:        now.AddDate(0, 0, loanPeriodDays),
		LoanPeriodDays: loanPeriodDays,
	}, nil
}

func (l *Loan) IsOverdue(now time.Time) bool {
	if l.Returned {
		return false
	}
	return now.After(l.DateDue)
}

// DaysOverdue reports whole days past due, zero when on time or
// returned. Partial days never round up.
func (l *Loan) DaysOverdue(now time.Time) int {
	if !l.IsOverdue(now) {
		return 0
	}
	return wholeDays(l.DateDue, now)
}

// CurrentFine is the accruing fine for an unreturned overdue loan, or
// the final fine frozen at return time.
func (l *Loan) CurrentFine(now time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	if l.Returned {
		return l.FineAmount
	}
	if !l.IsOverdue(now) {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(int64(l.DaysOverdue(now))))
}

// Return closes the loan and freezes the final fine. The transition is
// terminal; a second call fails with AlreadyReturnedError and changes
// nothing.
func (l *Loan) Return(returnedAt time.Time, dailyRate decimal.Decimal) (decimal.Decimal, error) {
	if l.Returned {
		return decimal.Zero, &AlreadyReturnedError{LoanID: l.ID}
	}
	l.Returned = true
	l.DateReturned = &returnedAt
	if returnedAt.After(l.DateDue) {
		daysLate := wholeDays(l.DateDue, returnedAt)
		l.FineAmount = dailyRate.Mul(decimal.NewFromInt(int64(daysLate)))
	} else {
		l.FineAmount = decimal.Zero
	}
	return l.FineAmount, nil
}

// CanRenew allows renewal only from the active state: never after
// return, past the renewal cap, or once overdue.
func (l *Loan) CanRenew(now time.Time) bool {
	if l.Returned {
		return false
	}
	if l.RenewalCount >= MaxRenewalCount {
		return false
	}
	return !l.IsOverdue(now)
}

// Renew extends the due date by additionalDays, or by the loan's own
// period when additionalDays is zero or negative.
func (l *Loan) Renew(now time.Time, additionalDays int) bool {
	if !l.CanRenew(now) {
		return false
	}
	if additionalDays <= 0 {
		additionalDays = l.LoanPeriodDays
	}
	l.DateDue = l.DateDue.AddDate(0, 0, additionalDays)
	l.RenewalCount++
	return true
}

// DurationDays is the whole days from borrowing until return, or until
// now while the loan is open.
func (l *Loan) DurationDays(now time.Time) int {
	end := now
	if l.Returned && l.DateReturned != nil {
		end = *l.DateReturned
	}
	return wholeDays(l.DateBorrowed, end)
}

// Status renders the human-readable loan state for display surfaces.
func (l *Loan) Status(now time.Time) string {
	if l.Returned {
		if l.FineAmount.IsPositive() {
			return fmt.Sprintf("Returned Late (Fine: $%s)", l.FineAmount.StringFixed(2))
		}
		return "Returned On Time"
	}
	if l.IsOverdue(now) {
		return fmt.Sprintf("Overdue (%d days)", l.DaysOverdue(now))
	}
	return fmt.Sprintf("Active (%d days remaining)", wholeDays(now, l.DateDue))
}

func wholeDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

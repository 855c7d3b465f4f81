// Package service implements the library directory: the aggregate root
// coordinating items, users, and loans, and the only place cross-entity
// invariants are enforced.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo"
	"github.com/diagnosis/libris/pkg/events"
	"github.com/diagnosis/libris/pkg/logger"
)

// LibraryService owns every compound mutation. One mutex spans the whole
// directory: each operation reads, mutates, and persists as a unit, so
// two concurrent checkouts can never both see the same item available.
// The workload is low-volume; coarse locking keeps the invariants simple.
type LibraryService struct {
	mu       sync.Mutex
	name     string
	users    repo.UserRepo
	items    repo.ItemRepo
	loans    repo.LoanRepo
	settings repo.SettingsRepo
	bus      events.Publisher

	fineRate  decimal.Decimal
	startedAt time.Time

	// Injected for deterministic tests.
	newID func() string
	now   func() time.Time
}

func NewLibraryService(name string, users repo.UserRepo, items repo.ItemRepo, loans repo.LoanRepo, settings repo.SettingsRepo, bus events.Publisher) *LibraryService {
	s := &LibraryService{
		name:     name,
		users:    users,
		items:    items,
		loans:    loans,
		settings: settings,
		bus:      bus,
		fineRate: domain.DefaultDailyFineRate,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	s.startedAt = s.now()
	return s
}

// LoadSettings picks up persisted directory settings. An absent or
// unparseable rate leaves the default in place.
func (s *LibraryService) LoadSettings(ctx context.Context) error {
	v, err := s.settings.Get(ctx, repo.SettingDailyFineRate)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if v == "" {
		return nil
	}
	rate, err := decimal.NewFromString(v)
	if err != nil || rate.IsNegative() {
		logger.Warn("Ignoring invalid persisted fine rate", "value", v)
		return nil
	}
	s.mu.Lock()
	s.fineRate = rate
	s.mu.Unlock()
	return nil
}

func (s *LibraryService) DailyFineRate() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fineRate
}

// SetDailyFineRate changes the process-wide rate and persists it. Only
// returns computed after the change see the new rate; frozen fines on
// returned loans are untouched.
func (s *LibraryService) SetDailyFineRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return &domain.ValidationError{Field: "rate", Message: "cannot be negative"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settings.Set(ctx, repo.SettingDailyFineRate, rate.String()); err != nil {
		return fmt.Errorf("persist fine rate: %w", err)
	}
	s.fineRate = rate
	return nil
}

func (s *LibraryService) Name() string { return s.name }

// --- User management ---

func (s *LibraryService) RegisterMember(ctx context.Context, id, name, email, phone string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := domain.NewMember(id, name, email, phone, s.now())
	if err != nil {
		return nil, err
	}
	return s.registerUser(ctx, u)
}

func (s *LibraryService) RegisterStaff(ctx context.Context, id, name, email string, role domain.StaffRole, hireDate time.Time) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := domain.NewStaff(id, name, email, role, hireDate, s.now())
	if err != nil {
		return nil, err
	}
	return s.registerUser(ctx, u)
}

func (s *LibraryService) registerUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	existing, err := s.users.GetByID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if existing != nil {
		return nil, &domain.ConflictError{Message: "user ID already exists"}
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	s.publish(ctx, events.UserRegistered, events.UserEvent{
		UserID: u.ID, Kind: string(u.Kind), Name: u.Name,
	})
	return u, nil
}

func (s *LibraryService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *LibraryService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.GetAll(ctx)
}

// RemoveUser refuses while any loan is still open; returned loans stay
// behind as history.
func (s *LibraryService) RemoveUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return &domain.NotFoundError{Resource: "user", ID: id}
	}

	userLoans, err := s.loans.GetByUser(ctx, id)
	if err != nil {
		return fmt.Errorf("load user loans: %w", err)
	}
	for _, l := range userLoans {
		if !l.Returned {
			return &domain.ConflictError{Message: "user has active loans"}
		}
	}

	if _, err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.publish(ctx, events.UserRemoved, events.UserEvent{
		UserID: u.ID, Kind: string(u.Kind), Name: u.Name,
	})
	return nil
}

// PayFine records a payment against a member's balance. The balance
// clamps at zero; staff accounts carry no fines to pay.
func (s *LibraryService) PayFine(ctx context.Context, userID string, amount decimal.Decimal) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return nil, &domain.NotFoundError{Resource: "user", ID: userID}
	}
	if u.Kind != domain.UserMember {
		return nil, &domain.ConflictError{Message: "only members carry a fine balance"}
	}
	if err := u.PayFine(amount); err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	s.publish(ctx, events.FinePaid, events.FineEvent{
		UserID: u.ID, Amount: amount.StringFixed(2), Balance: u.FinesOwed.StringFixed(2),
	})
	return u, nil
}

func (s *LibraryService) ExtendMembership(ctx context.Context, userID string, days int) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return nil, &domain.NotFoundError{Resource: "user", ID: userID}
	}
	if u.Kind != domain.UserMember {
		return nil, &domain.ConflictError{Message: "only members hold a membership"}
	}
	if err := u.ExtendMembership(days, s.now()); err != nil {
		return nil, err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

// --- Item management ---

// AddItemInput carries the union of variant fields; Kind selects which
// are read.
type AddItemInput struct {
	ID    string          `json:"item_id"`
	Kind  domain.ItemKind `json:"kind"`
	Title string          `json:"title"`

	Author string `json:"author"`
	ISBN   string `json:"isbn"`
	Pages  int    `json:"pages"`

	IssueNumber string    `json:"issue_number"`
	Publisher   string    `json:"publisher"`
	PublishedAt time.Time `json:"published_at"`

	DurationMinutes int    `json:"duration_minutes"`
	Genre           string `json:"genre"`
	Director        string `json:"director"`
	Rating          string `json:"rating"`
}

func (s *LibraryService) AddItem(ctx context.Context, in AddItemInput) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		it  *domain.Item
		err error
	)
	switch in.Kind {
	case domain.ItemBook:
		it, err = domain.NewBook(in.ID, in.Title, in.Author, in.ISBN, in.Pages, s.now())
	case domain.ItemMagazine:
		it, err = domain.NewMagazine(in.ID, in.Title, in.IssueNumber, in.Publisher, in.PublishedAt, s.now())
	case domain.ItemDVD:
		it, err = domain.NewDVD(in.ID, in.Title, in.DurationMinutes, in.Genre, in.Director, in.Rating, s.now())
	default:
		return nil, &domain.ValidationError{Field: "kind", Message: "must be book, magazine, or dvd"}
	}
	if err != nil {
		return nil, err
	}

	existing, err := s.items.GetByID(ctx, it.ID)
	if err != nil {
		return nil, fmt.Errorf("look up item: %w", err)
	}
	if existing != nil {
		return nil, &domain.ConflictError{Message: "item ID already exists"}
	}
	if err := s.items.Save(ctx, it); err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}
	s.publish(ctx, events.ItemAdded, events.ItemEvent{
		ItemID: it.ID, Kind: string(it.Kind), Title: it.Title,
	})
	return it, nil
}

func (s *LibraryService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return s.items.GetByID(ctx, id)
}

// ListItems returns the catalog ordered by title, optionally narrowed
// to one kind or to available items only.
func (s *LibraryService) ListItems(ctx context.Context, kind domain.ItemKind, availableOnly bool) ([]*domain.Item, error) {
	items, err := s.items.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if kind == "" && !availableOnly {
		return items, nil
	}
	out := items[:0:0]
	for _, it := range items {
		if kind != "" && it.Kind != kind {
			continue
		}
		if availableOnly && !it.Available {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *LibraryService) SearchItems(ctx context.Context, titleSubstring string) ([]*domain.Item, error) {
	return s.items.Search(ctx, titleSubstring)
}

// RemoveItem refuses while the item is on loan.
func (s *LibraryService) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("look up item: %w", err)
	}
	if it == nil {
		return &domain.NotFoundError{Resource: "item", ID: id}
	}
	if !it.Available {
		return &domain.ConflictError{Message: "item is currently on loan"}
	}
	if _, err := s.items.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.publish(ctx, events.ItemRemoved, events.ItemEvent{
		ItemID: it.ID, Kind: string(it.Kind), Title: it.Title,
	})
	return nil
}

// --- Circulation ---

type CheckoutResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Loan    *domain.Loan `json:"loan,omitempty"`
}

type CheckinResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Fine    decimal.Decimal `json:"fine_amount"`
	Loan    *domain.Loan    `json:"loan,omitempty"`
}

type RenewResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Loan    *domain.Loan `json:"loan,omitempty"`
}

// CheckOutItem runs the full checkout sequence: resolve both parties,
// apply the borrower's eligibility rules, re-check availability, then
// create the loan, flip the item, and record the borrow on the user as
// one unit. Business refusals come back as a failed result with the
// reason; only adapter failures surface as errors.
func (s *LibraryService) CheckOutItem(ctx context.Context, userID, itemID string) (*CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return &CheckoutResult{Message: "User not found"}, nil
	}

	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("look up item: %w", err)
	}
	if it == nil {
		return &CheckoutResult{Message: "Item not found"}, nil
	}

	if !u.CanBorrow(it, now) {
		return &CheckoutResult{Message: "User cannot borrow this item (check limits, fines, or membership status)"}, nil
	}
	// Availability stays authoritative here even though CanBorrow already
	// looked at it.
	if !it.Available {
		return &CheckoutResult{Message: "Item is not available"}, nil
	}

	loan, err := domain.NewLoan(s.newID(), userID, itemID, it.LoanPeriodDays(), now)
	if err != nil {
		return nil, err
	}
	if !it.MarkCheckedOut() {
		return &CheckoutResult{Message: "Item is not available"}, nil
	}
	u.AddBorrowedItem(itemID)

	if err := s.loans.Save(ctx, loan); err != nil {
		return nil, fmt.Errorf("save loan: %w", err)
	}
	if err := s.items.Save(ctx, it); err != nil {
		return nil, fmt.Errorf("save item: %w", err)
	}
	if err := s.users.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	s.publish(ctx, events.LoanCheckedOut, events.LoanCheckedOutEvent{
		LoanID: loan.ID, UserID: userID, ItemID: itemID,
		DateBorrowed: loan.DateBorrowed, DateDue: loan.DateDue,
	})

	return &CheckoutResult{
		Success: true,
		Message: "Item checked out successfully. Due date: " + loan.DateDue.Format("2006-01-02"),
		Loan:    loan,
	}, nil
}

// CheckInItem returns the user's active loan on the item. The computed
// fine is always reported; it lands on the balance only for members.
func (s *LibraryService) CheckInItem(ctx context.Context, userID, itemID string) (*CheckinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, err := s.findActiveLoan(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return &CheckinResult{Message: "No active loan found for this item and user", Fine: decimal.Zero}, nil
	}
	return s.finishReturn(ctx, loan)
}

// ReturnLoan is check-in addressed by loan identifier. Unlike the
// user+item form, a stale identifier is a caller bug, so misses and
// double returns surface as typed errors.
func (s *LibraryService) ReturnLoan(ctx context.Context, loanID string) (*CheckinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("look up loan: %w", err)
	}
	if loan == nil {
		return nil, &domain.NotFoundError{Resource: "loan", ID: loanID}
	}
	if loan.Returned {
		return nil, &domain.AlreadyReturnedError{LoanID: loanID}
	}
	return s.finishReturn(ctx, loan)
}

func (s *LibraryService) finishReturn(ctx context.Context, loan *domain.Loan) (*CheckinResult, error) {
	now := s.now()

	fine, err := loan.Return(now, s.fineRate)
	if err != nil {
		return nil, err
	}

	it, err := s.items.GetByID(ctx, loan.ItemID)
	if err != nil {
		return nil, fmt.Errorf("look up item: %w", err)
	}
	if it != nil {
		it.MarkCheckedIn()
	}

	u, err := s.users.GetByID(ctx, loan.UserID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u != nil {
		u.RemoveBorrowedItem(loan.ItemID)
		u.AddLoanToHistory(loan.ID)
		if fine.IsPositive() && u.Kind == domain.UserMember {
			if err := u.AddFine(fine); err != nil {
				return nil, err
			}
		}
	}

	if err := s.loans.Save(ctx, loan); err != nil {
		return nil, fmt.Errorf("save loan: %w", err)
	}
	if it != nil {
		if err := s.items.Save(ctx, it); err != nil {
			return nil, fmt.Errorf("save item: %w", err)
		}
	}
	if u != nil {
		if err := s.users.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("save user: %w", err)
		}
	}

	s.publish(ctx, events.LoanCheckedIn, events.LoanCheckedInEvent{
		LoanID: loan.ID, UserID: loan.UserID, ItemID: loan.ItemID,
		DateReturned: now, FineAmount: fine.StringFixed(2),
	})
	if fine.IsPositive() && u != nil && u.Kind == domain.UserMember {
		s.publish(ctx, events.FineRecorded, events.FineEvent{
			UserID: u.ID, LoanID: loan.ID,
			Amount: fine.StringFixed(2), Balance: u.FinesOwed.StringFixed(2),
		})
	}

	msg := "Item returned successfully."
	if fine.IsPositive() {
		msg += " Fine owed: $" + fine.StringFixed(2)
	}
	return &CheckinResult{Success: true, Message: msg, Fine: fine, Loan: loan}, nil
}

// RenewLoan extends the user's active loan on the item by its own loan
// period. Denial is a normal outcome, never an error.
func (s *LibraryService) RenewLoan(ctx context.Context, userID, itemID string) (*RenewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, err := s.findActiveLoan(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return &RenewResult{Message: "No active loan found for this item and user"}, nil
	}
	return s.finishRenew(ctx, loan)
}

func (s *LibraryService) RenewLoanByID(ctx context.Context, loanID string) (*RenewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("look up loan: %w", err)
	}
	if loan == nil {
		return nil, &domain.NotFoundError{Resource: "loan", ID: loanID}
	}
	return s.finishRenew(ctx, loan)
}

func (s *LibraryService) finishRenew(ctx context.Context, loan *domain.Loan) (*RenewResult, error) {
	if !loan.Renew(s.now(), 0) {
		return &RenewResult{Message: "Cannot renew loan (maximum renewals reached or item is overdue)"}, nil
	}
	if err := s.loans.Save(ctx, loan); err != nil {
		return nil, fmt.Errorf("save loan: %w", err)
	}
	s.publish(ctx, events.LoanRenewed, events.LoanRenewedEvent{
		LoanID: loan.ID, UserID: loan.UserID, ItemID: loan.ItemID,
		NewDateDue: loan.DateDue, RenewalCount: loan.RenewalCount,
	})
	return &RenewResult{
		Success: true,
		Message: "Loan renewed successfully. New due date: " + loan.DateDue.Format("2006-01-02"),
		Loan:    loan,
	}, nil
}

func (s *LibraryService) findActiveLoan(ctx context.Context, userID, itemID string) (*domain.Loan, error) {
	userLoans, err := s.loans.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user loans: %w", err)
	}
	for _, l := range userLoans {
		if l.ItemID == itemID && !l.Returned {
			return l, nil
		}
	}
	return nil, nil
}

// --- Loan queries ---

func (s *LibraryService) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	return s.loans.GetByID(ctx, id)
}

func (s *LibraryService) GetUserLoans(ctx context.Context, userID string, activeOnly bool) ([]*domain.Loan, error) {
	userLoans, err := s.loans.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return userLoans, nil
	}
	out := userLoans[:0:0]
	for _, l := range userLoans {
		if !l.Returned {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetAllLoans returns every loan in borrow order, optionally open
// loans only.
func (s *LibraryService) GetAllLoans(ctx context.Context, activeOnly bool) ([]*domain.Loan, error) {
	all, err := s.loans.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if !activeOnly {
		return all, nil
	}
	out := all[:0:0]
	for _, l := range all {
		if !l.Returned {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetOverdueLoans reports open loans past due, soonest due first.
func (s *LibraryService) GetOverdueLoans(ctx context.Context) ([]*domain.Loan, error) {
	all, err := s.loans.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []*domain.Loan
	for _, l := range all {
		if l.IsOverdue(now) {
			out = append(out, l)
		}
	}
	sortLoansByDue(out)
	return out, nil
}

// LoanStatus renders a loan's display status against the current rate
// and clock.
func (s *LibraryService) LoanStatus(l *domain.Loan) string {
	return l.Status(s.now())
}

func (s *LibraryService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.bus.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

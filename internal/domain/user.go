package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type UserKind string

const (
	UserMember UserKind = "member"
	UserStaff  UserKind = "staff"
)

func ParseUserKind(s string) (UserKind, bool) {
	switch UserKind(s) {
	case UserMember, UserStaff:
		return UserKind(s), true
	default:
		return "", false
	}
}

type StaffRole string

const (
	RoleManager   StaffRole = "manager"
	RoleLibrarian StaffRole = "librarian"
)

func ParseStaffRole(s string) (StaffRole, bool) {
	switch StaffRole(s) {
	case RoleManager, RoleLibrarian:
		return StaffRole(s), true
	default:
		return "", false
	}
}

// Business Rules
const (
	MemberBorrowLimit    = 5
	ManagerBorrowLimit   = 20
	LibrarianBorrowLimit = 15
	MembershipTermDays   = 365
)

// FineBlockThreshold is the outstanding-fine balance above which a
// member may not borrow. Payment pressure, not an account freeze.
var FineBlockThreshold = decimal.NewFromFloat(10.00)

// User covers both catalog roles. Kind selects the meaningful variant
// field group; members carry fines and a membership term, staff carry a
// role with a derived permission set.
type User struct {
	ID            string    `json:"user_id"`
	Kind          UserKind  `json:"kind"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	RegisteredAt  time.Time `json:"registered_at"`
	BorrowedItems []string  `json:"borrowed_items"`
	LoanHistory   []string  `json:"loan_history"`

	// Member fields
	Phone            string          `json:"phone,omitempty"`
	FinesOwed        decimal.Decimal `json:"fines_owed"`
	MembershipExpiry time.Time       `json:"membership_expiry,omitzero"`

	// Staff fields
	StaffRole StaffRole `json:"staff_role,omitempty"`
	HireDate  time.Time `json:"hire_date,omitzero"`
}

func newUser(id, name, email string, kind UserKind, now time.Time) (*User, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if id == "" {
		return nil, invalid("user_id", "cannot be empty")
	}
	if name == "" {
		return nil, invalid("name", "cannot be empty")
	}
	if !validEmail(email) {
		return nil, invalid("email", "must contain @ and a domain with a dot")
	}
	return &User{
		ID:           id,
		Kind:         kind,
		Name:         name,
		Email:        email,
		RegisteredAt: now,
	}, nil
}

// validEmail requires an @ and a dot somewhere after the last @.
func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}

func NewMember(id, name, email, phone string, now time.Time) (*User, error) {
	u, err := newUser(id, name, email, UserMember, now)
	if err != nil {
		return nil, err
	}
	u.Phone = strings.TrimSpace(phone)
	u.MembershipExpiry = now.AddDate(0, 0, MembershipTermDays)
	return u, nil
}

func NewStaff(id, name, email string, role StaffRole, hireDate time.Time, now time.Time) (*User, error) {
	u, err := newUser(id, name, email, UserStaff, now)
	if err != nil {
		return nil, err
	}
	if _, ok := ParseStaffRole(string(role)); !ok {
		return nil, invalid("staff_role", "must be manager or librarian")
	}
	if hireDate.IsZero() {
		hireDate = now
	}
	u.StaffRole = role
	u.HireDate = hireDate
	return u, nil
}

func (u *User) BorrowingLimit() int {
	if u.Kind == UserStaff {
		if u.StaffRole == RoleManager {
			return ManagerBorrowLimit
		}
		return LibrarianBorrowLimit
	}
	return MemberBorrowLimit
}

// CanBorrow applies the role-specific eligibility rules. Members are
// additionally gated on membership expiry and outstanding fines; staff
// are trusted past the limit and availability checks.
func (u *User) CanBorrow(item *Item, now time.Time) bool {
	if len(u.BorrowedItems) >= u.BorrowingLimit() {
		return false
	}
	if !item.Available {
		return false
	}
	if u.Kind == UserMember {
		if !u.IsMembershipActive(now) {
			return false
		}
		if u.FinesOwed.GreaterThan(FineBlockThreshold) {
			return false
		}
	}
	return true
}

// AddBorrowedItem records a checkout against the user. Returns false
// without changes when the user is at their limit or already holds the
// item.
func (u *User) AddBorrowedItem(itemID string) bool {
	if len(u.BorrowedItems) >= u.BorrowingLimit() {
		return false
	}
	for _, id := range u.BorrowedItems {
		if id == itemID {
			return false
		}
	}
	u.BorrowedItems = append(u.BorrowedItems, itemID)
	return true
}

func (u *User) RemoveBorrowedItem(itemID string) bool {
	for i, id := range u.BorrowedItems {
		if id == itemID {
			u.BorrowedItems = append(u.BorrowedItems[:i], u.BorrowedItems[i+1:]...)
			return true
		}
	}
	return false
}

func (u *User) AddLoanToHistory(loanID string) {
	for _, id := range u.LoanHistory {
		if id == loanID {
			return
		}
	}
	u.LoanHistory = append(u.LoanHistory, loanID)
}

func (u *User) AddFine(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return invalid("amount", "cannot be negative")
	}
	u.FinesOwed = u.FinesOwed.Add(amount)
	return nil
}

// PayFine reduces the outstanding balance, clamping at zero so an
// overpayment never drives it negative.
func (u *User) PayFine(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	u.FinesOwed = u.FinesOwed.Sub(amount)
	if u.FinesOwed.IsNegative() {
		u.FinesOwed = decimal.Zero
	}
	return nil
}

func (u *User) IsMembershipActive(now time.Time) bool {
	return now.Before(u.MembershipExpiry)
}

// ExtendMembership adds days to the expiry when the membership is still
// active, or restarts the term from now when it has lapsed.
func (u *User) ExtendMembership(days int, now time.Time) error {
	if days <= 0 {
		return invalid("days", "must be positive")
	}
	if u.IsMembershipActive(now) {
		u.MembershipExpiry = u.MembershipExpiry.AddDate(0, 0, days)
	} else {
		u.MembershipExpiry = now.AddDate(0, 0, days)
	}
	return nil
}

// Permissions derives the staff permission set from the role. Never
// stored; recomputed so a role change can not leave stale grants.
func (u *User) Permissions() []string {
	if u.Kind != UserStaff {
		return nil
	}
	base := []string{"view_catalog", "help_members"}
	switch u.StaffRole {
	case RoleManager:
		return append(base,
			"add_items", "remove_items", "manage_users", "view_reports",
			"system_admin", "manage_fines")
	case RoleLibrarian:
		return append(base,
			"add_items", "remove_items", "check_out_items", "check_in_items",
			"view_member_history", "manage_fines")
	default:
		return base
	}
}

func (u *User) HasPermission(name string) bool {
	for _, p := range u.Permissions() {
		if p == name {
			return true
		}
	}
	return false
}

func (u *User) CanManageInventory() bool {
	return u.HasPermission("add_items") && u.HasPermission("remove_items")
}

func (u *User) CanManageUsers() bool {
	return u.HasPermission("manage_users")
}

func (u *User) CanViewMemberActivity() bool {
	return u.HasPermission("view_member_history")
}

// YearsOfService reports staff tenure in years to one decimal place.
func (u *User) YearsOfService(now time.Time) float64 {
	years := now.Sub(u.HireDate).Hours() / 24 / 365.25
	return math.Round(years*10) / 10
}

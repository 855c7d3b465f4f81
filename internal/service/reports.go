package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/diagnosis/libris/internal/domain"
)

// SystemStatistics is the staff dashboard summary, derived entirely from
// the registries at call time.
type SystemStatistics struct {
	LibraryName     string          `json:"library_name"`
	TotalItems      int             `json:"total_items"`
	AvailableItems  int             `json:"available_items"`
	ItemsByKind     map[string]int  `json:"items_by_kind"`
	TotalUsers      int             `json:"total_users"`
	Members         int             `json:"members"`
	Staff           int             `json:"staff"`
	TotalLoans      int             `json:"total_loans"`
	ActiveLoans     int             `json:"active_loans"`
	OverdueLoans    int             `json:"overdue_loans"`
	AccruingFines   decimal.Decimal `json:"accruing_fines"`
	UptimeDays      int             `json:"uptime_days"`
}

func (s *LibraryService) GetSystemStatistics(ctx context.Context) (*SystemStatistics, error) {
	users, err := s.users.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	items, err := s.items.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	loans, err := s.loans.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}

	now := s.now()
	stats := &SystemStatistics{
		LibraryName: s.name,
		TotalItems:  len(items),
		ItemsByKind: make(map[string]int),
		TotalUsers:  len(users),
		TotalLoans:  len(loans),
		UptimeDays:  int(now.Sub(s.startedAt).Hours() / 24),
	}
	for _, it := range items {
		stats.ItemsByKind[string(it.Kind)]++
		if it.Available {
			stats.AvailableItems++
		}
	}
	for _, u := range users {
		if u.Kind == domain.UserStaff {
			stats.Staff++
		} else {
			stats.Members++
		}
	}
	rate := s.DailyFineRate()
	accruing := decimal.Zero
	for _, l := range loans {
		if l.Returned {
			continue
		}
		stats.ActiveLoans++
		if l.IsOverdue(now) {
			stats.OverdueLoans++
			accruing = accruing.Add(l.CurrentFine(now, rate))
		}
	}
	stats.AccruingFines = accruing
	return stats, nil
}

// PopularItem pairs a catalog entry with its all-time loan count.
type PopularItem struct {
	Item      *domain.Item `json:"item"`
	LoanCount int          `json:"loan_count"`
}

// GetPopularItems ranks items by historical loan count, most borrowed
// first. Ties keep the order items were first loaned in, which the loan
// registry preserves.
func (s *LibraryService) GetPopularItems(ctx context.Context, limit int) ([]PopularItem, error) {
	loans, err := s.loans.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}

	counts := make(map[string]int)
	var order []string
	for _, l := range loans {
		if _, seen := counts[l.ItemID]; !seen {
			order = append(order, l.ItemID)
		}
		counts[l.ItemID]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if limit <= 0 {
		limit = 10
	}
	out := make([]PopularItem, 0, limit)
	for _, itemID := range order {
		if len(out) == limit {
			break
		}
		it, err := s.items.GetByID(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("look up item: %w", err)
		}
		if it == nil {
			// Item since removed; its loans stay in the history but it
			// can not be reported.
			continue
		}
		out = append(out, PopularItem{Item: it, LoanCount: counts[itemID]})
	}
	return out, nil
}

// MemberActivity summarizes one user's borrowing record for staff.
type MemberActivity struct {
	UserID       string          `json:"user_id"`
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	TotalLoans   int             `json:"total_loans"`
	ActiveLoans  int             `json:"active_loans"`
	OverdueLoans int             `json:"overdue_loans"`
	FinesOwed    decimal.Decimal `json:"fines_owed"`
	BorrowLimit  int             `json:"borrow_limit"`
	RecentLoans  []*domain.Loan  `json:"recent_loans"`
}

func (s *LibraryService) GetMemberActivity(ctx context.Context, userID string) (*MemberActivity, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return nil, &domain.NotFoundError{Resource: "user", ID: userID}
	}
	userLoans, err := s.loans.GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user loans: %w", err)
	}

	now := s.now()
	act := &MemberActivity{
		UserID:      u.ID,
		Name:        u.Name,
		Kind:        string(u.Kind),
		TotalLoans:  len(userLoans),
		FinesOwed:   u.FinesOwed,
		BorrowLimit: u.BorrowingLimit(),
	}
	for _, l := range userLoans {
		if !l.Returned {
			act.ActiveLoans++
		}
		if l.IsOverdue(now) {
			act.OverdueLoans++
		}
	}
	// GetByUser is newest first; the first ten are the recent ones.
	if len(userLoans) > 10 {
		userLoans = userLoans[:10]
	}
	act.RecentLoans = userLoans
	return act, nil
}

// OutstandingFineRow is one overdue open loan in the financial report.
type OutstandingFineRow struct {
	LoanID      string          `json:"loan_id"`
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name,omitempty"`
	ItemID      string          `json:"item_id"`
	ItemTitle   string          `json:"item_title,omitempty"`
	DaysOverdue int             `json:"days_overdue"`
	FineAccrued decimal.Decimal `json:"fine_accrued"`
}

type FinancialReport struct {
	TotalFinesAssessed decimal.Decimal      `json:"total_fines_assessed"`
	OutstandingBalance decimal.Decimal      `json:"outstanding_balance"`
	CollectedFines     decimal.Decimal      `json:"collected_fines"`
	AccruingFines      decimal.Decimal      `json:"accruing_fines"`
	OverdueLoans       []OutstandingFineRow `json:"overdue_loans"`
}

// GetFinancialReport reconciles the fine ledgers: fines frozen on
// returned loans (assessed), member balances still owed (outstanding),
// the difference (collected), and the fines still accruing on open
// overdue loans, itemized.
func (s *LibraryService) GetFinancialReport(ctx context.Context) (*FinancialReport, error) {
	users, err := s.users.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	loans, err := s.loans.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}

	now := s.now()
	rate := s.DailyFineRate()
	rep := &FinancialReport{
		TotalFinesAssessed: decimal.Zero,
		OutstandingBalance: decimal.Zero,
		CollectedFines:     decimal.Zero,
		AccruingFines:      decimal.Zero,
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
		rep.OutstandingBalance = rep.OutstandingBalance.Add(u.FinesOwed)
	}

	var overdue []*domain.Loan
	for _, l := range loans {
		if l.Returned {
			rep.TotalFinesAssessed = rep.TotalFinesAssessed.Add(l.FineAmount)
			continue
		}
		if l.IsOverdue(now) {
			overdue = append(overdue, l)
		}
	}
	sortLoansByDue(overdue)
	for _, l := range overdue {
		accrued := l.CurrentFine(now, rate)
		rep.AccruingFines = rep.AccruingFines.Add(accrued)
		row := OutstandingFineRow{
			LoanID:      l.ID,
			UserID:      l.UserID,
			UserName:    names[l.UserID],
			ItemID:      l.ItemID,
			DaysOverdue: l.DaysOverdue(now),
			FineAccrued: accrued,
		}
		if it, err := s.items.GetByID(ctx, l.ItemID); err == nil && it != nil {
			row.ItemTitle = it.Title
		}
		rep.OverdueLoans = append(rep.OverdueLoans, row)
	}

	rep.CollectedFines = rep.TotalFinesAssessed.Sub(rep.OutstandingBalance)
	if rep.CollectedFines.IsNegative() {
		rep.CollectedFines = decimal.Zero
	}
	return rep, nil
}

// InventoryLine is the per-kind row of the inventory report.
type InventoryLine struct {
	Kind             string  `json:"kind"`
	Total            int     `json:"total"`
	Available        int     `json:"available"`
	CheckedOut       int     `json:"checked_out"`
	AvailabilityRate float64 `json:"availability_rate"`
}

func (s *LibraryService) GetInventoryReport(ctx context.Context) ([]InventoryLine, error) {
	items, err := s.items.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	kinds := []domain.ItemKind{domain.ItemBook, domain.ItemMagazine, domain.ItemDVD}
	lines := make([]InventoryLine, 0, len(kinds))
	for _, kind := range kinds {
		line := InventoryLine{Kind: string(kind)}
		for _, it := range items {
			if it.Kind != kind {
				continue
			}
			line.Total++
			if it.Available {
				line.Available++
			} else {
				line.CheckedOut++
			}
		}
		if line.Total > 0 {
			line.AvailabilityRate = float64(line.Available) / float64(line.Total)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// IntegrityIssue is one finding from the diagnostic scan.
type IntegrityIssue struct {
	Kind    string `json:"kind"`
	LoanID  string `json:"loan_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message"`
}

type IntegrityReport struct {
	Clean  bool             `json:"clean"`
	Issues []IntegrityIssue `json:"issues"`
}

// ValidateIntegrity scans for states the atomic-update contract should
// make impossible: loans referencing missing users or items, items with
// more than one open loan, and availability flags disagreeing with the
// open-loan index. Findings are reported, never repaired.
func (s *LibraryService) ValidateIntegrity(ctx context.Context) (*IntegrityReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loans, err := s.loans.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	items, err := s.items.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	rep := &IntegrityReport{}
	activePerItem := make(map[string]int)
	for _, l := range loans {
		if u, err := s.users.GetByID(ctx, l.UserID); err != nil {
			return nil, fmt.Errorf("look up user: %w", err)
		} else if u == nil && !l.Returned {
			rep.Issues = append(rep.Issues, IntegrityIssue{
				Kind:    "orphaned_loan",
				LoanID:  l.ID,
				UserID:  l.UserID,
				Message: "active loan references a missing user",
			})
		}
		if it, err := s.items.GetByID(ctx, l.ItemID); err != nil {
			return nil, fmt.Errorf("look up item: %w", err)
		} else if it == nil && !l.Returned {
			rep.Issues = append(rep.Issues, IntegrityIssue{
				Kind:    "orphaned_loan",
				LoanID:  l.ID,
				ItemID:  l.ItemID,
				Message: "active loan references a missing item",
			})
		}
		if !l.Returned {
			activePerItem[l.ItemID]++
		}
	}

	for itemID, n := range activePerItem {
		if n > 1 {
			rep.Issues = append(rep.Issues, IntegrityIssue{
				Kind:    "duplicate_active_loans",
				ItemID:  itemID,
				Message: fmt.Sprintf("item has %d active loans", n),
			})
		}
	}
	for _, it := range items {
		active := activePerItem[it.ID] > 0
		if it.Available == active {
			rep.Issues = append(rep.Issues, IntegrityIssue{
				Kind:    "availability_mismatch",
				ItemID:  it.ID,
				Message: fmt.Sprintf("available=%v but item has %d active loans", it.Available, activePerItem[it.ID]),
			})
		}
	}

	rep.Clean = len(rep.Issues) == 0
	return rep, nil
}

func sortLoansByDue(loans []*domain.Loan) {
	sort.SliceStable(loans, func(i, j int) bool {
		return loans[i].DateDue.Before(loans[j].DateDue)
	})
}

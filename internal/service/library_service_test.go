package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/repo/memory"
	"github.com/diagnosis/libris/pkg/events"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// testService wires the directory over in-memory repositories with a
// controllable clock and sequential loan ids.
type testService struct {
	*LibraryService
	clock time.Time
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	ts := &testService{clock: baseTime}
	seq := 0
	svc := NewLibraryService("Test Library",
		memory.NewUserRepo(), memory.NewItemRepo(), memory.NewLoanRepo(),
		memory.NewSettingsRepo(), events.NoopBus{})
	svc.now = func() time.Time { return ts.clock }
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("loan-%d", seq)
	}
	ts.LibraryService = svc
	return ts
}

func (ts *testService) advance(d time.Duration) { ts.clock = ts.clock.Add(d) }

func (ts *testService) advanceDays(n int) { ts.clock = ts.clock.AddDate(0, 0, n) }

func (ts *testService) mustMember(t *testing.T, id, name string) *domain.User {
	t.Helper()
	u, err := ts.RegisterMember(context.Background(), id, name, name+"@example.com", "")
	if err != nil {
		t.Fatalf("RegisterMember(%s) failed: %v", id, err)
	}
	return u
}

func (ts *testService) mustStaff(t *testing.T, id, name string, role domain.StaffRole) *domain.User {
	t.Helper()
	u, err := ts.RegisterStaff(context.Background(), id, name, name+"@example.com", role, time.Time{})
	if err != nil {
		t.Fatalf("RegisterStaff(%s) failed: %v", id, err)
	}
	return u
}

func (ts *testService) mustBook(t *testing.T, id, title string) *domain.Item {
	t.Helper()
	it, err := ts.AddItem(context.Background(), AddItemInput{
		ID: id, Kind: domain.ItemBook, Title: title,
		Author: "Author", ISBN: "978-0000000000", Pages: 200,
	})
	if err != nil {
		t.Fatalf("AddItem(%s) failed: %v", id, err)
	}
	return it
}

func (ts *testService) mustCheckout(t *testing.T, userID, itemID string) *domain.Loan {
	t.Helper()
	res, err := ts.CheckOutItem(context.Background(), userID, itemID)
	if err != nil {
		t.Fatalf("CheckOutItem(%s, %s) failed: %v", userID, itemID, err)
	}
	if !res.Success {
		t.Fatalf("checkout refused: %s", res.Message)
	}
	return res.Loan
}

func (ts *testService) itemAvailable(t *testing.T, itemID string) bool {
	t.Helper()
	it, err := ts.GetItem(context.Background(), itemID)
	if err != nil || it == nil {
		t.Fatalf("GetItem(%s) = (%v, %v)", itemID, it, err)
	}
	return it.Available
}

func TestCheckoutSuccess(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")

	res, err := ts.CheckOutItem(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("CheckOutItem failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("checkout refused: %s", res.Message)
	}
	wantDue := baseTime.AddDate(0, 0, 21)
	if !res.Loan.DateDue.Equal(wantDue) {
		t.Errorf("due date = %v, want %v", res.Loan.DateDue, wantDue)
	}
	if !strings.Contains(res.Message, wantDue.Format("2006-01-02")) {
		t.Errorf("message %q should carry the due date", res.Message)
	}
	if ts.itemAvailable(t, "b1") {
		t.Error("item should be unavailable after checkout")
	}

	u, _ := ts.GetUser(ctx, "m1")
	if len(u.BorrowedItems) != 1 || u.BorrowedItems[0] != "b1" {
		t.Errorf("borrowed items = %v, want [b1]", u.BorrowedItems)
	}
}

func TestCheckoutFailuresLeaveNoState(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustMember(t, "m2", "Ben")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	tests := []struct {
		name   string
		userID string
		itemID string
	}{
		{"unknown user", "ghost", "b1"},
		{"unknown item", "m2", "ghost"},
		{"item already on loan", "m2", "b1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ts.CheckOutItem(ctx, tt.userID, tt.itemID)
			if err != nil {
				t.Fatalf("CheckOutItem failed: %v", err)
			}
			if res.Success {
				t.Fatal("checkout should have been refused")
			}
			u, _ := ts.GetUser(ctx, "m2")
			if len(u.BorrowedItems) != 0 {
				t.Errorf("refused checkout left state behind: %v", u.BorrowedItems)
			}
		})
	}
}

func TestCheckoutBlockedByFines(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	u := ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")

	u.FinesOwed = decimal.NewFromFloat(15.00)
	if err := ts.users.Save(ctx, u); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	res, err := ts.CheckOutItem(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("CheckOutItem failed: %v", err)
	}
	if res.Success {
		t.Fatal("checkout should be blocked above the fine threshold")
	}
	if !strings.Contains(res.Message, "fines") {
		t.Errorf("refusal %q should reference fines/limits/membership", res.Message)
	}
	if !ts.itemAvailable(t, "b1") {
		t.Error("refused checkout must not flip the item")
	}
}

func TestBorrowLimit(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("b%d", i)
		ts.mustBook(t, id, "Book "+id)
		ts.mustCheckout(t, "m1", id)
	}
	ts.mustBook(t, "b6", "One Too Many")

	res, err := ts.CheckOutItem(ctx, "m1", "b6")
	if err != nil {
		t.Fatalf("CheckOutItem failed: %v", err)
	}
	if res.Success {
		t.Error("sixth checkout should exceed the member limit")
	}
}

func TestRenewalLifecycle(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	loan := ts.mustCheckout(t, "m1", "b1")
	firstDue := loan.DateDue

	for i := 1; i <= 2; i++ {
		res, err := ts.RenewLoan(ctx, "m1", "b1")
		if err != nil {
			t.Fatalf("RenewLoan failed: %v", err)
		}
		if !res.Success {
			t.Fatalf("renewal %d refused: %s", i, res.Message)
		}
		if res.Loan.RenewalCount != i {
			t.Errorf("renewal count = %d, want %d", res.Loan.RenewalCount, i)
		}
		wantDue := firstDue.AddDate(0, 0, 21*i)
		if !res.Loan.DateDue.Equal(wantDue) {
			t.Errorf("due after renewal %d = %v, want %v", i, res.Loan.DateDue, wantDue)
		}
	}

	res, err := ts.RenewLoan(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("RenewLoan failed: %v", err)
	}
	if res.Success {
		t.Error("third renewal must be denied")
	}
}

func TestRenewalDeniedWhenOverdue(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	ts.advanceDays(22)
	res, err := ts.RenewLoan(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("RenewLoan failed: %v", err)
	}
	if res.Success {
		t.Error("overdue loan must not renew")
	}
}

func TestCheckinOnTime(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	ts.advanceDays(5)
	res, err := ts.CheckInItem(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("check-in refused: %s", res.Message)
	}
	if !res.Fine.IsZero() {
		t.Errorf("on-time return fined %s", res.Fine)
	}
	if !ts.itemAvailable(t, "b1") {
		t.Error("item should be available after check-in")
	}

	u, _ := ts.GetUser(ctx, "m1")
	if len(u.BorrowedItems) != 0 {
		t.Errorf("borrowed items = %v, want empty", u.BorrowedItems)
	}
	if len(u.LoanHistory) != 1 {
		t.Errorf("loan history = %v, want one entry", u.LoanHistory)
	}
}

func TestCheckinLateFinesMember(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	// 21-day period, returned 26 days in: 5 days late at $0.50/day.
	ts.advanceDays(26)
	res, err := ts.CheckInItem(ctx, "m1", "b1")
	if err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	want := decimal.NewFromFloat(2.50)
	if !res.Fine.Equal(want) {
		t.Errorf("fine = %s, want %s", res.Fine, want)
	}

	u, _ := ts.GetUser(ctx, "m1")
	if !u.FinesOwed.Equal(want) {
		t.Errorf("member balance = %s, want %s", u.FinesOwed, want)
	}
}

func TestCheckinLateStaffReportsButDoesNotBill(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustStaff(t, "s1", "Sam", domain.RoleLibrarian)
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "s1", "b1")

	ts.advanceDays(26)
	res, err := ts.CheckInItem(ctx, "s1", "b1")
	if err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	if !res.Fine.Equal(decimal.NewFromFloat(2.50)) {
		t.Errorf("fine = %s, want 2.50", res.Fine)
	}
	u, _ := ts.GetUser(ctx, "s1")
	if !u.FinesOwed.IsZero() {
		t.Errorf("staff balance = %s, want 0", u.FinesOwed)
	}
}

func TestReturnLoanByIDTwice(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	loan := ts.mustCheckout(t, "m1", "b1")

	if _, err := ts.ReturnLoan(ctx, loan.ID); err != nil {
		t.Fatalf("first return failed: %v", err)
	}
	_, err := ts.ReturnLoan(ctx, loan.ID)
	var are *domain.AlreadyReturnedError
	if !errors.As(err, &are) {
		t.Fatalf("second return = %v, want AlreadyReturnedError", err)
	}
}

func TestRemoveItemBlockedWhileOnLoan(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	err := ts.RemoveItem(ctx, "b1")
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("RemoveItem on loaned item = %v, want ConflictError", err)
	}

	if _, err := ts.CheckInItem(ctx, "m1", "b1"); err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	if err := ts.RemoveItem(ctx, "b1"); err != nil {
		t.Fatalf("RemoveItem after check-in failed: %v", err)
	}
}

func TestRemoveUserBlockedByActiveLoan(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	err := ts.RemoveUser(ctx, "m1")
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("RemoveUser with active loan = %v, want ConflictError", err)
	}

	if _, err := ts.CheckInItem(ctx, "m1", "b1"); err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	if err := ts.RemoveUser(ctx, "m1"); err != nil {
		t.Fatalf("RemoveUser after return failed: %v", err)
	}
}

func TestDuplicateIdentifiersRejected(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")

	if _, err := ts.RegisterMember(ctx, "m1", "Twin", "twin@example.com", ""); err == nil {
		t.Error("duplicate user id should be rejected")
	}
	_, err := ts.AddItem(ctx, AddItemInput{
		ID: "b1", Kind: domain.ItemBook, Title: "Clone",
		Author: "A", ISBN: "i", Pages: 1,
	})
	var ce *domain.ConflictError
	if !errors.As(err, &ce) {
		t.Errorf("duplicate item id = %v, want ConflictError", err)
	}
}

func TestOverdueLoansSortedByDue(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustMember(t, "m2", "Ben")

	// Magazine (7-day period) goes overdue before the book (21-day).
	if _, err := ts.AddItem(ctx, AddItemInput{
		ID: "mg1", Kind: domain.ItemMagazine, Title: "Wired",
		IssueNumber: "42", Publisher: "Conde Nast",
	}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")
	ts.mustCheckout(t, "m2", "mg1")

	ts.advanceDays(25)
	overdue, err := ts.GetOverdueLoans(ctx)
	if err != nil {
		t.Fatalf("GetOverdueLoans failed: %v", err)
	}
	if len(overdue) != 2 {
		t.Fatalf("overdue count = %d, want 2", len(overdue))
	}
	if overdue[0].ItemID != "mg1" || overdue[1].ItemID != "b1" {
		t.Errorf("overdue order = [%s %s], want [mg1 b1]", overdue[0].ItemID, overdue[1].ItemID)
	}
}

func TestFineRateSettingAffectsLaterReturnsOnly(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustMember(t, "m2", "Ben")
	ts.mustBook(t, "b1", "Dune")
	ts.mustBook(t, "b2", "Foundation")
	l1 := ts.mustCheckout(t, "m1", "b1")
	ts.mustCheckout(t, "m2", "b2")

	ts.advanceDays(26)
	if _, err := ts.ReturnLoan(ctx, l1.ID); err != nil {
		t.Fatalf("ReturnLoan failed: %v", err)
	}

	if err := ts.SetDailyFineRate(ctx, decimal.NewFromFloat(1.00)); err != nil {
		t.Fatalf("SetDailyFineRate failed: %v", err)
	}
	if err := ts.SetDailyFineRate(ctx, decimal.NewFromFloat(-0.10)); err == nil {
		t.Error("negative rate should be rejected")
	}

	res, err := ts.CheckInItem(ctx, "m2", "b2")
	if err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	if want := decimal.NewFromFloat(5.00); !res.Fine.Equal(want) {
		t.Errorf("fine at new rate = %s, want %s", res.Fine, want)
	}

	first, _ := ts.GetLoan(ctx, l1.ID)
	if want := decimal.NewFromFloat(2.50); !first.FineAmount.Equal(want) {
		t.Errorf("frozen fine changed: %s, want %s", first.FineAmount, want)
	}
}

func TestLoadSettingsPicksUpPersistedRate(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	if err := ts.settings.Set(ctx, "daily_fine_rate", "0.75"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ts.LoadSettings(ctx); err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if want := decimal.NewFromFloat(0.75); !ts.DailyFineRate().Equal(want) {
		t.Errorf("rate = %s, want %s", ts.DailyFineRate(), want)
	}

	if err := ts.settings.Set(ctx, "daily_fine_rate", "garbage"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ts.LoadSettings(ctx); err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if want := decimal.NewFromFloat(0.75); !ts.DailyFineRate().Equal(want) {
		t.Errorf("unparseable rate replaced the previous one: %s", ts.DailyFineRate())
	}
}

func TestPayFine(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	u := ts.mustMember(t, "m1", "Ada")
	u.FinesOwed = decimal.NewFromFloat(4.00)
	if err := ts.users.Save(ctx, u); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	paid, err := ts.PayFine(ctx, "m1", decimal.NewFromFloat(10.00))
	if err != nil {
		t.Fatalf("PayFine failed: %v", err)
	}
	if !paid.FinesOwed.IsZero() {
		t.Errorf("overpayment balance = %s, want 0", paid.FinesOwed)
	}

	ts.mustStaff(t, "s1", "Sam", domain.RoleManager)
	if _, err := ts.PayFine(ctx, "s1", decimal.NewFromFloat(1.00)); err == nil {
		t.Error("staff have no fine balance to pay against")
	}
}

func TestAvailabilityMatchesActiveLoans(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustBook(t, "b2", "Foundation")

	check := func(step string) {
		t.Helper()
		items, err := ts.ListItems(ctx, "", false)
		if err != nil {
			t.Fatalf("ListItems failed: %v", err)
		}
		loans, err := ts.loans.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll loans failed: %v", err)
		}
		active := make(map[string]int)
		for _, l := range loans {
			if !l.Returned {
				active[l.ItemID]++
			}
		}
		for _, it := range items {
			if it.Available != (active[it.ID] == 0) {
				t.Errorf("%s: item %s available=%v with %d active loans", step, it.ID, it.Available, active[it.ID])
			}
		}
	}

	check("initial")
	ts.mustCheckout(t, "m1", "b1")
	check("after checkout")
	if _, err := ts.RenewLoan(ctx, "m1", "b1"); err != nil {
		t.Fatalf("RenewLoan failed: %v", err)
	}
	check("after renew")
	if _, err := ts.CheckInItem(ctx, "m1", "b1"); err != nil {
		t.Fatalf("CheckInItem failed: %v", err)
	}
	check("after check-in")
}

func TestPopularItems(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustBook(t, "b2", "Foundation")
	ts.mustBook(t, "b3", "Hyperion")

	borrowAndReturn := func(itemID string) {
		t.Helper()
		ts.mustCheckout(t, "m1", itemID)
		if _, err := ts.CheckInItem(ctx, "m1", itemID); err != nil {
			t.Fatalf("CheckInItem(%s) failed: %v", itemID, err)
		}
	}

	// b2 twice, b1 and b3 once each; b1 seen before b3.
	borrowAndReturn("b2")
	borrowAndReturn("b1")
	borrowAndReturn("b2")
	borrowAndReturn("b3")

	top, err := ts.GetPopularItems(ctx, 2)
	if err != nil {
		t.Fatalf("GetPopularItems failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len = %d, want 2", len(top))
	}
	if top[0].Item.ID != "b2" || top[0].LoanCount != 2 {
		t.Errorf("top item = %s (%d), want b2 (2)", top[0].Item.ID, top[0].LoanCount)
	}
	if top[1].Item.ID != "b1" {
		t.Errorf("tie-break = %s, want b1 (first borrowed)", top[1].Item.ID)
	}
}

func TestSystemStatistics(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustStaff(t, "s1", "Sam", domain.RoleManager)
	ts.mustBook(t, "b1", "Dune")
	ts.mustBook(t, "b2", "Foundation")
	ts.mustCheckout(t, "m1", "b1")

	ts.advanceDays(25)
	stats, err := ts.GetSystemStatistics(ctx)
	if err != nil {
		t.Fatalf("GetSystemStatistics failed: %v", err)
	}
	if stats.TotalItems != 2 || stats.AvailableItems != 1 {
		t.Errorf("items = %d/%d available, want 2/1", stats.TotalItems, stats.AvailableItems)
	}
	if stats.Members != 1 || stats.Staff != 1 {
		t.Errorf("users = %d members %d staff, want 1/1", stats.Members, stats.Staff)
	}
	if stats.ActiveLoans != 1 || stats.OverdueLoans != 1 {
		t.Errorf("loans = %d active %d overdue, want 1/1", stats.ActiveLoans, stats.OverdueLoans)
	}
	// 4 days overdue at $0.50.
	if want := decimal.NewFromFloat(2.00); !stats.AccruingFines.Equal(want) {
		t.Errorf("accruing = %s, want %s", stats.AccruingFines, want)
	}
	if stats.UptimeDays != 25 {
		t.Errorf("uptime = %d days, want 25", stats.UptimeDays)
	}
}

func TestMemberActivity(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("b%d", i)
		ts.mustBook(t, id, "Book "+id)
		ts.mustCheckout(t, "m1", id)
		if _, err := ts.CheckInItem(ctx, "m1", id); err != nil {
			t.Fatalf("CheckInItem failed: %v", err)
		}
	}

	act, err := ts.GetMemberActivity(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMemberActivity failed: %v", err)
	}
	if act.TotalLoans != 12 || act.ActiveLoans != 0 {
		t.Errorf("loans = %d total %d active, want 12/0", act.TotalLoans, act.ActiveLoans)
	}
	if len(act.RecentLoans) != 10 {
		t.Errorf("recent = %d loans, want 10", len(act.RecentLoans))
	}
	if act.RecentLoans[0].ItemID != "b12" {
		t.Errorf("recent[0] = %s, want the newest loan b12", act.RecentLoans[0].ItemID)
	}

	if _, err := ts.GetMemberActivity(ctx, "ghost"); err == nil {
		t.Error("unknown user should fail")
	}
}

func TestFinancialReport(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustMember(t, "m2", "Ben")
	ts.mustBook(t, "b1", "Dune")
	ts.mustBook(t, "b2", "Foundation")
	l1 := ts.mustCheckout(t, "m1", "b1")
	ts.mustCheckout(t, "m2", "b2")

	// m1 returns 5 days late ($2.50, billed); m2 stays out and accrues.
	ts.advanceDays(26)
	if _, err := ts.ReturnLoan(ctx, l1.ID); err != nil {
		t.Fatalf("ReturnLoan failed: %v", err)
	}
	if _, err := ts.PayFine(ctx, "m1", decimal.NewFromFloat(1.00)); err != nil {
		t.Fatalf("PayFine failed: %v", err)
	}

	rep, err := ts.GetFinancialReport(ctx)
	if err != nil {
		t.Fatalf("GetFinancialReport failed: %v", err)
	}
	if want := decimal.NewFromFloat(2.50); !rep.TotalFinesAssessed.Equal(want) {
		t.Errorf("assessed = %s, want %s", rep.TotalFinesAssessed, want)
	}
	if want := decimal.NewFromFloat(1.50); !rep.OutstandingBalance.Equal(want) {
		t.Errorf("outstanding = %s, want %s", rep.OutstandingBalance, want)
	}
	if want := decimal.NewFromFloat(1.00); !rep.CollectedFines.Equal(want) {
		t.Errorf("collected = %s, want %s", rep.CollectedFines, want)
	}
	if want := decimal.NewFromFloat(2.50); !rep.AccruingFines.Equal(want) {
		t.Errorf("accruing = %s, want %s", rep.AccruingFines, want)
	}
	if len(rep.OverdueLoans) != 1 || rep.OverdueLoans[0].UserID != "m2" {
		t.Fatalf("overdue rows = %+v, want one row for m2", rep.OverdueLoans)
	}
	if rep.OverdueLoans[0].DaysOverdue != 5 {
		t.Errorf("days overdue = %d, want 5", rep.OverdueLoans[0].DaysOverdue)
	}
	if rep.OverdueLoans[0].ItemTitle != "Foundation" {
		t.Errorf("item title = %q, want Foundation", rep.OverdueLoans[0].ItemTitle)
	}
}

func TestInventoryReport(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustBook(t, "b2", "Foundation")
	if _, err := ts.AddItem(ctx, AddItemInput{
		ID: "d1", Kind: domain.ItemDVD, Title: "Arrival",
		DurationMinutes: 116, Genre: "Sci-Fi", Director: "Villeneuve", Rating: "PG-13",
	}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	ts.mustCheckout(t, "m1", "b1")

	lines, err := ts.GetInventoryReport(ctx)
	if err != nil {
		t.Fatalf("GetInventoryReport failed: %v", err)
	}
	byKind := make(map[string]InventoryLine)
	for _, l := range lines {
		byKind[l.Kind] = l
	}
	if b := byKind["book"]; b.Total != 2 || b.Available != 1 || b.CheckedOut != 1 || b.AvailabilityRate != 0.5 {
		t.Errorf("book line = %+v", b)
	}
	if d := byKind["dvd"]; d.Total != 1 || d.Available != 1 || d.AvailabilityRate != 1.0 {
		t.Errorf("dvd line = %+v", d)
	}
	if m := byKind["magazine"]; m.Total != 0 || m.AvailabilityRate != 0 {
		t.Errorf("magazine line = %+v", m)
	}
}

func TestValidateIntegrity(t *testing.T) {
	ts := newTestService(t)
	ctx := context.Background()
	ts.mustMember(t, "m1", "Ada")
	ts.mustBook(t, "b1", "Dune")
	ts.mustCheckout(t, "m1", "b1")

	rep, err := ts.ValidateIntegrity(ctx)
	if err != nil {
		t.Fatalf("ValidateIntegrity failed: %v", err)
	}
	if !rep.Clean {
		t.Fatalf("clean directory reported issues: %+v", rep.Issues)
	}

	// Corrupt the registries behind the directory's back.
	orphan, err := domain.NewLoan("rogue", "ghost", "b1", 21, baseTime)
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}
	if err := ts.loans.Save(ctx, orphan); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rep, err = ts.ValidateIntegrity(ctx)
	if err != nil {
		t.Fatalf("ValidateIntegrity failed: %v", err)
	}
	if rep.Clean {
		t.Fatal("corrupted directory reported clean")
	}
	var kinds []string
	for _, is := range rep.Issues {
		kinds = append(kinds, is.Kind)
	}
	wantKinds := map[string]bool{"orphaned_loan": false, "duplicate_active_loans": false}
	for _, k := range kinds {
		if _, ok := wantKinds[k]; ok {
			wantKinds[k] = true
		}
	}
	for k, seen := range wantKinds {
		if !seen {
			t.Errorf("issue kind %q not reported (got %v)", k, kinds)
		}
	}
}

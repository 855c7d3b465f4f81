package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/platform/mailer"
	"github.com/diagnosis/libris/internal/repo/memory"
	"github.com/diagnosis/libris/internal/service"
	"github.com/diagnosis/libris/pkg/events"
)

type fakeMailer struct {
	mu      sync.Mutex
	notices []mailer.OverdueNotice
	sendErr error
}

func (f *fakeMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	return "fake", nil
}

func (f *fakeMailer) SendOverdueNotice(n mailer.OverdueNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.notices = append(f.notices, n)
	return nil
}

type capturingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *capturingBus) Publish(ctx context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func (b *capturingBus) Close() error { return nil }

// setupOverdue builds a directory holding one loan that went overdue
// ten days ago and one still current.
func setupOverdue(t *testing.T) (*service.LibraryService, *memory.LoanRepo) {
	t.Helper()
	ctx := context.Background()
	loans := memory.NewLoanRepo()
	svc := service.NewLibraryService("Test Library",
		memory.NewUserRepo(), memory.NewItemRepo(), loans,
		memory.NewSettingsRepo(), events.NoopBus{})

	if _, err := svc.RegisterMember(ctx, "m1", "Ada", "ada@example.com", ""); err != nil {
		t.Fatalf("RegisterMember failed: %v", err)
	}
	if _, err := svc.AddItem(ctx, service.AddItemInput{
		ID: "b1", Kind: domain.ItemBook, Title: "Dune",
		Author: "Herbert", ISBN: "isbn", Pages: 400,
	}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	// Borrowed 31 days ago on a 21-day period: 10 days overdue.
	overdue, err := domain.NewLoan("l-overdue", "m1", "b1", 21, time.Now().AddDate(0, 0, -31))
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}
	if err := loans.Save(ctx, overdue); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	current, err := domain.NewLoan("l-current", "m1", "b1", 21, time.Now())
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}
	if err := loans.Save(ctx, current); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return svc, loans
}

func TestScanSendsOneNoticePerOverdueLoan(t *testing.T) {
	svc, _ := setupOverdue(t)
	fm := &fakeMailer{}
	bus := &capturingBus{}
	n := New(svc, fm, bus, time.Hour)

	n.Scan(context.Background())

	if len(fm.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(fm.notices))
	}
	got := fm.notices[0]
	if got.ToEmail != "ada@example.com" || got.ItemTitle != "Dune" {
		t.Errorf("notice = %+v", got)
	}
	if got.DaysOverdue != 10 {
		t.Errorf("days overdue = %d, want 10", got.DaysOverdue)
	}
	// 10 days at the default $0.50.
	if got.FineAccrued.StringFixed(2) != "5.00" {
		t.Errorf("fine accrued = %s, want 5.00", got.FineAccrued.StringFixed(2))
	}

	if len(bus.subjects) != 1 || bus.subjects[0] != events.LoanOverdueNotice {
		t.Errorf("published = %v, want [%s]", bus.subjects, events.LoanOverdueNotice)
	}
}

func TestScanSurvivesMailerFailure(t *testing.T) {
	svc, _ := setupOverdue(t)
	fm := &fakeMailer{sendErr: errors.New("smtp down")}
	bus := &capturingBus{}
	n := New(svc, fm, bus, time.Hour)

	n.Scan(context.Background())

	if len(fm.notices) != 0 {
		t.Fatalf("notices = %d, want 0", len(fm.notices))
	}
	if len(bus.subjects) != 0 {
		t.Errorf("no event should be published when the mail fails, got %v", bus.subjects)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc, _ := setupOverdue(t)
	n := New(svc, &fakeMailer{}, &capturingBus{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

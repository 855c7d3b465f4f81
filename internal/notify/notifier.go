// Package notify runs the background overdue scan: each pass mails one
// reminder per overdue loan and publishes a notice event.
package notify

import (
	"context"
	"time"

	"github.com/diagnosis/libris/internal/platform/mailer"
	"github.com/diagnosis/libris/internal/service"
	"github.com/diagnosis/libris/pkg/events"
	"github.com/diagnosis/libris/pkg/logger"
)

type Notifier struct {
	svc      *service.LibraryService
	mail     mailer.Service
	bus      events.Publisher
	interval time.Duration

	now func() time.Time
}

func New(svc *service.LibraryService, mail mailer.Service, bus events.Publisher, interval time.Duration) *Notifier {
	return &Notifier{
		svc:      svc,
		mail:     mail,
		bus:      bus,
		interval: interval,
		now:      time.Now,
	}
}

// Run scans on the configured interval until the context is canceled.
// The first scan happens immediately so a restart never delays notices
// by a full interval.
func (n *Notifier) Run(ctx context.Context) error {
	logger.Info("Overdue notifier started", "interval", n.interval.String())
	n.Scan(ctx)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Overdue notifier stopped")
			return ctx.Err()
		case <-ticker.C:
			n.Scan(ctx)
		}
	}
}

// Scan is one notification pass. Per-loan failures are logged and
// skipped; a broken mail provider must not halt the scan.
func (n *Notifier) Scan(ctx context.Context) {
	loans, err := n.svc.GetOverdueLoans(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Overdue scan failed", "error", err)
		return
	}
	if len(loans) == 0 {
		return
	}

	now := n.now()
	rate := n.svc.DailyFineRate()
	sent := 0
	for _, l := range loans {
		u, err := n.svc.GetUser(ctx, l.UserID)
		if err != nil || u == nil {
			logger.WarnContext(ctx, "Skipping overdue notice, user unavailable",
				"loan_id", l.ID, "user_id", l.UserID, "error", err)
			continue
		}
		it, err := n.svc.GetItem(ctx, l.ItemID)
		if err != nil || it == nil {
			logger.WarnContext(ctx, "Skipping overdue notice, item unavailable",
				"loan_id", l.ID, "item_id", l.ItemID, "error", err)
			continue
		}

		accrued := l.CurrentFine(now, rate)
		notice := mailer.OverdueNotice{
			ToEmail:     u.Email,
			ToName:      u.Name,
			ItemTitle:   it.Title,
			DateDue:     l.DateDue,
			DaysOverdue: l.DaysOverdue(now),
			FineAccrued: accrued,
		}
		if err := n.mail.SendOverdueNotice(notice); err != nil {
			logger.ErrorContext(ctx, "Failed to send overdue notice",
				"loan_id", l.ID, "user_id", u.ID, "error", err)
			continue
		}
		sent++

		if err := n.bus.Publish(ctx, events.LoanOverdueNotice, events.LoanOverdueNoticeEvent{
			LoanID:      l.ID,
			UserID:      l.UserID,
			ItemID:      l.ItemID,
			DateDue:     l.DateDue,
			DaysOverdue: notice.DaysOverdue,
			FineAccrued: accrued.StringFixed(2),
		}); err != nil {
			logger.ErrorContext(ctx, "Failed to publish overdue notice event",
				"loan_id", l.ID, "error", err)
		}
	}
	logger.InfoContext(ctx, "Overdue scan completed", "overdue", len(loans), "notices_sent", sent)
}

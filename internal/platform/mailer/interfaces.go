package mailer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service sends mail to library users. SendOverdueNotice is the one
// domain-shaped helper; everything else goes through Send.
type Service interface {
	Send(toEmail, toName, subject, text, html string) (string, error)
	SendOverdueNotice(n OverdueNotice) error
}

// OverdueNotice carries the facts rendered into an overdue reminder.
type OverdueNotice struct {
	ToEmail     string
	ToName      string
	ItemTitle   string
	DateDue     time.Time
	DaysOverdue int
	FineAccrued decimal.Decimal
}

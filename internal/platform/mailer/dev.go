package mailer

import (
	"github.com/diagnosis/libris/pkg/logger"
)

// DevMailer logs mail instead of sending it. Default in development so
// overdue scans never need a mail provider.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	logger.Info("[DEV MAIL]",
		"to", toEmail,
		"name", toName,
		"subject", subject,
		"body", text,
	)
	return "dev", nil
}

func (d *DevMailer) SendOverdueNotice(n OverdueNotice) error {
	_, err := d.Send(n.ToEmail, n.ToName, noticeSubject(n), noticeText(n), noticeHTML(n))
	return err
}

var _ Service = (*DevMailer)(nil)

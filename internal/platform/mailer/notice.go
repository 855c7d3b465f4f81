package mailer

import "fmt"

func noticeSubject(n OverdueNotice) string {
	return fmt.Sprintf("Overdue reminder: %q is %d day(s) late", n.ItemTitle, n.DaysOverdue)
}

func noticeText(n OverdueNotice) string {
	return fmt.Sprintf(
		"Hi %s,\n\n%q was due back on %s and is now %d day(s) overdue.\nFine accrued so far: $%s.\n\nPlease return or renew it at your earliest convenience.",
		n.ToName, n.ItemTitle, n.DateDue.Format("2006-01-02"), n.DaysOverdue, n.FineAccrued.StringFixed(2))
}

func noticeHTML(n OverdueNotice) string {
	return fmt.Sprintf(
		`<p>Hi %s,</p><p><b>%s</b> was due back on %s and is now <b>%d day(s) overdue</b>.</p><p>Fine accrued so far: <b>$%s</b>.</p><p>Please return or renew it at your earliest convenience.</p>`,
		n.ToName, n.ItemTitle, n.DateDue.Format("2006-01-02"), n.DaysOverdue, n.FineAccrued.StringFixed(2))
}

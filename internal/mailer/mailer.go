// Package mailer renders and delivers report emails. Delivery backends
// (SMTP, Gmail API, log-only) implement the Mailer interface; the report
// runner does not know which one is wired.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"finbrief/internal/core"
)

// ReportContent is the report payload as it appears in the email.
type ReportContent struct {
	Period                string
	TotalIncome           core.Money
	TotalExpenses         core.Money
	AvailableBalance      core.Money
	SavingsRate           float64
	TopSpendingCategories []core.CategoryAmount
	Insights              []string
}

// ReportEmail is one deliverable report addressed to one user.
type ReportEmail struct {
	Email     string
	Username  string
	Frequency core.Frequency
	Report    ReportContent
}

// Mailer delivers a rendered report. Implementations attempt delivery once;
// retry policy belongs to the caller's schedule.
type Mailer interface {
	SendReport(ctx context.Context, msg ReportEmail) error
}

// NewReportEmail assembles the deliverable payload from a user, their report
// frequency and a generated artifact.
func NewReportEmail(user core.User, freq core.Frequency, artifact *core.ReportArtifact) ReportEmail {
	return ReportEmail{
		Email:     user.Email,
		Username:  user.Name,
		Frequency: freq,
		Report: ReportContent{
			Period:                artifact.Period,
			TotalIncome:           artifact.Summary.Income,
			TotalExpenses:         artifact.Summary.Expenses,
			AvailableBalance:      artifact.Summary.Balance,
			SavingsRate:           artifact.Summary.SavingsRate,
			TopSpendingCategories: artifact.Summary.TopCategories,
			Insights:              artifact.Insights,
		},
	}
}

// Subject builds the email subject line for the message.
func (m ReportEmail) Subject() string {
	return fmt.Sprintf("Your %s financial report (%s)", m.Frequency, m.Report.Period)
}

// LogMailer writes reports to the log instead of sending them. Used in
// development and when no mail backend is configured.
type LogMailer struct{}

func (LogMailer) SendReport(ctx context.Context, msg ReportEmail) error {
	slog.InfoContext(ctx, "Report email (log backend, not delivered)",
		"to", msg.Email,
		"subject", msg.Subject(),
		"income", msg.Report.TotalIncome.String(),
		"expenses", msg.Report.TotalExpenses.String(),
		"balance", msg.Report.AvailableBalance.String())
	return nil
}

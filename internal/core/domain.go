package core

import (
	"errors"
	"strings"
	"time"
)

// Frequency is the cadence at which a user receives financial reports.
const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurringInterval is the cadence of a recurring transaction template.
const (
	IntervalDaily   RecurringInterval = "daily"
	IntervalWeekly  RecurringInterval = "weekly"
	IntervalMonthly RecurringInterval = "monthly"
	IntervalYearly  RecurringInterval = "yearly"
)

// ReportStatus records the outcome of one report processing cycle.
const (
	ReportStatusSent       ReportStatus = "sent"
	ReportStatusFailed     ReportStatus = "failed"
	ReportStatusNoActivity ReportStatus = "no_activity"
	ReportStatusPending    ReportStatus = "pending"
)

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

type (
	Frequency         string
	RecurringInterval string
	ReportStatus      string
	TransactionType   string

	User struct {
		ID        int64
		Name      string
		Email     string
		CreatedAt time.Time
	}

	Transaction struct {
		ID          int64
		UserID      int64
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
		OccurredOn  time.Time

		// Recurring template fields; zero values for one-off transactions.
		IsRecurring       bool
		RecurringInterval RecurringInterval
		NextOccurrence    time.Time
	}

	// ReportSubscription is the per-user report schedule. NextReportDate is
	// always the start of the next period boundary for Frequency and is
	// advanced only by the report job runner.
	ReportSubscription struct {
		ID             int64
		UserID         int64
		IsEnabled      bool
		Frequency      Frequency
		LastSentDate   *time.Time
		NextReportDate time.Time
	}

	// ReportRecord is one append-only audit entry per (subscription, cycle).
	ReportRecord struct {
		ID       int64
		UserID   int64
		SentDate time.Time
		Period   string
		Status   ReportStatus
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidInterval  = errors.New("invalid recurring interval")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyDescription = errors.New("empty description")
	ErrZeroDate         = errors.New("date cannot be zero")
)

// ParseFrequency maps a stored or user-supplied frequency string onto the
// closed enum. Unknown or missing values fall back to monthly, matching the
// default subscriptions are created with.
func ParseFrequency(s string) Frequency {
	switch Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case FrequencyDaily:
		return FrequencyDaily
	case FrequencyWeekly:
		return FrequencyWeekly
	default:
		return FrequencyMonthly
	}
}

// ValidFrequency reports whether s names a known frequency exactly.
func ValidFrequency(s string) bool {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if t.OccurredOn.IsZero() {
		return ErrZeroDate
	}
	switch t.Type {
	case TransactionIncome, TransactionExpense:
	default:
		return ErrInvalidType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if t.IsRecurring {
		switch t.RecurringInterval {
		case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		default:
			return ErrInvalidInterval
		}
	}
	return nil
}

func (s ReportSubscription) Validate() error {
	if s.UserID == 0 {
		return errors.New("missing user id")
	}
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return errors.New("invalid report frequency")
	}
	if s.NextReportDate.IsZero() {
		return errors.New("missing next report date")
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finbrief/internal/core"
	"finbrief/internal/schedule"
)

// RecurringStore is the persistence surface the recurring processor needs.
type RecurringStore interface {
	DueRecurringTransactions(ctx context.Context, now time.Time) ([]core.Transaction, error)
	MaterializeRecurring(ctx context.Context, tpl core.Transaction, occurredOn, next time.Time) (int64, error)
}

// RecurringProcessor materializes recurring transaction templates into
// concrete transactions once their next occurrence comes due.
type RecurringProcessor struct {
	store RecurringStore
}

func NewRecurringProcessor(store RecurringStore) *RecurringProcessor {
	return &RecurringProcessor{store: store}
}

// ProcessDue materializes every template due at now and returns how many
// transactions were created. One template's failure does not stop the rest.
// A template that fell several occurrences behind advances one occurrence
// per call and catches up across subsequent ticks.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	templates, err := p.store.DueRecurringTransactions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("get due recurring transactions: %w", err)
	}

	created := 0
	for _, tpl := range templates {
		occurredOn := tpl.NextOccurrence
		next := schedule.NextOccurrence(occurredOn, tpl.RecurringInterval)
		if !next.After(occurredOn) {
			slog.ErrorContext(ctx, "Recurring template has unknown interval, skipping",
				"template_id", tpl.ID,
				"interval", tpl.RecurringInterval)
			continue
		}

		id, err := p.store.MaterializeRecurring(ctx, tpl, occurredOn, next)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring transaction",
				"template_id", tpl.ID,
				"description", tpl.Description,
				"error", err)
			continue
		}

		created++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"template_id", tpl.ID,
			"transaction_id", id,
			"description", tpl.Description,
			"amount_cents", tpl.Amount.Cents,
			"occurred_on", occurredOn.Format("2006-01-02"),
			"next_occurrence", next.Format("2006-01-02"))
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"created", created,
		"total_due", len(templates))

	return created, nil
}

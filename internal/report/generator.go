// Package report turns a user's transactions in a reporting window into a
// report artifact: summary figures, top spending categories and insights.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finbrief/internal/core"
	"finbrief/internal/schedule"
	"finbrief/internal/storage"
)

// ErrNoActivity signals an empty reporting window. It is not a failure: the
// runner records a no-activity outcome and reschedules.
var ErrNoActivity = errors.New("no activity in reporting period")

const topCategoryCount = 3

// Store is the slice of the repository the generator reads from.
type Store interface {
	WindowTotals(ctx context.Context, userID int64, from, to time.Time) (storage.WindowTotals, error)
	TopExpenseCategories(ctx context.Context, userID int64, from, to time.Time, limit int) ([]core.CategoryAmount, error)
}

type Generator struct {
	store Store
}

func NewGenerator(store Store) *Generator {
	return &Generator{store: store}
}

// Generate aggregates the user's transactions in [from, to) into an artifact.
// Returns ErrNoActivity when the window holds no transactions.
func (g *Generator) Generate(ctx context.Context, userID int64, from, to time.Time) (*core.ReportArtifact, error) {
	totals, err := g.store.WindowTotals(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("aggregate window totals: %w", err)
	}
	if totals.Count == 0 {
		return nil, ErrNoActivity
	}

	topCategories, err := g.store.TopExpenseCategories(ctx, userID, from, to, topCategoryCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate top categories: %w", err)
	}

	summary := core.ReportSummary{
		Income:        core.Money{Cents: totals.IncomeCents},
		Expenses:      core.Money{Cents: totals.ExpenseCents},
		Balance:       core.Money{Cents: totals.IncomeCents - totals.ExpenseCents},
		SavingsRate:   savingsRate(totals.IncomeCents, totals.ExpenseCents),
		TopCategories: topCategories,
	}

	artifact := &core.ReportArtifact{
		Period:   schedule.FormatPeriod(from, to),
		Summary:  summary,
		Insights: buildInsights(summary),
	}

	slog.InfoContext(ctx, "Report generated",
		"user_id", userID,
		"period", artifact.Period,
		"transactions", totals.Count,
		"income_cents", totals.IncomeCents,
		"expense_cents", totals.ExpenseCents)

	return artifact, nil
}

// savingsRate is the percentage of income kept after expenses, clamped to
// [0, 100]. Zero income yields zero rather than a division blowup.
func savingsRate(incomeCents, expenseCents int64) float64 {
	if incomeCents <= 0 {
		return 0
	}
	rate := float64(incomeCents-expenseCents) / float64(incomeCents) * 100
	if rate < 0 {
		return 0
	}
	if rate > 100 {
		return 100
	}
	return rate
}

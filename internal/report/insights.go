package report

import (
	"fmt"

	"finbrief/internal/core"
)

// buildInsights derives short commentary from the summary figures. The rules
// are deterministic so the same window always yields the same report.
func buildInsights(s core.ReportSummary) []string {
	var insights []string

	switch {
	case s.Expenses.Cents > s.Income.Cents:
		over := core.Money{Cents: s.Expenses.Cents - s.Income.Cents}
		insights = append(insights,
			fmt.Sprintf("You spent %s more than you earned this period. Review your top categories to find room to cut back.", over))
	case s.SavingsRate >= 20:
		insights = append(insights,
			fmt.Sprintf("Great work: you kept %.0f%% of your income this period.", s.SavingsRate))
	case s.Income.Cents > 0:
		insights = append(insights,
			fmt.Sprintf("You kept %.0f%% of your income this period. A savings rate of 20%% is a common target.", s.SavingsRate))
	}

	if len(s.TopCategories) > 0 && s.Expenses.Cents > 0 {
		top := s.TopCategories[0]
		share := float64(top.Amount.Cents) / float64(s.Expenses.Cents) * 100
		if share >= 40 {
			insights = append(insights,
				fmt.Sprintf("%s accounted for %.0f%% of your spending.", top.Name, share))
		}
	}

	if s.Income.Cents == 0 {
		insights = append(insights,
			"No income was recorded this period; the figures below only cover spending.")
	}

	return insights
}

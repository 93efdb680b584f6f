package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"finbrief/internal/core"
	"finbrief/internal/storage"
)

type fakeStore struct {
	totals     storage.WindowTotals
	totalsErr  error
	categories []core.CategoryAmount
	catErr     error
}

func (f *fakeStore) WindowTotals(ctx context.Context, userID int64, from, to time.Time) (storage.WindowTotals, error) {
	return f.totals, f.totalsErr
}

func (f *fakeStore) TopExpenseCategories(ctx context.Context, userID int64, from, to time.Time, limit int) ([]core.CategoryAmount, error) {
	return f.categories, f.catErr
}

var (
	from = time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
)

func TestGenerateEmptyWindow(t *testing.T) {
	g := NewGenerator(&fakeStore{})
	_, err := g.Generate(context.Background(), 1, from, to)
	if !errors.Is(err, ErrNoActivity) {
		t.Fatalf("error = %v, want ErrNoActivity", err)
	}
}

func TestGenerateStoreError(t *testing.T) {
	boom := errors.New("db locked")
	g := NewGenerator(&fakeStore{totalsErr: boom})
	_, err := g.Generate(context.Background(), 1, from, to)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, ErrNoActivity) {
		t.Fatal("store error must not be reported as no activity")
	}
}

func TestGenerateSummary(t *testing.T) {
	store := &fakeStore{
		totals: storage.WindowTotals{
			IncomeCents:  500000,
			ExpenseCents: 350000,
			Count:        42,
		},
		categories: []core.CategoryAmount{
			{Name: "rent", Amount: core.Money{Cents: 150000}},
			{Name: "groceries", Amount: core.Money{Cents: 80000}},
		},
	}
	g := NewGenerator(store)

	artifact, err := g.Generate(context.Background(), 1, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if artifact.Period != "July 1 - 31, 2026" {
		t.Errorf("period = %q", artifact.Period)
	}
	if artifact.Summary.Income.Cents != 500000 {
		t.Errorf("income = %d", artifact.Summary.Income.Cents)
	}
	if artifact.Summary.Balance.Cents != 150000 {
		t.Errorf("balance = %d, want 150000", artifact.Summary.Balance.Cents)
	}
	if artifact.Summary.SavingsRate != 30 {
		t.Errorf("savings rate = %v, want 30", artifact.Summary.SavingsRate)
	}
	if len(artifact.Summary.TopCategories) != 2 || artifact.Summary.TopCategories[0].Name != "rent" {
		t.Errorf("top categories = %+v", artifact.Summary.TopCategories)
	}
	if len(artifact.Insights) == 0 {
		t.Error("expected at least one insight")
	}
}

func TestSavingsRate(t *testing.T) {
	tests := []struct {
		name    string
		income  int64
		expense int64
		want    float64
	}{
		{"normal", 100000, 70000, 30},
		{"zero income", 0, 50000, 0},
		{"overspend clamps to zero", 100000, 120000, 0},
		{"no expenses", 100000, 0, 100},
		{"negative income", -100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := savingsRate(tt.income, tt.expense); got != tt.want {
				t.Errorf("savingsRate(%d, %d) = %v, want %v", tt.income, tt.expense, got, tt.want)
			}
		})
	}
}

func TestBuildInsights(t *testing.T) {
	t.Run("overspending warns", func(t *testing.T) {
		s := core.ReportSummary{
			Income:   core.Money{Cents: 100000},
			Expenses: core.Money{Cents: 130000},
		}
		insights := buildInsights(s)
		if len(insights) == 0 {
			t.Fatal("expected an overspend insight")
		}
	})

	t.Run("dominant category is called out", func(t *testing.T) {
		s := core.ReportSummary{
			Income:      core.Money{Cents: 200000},
			Expenses:    core.Money{Cents: 100000},
			SavingsRate: 50,
			TopCategories: []core.CategoryAmount{
				{Name: "rent", Amount: core.Money{Cents: 60000}},
			},
		}
		insights := buildInsights(s)
		found := false
		for _, in := range insights {
			if in == "rent accounted for 60% of your spending." {
				found = true
			}
		}
		if !found {
			t.Errorf("missing dominant category insight, got %v", insights)
		}
	})

	t.Run("zero income notes spending-only figures", func(t *testing.T) {
		s := core.ReportSummary{Expenses: core.Money{Cents: 5000}}
		insights := buildInsights(s)
		if len(insights) == 0 {
			t.Fatal("expected a zero-income insight")
		}
	})
}

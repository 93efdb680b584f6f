package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finbrief/internal/core"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "finbrief.db"), 0)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *Repository) int64 {
	t.Helper()
	id, err := repo.CreateUser(context.Background(), "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func utc(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGetUser(t *testing.T) {
	repo := testRepo(t)
	id := seedUser(t, repo)

	user, err := repo.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Name != "alice" || user.Email != "alice@example.com" {
		t.Errorf("user = %+v", user)
	}
	if user.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}

	if _, err := repo.GetUser(context.Background(), 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user: error = %v, want ErrNotFound", err)
	}
}

func TestTransactionWindowQueries(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	insert := func(typ core.TransactionType, cents int64, category string, on time.Time) {
		t.Helper()
		_, err := repo.CreateTransaction(ctx, core.Transaction{
			UserID:      userID,
			Type:        typ,
			Amount:      core.Money{Cents: cents},
			Category:    category,
			Description: category + " item",
			OccurredOn:  on,
		})
		if err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	insert(core.TransactionIncome, 500000, "salary", utc(2026, time.July, 1))
	insert(core.TransactionExpense, 150000, "rent", utc(2026, time.July, 2))
	insert(core.TransactionExpense, 40000, "groceries", utc(2026, time.July, 15))
	insert(core.TransactionExpense, 30000, "groceries", utc(2026, time.July, 31))
	// Outside the window on both sides; 'to' is exclusive.
	insert(core.TransactionExpense, 99999, "june", utc(2026, time.June, 30))
	insert(core.TransactionExpense, 88888, "august", utc(2026, time.August, 1))

	from, to := utc(2026, time.July, 1), utc(2026, time.August, 1)

	totals, err := repo.WindowTotals(ctx, userID, from, to)
	if err != nil {
		t.Fatalf("WindowTotals: %v", err)
	}
	if totals.IncomeCents != 500000 {
		t.Errorf("income = %d, want 500000", totals.IncomeCents)
	}
	if totals.ExpenseCents != 220000 {
		t.Errorf("expenses = %d, want 220000", totals.ExpenseCents)
	}
	if totals.Count != 4 {
		t.Errorf("count = %d, want 4", totals.Count)
	}

	cats, err := repo.TopExpenseCategories(ctx, userID, from, to, 3)
	if err != nil {
		t.Fatalf("TopExpenseCategories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("categories = %+v, want 2", cats)
	}
	if cats[0].Name != "rent" || cats[0].Amount.Cents != 150000 {
		t.Errorf("top category = %+v, want rent/150000", cats[0])
	}
	if cats[1].Name != "groceries" || cats[1].Amount.Cents != 70000 {
		t.Errorf("second category = %+v, want groceries/70000", cats[1])
	}

	items, err := repo.ListTransactions(ctx, userID, from, to, 10)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("listed = %d, want 4", len(items))
	}
	// Newest first.
	if !items[0].OccurredOn.Equal(utc(2026, time.July, 31)) {
		t.Errorf("first item occurred on %v, want July 31", items[0].OccurredOn)
	}

	emptyTotals, err := repo.WindowTotals(ctx, userID, utc(2025, time.July, 1), utc(2025, time.August, 1))
	if err != nil {
		t.Fatalf("WindowTotals empty: %v", err)
	}
	if emptyTotals.Count != 0 {
		t.Errorf("empty window count = %d, want 0", emptyTotals.Count)
	}
}

func TestUpsertSubscription(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	sub := core.ReportSubscription{
		UserID:         userID,
		IsEnabled:      true,
		Frequency:      core.FrequencyWeekly,
		NextReportDate: utc(2026, time.August, 24),
	}
	if err := repo.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}

	got, err := repo.SubscriptionByUser(ctx, userID)
	if err != nil {
		t.Fatalf("SubscriptionByUser: %v", err)
	}
	if !got.IsEnabled || got.Frequency != core.FrequencyWeekly {
		t.Errorf("subscription = %+v", got)
	}
	if got.LastSentDate != nil {
		t.Errorf("fresh subscription has last_sent_date %v", got.LastSentDate)
	}

	// Simulate a runner commit, then update settings; last_sent_date survives.
	sent := utc(2026, time.August, 24)
	err = repo.CommitReportOutcome(ctx, ReportOutcome{
		SubscriptionID: got.ID,
		Record: core.ReportRecord{
			UserID:   userID,
			SentDate: sent,
			Period:   "August 17 - 23, 2026",
			Status:   core.ReportStatusSent,
		},
		LastSentDate:   &sent,
		NextReportDate: utc(2026, time.August, 31),
	})
	if err != nil {
		t.Fatalf("CommitReportOutcome: %v", err)
	}

	sub.Frequency = core.FrequencyDaily
	sub.NextReportDate = utc(2026, time.August, 25)
	if err := repo.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription update: %v", err)
	}

	got, err = repo.SubscriptionByUser(ctx, userID)
	if err != nil {
		t.Fatalf("SubscriptionByUser: %v", err)
	}
	if got.Frequency != core.FrequencyDaily {
		t.Errorf("frequency = %s, want daily", got.Frequency)
	}
	if got.LastSentDate == nil || !got.LastSentDate.Equal(sent) {
		t.Errorf("last_sent_date = %v, want %v preserved across upsert", got.LastSentDate, sent)
	}

	if _, err := repo.SubscriptionByUser(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing subscription: error = %v, want ErrNotFound", err)
	}
}

func TestDueSubscriptions(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	now := utc(2026, time.August, 19)

	mkSub := func(name string, enabled bool, next time.Time) int64 {
		t.Helper()
		uid, err := repo.CreateUser(ctx, name, name+"@example.com")
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
		err = repo.UpsertSubscription(ctx, core.ReportSubscription{
			UserID:         uid,
			IsEnabled:      enabled,
			Frequency:      core.FrequencyWeekly,
			NextReportDate: next,
		})
		if err != nil {
			t.Fatalf("UpsertSubscription: %v", err)
		}
		return uid
	}

	overdue := mkSub("overdue", true, now.AddDate(0, 0, -7))
	dueNow := mkSub("duenow", true, now)
	mkSub("future", true, now.AddDate(0, 0, 1))
	mkSub("disabled", false, now.AddDate(0, 0, -7))

	cursor, err := repo.DueSubscriptions(ctx, now)
	if err != nil {
		t.Fatalf("DueSubscriptions: %v", err)
	}
	defer cursor.Close()

	var userIDs []int64
	for {
		sub, ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("cursor.Next: %v", err)
		}
		if !ok {
			break
		}
		userIDs = append(userIDs, sub.UserID)
	}

	if len(userIDs) != 2 {
		t.Fatalf("due user IDs = %v, want 2 entries", userIDs)
	}
	// Oldest next_report_date first.
	if userIDs[0] != overdue || userIDs[1] != dueNow {
		t.Errorf("due order = %v, want [%d %d]", userIDs, overdue, dueNow)
	}
}

func TestCommitReportOutcomeAtomicity(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	next := utc(2026, time.August, 24)
	if err := repo.UpsertSubscription(ctx, core.ReportSubscription{
		UserID:         userID,
		IsEnabled:      true,
		Frequency:      core.FrequencyWeekly,
		NextReportDate: utc(2026, time.August, 17),
	}); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	sub, err := repo.SubscriptionByUser(ctx, userID)
	if err != nil {
		t.Fatalf("SubscriptionByUser: %v", err)
	}

	t.Run("unknown subscription persists nothing", func(t *testing.T) {
		err := repo.CommitReportOutcome(ctx, ReportOutcome{
			SubscriptionID: 9999,
			Record: core.ReportRecord{
				UserID:   userID,
				SentDate: utc(2026, time.August, 19),
				Period:   "August 10 - 16, 2026",
				Status:   core.ReportStatusSent,
			},
			NextReportDate: next,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
		records, err := repo.ListReportRecords(ctx, userID, 10, 0)
		if err != nil {
			t.Fatalf("ListReportRecords: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("record leaked from failed commit: %+v", records)
		}
	})

	t.Run("canceled context persists nothing", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := repo.CommitReportOutcome(canceled, ReportOutcome{
			SubscriptionID: sub.ID,
			Record: core.ReportRecord{
				UserID:   userID,
				SentDate: utc(2026, time.August, 19),
				Period:   "August 10 - 16, 2026",
				Status:   core.ReportStatusSent,
			},
			NextReportDate: next,
		})
		if err == nil {
			t.Fatal("expected error from canceled context")
		}
		records, _ := repo.ListReportRecords(ctx, userID, 10, 0)
		if len(records) != 0 {
			t.Errorf("record leaked from canceled commit: %+v", records)
		}
		got, _ := repo.SubscriptionByUser(ctx, userID)
		if !got.NextReportDate.Equal(utc(2026, time.August, 17)) {
			t.Errorf("next_report_date = %v, want unchanged", got.NextReportDate)
		}
	})

	t.Run("successful commit applies both writes", func(t *testing.T) {
		sent := utc(2026, time.August, 19)
		err := repo.CommitReportOutcome(ctx, ReportOutcome{
			SubscriptionID: sub.ID,
			Record: core.ReportRecord{
				UserID:   userID,
				SentDate: sent,
				Period:   "August 10 - 16, 2026",
				Status:   core.ReportStatusSent,
			},
			LastSentDate:   &sent,
			NextReportDate: next,
		})
		if err != nil {
			t.Fatalf("CommitReportOutcome: %v", err)
		}

		records, err := repo.ListReportRecords(ctx, userID, 10, 0)
		if err != nil {
			t.Fatalf("ListReportRecords: %v", err)
		}
		if len(records) != 1 || records[0].Status != core.ReportStatusSent {
			t.Fatalf("records = %+v, want one sent", records)
		}
		if records[0].Period != "August 10 - 16, 2026" {
			t.Errorf("period = %q", records[0].Period)
		}

		got, err := repo.SubscriptionByUser(ctx, userID)
		if err != nil {
			t.Fatalf("SubscriptionByUser: %v", err)
		}
		if !got.NextReportDate.Equal(next) {
			t.Errorf("next_report_date = %v, want %v", got.NextReportDate, next)
		}
		if got.LastSentDate == nil || !got.LastSentDate.Equal(sent) {
			t.Errorf("last_sent_date = %v, want %v", got.LastSentDate, sent)
		}
	})
}

func TestListReportRecordsPaging(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	if err := repo.UpsertSubscription(ctx, core.ReportSubscription{
		UserID:         userID,
		IsEnabled:      true,
		Frequency:      core.FrequencyDaily,
		NextReportDate: utc(2026, time.August, 1),
	}); err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	sub, _ := repo.SubscriptionByUser(ctx, userID)

	for d := 1; d <= 5; d++ {
		err := repo.CommitReportOutcome(ctx, ReportOutcome{
			SubscriptionID: sub.ID,
			Record: core.ReportRecord{
				UserID:   userID,
				SentDate: utc(2026, time.August, d),
				Period:   "day " + string(rune('0'+d)),
				Status:   core.ReportStatusNoActivity,
			},
			NextReportDate: utc(2026, time.August, d+1),
		})
		if err != nil {
			t.Fatalf("CommitReportOutcome day %d: %v", d, err)
		}
	}

	page, err := repo.ListReportRecords(ctx, userID, 2, 0)
	if err != nil {
		t.Fatalf("ListReportRecords: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].SentDate.Equal(utc(2026, time.August, 5)) {
		t.Errorf("newest first: got %v", page[0].SentDate)
	}

	rest, err := repo.ListReportRecords(ctx, userID, 10, 2)
	if err != nil {
		t.Fatalf("ListReportRecords offset: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("offset page size = %d, want 3", len(rest))
	}
}

func TestRecurringMaterialization(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	userID := seedUser(t, repo)

	due := utc(2026, time.August, 19)
	tplID, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:            userID,
		Type:              core.TransactionExpense,
		Amount:            core.Money{Cents: 1299},
		Category:          "subscriptions",
		Description:       "music streaming",
		OccurredOn:        utc(2026, time.July, 19),
		IsRecurring:       true,
		RecurringInterval: core.IntervalMonthly,
		NextOccurrence:    due,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	// A template not yet due.
	_, err = repo.CreateTransaction(ctx, core.Transaction{
		UserID:            userID,
		Type:              core.TransactionExpense,
		Amount:            core.Money{Cents: 4500},
		Category:          "utilities",
		Description:       "internet",
		OccurredOn:        utc(2026, time.July, 25),
		IsRecurring:       true,
		RecurringInterval: core.IntervalMonthly,
		NextOccurrence:    utc(2026, time.August, 25),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	templates, err := repo.DueRecurringTransactions(ctx, due)
	if err != nil {
		t.Fatalf("DueRecurringTransactions: %v", err)
	}
	if len(templates) != 1 || templates[0].ID != tplID {
		t.Fatalf("due templates = %+v, want only %d", templates, tplID)
	}

	next := utc(2026, time.September, 19)
	newID, err := repo.MaterializeRecurring(ctx, templates[0], due, next)
	if err != nil {
		t.Fatalf("MaterializeRecurring: %v", err)
	}
	if newID == tplID {
		t.Error("materialized transaction must be a new row")
	}

	// Template advanced; nothing due anymore at the same instant.
	templates, err = repo.DueRecurringTransactions(ctx, due)
	if err != nil {
		t.Fatalf("DueRecurringTransactions: %v", err)
	}
	if len(templates) != 0 {
		t.Errorf("templates still due after materialization: %+v", templates)
	}

	// The concrete transaction lands in the window as a one-off.
	items, err := repo.ListTransactions(ctx, userID, due, due.AddDate(0, 0, 1), 10)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("materialized items = %+v, want 1", items)
	}
	if items[0].IsRecurring {
		t.Error("materialized transaction must not itself be recurring")
	}
	if items[0].Amount.Cents != 1299 || items[0].Category != "subscriptions" {
		t.Errorf("materialized transaction = %+v", items[0])
	}
}

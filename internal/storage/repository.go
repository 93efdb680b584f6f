// Package storage persists users, transactions, report subscriptions and
// report records in SQLite. All timestamps are normalized to UTC before they
// hit the database so lexical comparison matches chronological order.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finbrief/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

const defaultCommitTimeout = 10 * time.Second

type Repository struct {
	db            *sql.DB
	commitTimeout time.Duration
}

// NewRepository opens (creating if necessary) the SQLite database at dbPath
// and runs pending migrations. commitTimeout bounds the per-subscription
// outcome transaction; zero selects the default of 10s.
func NewRepository(dbPath string, commitTimeout time.Duration) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if commitTimeout <= 0 {
		commitTimeout = defaultCommitTimeout
	}

	return &Repository{db: db, commitTimeout: commitTimeout}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser inserts a user and returns its id. User accounts normally come
// from the auth system; this exists for seeding and tests.
func (r *Repository) CreateUser(ctx context.Context, name, email string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email) VALUES (?, ?)`, name, email)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// CreateTransaction inserts a transaction (one-off or recurring template)
// and returns its id.
func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (user_id, type, amount_cents, category, description, occurred_on,
		  is_recurring, recurring_interval, next_occurrence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, string(t.Type), t.Amount.Cents, t.Category, t.Description,
		t.OccurredOn.UTC(), t.IsRecurring, nullString(string(t.RecurringInterval)),
		nullTime(t.NextOccurrence))
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"user_id", t.UserID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"category", t.Category)

	return id, nil
}

// ListTransactions returns transactions for a user in [from, to), newest
// first, capped at limit.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, from, to time.Time, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount_cents, category, description, occurred_on,
		        is_recurring, COALESCE(recurring_interval, ''), next_occurrence
		 FROM transactions
		 WHERE user_id = ? AND occurred_on >= ? AND occurred_on < ?
		 ORDER BY occurred_on DESC, id DESC
		 LIMIT ?`,
		userID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// WindowTotals holds aggregate figures for one reporting window.
type WindowTotals struct {
	IncomeCents  int64
	ExpenseCents int64
	Count        int
}

// WindowTotals sums income and expenses for a user in [from, to).
func (r *Repository) WindowTotals(ctx context.Context, userID int64, from, to time.Time) (WindowTotals, error) {
	var t WindowTotals
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
		   COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0),
		   COUNT(*)
		 FROM transactions
		 WHERE user_id = ? AND occurred_on >= ? AND occurred_on < ?`,
		userID, from.UTC(), to.UTC()).
		Scan(&t.IncomeCents, &t.ExpenseCents, &t.Count)
	if err != nil {
		return WindowTotals{}, fmt.Errorf("window totals: %w", err)
	}
	return t, nil
}

// TopExpenseCategories returns expense totals per category in [from, to),
// largest first, capped at limit.
func (r *Repository) TopExpenseCategories(ctx context.Context, userID int64, from, to time.Time, limit int) ([]core.CategoryAmount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents) AS total
		 FROM transactions
		 WHERE user_id = ? AND type = 'expense' AND occurred_on >= ? AND occurred_on < ?
		 GROUP BY category
		 ORDER BY total DESC
		 LIMIT ?`,
		userID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("top expense categories: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryAmount
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// SubscriptionCursor lazily iterates a due-subscription result set. The due
// set may be large; callers stream it instead of materializing it.
type SubscriptionCursor struct {
	rows *sql.Rows
}

// Next returns the next due subscription. ok is false when the cursor is
// exhausted; a non-nil error means the enumeration itself failed.
func (c *SubscriptionCursor) Next() (core.ReportSubscription, bool, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return core.ReportSubscription{}, false, fmt.Errorf("advance subscription cursor: %w", err)
		}
		return core.ReportSubscription{}, false, nil
	}
	sub, err := scanSubscription(c.rows)
	if err != nil {
		return core.ReportSubscription{}, false, fmt.Errorf("scan subscription: %w", err)
	}
	return sub, true, nil
}

func (c *SubscriptionCursor) Close() error {
	return c.rows.Close()
}

// DueSubscriptions opens a cursor over enabled subscriptions whose
// next_report_date is at or before now, ordered oldest first.
func (r *Repository) DueSubscriptions(ctx context.Context, now time.Time) (*SubscriptionCursor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, is_enabled, frequency, last_sent_date, next_report_date
		 FROM report_subscriptions
		 WHERE is_enabled = 1 AND next_report_date <= ?
		 ORDER BY next_report_date`,
		now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select due subscriptions: %w", err)
	}
	return &SubscriptionCursor{rows: rows}, nil
}

// SubscriptionByUser returns the user's report subscription, if any.
func (r *Repository) SubscriptionByUser(ctx context.Context, userID int64) (core.ReportSubscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, is_enabled, frequency, last_sent_date, next_report_date
		 FROM report_subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ReportSubscription{}, ErrNotFound
	}
	if err != nil {
		return core.ReportSubscription{}, fmt.Errorf("subscription by user %d: %w", userID, err)
	}
	return sub, nil
}

// UpsertSubscription creates or replaces the user's subscription settings.
// last_sent_date is owned by the report runner and left untouched on update.
func (r *Repository) UpsertSubscription(ctx context.Context, sub core.ReportSubscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_subscriptions (user_id, is_enabled, frequency, next_report_date, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   is_enabled = excluded.is_enabled,
		   frequency = excluded.frequency,
		   next_report_date = excluded.next_report_date,
		   updated_at = excluded.updated_at`,
		sub.UserID, sub.IsEnabled, string(sub.Frequency),
		sub.NextReportDate.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// ReportOutcome is the atomic result of processing one subscription: exactly
// one record appended and the subscription rescheduled, together or not at all.
type ReportOutcome struct {
	SubscriptionID int64
	Record         core.ReportRecord
	LastSentDate   *time.Time
	NextReportDate time.Time
}

// CommitReportOutcome applies an outcome in a single transaction bounded by
// the commit timeout. On any error, including timeout, neither write is
// persisted.
func (r *Repository) CommitReportOutcome(ctx context.Context, o ReportOutcome) error {
	ctx, cancel := context.WithTimeout(ctx, r.commitTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO report_records (user_id, sent_date, period, status)
		 VALUES (?, ?, ?, ?)`,
		o.Record.UserID, o.Record.SentDate.UTC(), o.Record.Period, string(o.Record.Status)); err != nil {
		return fmt.Errorf("insert report record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE report_subscriptions
		 SET last_sent_date = ?, next_report_date = ?, updated_at = ?
		 WHERE id = ?`,
		nullTimePtr(o.LastSentDate), o.NextReportDate.UTC(), time.Now().UTC(), o.SubscriptionID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update subscription %d: %w", o.SubscriptionID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome: %w", err)
	}
	return nil
}

// ListReportRecords returns a user's report history, newest first.
func (r *Repository) ListReportRecords(ctx context.Context, userID int64, limit, offset int) ([]core.ReportRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, sent_date, period, status
		 FROM report_records
		 WHERE user_id = ?
		 ORDER BY sent_date DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list report records: %w", err)
	}
	defer rows.Close()

	var out []core.ReportRecord
	for rows.Next() {
		var rec core.ReportRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SentDate, &rec.Period, &status); err != nil {
			return nil, fmt.Errorf("scan report record: %w", err)
		}
		rec.Status = core.ReportStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DueRecurringTransactions returns recurring templates whose next occurrence
// is at or before now.
func (r *Repository) DueRecurringTransactions(ctx context.Context, now time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount_cents, category, description, occurred_on,
		        is_recurring, COALESCE(recurring_interval, ''), next_occurrence
		 FROM transactions
		 WHERE is_recurring = 1 AND next_occurrence IS NOT NULL AND next_occurrence <= ?
		 ORDER BY next_occurrence`,
		now.UTC())
	if err != nil {
		return nil, fmt.Errorf("select due recurring transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MaterializeRecurring inserts the concrete transaction produced by a
// recurring template and advances the template's next occurrence, atomically.
func (r *Repository) MaterializeRecurring(ctx context.Context, tpl core.Transaction, occurredOn, next time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin materialize transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount_cents, category, description, occurred_on)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tpl.UserID, string(tpl.Type), tpl.Amount.Cents, tpl.Category, tpl.Description, occurredOn.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert materialized transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET next_occurrence = ? WHERE id = ?`,
		next.UTC(), tpl.ID); err != nil {
		return 0, fmt.Errorf("advance recurring template %d: %w", tpl.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit materialize: %w", err)
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(s scanner) (core.ReportSubscription, error) {
	var (
		sub      core.ReportSubscription
		freq     string
		lastSent sql.NullTime
	)
	if err := s.Scan(&sub.ID, &sub.UserID, &sub.IsEnabled, &freq, &lastSent, &sub.NextReportDate); err != nil {
		return core.ReportSubscription{}, err
	}
	sub.Frequency = core.ParseFrequency(freq)
	if lastSent.Valid {
		t := lastSent.Time
		sub.LastSentDate = &t
	}
	return sub, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t        core.Transaction
		typ      string
		interval string
		next     sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.UserID, &typ, &t.Amount.Cents, &t.Category,
		&t.Description, &t.OccurredOn, &t.IsRecurring, &interval, &next); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.RecurringInterval = core.RecurringInterval(interval)
	if next.Valid {
		t.NextOccurrence = next.Time
	}
	return t, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Package services orchestrates the report pipeline: the report job runner
// and the recurring-transaction processor, both driven by the worker binary.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finbrief/internal/amqp"
	"finbrief/internal/core"
	"finbrief/internal/mailer"
	"finbrief/internal/report"
	"finbrief/internal/schedule"
	"finbrief/internal/storage"
)

// SubscriptionCursor streams due subscriptions one at a time so the due set
// is never materialized in memory.
type SubscriptionCursor interface {
	Next() (core.ReportSubscription, bool, error)
	Close() error
}

// Store is the persistence surface the report job runner needs.
type Store interface {
	DueSubscriptions(ctx context.Context, now time.Time) (SubscriptionCursor, error)
	GetUser(ctx context.Context, id int64) (core.User, error)
	CommitReportOutcome(ctx context.Context, o storage.ReportOutcome) error
}

// Generator produces a report artifact for a user and window, or
// report.ErrNoActivity for an empty window.
type Generator interface {
	Generate(ctx context.Context, userID int64, from, to time.Time) (*core.ReportArtifact, error)
}

// OutcomePublisher emits committed outcomes for monitoring. May be absent.
type OutcomePublisher interface {
	PublishReportOutcome(ctx context.Context, msg *amqp.ReportOutcomeMessage) error
}

// CycleResult is the stable contract returned to whatever schedules the job.
type CycleResult struct {
	Success        bool
	ProcessedCount int
	FailedCount    int
	Err            error
}

// ReportJobRunner runs one full processing cycle over all due subscriptions.
// It keeps no state between invocations; everything it needs is read from
// the store at cycle time, which is what makes re-running a cycle idempotent.
type ReportJobRunner struct {
	store     Store
	generator Generator
	mailer    mailer.Mailer
	publisher OutcomePublisher
}

func NewReportJobRunner(store Store, generator Generator, m mailer.Mailer, publisher OutcomePublisher) *ReportJobRunner {
	return &ReportJobRunner{
		store:     store,
		generator: generator,
		mailer:    m,
		publisher: publisher,
	}
}

// NewStore adapts the SQLite repository to the runner's Store interface.
func NewStore(repo *storage.Repository) Store {
	return repoStore{repo}
}

type repoStore struct {
	repo *storage.Repository
}

func (s repoStore) DueSubscriptions(ctx context.Context, now time.Time) (SubscriptionCursor, error) {
	return s.repo.DueSubscriptions(ctx, now)
}

func (s repoStore) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s repoStore) CommitReportOutcome(ctx context.Context, o storage.ReportOutcome) error {
	return s.repo.CommitReportOutcome(ctx, o)
}

// RunCycle processes every subscription due at now. Individual subscription
// failures are contained; only a failure enumerating the due set aborts the
// cycle and surfaces in CycleResult.Err.
func (r *ReportJobRunner) RunCycle(ctx context.Context, now time.Time) CycleResult {
	cycleID := uuid.NewString()
	slog.InfoContext(ctx, "Report cycle started",
		"cycle_id", cycleID,
		"now", now.Format(time.RFC3339))

	cursor, err := r.store.DueSubscriptions(ctx, now)
	if err != nil {
		return CycleResult{Err: fmt.Errorf("enumerate due subscriptions: %w", err)}
	}
	defer cursor.Close()

	var processed, failed int
	for {
		sub, ok, err := cursor.Next()
		if err != nil {
			return CycleResult{
				ProcessedCount: processed,
				FailedCount:    failed,
				Err:            fmt.Errorf("enumerate due subscriptions: %w", err),
			}
		}
		if !ok {
			break
		}

		switch r.processSubscription(ctx, cycleID, sub, now) {
		case subProcessed:
			processed++
		case subFailed:
			failed++
		case subSkipped:
		}
	}

	slog.InfoContext(ctx, "Report cycle complete",
		"cycle_id", cycleID,
		"processed", processed,
		"failed", failed)

	return CycleResult{Success: true, ProcessedCount: processed, FailedCount: failed}
}

type subResult int

const (
	subProcessed subResult = iota
	subFailed
	subSkipped
)

// stage is the per-subscription state machine. Generation and delivery
// failures are captured in the outcome status and still reach the commit
// stage; only commit failures leave the subscription due.
type stage int

const (
	stageGenerating stage = iota
	stageDelivering
	stageCommitting
	stageDone
)

func (r *ReportJobRunner) processSubscription(ctx context.Context, cycleID string, sub core.ReportSubscription, now time.Time) subResult {
	user, err := r.store.GetUser(ctx, sub.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		// Dangling reference: a data-integrity anomaly, not a processing
		// failure. No record, no reschedule; the next cycle sees it again.
		slog.WarnContext(ctx, "Skipping subscription with missing user",
			"cycle_id", cycleID,
			"subscription_id", sub.ID,
			"user_id", sub.UserID)
		return subSkipped
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve subscription user",
			"cycle_id", cycleID,
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"error", err)
		return subFailed
	}

	from, to := schedule.ReportingWindow(now, sub.Frequency)

	var (
		artifact *core.ReportArtifact
		status   core.ReportStatus
		period   = schedule.FormatPeriod(from, to)
	)

	for st := stageGenerating; st != stageDone; {
		switch st {
		case stageGenerating:
			a, err := r.generator.Generate(ctx, sub.UserID, from, to)
			switch {
			case errors.Is(err, report.ErrNoActivity):
				status = core.ReportStatusNoActivity
				st = stageCommitting
			case err != nil:
				slog.ErrorContext(ctx, "Report generation failed",
					"cycle_id", cycleID,
					"subscription_id", sub.ID,
					"user_id", sub.UserID,
					"error", err)
				status = core.ReportStatusFailed
				st = stageCommitting
			default:
				artifact = a
				period = a.Period
				st = stageDelivering
			}

		case stageDelivering:
			// At most one delivery attempt per cycle; a failure downgrades
			// the outcome but the generated artifact still counts.
			if err := r.mailer.SendReport(ctx, mailer.NewReportEmail(user, sub.Frequency, artifact)); err != nil {
				slog.ErrorContext(ctx, "Report delivery failed",
					"cycle_id", cycleID,
					"subscription_id", sub.ID,
					"email", user.Email,
					"error", err)
				status = core.ReportStatusFailed
			} else {
				status = core.ReportStatusSent
			}
			st = stageCommitting

		case stageCommitting:
			outcome := storage.ReportOutcome{
				SubscriptionID: sub.ID,
				Record: core.ReportRecord{
					UserID:   sub.UserID,
					SentDate: now,
					Period:   period,
					Status:   status,
				},
				// Always advance: a failing subscription retries on the next
				// period boundary, not on every tick.
				NextReportDate: schedule.NextRunDate(now, sub.Frequency),
			}
			if status == core.ReportStatusSent {
				sent := now
				outcome.LastSentDate = &sent
			}

			if err := r.store.CommitReportOutcome(ctx, outcome); err != nil {
				// Nothing was persisted; next_report_date is unchanged and
				// the subscription stays due for the next invocation.
				slog.ErrorContext(ctx, "Report outcome commit failed",
					"cycle_id", cycleID,
					"subscription_id", sub.ID,
					"status", status,
					"error", err)
				return subFailed
			}
			st = stageDone
		}
	}

	slog.InfoContext(ctx, "Subscription processed",
		"cycle_id", cycleID,
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"status", status,
		"period", period)

	r.publishOutcome(ctx, cycleID, sub, status, period)
	return subProcessed
}

// publishOutcome emits a monitoring event; failures are logged and dropped
// since the outcome is already durably committed.
func (r *ReportJobRunner) publishOutcome(ctx context.Context, cycleID string, sub core.ReportSubscription, status core.ReportStatus, period string) {
	if r.publisher == nil {
		return
	}
	msg := amqp.NewReportOutcomeMessage(cycleID, sub.ID, sub.UserID, status, period)
	if err := r.publisher.PublishReportOutcome(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish report outcome",
			"cycle_id", cycleID,
			"subscription_id", sub.ID,
			"error", err)
	}
}

// Package scheduler builds ranked review sessions from the mastery and interval models
// and runs the daily due-card reminder job.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/example/cardsched/internal/metrics"
	"github.com/example/cardsched/pkg/models"
)

// DefaultReminderHour is the local hour at which reminders go out
const DefaultReminderHour = 9

// Notifier interface for sending notifications
type Notifier interface {
	SendReminder(learner models.Learner, stats Stats) error
}

// LearnerSource lists learners that can receive reminders.
type LearnerSource interface {
	ReminderRecipients(ctx context.Context) ([]models.Learner, error)
}

// StatsSource computes per-learner due/new counts.
type StatsSource interface {
	SessionStats(ctx context.Context, learnerID string) (Stats, error)
}

// Reminder manages the scheduled reminder job
type Reminder struct {
	cron     *gocron.Scheduler
	learners LearnerSource
	stats    StatsSource
	notifier Notifier
	hour     int
	logger   *zap.Logger
}

// NewReminder creates a reminder job firing daily at hour in loc.
func NewReminder(learners LearnerSource, stats StatsSource, notifier Notifier, hour int, loc *time.Location, logger *zap.Logger) *Reminder {
	if loc == nil {
		loc = time.UTC
	}
	if hour < 0 || hour > 23 {
		hour = DefaultReminderHour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reminder{
		cron:     gocron.NewScheduler(loc),
		learners: learners,
		stats:    stats,
		notifier: notifier,
		hour:     hour,
		logger:   logger,
	}
}

// Start begins running the daily job
func (r *Reminder) Start(ctx context.Context) error {
	_, err := r.cron.Every(1).Day().At(fmt.Sprintf("%02d:00", r.hour)).Do(func() {
		sent, err := r.CheckAndSend(ctx)
		if err != nil {
			r.logger.Error("reminder run failed", zap.Error(err))
			return
		}
		r.logger.Info("reminder run finished", zap.Int("sent", sent))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	r.cron.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (r *Reminder) Stop() {
	r.cron.Stop()
}

// CheckAndSend notifies every learner who has due cards and returns how many were notified.
func (r *Reminder) CheckAndSend(ctx context.Context) (int, error) {
	learners, err := r.learners.ReminderRecipients(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list learners: %w", err)
	}

	sent := 0
	for _, l := range learners {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		ok, err := r.RunManualCheck(ctx, l)
		if err != nil {
			r.logger.Warn("failed to remind learner", zap.String("learner", l.ID), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// RunManualCheck reminds a single learner if any cards are due; it reports whether a reminder was sent.
func (r *Reminder) RunManualCheck(ctx context.Context, l models.Learner) (bool, error) {
	stats, err := r.stats.SessionStats(ctx, l.ID)
	if err != nil {
		return false, err
	}
	if stats.DueCount == 0 {
		return false, nil
	}
	if err := r.notifier.SendReminder(l, stats); err != nil {
		return false, err
	}
	metrics.RemindersSent.Inc()
	return true, nil
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"practicecal/internal/agenda"
	"practicecal/internal/ics"
	appLog "practicecal/internal/log"
	"practicecal/internal/reminder"
)

const jobTimeout = 2 * time.Minute

// Config wires the periodic jobs.
type Config struct {
	// RefreshSpec schedules holiday feed refreshes (5-field cron).
	RefreshSpec string
	// ReminderSpec schedules reminder scans. Ignored when Dispatcher is nil.
	ReminderSpec string

	Feeds      []ics.Feed
	Fetcher    *ics.Fetcher
	Planner    *agenda.Planner
	Dispatcher *reminder.Dispatcher

	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner owns the cron scheduler. Jobs run in the planner's location and a
// run still in progress makes the next tick of the same job a no-op.
type Runner struct {
	cron       *cron.Cron
	feeds      []ics.Feed
	fetcher    *ics.Fetcher
	planner    *agenda.Planner
	dispatcher *reminder.Dispatcher
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Planner == nil {
		return nil, errors.New("jobs: planner is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("jobs: fetcher is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cronLogger{}
	r := &Runner{
		cron: cron.New(
			cron.WithLocation(cfg.Planner.Location()),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		feeds:      cfg.Feeds,
		fetcher:    cfg.Fetcher,
		planner:    cfg.Planner,
		dispatcher: cfg.Dispatcher,
		now:        cfg.Now,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	if _, err := r.cron.AddFunc(cfg.RefreshSpec, r.refreshJob); err != nil {
		return nil, fmt.Errorf("jobs: refresh schedule %q: %w", cfg.RefreshSpec, err)
	}
	if cfg.Dispatcher != nil {
		if _, err := r.cron.AddFunc(cfg.ReminderSpec, r.reminderJob); err != nil {
			return nil, fmt.Errorf("jobs: reminder schedule %q: %w", cfg.ReminderSpec, err)
		}
	}
	return r, nil
}

// Start refreshes holidays once, then starts the scheduler.
func (r *Runner) Start(ctx context.Context) {
	if _, err := r.RefreshHolidays(ctx); err != nil {
		appLog.Error("initial holiday refresh failed", err)
	}
	r.cron.Start()
	appLog.Info("jobs started", "entries", len(r.cron.Entries()))
}

// Stop stops scheduling and cancels running jobs, waiting up to ctx for them
// to return.
func (r *Runner) Stop(ctx context.Context) {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("jobs did not stop in time")
	}
}

// RefreshHolidays fetches every feed and replaces the planner's holiday
// dates. When no feed can be fetched and parsed, the previous holidays are
// kept.
func (r *Runner) RefreshHolidays(ctx context.Context) (int, error) {
	if len(r.feeds) == 0 {
		r.planner.SetHolidays(nil)
		return 0, nil
	}

	results, errs := r.fetcher.FetchAll(ctx, r.feeds)
	if len(results) == 0 {
		return len(r.planner.Holidays()), fmt.Errorf("jobs: no holiday feed available: %w", errors.Join(errs...))
	}

	var all []ics.Holiday
	parsed := 0
	for _, res := range results {
		hs, err := ics.ParseHolidays(res.Feed, res.Body, r.planner.Location())
		if err != nil {
			appLog.Error("holiday feed parse failed", err, "feed", res.Feed.ID)
			errs = append(errs, fmt.Errorf("feed %s: %w", res.Feed.ID, err))
			continue
		}
		all = append(all, hs...)
		parsed++
	}
	if parsed == 0 {
		return len(r.planner.Holidays()), fmt.Errorf("jobs: no holiday feed could be parsed: %w", errors.Join(errs...))
	}

	dates := ics.HolidayDates(all)
	r.planner.SetHolidays(dates)
	appLog.Info("holidays refreshed", "feeds", len(results), "dates", len(dates), "errors", len(errs))
	return len(dates), errors.Join(errs...)
}

// ScanReminders runs one reminder scan at the runner's clock.
func (r *Runner) ScanReminders(ctx context.Context) (int, error) {
	if r.dispatcher == nil {
		return 0, nil
	}
	return r.dispatcher.Scan(ctx, r.now())
}

func (r *Runner) refreshJob() {
	ctx, cancel := context.WithTimeout(r.ctx, jobTimeout)
	defer cancel()
	if _, err := r.RefreshHolidays(ctx); err != nil {
		appLog.Error("holiday refresh failed", err)
	}
}

func (r *Runner) reminderJob() {
	ctx, cancel := context.WithTimeout(r.ctx, jobTimeout)
	defer cancel()
	n, err := r.ScanReminders(ctx)
	if err != nil {
		appLog.Error("reminder scan failed", err)
		return
	}
	if n > 0 {
		appLog.Info("reminders sent", "count", n)
	}
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

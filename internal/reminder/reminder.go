package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"practicecal/internal/agenda"
	appLog "practicecal/internal/log"
	"practicecal/internal/model"
	"practicecal/internal/schedule"
)

// Reminder is one notice about an upcoming occurrence.
type Reminder struct {
	ID         string
	Occurrence model.Occurrence
	Lead       time.Duration
	SentAt     time.Time
}

// Notifier delivers reminders (email, SMS, a log line).
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the application log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, r Reminder) error {
	o := r.Occurrence
	appLog.Info("reminder",
		"id", r.ID,
		"session", o.SessionID,
		"summary", o.Summary,
		"date", o.DateKey(),
		"weekday", schedule.WeekdayLabel(o.Start),
		"start", o.Start.Format("15:04"),
		"location", o.Location,
	)
	return nil
}

// Dispatcher sends one reminder per occurrence starting within Lead of a
// scan. Delivered keys are remembered until the occurrence has started.
type Dispatcher struct {
	planner  *agenda.Planner
	sessions func() []model.Session
	notifier Notifier
	lead     time.Duration

	mu   sync.Mutex
	sent map[string]time.Time // InstanceKey -> occurrence start
}

func NewDispatcher(planner *agenda.Planner, sessions func() []model.Session, notifier Notifier, lead time.Duration) (*Dispatcher, error) {
	if planner == nil || sessions == nil {
		return nil, errors.New("reminder: planner and sessions are required")
	}
	if lead <= 0 {
		return nil, errors.New("reminder: lead must be positive")
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Dispatcher{
		planner:  planner,
		sessions: sessions,
		notifier: notifier,
		lead:     lead,
		sent:     make(map[string]time.Time),
	}, nil
}

// Scan notifies every not-yet-reminded occurrence starting in [now, now+lead)
// and returns how many were sent. A failed delivery is retried on the next
// scan.
func (d *Dispatcher) Scan(ctx context.Context, now time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, start := range d.sent {
		if start.Before(now) {
			delete(d.sent, key)
		}
	}

	due, err := d.planner.Between(ctx, d.sessions(), now, now.Add(d.lead))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, o := range due {
		if _, done := d.sent[o.InstanceKey]; done {
			continue
		}
		r := Reminder{
			ID:         uuid.NewString(),
			Occurrence: o,
			Lead:       o.Start.Sub(now),
			SentAt:     now,
		}
		if err := d.notifier.Notify(ctx, r); err != nil {
			appLog.Error("reminder delivery failed", err, "session", o.SessionID, "occurrence", o.InstanceKey)
			continue
		}
		d.sent[o.InstanceKey] = o.Start
		sent++
	}
	return sent, nil
}

// Pending is the number of remembered deliveries.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

package agenda

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	appLog "practicecal/internal/log"
	"practicecal/internal/model"
	"practicecal/internal/schedule"
)

const defaultConcurrency = 8

// Config configures a Planner.
type Config struct {
	// Location is the reference timezone of every session.
	Location *time.Location

	// MaxOccurrencesPerSession is passed to the expander (0 = its default).
	MaxOccurrencesPerSession int

	// Concurrency bounds how many sessions are expanded at once.
	Concurrency int
}

// Planner expands many sessions at once and answers the agenda questions the
// UI and jobs ask (today, upcoming, a week). A session that cannot be
// expanded is logged and left out; it never fails the whole list.
type Planner struct {
	loc         *time.Location
	maxPer      int
	concurrency int

	mu         sync.RWMutex
	exclusions map[string][]string // session id -> YYYY-MM-DD
	holidays   []string
}

// Day is one column of a week view.
type Day struct {
	Date        time.Time
	Key         string
	Label       string
	Occurrences []model.Occurrence
}

func NewPlanner(cfg Config) (*Planner, error) {
	if cfg.Location == nil {
		return nil, errors.New("agenda: location is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Planner{
		loc:         cfg.Location,
		maxPer:      cfg.MaxOccurrencesPerSession,
		concurrency: cfg.Concurrency,
		exclusions:  make(map[string][]string),
	}, nil
}

func (p *Planner) Location() *time.Location { return p.loc }

// SetExclusions replaces the per-session exclusion rows.
func (p *Planner) SetExclusions(bySession map[string][]string) {
	cp := make(map[string][]string, len(bySession))
	for id, dates := range bySession {
		cp[id] = slices.Clone(dates)
	}
	p.mu.Lock()
	p.exclusions = cp
	p.mu.Unlock()
}

// SetHolidays replaces the dates suppressed for every session.
func (p *Planner) SetHolidays(dates []string) {
	cp := slices.Clone(dates)
	p.mu.Lock()
	p.holidays = cp
	p.mu.Unlock()
}

func (p *Planner) Holidays() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.holidays)
}

// exclusionsFor merges the session's rows with the holiday dates.
func (p *Planner) exclusionsFor(sessionID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.exclusions[sessionID])+len(p.holidays))
	out = append(out, p.exclusions[sessionID]...)
	return append(out, p.holidays...)
}

// Expand returns every occurrence of the sessions sorted by start time, with
// session metadata filled in. Only context cancellation is an error.
func (p *Planner) Expand(ctx context.Context, sessions []model.Session) ([]model.Occurrence, error) {
	return p.expandWindow(ctx, sessions, time.Time{}, time.Time{})
}

// expandWindow expands only the dates from from's day through to's day (zero
// leaves a side open), so the per-session cap applies to the queried range
// and not to a session's first years.
func (p *Planner) expandWindow(ctx context.Context, sessions []model.Session, from, to time.Time) ([]model.Occurrence, error) {
	perSession := make([][]model.Occurrence, len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, s := range sessions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perSession[i] = p.expandSession(s, from, to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, occ := range perSession {
		total += len(occ)
	}
	out := make([]model.Occurrence, 0, total)
	for _, occ := range perSession {
		out = append(out, occ...)
	}
	sortOccurrences(out)
	return out, nil
}

func (p *Planner) expandSession(s model.Session, from, to time.Time) []model.Occurrence {
	res, err := schedule.ExpandOccurrences(s.SessionDescriptor, p.exclusionsFor(s.ID), schedule.ExpandConfig{
		Location:       p.loc,
		MaxOccurrences: p.maxPer,
		From:           from,
		To:             to,
	})
	if err != nil {
		appLog.Error("agenda: skipping session", err, "session", s.ID, "name", s.Name)
		return nil
	}
	for _, field := range res.Degraded {
		appLog.Warn("agenda: session field unparseable, using fallback",
			"session", s.ID,
			"field", field,
			"start_time", s.StartTime,
			"end_time", s.EndTime,
			"end_date", s.EndDate,
		)
	}
	if res.Truncated {
		appLog.Warn("agenda: session expansion truncated", "session", s.ID, "count", len(res.Occurrences))
	}

	summary := s.Name
	if summary == "" {
		summary = s.ID
	}
	for i := range res.Occurrences {
		o := &res.Occurrences[i]
		o.SessionID = s.ID
		o.Summary = summary
		o.Location = s.Location
		o.InstanceKey = s.ID + "@" + o.DateKey()
	}
	return res.Occurrences
}

// Between returns occurrences starting in [from, to).
func (p *Planner) Between(ctx context.Context, sessions []model.Session, from, to time.Time) ([]model.Occurrence, error) {
	if !from.Before(to) {
		return []model.Occurrence{}, nil
	}
	all, err := p.expandWindow(ctx, sessions, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.Occurrence, 0)
	for _, o := range all {
		if !o.Start.Before(from) && o.Start.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Today returns the occurrences on now's civil date in the reference zone.
func (p *Planner) Today(ctx context.Context, sessions []model.Session, now time.Time) ([]model.Occurrence, error) {
	all, err := p.expandWindow(ctx, sessions, now, now)
	if err != nil {
		return nil, err
	}
	key := now.In(p.loc).Format(model.DateLayout)
	out := make([]model.Occurrence, 0)
	for _, o := range all {
		if o.DateKey() == key {
			out = append(out, o)
		}
	}
	return out, nil
}

// Upcoming returns occurrences that have not started yet, soonest first.
// limit <= 0 means no limit.
func (p *Planner) Upcoming(ctx context.Context, sessions []model.Session, now time.Time, limit int) ([]model.Occurrence, error) {
	all, err := p.expandWindow(ctx, sessions, now, time.Time{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Occurrence, 0)
	for _, o := range all {
		if o.Start.Before(now) {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// WeekStartFor returns civil midnight of the first day of the week holding
// day.
func (p *Planner) WeekStartFor(day time.Time, weekStart time.Weekday) time.Time {
	d := day.In(p.loc)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.loc)
	offset := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// Week buckets the occurrences of the week holding day into seven days.
func (p *Planner) Week(ctx context.Context, sessions []model.Session, day time.Time, weekStart time.Weekday) ([]Day, error) {
	first := p.WeekStartFor(day, weekStart)
	days := make([]Day, 7)
	index := make(map[string]int, 7)
	for i := range days {
		d := first.AddDate(0, 0, i)
		days[i] = Day{
			Date:        d,
			Key:         d.Format(model.DateLayout),
			Label:       schedule.WeekdayLabel(d),
			Occurrences: []model.Occurrence{},
		}
		index[days[i].Key] = i
	}

	all, err := p.expandWindow(ctx, sessions, first, days[6].Date)
	if err != nil {
		return nil, err
	}
	for _, o := range all {
		if i, ok := index[o.DateKey()]; ok {
			days[i].Occurrences = append(days[i].Occurrences, o)
		}
	}
	return days, nil
}

func sortOccurrences(occ []model.Occurrence) {
	slices.SortStableFunc(occ, func(a, b model.Occurrence) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.SessionID, b.SessionID)
	})
}

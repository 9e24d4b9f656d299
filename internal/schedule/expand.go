package schedule

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	"practicecal/internal/model"
)

// DefaultMaxOccurrences caps a single expansion (about ten years of a daily
// session).
const DefaultMaxOccurrences = 3660

// Field names reported in ExpandResult.Degraded.
const (
	FieldStartTime = "start_time"
	FieldEndTime   = "end_time"
	FieldEndDate   = "end_date"
)

// ErrInvalidDateRange is returned when a session has no usable start date.
var ErrInvalidDateRange = errors.New("invalid date range")

// ExpandConfig controls how a session is expanded.
type ExpandConfig struct {
	// Location is the reference timezone all dates and times are read in.
	// It is required.
	Location *time.Location

	// MaxOccurrences bounds the result. If zero, DefaultMaxOccurrences is used.
	MaxOccurrences int

	// From and To, when set, narrow the walk to dates from From's civil day
	// through To's civil day in Location. The cap counts only dates inside
	// that window. A zero value leaves that side at the session bound.
	From time.Time
	To   time.Time
}

// ExpandResult holds the occurrences of one session plus the tolerated
// problems found on the way, so callers can log them.
type ExpandResult struct {
	// Occurrences are ordered by ascending date.
	Occurrences []model.Occurrence

	// Degraded lists descriptor fields that could not be parsed and were
	// replaced by a fallback (FieldStartTime, FieldEndTime, FieldEndDate).
	Degraded []string

	// Truncated is set when MaxOccurrences was reached.
	Truncated bool
}

var rruleWeekdays = [8]rrule.Weekday{
	1: rrule.MO, 2: rrule.TU, 3: rrule.WE, 4: rrule.TH, 5: rrule.FR, 6: rrule.SA, 7: rrule.SU,
}

// ExpandOccurrences enumerates every occurrence of desc.
//
//   - Dates run from StartDate to EndDate inclusive (StartDate alone when
//     EndDate is empty), one civil day at a time in cfg.Location.
//   - A date qualifies when the weekday spec is empty or names its weekday,
//     and it is neither an inline cancellation nor listed in exclusions.
//   - Start/End combine the date with StartTime/EndTime. A time that cannot
//     be parsed becomes midnight and is reported in Degraded. A reversed
//     window is kept as is.
//
// Only an unusable StartDate is an error (ErrInvalidDateRange). EndDate before
// StartDate, or a From/To window outside the session, yields an empty result.
func ExpandOccurrences(desc model.SessionDescriptor, exclusions []string, cfg ExpandConfig) (ExpandResult, error) {
	result := ExpandResult{Occurrences: make([]model.Occurrence, 0)}

	if cfg.Location == nil {
		return result, errors.New("expand: reference location is nil")
	}
	if cfg.MaxOccurrences <= 0 {
		cfg.MaxOccurrences = DefaultMaxOccurrences
	}
	loc := cfg.Location

	first, err := ParseDate(desc.StartDate, loc)
	if err != nil {
		return result, fmt.Errorf("%w: start date %q: %v", ErrInvalidDateRange, desc.StartDate, err)
	}

	endOpt, err := parseOptionalDate(desc.EndDate, loc)
	if err != nil {
		result.Degraded = append(result.Degraded, FieldEndDate)
		return result, nil
	}
	last := endOpt.OrElse(first)
	if last.Before(first) {
		return result, nil
	}

	startHour, startMin, ok := parseClock(desc.StartTime)
	if !ok {
		result.Degraded = append(result.Degraded, FieldStartTime)
	}
	endHour, endMin, ok := parseClock(desc.EndTime)
	if !ok {
		result.Degraded = append(result.Degraded, FieldEndTime)
	}

	if !cfg.From.IsZero() {
		if d := civilDay(cfg.From, loc); d.After(first) {
			first = d
		}
	}
	if !cfg.To.IsZero() {
		if d := civilDay(cfg.To, loc); d.Before(last) {
			last = d
		}
	}
	if last.Before(first) {
		return result, nil
	}

	days := ParseWeekdays(desc.Weekdays)
	excluded := NewExclusionSet(desc.Cancellations, exclusions)

	opt := rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
	}
	for _, d := range days.Days() {
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return result, fmt.Errorf("expand: build daily rule: %w", err)
	}

	next := rule.Iterator()
	for t, more := next(); more; t, more = next() {
		day := civilDay(t, loc)
		if excluded.IsExcluded(day) {
			continue
		}
		if len(result.Occurrences) >= cfg.MaxOccurrences {
			result.Truncated = true
			break
		}
		result.Occurrences = append(result.Occurrences, model.Occurrence{
			Date:  day,
			Start: atClock(day, startHour, startMin, loc),
			End:   atClock(day, endHour, endMin, loc),
		})
	}

	slices.SortStableFunc(result.Occurrences, func(a, b model.Occurrence) int {
		return a.Date.Compare(b.Date)
	})
	return result, nil
}

// ParseDate reads a YYYY-MM-DD date (an ISO date-time is cut to its date
// part) as civil midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(model.DateLayout) && (s[10] == 'T' || s[10] == ' ') {
		s = s[:len(model.DateLayout)]
	}
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
}

func parseOptionalDate(s string, loc *time.Location) (mo.Option[time.Time], error) {
	if strings.TrimSpace(s) == "" {
		return mo.None[time.Time](), nil
	}
	d, err := ParseDate(s, loc)
	if err != nil {
		return mo.None[time.Time](), err
	}
	return mo.Some(d), nil
}

// parseClock reads "H:M" through "HH:MM", with optional ":SS" (ignored).
func parseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, false
	}
	hour, ok = clockField(parts[0], 1, 23)
	if !ok {
		return 0, 0, false
	}
	minute, ok = clockField(parts[1], 1, 59)
	if !ok {
		return 0, 0, false
	}
	if len(parts) == 3 {
		if _, ok = clockField(parts[2], 2, 59); !ok {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

// clockField parses 1-2 ASCII digits (at least minDigits) no larger than limit.
func clockField(s string, minDigits, limit int) (int, bool) {
	if len(s) < minDigits || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > limit {
		return 0, false
	}
	return n, true
}

// atClock places hour:minute on day's civil date. A wall time skipped by a
// spring-forward change is read with the offset in force before the change,
// so 02:30 on a 02:00->03:00 day becomes 03:30.
func atClock(day time.Time, hour, minute int, loc *time.Location) time.Time {
	t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	if t.Hour() == hour && t.Minute() == minute {
		return t
	}
	wall := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
	_, before := wall.Add(-24 * time.Hour).In(loc).Zone()
	return wall.Add(-time.Duration(before) * time.Second).In(loc)
}

// civilDay is midnight of t's date in loc.
func civilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

package ics

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "practicecal/internal/log"
	"practicecal/internal/model"
)

// maxHolidaySpanDays bounds a single all-day event (a mistyped DTEND should
// not wipe out a whole season).
const maxHolidaySpanDays = 60

// Holiday is one day off taken from a feed.
type Holiday struct {
	FeedID  string
	UID     string
	Summary string
	// Date is YYYY-MM-DD in the reference zone.
	Date string
}

// ParseHolidays reads a feed body into per-day holidays.
//
//   - All-day events cover [DTSTART, DTEND) (one day when DTEND is missing).
//   - Timed events mark the date their start falls on in loc.
//
// Events that cannot be read are logged and skipped.
func ParseHolidays(feed Feed, body []byte, loc *time.Location) ([]Holiday, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		return nil, errors.New("holidays: location is nil")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]Holiday, 0)
	for _, ve := range cal.Events() {
		hs, err := eventHolidays(feed, ve, loc)
		if err != nil {
			appLog.Warn("holiday event skipped", "feed", feed.ID, "err", err)
			continue
		}
		out = append(out, hs...)
	}

	appLog.Debug("holiday feed parsed", "feed", feed.ID, "days", len(out))
	return out, nil
}

func eventHolidays(feed Feed, ve *ical.VEvent, loc *time.Location) ([]Holiday, error) {
	base := Holiday{FeedID: feed.ID}
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		base.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		base.Summary = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return nil, errors.New("missing DTSTART")
	}

	if !isAllDay(startProp) {
		start, err := ve.GetStartAt()
		if err != nil {
			return nil, err
		}
		h := base
		h.Date = start.In(loc).Format(model.DateLayout)
		return []Holiday{h}, nil
	}

	first, err := parseICSDate(startProp.Value, loc)
	if err != nil {
		return nil, err
	}
	last := first.AddDate(0, 0, 1)
	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
		if end, err := parseICSDate(endProp.Value, loc); err == nil && end.After(first) {
			last = end
		}
	}

	var out []Holiday
	for d := first; d.Before(last) && len(out) < maxHolidaySpanDays; d = d.AddDate(0, 0, 1) {
		h := base
		h.Date = d.Format(model.DateLayout)
		out = append(out, h)
	}
	return out, nil
}

// isAllDay: VALUE=DATE, or a value without a time part.
func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSDate reads the YYYYMMDD part of a DATE or DATE-TIME value as a civil
// date in loc.
func parseICSDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, errors.New("short ICS date " + v)
	}
	d, err := time.Parse("20060102", v[:8])
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc), nil
}

// HolidayDates returns the distinct dates, sorted.
func HolidayDates(hs []Holiday) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Date)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

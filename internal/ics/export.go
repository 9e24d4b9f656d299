package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"practicecal/internal/model"
)

const productID = "-//practicecal//session schedule//EN"

// BuildCalendar serializes occurrences as an iCalendar feed families can
// subscribe to. Each occurrence becomes one VEVENT keyed by its InstanceKey.
// Calendar clients reject DTEND before DTSTART, so a reversed time window is
// exported as a zero-length event.
func BuildCalendar(name string, loc *time.Location, occurrences []model.Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	if loc != nil {
		cal.SetXWRTimezone(loc.String())
	}

	for _, o := range occurrences {
		ev := cal.AddEvent(o.InstanceKey)
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(o.Start)
		end := o.End
		if end.Before(o.Start) {
			end = o.Start
		}
		ev.SetEndAt(end)
		ev.SetSummary(o.Summary)
		if o.Location != "" {
			ev.SetLocation(o.Location)
		}
	}

	return cal.Serialize()
}

package schedule

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// WeekdaySet is a set of ISO weekday numbers (1 = Monday .. 7 = Sunday).
// The zero value is the empty set, which the expander reads as "every day".
type WeekdaySet uint8

// weekdayTokens maps normalized tokens (lowercase, accents folded) to ISO
// weekday numbers. Single letters follow the registrar convention
// (R = Thursday, U = Sunday) and Spanish letters that do not collide with
// English ones (L, X, J, V, D).
var weekdayTokens = map[string]int{
	// English
	"monday": 1, "mon": 1, "mo": 1, "m": 1,
	"tuesday": 2, "tue": 2, "tues": 2, "tu": 2, "t": 2,
	"wednesday": 3, "wed": 3, "weds": 3, "we": 3, "w": 3,
	"thursday": 4, "thu": 4, "thur": 4, "thurs": 4, "th": 4, "r": 4,
	"friday": 5, "fri": 5, "fr": 5, "f": 5,
	"saturday": 6, "sat": 6, "sa": 6, "s": 6,
	"sunday": 7, "sun": 7, "su": 7, "u": 7,

	// Spanish
	"lunes": 1, "lun": 1, "lu": 1, "l": 1,
	"martes": 2, "mar": 2, "ma": 2,
	"miercoles": 3, "mie": 3, "mi": 3, "x": 3,
	"jueves": 4, "jue": 4, "ju": 4, "j": 4,
	"viernes": 5, "vie": 5, "vi": 5, "v": 5,
	"sabado": 6, "sab": 6,
	"domingo": 7, "dom": 7, "do": 7, "d": 7,

	// Digits; both 0 and 7 are Sunday.
	"0": 7, "1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7,
}

var weekdayNames = [8]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

var weekdayLabels = [8]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// NewWeekdaySet builds a set from ISO weekday numbers; values outside 1..7
// are ignored.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// With returns s plus day. Out-of-range days leave s unchanged.
func (s WeekdaySet) With(day int) WeekdaySet {
	if day < 1 || day > 7 {
		return s
	}
	return s | 1<<(day-1)
}

// Has reports whether the ISO weekday is in the set.
func (s WeekdaySet) Has(day int) bool {
	if day < 1 || day > 7 {
		return false
	}
	return s&(1<<(day-1)) != 0
}

func (s WeekdaySet) Empty() bool { return s == 0 }

func (s WeekdaySet) Len() int {
	n := 0
	for d := 1; d <= 7; d++ {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Days returns the members in Monday-first order.
func (s WeekdaySet) Days() []int {
	out := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Matches reports whether t's ISO weekday passes the filter. An empty set
// matches every date.
func (s WeekdaySet) Matches(t time.Time) bool {
	return s.Empty() || s.Has(ISOWeekday(t))
}

// ISOWeekday returns 1 (Monday) .. 7 (Sunday) for t in its own location.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ParseWeekdays turns a free-form weekday list into a set. Tokens are split on
// runs of whitespace , ; | and /. Unknown tokens are dropped, so an empty or
// unrecognisable spec yields the empty set.
func ParseWeekdays(spec string) WeekdaySet {
	var set WeekdaySet
	for _, tok := range splitWeekdayTokens(spec) {
		if day, ok := lookupWeekday(tok); ok {
			set = set.With(day)
		}
	}
	return set
}

// ValidateWeekdays reports whether spec names at least one weekday.
func ValidateWeekdays(spec string) bool {
	return !ParseWeekdays(spec).Empty()
}

// FormatWeekdays renders the set as "Mon, Wed, Fri".
func FormatWeekdays(set WeekdaySet) string {
	days := set.Days()
	labels := make([]string, 0, len(days))
	for _, d := range days {
		labels = append(labels, weekdayLabels[d])
	}
	return strings.Join(labels, ", ")
}

// EncodeWeekdays renders days, in the given order, as the canonical stored
// form "monday,wednesday". Values outside 1..7 are skipped.
func EncodeWeekdays(days []int) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 7 {
			continue
		}
		names = append(names, weekdayNames[d])
	}
	return strings.Join(names, ",")
}

// WeekdayLabel is the short label of t's weekday ("Mon").
func WeekdayLabel(t time.Time) string {
	return weekdayLabels[ISOWeekday(t)]
}

func splitWeekdayTokens(spec string) []string {
	return strings.FieldsFunc(spec, func(r rune) bool {
		switch r {
		case ',', ';', '|', '/':
			return true
		}
		return unicode.IsSpace(r)
	})
}

func lookupWeekday(tok string) (int, bool) {
	tok = strings.Trim(strings.ToLower(strings.TrimSpace(tok)), ".")
	if tok == "" {
		return 0, false
	}
	if day, ok := weekdayTokens[tok]; ok {
		return day, true
	}
	day, ok := weekdayTokens[foldAccents(tok)]
	return day, ok
}

// foldAccents strips combining marks: "miércoles" -> "miercoles".
// A transformer is not safe for concurrent use, so one is built per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

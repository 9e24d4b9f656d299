package schedule

import (
	"strings"
	"time"

	"practicecal/internal/model"
)

// ExclusionSet answers whether a session's occurrence is suppressed on a date.
// It is the union of the session's inline cancellation list and dates supplied
// from elsewhere (exclusion rows, holiday feeds). Membership is literal string
// equality on YYYY-MM-DD keys, so it never depends on time of day or offsets.
type ExclusionSet struct {
	inline   map[string]struct{}
	external map[string]struct{}
}

// NewExclusionSet merges the inline CSV and the external dates.
func NewExclusionSet(inline string, external []string) ExclusionSet {
	es := ExclusionSet{
		inline:   make(map[string]struct{}),
		external: make(map[string]struct{}, len(external)),
	}
	for _, tok := range ParseCancellations(inline) {
		es.inline[tok] = struct{}{}
	}
	for _, d := range external {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		es.external[d] = struct{}{}
	}
	return es
}

// ParseCancellations splits an inline cancellation list on commas. Tokens are
// trimmed but not validated.
func ParseCancellations(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Contains reports whether the literal key is suppressed.
func (e ExclusionSet) Contains(key string) bool {
	if _, ok := e.inline[key]; ok {
		return true
	}
	_, ok := e.external[key]
	return ok
}

// IsExcluded formats date (in its own location) as YYYY-MM-DD and tests it.
func (e ExclusionSet) IsExcluded(date time.Time) bool {
	return e.Contains(date.Format(model.DateLayout))
}

// Len is the number of distinct suppressed keys.
func (e ExclusionSet) Len() int {
	n := len(e.inline)
	for k := range e.external {
		if _, dup := e.inline[k]; !dup {
			n++
		}
	}
	return n
}

// ValidDateKey reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDateKey(s string) bool {
	if len(s) != len(model.DateLayout) {
		return false
	}
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

// InvalidDateKeys returns the tokens that can never match a candidate date
// ("2024/01/08", "Jan 8"). Callers use it to warn at the input boundary.
func InvalidDateKeys(tokens []string) []string {
	var bad []string
	for _, t := range tokens {
		if !ValidDateKey(t) {
			bad = append(bad, t)
		}
	}
	return bad
}

package model

import "time"

// DateLayout is the canonical calendar date form used for session bounds and
// exclusion keys.
const DateLayout = "2006-01-02"

// SessionDescriptor is the plain description of a recurring session as it is
// stored by the admin tool. All fields are raw strings; interpretation
// (and tolerance of bad values) belongs to the schedule package.
type SessionDescriptor struct {
	// StartDate / EndDate are inclusive YYYY-MM-DD bounds. An empty EndDate
	// means a single-day session.
	StartDate string `yaml:"start_date" json:"start_date"`
	EndDate   string `yaml:"end_date,omitempty" json:"end_date,omitempty"`

	// StartTime / EndTime are "HH:MM" (24h) applied to every qualifying date.
	StartTime string `yaml:"start_time" json:"start_time"`
	EndTime   string `yaml:"end_time" json:"end_time"`

	// Weekdays is a free-form weekday list ("mon, wed", "lunes|jueves", "1 3").
	// Empty means every date in the range.
	Weekdays string `yaml:"weekdays,omitempty" json:"weekdays,omitempty"`

	// Cancellations is a comma-separated list of YYYY-MM-DD dates kept on the
	// session record itself.
	Cancellations string `yaml:"cancellations,omitempty" json:"cancellations,omitempty"`
}

// Session is a named SessionDescriptor (a team practice, a clinic, a class).
type Session struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Team     string `yaml:"team,omitempty" json:"team,omitempty"`
	Location string `yaml:"location,omitempty" json:"location,omitempty"`

	SessionDescriptor `yaml:",inline"`
}

// ExclusionRecord suppresses one date of one session. Rows are created and
// deleted by staff; the expander only reads them.
type ExclusionRecord struct {
	ID        string `yaml:"id" json:"id"`
	SessionID string `yaml:"session_id" json:"session_id"`
	Date      string `yaml:"date" json:"date"`
	Reason    string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Occurrence is a single concrete instance of a session.
type Occurrence struct {
	SessionID string
	// InstanceKey identifies one occurrence of one session:
	// "<session id>@<YYYY-MM-DD>".
	InstanceKey string

	Summary  string
	Location string

	// Date is civil midnight of the occurrence day in the reference zone.
	Date time.Time

	// Start / End are in the reference zone. End may precede Start when the
	// session's time window is reversed; no overnight rollover is applied.
	Start time.Time
	End   time.Time
}

// DateKey returns the canonical YYYY-MM-DD form of the occurrence date.
func (o Occurrence) DateKey() string {
	return o.Date.Format(DateLayout)
}

func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicecal/internal/agenda"
	"practicecal/internal/ics"
	"practicecal/internal/model"
	"practicecal/internal/reminder"
)

var feedBody = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//district//holidays//EN",
	"BEGIN:VEVENT",
	"UID:mlk@district",
	"DTSTAMP:20240101T000000Z",
	"DTSTART;VALUE=DATE:20240115",
	"DTEND;VALUE=DATE:20240116",
	"SUMMARY:MLK Day",
	"END:VEVENT",
	"END:VCALENDAR",
	"",
}, "\r\n")

func newPlanner(t *testing.T) *agenda.Planner {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	p, err := agenda.NewPlanner(agenda.Config{Location: loc})
	require.NoError(t, err)
	return p
}

func TestNewRunner_Validation(t *testing.T) {
	p := newPlanner(t)
	f := ics.NewFetcher(t.TempDir())

	_, err := NewRunner(Config{RefreshSpec: "0 * * * *", Fetcher: f})
	assert.Error(t, err)

	_, err = NewRunner(Config{RefreshSpec: "bogus", Planner: p, Fetcher: f})
	assert.Error(t, err)

	d, err := reminder.NewDispatcher(p, func() []model.Session { return nil }, nil, time.Hour)
	require.NoError(t, err)
	_, err = NewRunner(Config{RefreshSpec: "0 * * * *", ReminderSpec: "every five minutes", Planner: p, Fetcher: f, Dispatcher: d})
	assert.Error(t, err)

	_, err = NewRunner(Config{RefreshSpec: "0 * * * *", Planner: p, Fetcher: f})
	assert.NoError(t, err)
}

func TestRefreshHolidays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	p := newPlanner(t)
	r, err := NewRunner(Config{
		RefreshSpec: "0 */6 * * *",
		Feeds:       []ics.Feed{{ID: "district", URL: srv.URL}},
		Fetcher:     ics.NewFetcher(t.TempDir()),
		Planner:     p,
	})
	require.NoError(t, err)

	n, err := r.RefreshHolidays(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"2024-01-15"}, p.Holidays())
}

func TestRefreshHolidays_KeepsPreviousWhenAllFeedsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newPlanner(t)
	p.SetHolidays([]string{"2024-07-04"})

	r, err := NewRunner(Config{
		RefreshSpec: "0 */6 * * *",
		Feeds:       []ics.Feed{{ID: "down", URL: srv.URL}},
		Fetcher:     ics.NewFetcher(t.TempDir()),
		Planner:     p,
	})
	require.NoError(t, err)

	_, err = r.RefreshHolidays(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"2024-07-04"}, p.Holidays())
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify(context.Context, reminder.Reminder) error {
	c.n++
	return nil
}

func TestScanReminders_UsesRunnerClock(t *testing.T) {
	p := newPlanner(t)
	sessions := []model.Session{{
		ID: "u8",
		SessionDescriptor: model.SessionDescriptor{
			StartDate: "2024-01-01", EndDate: "2024-01-31",
			StartTime: "17:00", EndTime: "18:00",
			Weekdays: "mon",
		},
	}}
	notifier := &countingNotifier{}
	d, err := reminder.NewDispatcher(p, func() []model.Session { return sessions }, notifier, time.Hour)
	require.NoError(t, err)

	now := time.Date(2024, 1, 8, 16, 15, 0, 0, p.Location())
	r, err := NewRunner(Config{
		RefreshSpec:  "0 */6 * * *",
		ReminderSpec: "*/5 * * * *",
		Fetcher:      ics.NewFetcher(t.TempDir()),
		Planner:      p,
		Dispatcher:   d,
		Now:          func() time.Time { return now },
	})
	require.NoError(t, err)

	sent, err := r.ScanReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, notifier.n)
}

func TestStartStop(t *testing.T) {
	p := newPlanner(t)
	r, err := NewRunner(Config{
		RefreshSpec: "0 */6 * * *",
		Fetcher:     ics.NewFetcher(t.TempDir()),
		Planner:     p,
	})
	require.NoError(t, err)

	r.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}

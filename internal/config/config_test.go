package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cfg.Timezone)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, 120, cfg.Reminders.LeadMinutes)
	assert.True(t, cfg.Reminders.Enabled)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestLoad_ParsesSessionsAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
timezone: America/Chicago
week_start: friday
reminders:
  cron: "*/10 * * * *"
sessions:
  - id: u10-girls
    name: U10 Girls Practice
    location: Field 3
    start_date: "2024-01-01"
    end_date: "2024-03-31"
    start_time: "17:30"
    end_time: "19:00"
    weekdays: mon, wed
    cancellations: 2024-01-15,2024-02-19
  - name: Goalkeeper Clinic
    start_date: "2024-02-03"
    start_time: "09:00"
    end_time: "10:30"
exclusions:
  - session_id: u10-girls
    date: "2024-02-05"
    reason: field maintenance
holiday_feeds:
  - name: district
    url: https://example.org/holidays.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, "monday", cfg.WeekStart, "unknown week_start falls back")
	assert.Equal(t, "*/10 * * * *", cfg.Reminders.Cron)
	assert.True(t, cfg.Reminders.Enabled, "unset fields keep their defaults")
	assert.Equal(t, 2*time.Hour, cfg.ReminderLead())

	require.Len(t, cfg.Sessions, 2)
	s := cfg.Sessions[0]
	assert.Equal(t, "u10-girls", s.ID)
	assert.Equal(t, "Field 3", s.Location)
	assert.Equal(t, "2024-03-31", s.EndDate)
	assert.Equal(t, "mon, wed", s.Weekdays)
	assert.Equal(t, "2024-01-15,2024-02-19", s.Cancellations)
	assert.NotEmpty(t, cfg.Sessions[1].ID, "missing ids are generated")

	require.Len(t, cfg.Exclusions, 1)
	assert.NotEmpty(t, cfg.Exclusions[0].ID)
	assert.Equal(t, map[string][]string{"u10-girls": {"2024-02-05"}}, cfg.ExclusionsBySession())

	require.Len(t, cfg.HolidayFeeds, 1)
	assert.Equal(t, "district", cfg.HolidayFeeds[0].ID)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", loc.String())

	got, ok := cfg.Session("u10-girls")
	assert.True(t, ok)
	assert.Equal(t, "U10 Girls Practice", got.Name)
	_, ok = cfg.Session("nope")
	assert.False(t, ok)

	assert.Empty(t, cfg.Warnings())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Sessions = append(cfg.Sessions, sessionFixture("s1", "2024-01-01", "tue,thu", ""))
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Sessions, loaded.Sessions)
}

func TestWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sessions = append(cfg.Sessions,
		sessionFixture("s1", "2024-01-01", "someday", "2024/01/08, 2024-01-09"),
		sessionFixture("s2", "Jan 1", "", ""),
	)
	cfg.Exclusions = append(cfg.Exclusions,
		exclusionFixture("e1", "s1", "01-08-2024"),
		exclusionFixture("e2", "ghost", "2024-01-08"),
	)

	w := cfg.Warnings()
	require.Len(t, w, 5)
	assert.Contains(t, w[0], "names no weekday")
	assert.Contains(t, w[1], `cancellation "2024/01/08"`)
	assert.Contains(t, w[2], `start_date "Jan 1"`)
	assert.Contains(t, w[3], `date "01-08-2024"`)
	assert.Contains(t, w[4], `unknown session "ghost"`)
}

func TestWarnings_SessionBoundsMatchExpander(t *testing.T) {
	cfg := DefaultConfig()
	withTime := sessionFixture("s1", "2024-01-01T10:00", "mon", "")
	badEnd := sessionFixture("s2", "2024-01-01", "mon", "")
	badEnd.EndDate = "March 31"
	openEnd := sessionFixture("s3", "2024-01-01 08:00", "mon", "")
	openEnd.EndDate = ""
	cfg.Sessions = append(cfg.Sessions, withTime, badEnd, openEnd)

	w := cfg.Warnings()
	require.Len(t, w, 1)
	assert.Contains(t, w[0], `end_date "March 31"`)
}

func TestLocation_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err := cfg.Location()
	assert.Error(t, err)
}

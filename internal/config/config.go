package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"practicecal/internal/model"
	"practicecal/internal/schedule"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "America/New_York"
	defaultWeekStart    = "monday"
	defaultRefreshCron  = "0 */6 * * *"
	defaultReminderCron = "*/5 * * * *"
	defaultLeadMinutes  = 120
	defaultHorizonDays  = 14
	defaultLogLevel     = "info"
	defaultCacheDir     = "./var/feed-cache"
)

var ErrEmptyPath = errors.New("config path is empty")

// HolidayFeedConfig is an ICS calendar whose events are treated as days off
// for every session (district holidays, field closures).
type HolidayFeedConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// ReminderConfig controls the reminder scan job.
type ReminderConfig struct {
	// Enabled toggles the job entirely.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Cron is the scan schedule (standard 5-field spec).
	Cron string `yaml:"cron" json:"cron"`
	// LeadMinutes is how far ahead of an occurrence's start a reminder goes out.
	LeadMinutes int `yaml:"lead_minutes" json:"lead_minutes"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration. Sessions and exclusion
// rows live here as well; the file is the store of record for this service.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone every session is scheduled in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday" for week views.
	WeekStart string `yaml:"week_start" json:"week_start"`

	// HorizonDays is how far ahead occurrence listings look by default.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron schedules holiday feed refreshes.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Reminders ReminderConfig `yaml:"reminders" json:"reminders"`

	// CacheDir holds the HTTP cache of holiday feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Sessions     []model.Session         `yaml:"sessions" json:"sessions"`
	Exclusions   []model.ExclusionRecord `yaml:"exclusions" json:"exclusions"`
	HolidayFeeds []HolidayFeedConfig     `yaml:"holiday_feeds" json:"holiday_feeds"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   defaultWeekStart,
		HorizonDays: defaultHorizonDays,
		LogLevel:    defaultLogLevel,
		RefreshCron: defaultRefreshCron,
		Reminders: ReminderConfig{
			Enabled:     true,
			Cron:        defaultReminderCron,
			LeadMinutes: defaultLeadMinutes,
		},
		CacheDir:     defaultCacheDir,
		Sessions:     []model.Session{},
		Exclusions:   []model.ExclusionRecord{},
		HolidayFeeds: []HolidayFeedConfig{},
	}
}

// Normalize fills in missing values so partially written files still work,
// and gives every session, exclusion row and feed an id.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Reminders.Cron == "" {
		c.Reminders.Cron = defaultReminderCron
	}
	if c.Reminders.LeadMinutes <= 0 {
		c.Reminders.LeadMinutes = defaultLeadMinutes
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}

	if c.Sessions == nil {
		c.Sessions = []model.Session{}
	}
	for i := range c.Sessions {
		if c.Sessions[i].ID == "" {
			c.Sessions[i].ID = uuid.NewString()
		}
	}
	if c.Exclusions == nil {
		c.Exclusions = []model.ExclusionRecord{}
	}
	for i := range c.Exclusions {
		if c.Exclusions[i].ID == "" {
			c.Exclusions[i].ID = uuid.NewString()
		}
	}
	if c.HolidayFeeds == nil {
		c.HolidayFeeds = []HolidayFeedConfig{}
	}
	for i := range c.HolidayFeeds {
		f := &c.HolidayFeeds[i]
		if f.ID == "" {
			if f.Name != "" {
				f.ID = f.Name
			} else {
				f.ID = uuid.NewString()
			}
		}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ReminderLead is Reminders.LeadMinutes as a duration.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.Reminders.LeadMinutes) * time.Minute
}

// Session looks a session up by id.
func (c *Config) Session(id string) (model.Session, bool) {
	for _, s := range c.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}

// ExclusionsBySession groups exclusion row dates by session id.
func (c *Config) ExclusionsBySession() map[string][]string {
	out := make(map[string][]string)
	for _, ex := range c.Exclusions {
		out[ex.SessionID] = append(out[ex.SessionID], strings.TrimSpace(ex.Date))
	}
	return out
}

// Warnings reports records that load but will not behave as their author
// probably intended: weekday lists naming no day, session bounds the expander
// cannot read, cancellation and exclusion dates other than YYYY-MM-DD (they
// never match), and exclusion rows for unknown sessions.
func (c *Config) Warnings() []string {
	var out []string
	known := make(map[string]bool, len(c.Sessions))

	for _, s := range c.Sessions {
		known[s.ID] = true
		if strings.TrimSpace(s.Weekdays) != "" && !schedule.ValidateWeekdays(s.Weekdays) {
			out = append(out, fmt.Sprintf("session %s: weekdays %q names no weekday; every date will qualify", s.ID, s.Weekdays))
		}
		if _, err := schedule.ParseDate(s.StartDate, time.UTC); err != nil {
			out = append(out, fmt.Sprintf("session %s: start_date %q is not YYYY-MM-DD; the session will be skipped", s.ID, s.StartDate))
		}
		if strings.TrimSpace(s.EndDate) != "" {
			if _, err := schedule.ParseDate(s.EndDate, time.UTC); err != nil {
				out = append(out, fmt.Sprintf("session %s: end_date %q is not YYYY-MM-DD; the session will have no occurrences", s.ID, s.EndDate))
			}
		}
		for _, bad := range schedule.InvalidDateKeys(schedule.ParseCancellations(s.Cancellations)) {
			out = append(out, fmt.Sprintf("session %s: cancellation %q is not YYYY-MM-DD and will be ignored", s.ID, bad))
		}
	}
	for _, ex := range c.Exclusions {
		if !known[ex.SessionID] {
			out = append(out, fmt.Sprintf("exclusion %s: unknown session %q", ex.ID, ex.SessionID))
		}
		if !schedule.ValidDateKey(strings.TrimSpace(ex.Date)) {
			out = append(out, fmt.Sprintf("exclusion %s: date %q is not YYYY-MM-DD and will be ignored", ex.ID, ex.Date))
		}
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 perms, creating
// the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".practicecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

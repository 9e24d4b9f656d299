package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"practicecal/internal/agenda"
	"practicecal/internal/capture"
	"practicecal/internal/config"
	"practicecal/internal/ics"
	"practicecal/internal/jobs"
	appLog "practicecal/internal/log"
	"practicecal/internal/model"
	"practicecal/internal/reminder"
	"practicecal/internal/schedule"
	"practicecal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
	snapshot   string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if lvl, ok := appLog.ParseLevel(conf.LogLevel); ok {
		appLog.SetLevel(lvl)
	} else {
		appLog.Warn("unknown log level, keeping info", "log_level", conf.LogLevel)
	}

	appLog.Info("practicecal starting", "version", "0.1.0")
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"horizon_days", conf.HorizonDays,
		"refresh", conf.RefreshCron,
		"reminders", conf.Reminders.Enabled,
		"sessions", len(conf.Sessions),
		"exclusions", len(conf.Exclusions),
		"holiday_feeds", len(conf.HolidayFeeds),
	)
	for _, w := range conf.Warnings() {
		appLog.Warn("config warning", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("practicecal failed", err)
		os.Exit(1)
	}
	appLog.Info("practicecal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	planner, err := agenda.NewPlanner(agenda.Config{Location: loc})
	if err != nil {
		return err
	}
	planner.SetExclusions(conf.ExclusionsBySession())

	sessions := func() []model.Session { return conf.Sessions }

	var dispatcher *reminder.Dispatcher
	if conf.Reminders.Enabled {
		dispatcher, err = reminder.NewDispatcher(planner, sessions, reminder.LogNotifier{}, conf.ReminderLead())
		if err != nil {
			return err
		}
	}

	runner, err := jobs.NewRunner(jobs.Config{
		RefreshSpec:  conf.RefreshCron,
		ReminderSpec: conf.Reminders.Cron,
		Feeds:        holidayFeeds(conf),
		Fetcher:      ics.NewFetcher(conf.CacheDir),
		Planner:      planner,
		Dispatcher:   dispatcher,
	})
	if err != nil {
		return err
	}

	if flags.once {
		if _, err := runner.RefreshHolidays(ctx); err != nil {
			appLog.Warn("holiday refresh failed", "err", err)
		}
		return printToday(ctx, planner, conf.Sessions)
	}

	ln, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", conf.Listen, err)
	}
	srv := &http.Server{
		Handler:           web.NewServer(conf, planner, nil).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if flags.snapshot != "" {
		if _, err := runner.RefreshHolidays(ctx); err != nil {
			appLog.Warn("holiday refresh failed", "err", err)
		}
		_, err := capture.CaptureSchedulePNG(ctx, capture.Options{
			URL:        calendarURL(conf, ln.Addr().String()),
			OutputPath: flags.snapshot,
		})
		shutdown(srv)
		if err != nil {
			return err
		}
		appLog.Info("snapshot written", "path", flags.snapshot)
		return nil
	}

	runner.Start(ctx)

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-serveErr:
		if err != nil {
			appLog.Error("HTTP server stopped", err)
		}
	}

	shutdown(srv)
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runner.Stop(stopCtx)
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
}

func holidayFeeds(conf *config.Config) []ics.Feed {
	feeds := make([]ics.Feed, 0, len(conf.HolidayFeeds))
	for _, f := range conf.HolidayFeeds {
		if f.URL == "" {
			continue
		}
		feeds = append(feeds, ics.Feed{ID: f.ID, URL: f.URL})
	}
	return feeds
}

// calendarURL points the headless browser at the week view, carrying the
// basic auth credentials when they are configured.
func calendarURL(conf *config.Config, addr string) string {
	u := url.URL{Scheme: "http", Host: addr, Path: "/calendar"}
	if ba := conf.BasicAuth; ba != nil && ba.Username != "" && ba.Password != "" {
		u.User = url.UserPassword(ba.Username, ba.Password)
	}
	return u.String()
}

func printToday(ctx context.Context, planner *agenda.Planner, sessions []model.Session) error {
	now := time.Now().In(planner.Location())
	occ, err := planner.Today(ctx, sessions, now)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", schedule.WeekdayLabel(now), now.Format(model.DateLayout))
	if len(occ) == 0 {
		fmt.Println("  no sessions today")
		return nil
	}
	for _, o := range occ {
		line := fmt.Sprintf("  %s  %s", schedule.FormatTimeRange(o.Start.Format("15:04"), o.End.Format("15:04")), o.Summary)
		if o.Location != "" {
			line += " @ " + o.Location
		}
		fmt.Println(line)
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/practicecal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Print today's sessions and exit")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Capture the week view to this PNG path and exit")

	flag.Parse()

	return cfg
}

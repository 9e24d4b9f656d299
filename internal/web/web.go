package web

import (
	"crypto/subtle"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"practicecal/internal/agenda"
	"practicecal/internal/config"
	"practicecal/internal/ics"
	appLog "practicecal/internal/log"
	"practicecal/internal/model"
	"practicecal/internal/schedule"
)

//go:embed templates/calendar.html
var templateFS embed.FS

var calendarTemplate = template.Must(template.ParseFS(templateFS, "templates/calendar.html"))

// Server provides the schedule API, the ICS subscription feeds and the
// printable week view.
type Server struct {
	cfg     *config.Config
	planner *agenda.Planner
	now     func() time.Time
	mux     *http.ServeMux
}

// NewServer constructs a new Server. now may be nil (time.Now).
func NewServer(cfg *config.Config, planner *agenda.Planner, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:     cfg,
		planner: planner,
		now:     now,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

const authRealm = `Basic realm="practicecal", charset="UTF-8"`

// Handler returns the server's root handler. /health stays public; every
// other route sits behind Basic Auth when credentials are configured.
func (s *Server) Handler() http.Handler {
	creds := s.credentials()
	if creds == nil {
		return s.mux
	}
	appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen, "user", creds.Username)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("/", requireCredentials(s.mux, *creds))
	return root
}

// credentials returns the configured Basic Auth pair, or nil when either
// half is missing.
func (s *Server) credentials() *config.BasicAuthConfig {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return nil
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return nil
	}
	return s.cfg.BasicAuth
}

func requireCredentials(next http.Handler, creds config.BasicAuthConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !credentialsMatch(r, creds) {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// credentialsMatch checks both halves in constant time, without
// short-circuiting on the username.
func credentialsMatch(r *http.Request, creds config.BasicAuthConfig) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(creds.Username))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(creds.Password))
	return userOK&passOK == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}/calendar.ics", s.handleSessionCalendar)
	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/today", s.handleToday)
	s.mux.HandleFunc("GET /api/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/weekdays", s.handleWeekdays)
	s.mux.HandleFunc("GET /calendar", s.handleCalendarPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// sessionDTO is a session as the admin UI lists it.
type sessionDTO struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Team          string   `json:"team,omitempty"`
	Location      string   `json:"location,omitempty"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date,omitempty"`
	Weekdays      string   `json:"weekdays"`
	WeekdaysLabel string   `json:"weekdays_label"`
	TimeRange     string   `json:"time_range"`
	Cancellations []string `json:"cancellations"`
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	SessionID   string    `json:"session_id"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	Date        string    `json:"date"`
	Weekday     string    `json:"weekday"`
	TimeRange   string    `json:"time_range"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

type occurrencesResponse struct {
	Occurrences     []occurrenceDTO `json:"occurrences"`
	RangeStart      string          `json:"range_start"`
	RangeEnd        string          `json:"range_end"`
	DisplayTimeZone string          `json:"display_timezone"`
}

type dayDTO struct {
	Date        string          `json:"date"`
	Weekday     string          `json:"weekday"`
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type weekResponse struct {
	Days            []dayDTO `json:"days"`
	WeekStart       string   `json:"week_start"`
	DisplayTimeZone string   `json:"display_timezone"`
}

type weekdaysResponse struct {
	Spec    string `json:"spec"`
	Valid   bool   `json:"valid"`
	Days    []int  `json:"days"`
	Label   string `json:"label"`
	Encoded string `json:"encoded"`
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	out := make([]sessionDTO, 0, len(s.cfg.Sessions))
	for _, sess := range s.cfg.Sessions {
		out = append(out, sessionDTO{
			ID:            sess.ID,
			Name:          sess.Name,
			Team:          sess.Team,
			Location:      sess.Location,
			StartDate:     sess.StartDate,
			EndDate:       sess.EndDate,
			Weekdays:      sess.Weekdays,
			WeekdaysLabel: schedule.FormatWeekdays(schedule.ParseWeekdays(sess.Weekdays)),
			TimeRange:     schedule.FormatTimeRange(sess.StartTime, sess.EndTime),
			Cancellations: schedule.ParseCancellations(sess.Cancellations),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOccurrences lists occurrences between two dates (inclusive).
//
// GET /api/occurrences?from=2024-01-01&to=2024-01-31&session=<id>
//   - from: defaults to today
//   - to:   defaults to from + horizon_days
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	loc := s.planner.Location()
	q := r.URL.Query()

	from := s.today()
	if v := q.Get("from"); v != "" {
		d, err := schedule.ParseDate(v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = d
	}
	to := from.AddDate(0, 0, s.cfg.HorizonDays)
	if v := q.Get("to"); v != "" {
		d, err := schedule.ParseDate(v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		to = d
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	sessions, ok := s.selectSessions(q.Get("session"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	occ, err := s.planner.Between(r.Context(), sessions, from, to.AddDate(0, 0, 1))
	if err != nil {
		appLog.Error("api occurrences: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand sessions")
		return
	}

	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:     toDTOs(occ),
		RangeStart:      from.Format(model.DateLayout),
		RangeEnd:        to.Format(model.DateLayout),
		DisplayTimeZone: loc.String(),
	})
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	today := s.today()
	occ, err := s.planner.Today(r.Context(), s.cfg.Sessions, today)
	if err != nil {
		appLog.Error("api today: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand sessions")
		return
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:     toDTOs(occ),
		RangeStart:      today.Format(model.DateLayout),
		RangeEnd:        today.Format(model.DateLayout),
		DisplayTimeZone: s.planner.Location().String(),
	})
}

// handleUpcoming lists the next occurrences that have not started yet.
//
// GET /api/upcoming?limit=10
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)
	if limit <= 0 || limit > 500 {
		limit = 10
	}
	occ, err := s.planner.Upcoming(r.Context(), s.cfg.Sessions, s.now(), limit)
	if err != nil {
		appLog.Error("api upcoming: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand sessions")
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(occ))
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}
	days, err := s.planner.Week(r.Context(), s.cfg.Sessions, day, s.weekStart())
	if err != nil {
		appLog.Error("api week: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand sessions")
		return
	}

	resp := weekResponse{
		Days:            make([]dayDTO, 0, len(days)),
		WeekStart:       s.cfg.WeekStart,
		DisplayTimeZone: s.planner.Location().String(),
	}
	for _, d := range days {
		resp.Days = append(resp.Days, dayDTO{Date: d.Key, Weekday: d.Label, Occurrences: toDTOs(d.Occurrences)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWeekdays previews how a weekday list will be read.
func (s *Server) handleWeekdays(w http.ResponseWriter, r *http.Request) {
	spec := r.URL.Query().Get("spec")
	set := schedule.ParseWeekdays(spec)
	days := set.Days()
	writeJSON(w, http.StatusOK, weekdaysResponse{
		Spec:    spec,
		Valid:   schedule.ValidateWeekdays(spec),
		Days:    days,
		Label:   schedule.FormatWeekdays(set),
		Encoded: schedule.EncodeWeekdays(days),
	})
}

// handleSessionCalendar serves every occurrence of one session as an ICS
// feed families can subscribe to.
func (s *Server) handleSessionCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.cfg.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	occ, err := s.planner.Expand(r.Context(), []model.Session{sess})
	if err != nil {
		appLog.Error("calendar feed: expand failed", err, "session", id)
		writeError(w, http.StatusInternalServerError, "failed to expand session")
		return
	}

	name := sess.Name
	if name == "" {
		name = sess.ID
	}
	body := ics.BuildCalendar(name, s.planner.Location(), occ, s.now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="`+sess.ID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type calendarItem struct {
	Summary   string
	TimeRange string
	Location  string
}

type calendarDay struct {
	Label string
	Date  string
	Today bool
	Items []calendarItem
}

type calendarPage struct {
	Title    string
	TimeZone string
	Days     []calendarDay
}

// handleCalendarPage renders the printable week view. The root element
// carries data-ready="true" once rendered, which the snapshot capture waits
// for.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}
	days, err := s.planner.Week(r.Context(), s.cfg.Sessions, day, s.weekStart())
	if err != nil {
		appLog.Error("calendar page: expand failed", err)
		http.Error(w, "failed to expand sessions", http.StatusInternalServerError)
		return
	}

	todayKey := s.today().Format(model.DateLayout)
	page := calendarPage{
		Title:    "Week of " + days[0].Date.Format("Jan 2, 2006"),
		TimeZone: s.planner.Location().String(),
	}
	for _, d := range days {
		cd := calendarDay{Label: d.Label, Date: d.Date.Format("Jan 2"), Today: d.Key == todayKey}
		for _, o := range d.Occurrences {
			cd.Items = append(cd.Items, calendarItem{
				Summary:   o.Summary,
				TimeRange: occurrenceTimeRange(o),
				Location:  o.Location,
			})
		}
		page.Days = append(page.Days, cd)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarTemplate.Execute(w, page); err != nil {
		appLog.Error("calendar page: render failed", err)
	}
}

// today is civil midnight of the current date in the reference zone.
func (s *Server) today() time.Time {
	n := s.now().In(s.planner.Location())
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// dayParam reads ?date=, defaulting to today. It writes a 400 and returns
// false for a malformed date.
func (s *Server) dayParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return s.today(), true
	}
	d, err := schedule.ParseDate(v, s.planner.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return time.Time{}, false
	}
	return d, true
}

func (s *Server) weekStart() time.Weekday {
	if strings.EqualFold(s.cfg.WeekStart, "sunday") {
		return time.Sunday
	}
	return time.Monday
}

// selectSessions returns every session, or just the one named by id.
func (s *Server) selectSessions(id string) ([]model.Session, bool) {
	if id == "" {
		return s.cfg.Sessions, true
	}
	sess, ok := s.cfg.Session(id)
	if !ok {
		return nil, false
	}
	return []model.Session{sess}, true
}

func toDTOs(occ []model.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occ))
	for _, o := range occ {
		out = append(out, occurrenceDTO{
			SessionID:   o.SessionID,
			InstanceKey: o.InstanceKey,
			Summary:     o.Summary,
			Location:    o.Location,
			Date:        o.DateKey(),
			Weekday:     schedule.WeekdayLabel(o.Date),
			TimeRange:   occurrenceTimeRange(o),
			Start:       o.Start,
			End:         o.End,
		})
	}
	return out
}

func occurrenceTimeRange(o model.Occurrence) string {
	return schedule.FormatTimeRange(o.Start.Format("15:04"), o.End.Format("15:04"))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

package web

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"athand/internal/config"
	appLog "athand/internal/log"
	"athand/internal/model"
	"athand/internal/scheduler"
)

// Scheduler is the slice of the scheduler the HTTP layer needs: read the
// published state, and force a refresh cycle.
type Scheduler interface {
	Snapshot() scheduler.Snapshot
	Refresh()
}

// Server provides the HTTP status API over the scheduler's published state.
type Server struct {
	cfg   *config.Config
	sched Scheduler
	mux   *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, sched Scheduler) *Server {
	s := &Server{
		cfg:   cfg,
		sched: sched,
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="athand", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/timeline", s.handleTimeline)
	s.mux.HandleFunc("/api/next", s.handleNext)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.HandleFunc("/calendar.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is a JSON-friendly view of a single event.
type eventDTO struct {
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
}

// timelineResponse is the JSON response shape for /api/timeline.
//
// Status is "ok" when a timeline is published, "pending" before the first
// cycle ever completes, and "error" for a failed cycle; consumers should
// render "pending" as a neutral loading state, not as a failure.
type timelineResponse struct {
	Status       string     `json:"status"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	Events       []eventDTO `json:"events"`
	CurrentIndex *int       `json:"current_index"`
	Next         *eventDTO  `json:"next,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func snapshotResponse(snap scheduler.Snapshot) timelineResponse {
	resp := timelineResponse{
		Events:    []eventDTO{},
		UpdatedAt: snap.UpdatedAt,
	}

	if !snap.OK() {
		if snap.ErrKind == model.ErrNotAsked {
			resp.Status = "pending"
		} else {
			resp.Status = "error"
		}
		resp.ErrorKind = string(snap.ErrKind)
		return resp
	}

	resp.Status = "ok"
	for _, ev := range snap.Timeline.Events {
		resp.Events = append(resp.Events, eventDTO{Kind: string(ev.Kind), Time: ev.Time})
	}
	if ev, ok := snap.Timeline.Current(); ok {
		idx := snap.Timeline.CurrentIndex
		resp.CurrentIndex = &idx
		resp.Next = &eventDTO{Kind: string(ev.Kind), Time: ev.Time}
	}
	return resp
}

// handleTimeline returns the full published state: merged two-month event
// list plus the index of the upcoming event.
func (s *Server) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse(s.sched.Snapshot()))
}

// handleNext returns just the upcoming event, or 404 when the timeline is
// exhausted, failed, or not yet fetched.
func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	snap := s.sched.Snapshot()
	if !snap.OK() {
		writeError(w, http.StatusNotFound, "no timeline available")
		return
	}
	ev, ok := snap.Timeline.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no upcoming event")
		return
	}
	writeJSON(w, http.StatusOK, eventDTO{Kind: string(ev.Kind), Time: ev.Time})
}

// handleRefresh forces a fetch cycle. The trigger is coalesced by the
// scheduler, so hammering this endpoint while a cycle is in flight is
// harmless; the response is always 202.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	s.sched.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

// configResponse exposes the effective non-secret configuration.
type configResponse struct {
	Listen      string `json:"listen"`
	Address     string `json:"address"`
	Timezone    string `json:"timezone"`
	Method      int    `json:"method"`
	School      int    `json:"school"`
	RefreshCron string `json:"refresh"`
	APIBaseURL  string `json:"api_base_url"`
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Listen:      s.cfg.Listen,
		Address:     s.cfg.Address,
		Timezone:    s.cfg.Timezone,
		Method:      s.cfg.Method,
		School:      s.cfg.School,
		RefreshCron: s.cfg.RefreshCron,
		APIBaseURL:  s.cfg.APIBaseURL,
	})
}

// handleICS serves the published timeline as an iCalendar feed so any
// calendar app can subscribe to the prayer schedule.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	snap := s.sched.Snapshot()
	if !snap.OK() {
		writeError(w, http.StatusServiceUnavailable, "no timeline available")
		return
	}

	loc := resolveLocationOrLocal(s.cfg.Timezone)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("Prayer Times")

	for _, ev := range snap.Timeline.Events {
		uid := string(ev.Kind) + "-" + strconv.FormatInt(ev.Time.Unix(), 10) + "@athand"
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(snap.UpdatedAt)
		ve.SetStartAt(ev.Time.In(loc))
		ve.SetEndAt(ev.Time.In(loc))
		ve.SetSummary(string(ev.Kind))
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		appLog.Error("failed to write ICS response", err)
	}
}

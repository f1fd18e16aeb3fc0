package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/proximity.report/internal/console"
	"github.com/banshee-data/proximity.report/internal/driver"
	"github.com/banshee-data/proximity.report/internal/httputil"
	"github.com/banshee-data/proximity.report/internal/journal"
	"github.com/banshee-data/proximity.report/internal/link"
	"github.com/banshee-data/proximity.report/internal/monitoring"
	"github.com/banshee-data/proximity.report/internal/sim"
	"github.com/banshee-data/proximity.report/internal/stats"
	"github.com/banshee-data/proximity.report/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultRequestTimeout bounds how long a handler waits for the driver.
const DefaultRequestTimeout = 5 * time.Second

// Deps are the collaborators a Server reads from and commands.
type Deps struct {
	Driver  *driver.Driver
	Console *console.Console
	Stats   *stats.Tracker
	Journal *journal.Journal
	Link    *link.Link
	Units   string // default display units
}

type Server struct {
	d       *driver.Driver
	console *console.Console
	stats   *stats.Tracker
	journal *journal.Journal
	link    *link.Link
	units   string
	timeout time.Duration
}

func NewServer(deps Deps) *Server {
	u := deps.Units
	if !units.IsValid(u) {
		u = units.CM
	}
	return &Server{
		d:       deps.Driver,
		console: deps.Console,
		stats:   deps.Stats,
		journal: deps.Journal,
		link:    deps.Link,
		units:   u,
		timeout: DefaultRequestTimeout,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/start", s.command((*driver.Driver).Start))
	mux.HandleFunc("/api/stop", s.command((*driver.Driver).Stop))
	mux.HandleFunc("/api/reset", s.command((*driver.Driver).Reset))
	mux.HandleFunc("/api/speed", s.setSpeed)
	mux.HandleFunc("/api/log", s.showLog)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/link", s.showLink)
	mux.HandleFunc("/api/link/connect", s.toggleLink((*link.Link).Connect))
	mux.HandleFunc("/api/link/disconnect", s.toggleLink((*link.Link).Disconnect))
	mux.HandleFunc("/api/stream", s.stream)
	mux.HandleFunc("/charts/distance", s.distanceChart)
	mux.HandleFunc("/charts/distance.png", s.distancePlot)
	return mux
}

// StateView is a snapshot converted for display. Distances are in Units.
type StateView struct {
	sim.Snapshot
	Units                string  `json:"units"`
	DistanceDisplay      string  `json:"distance_display"`
	SpeedPercent         int     `json:"speed_percent"`
	CollisionRatePerHour float64 `json:"collision_rate_per_hour"`
}

// NewStateView converts snap to targetUnits. The min-distance sentinel is
// passed through unconverted so clients can recognise it.
func NewStateView(snap sim.Snapshot, targetUnits string) StateView {
	v := StateView{
		Snapshot:             snap,
		Units:                targetUnits,
		DistanceDisplay:      units.FormatDistance(snap.Distance, targetUnits),
		SpeedPercent:         units.SpeedPercent(snap.Speed),
		CollisionRatePerHour: snap.CollisionRatePerHour(),
	}
	v.Distance = units.ConvertDistance(snap.Distance, targetUnits)
	if snap.MinDistanceObserved != sim.MinDistanceSentinel {
		v.MinDistanceObserved = units.ConvertDistance(snap.MinDistanceObserved, targetUnits)
	}
	return v
}

func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("%w: invalid units %q, expected one of %s",
			sim.ErrInvalidArgument, u, units.GetValidUnitsString())
	}
	return u, nil
}

// writeError is httputil.WriteError, except that a driver which has shut down
// is reported as unavailable.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, driver.ErrStopped) {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.WriteError(w, err)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	u, err := s.requestUnits(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	snap, err := s.d.Snapshot(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, NewStateView(snap, u))
}

func (s *Server) command(f func(*driver.Driver, context.Context) (sim.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		ctx, cancel := s.requestContext(r)
		defer cancel()

		snap, err := f(s.d, ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, NewStateView(snap, s.units))
	}
}

// parseSpeed reads the speed multiplier from a JSON body {"speed": x} or a
// "speed" form value.
func parseSpeed(r *http.Request) (float64, error) {
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		var body struct {
			Speed *float64 `json:"speed"`
		}
		if err := httputil.ReadJSON(r, &body); err != nil {
			return 0, err
		}
		if body.Speed == nil {
			return 0, fmt.Errorf("%w: missing speed", sim.ErrInvalidArgument)
		}
		return *body.Speed, nil
	}

	raw := r.FormValue("speed")
	if raw == "" {
		return 0, fmt.Errorf("%w: missing speed", sim.ErrInvalidArgument)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: speed %q is not a number", sim.ErrInvalidArgument, raw)
	}
	return v, nil
}

func (s *Server) setSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	v, err := parseSpeed(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	snap, err := s.d.SetSpeed(ctx, v)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, NewStateView(snap, s.units))
}

func (s *Server) showLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"entries":  s.console.Entries(),
		"total":    s.console.Total(),
		"capacity": s.console.Capacity(),
	})
}

// StatsView is the /api/stats payload: the tracker summary plus the number
// of hub deliveries lost to full subscriber buffers.
type StatsView struct {
	stats.Summary
	DroppedSnapshots uint64 `json:"dropped_snapshots"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, StatsView{
		Summary:          s.stats.Summary(),
		DroppedSnapshots: s.d.Snapshots().Dropped(),
		DroppedEvents:    s.d.Events().Dropped(),
	})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := journal.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	records, err := s.journal.Events(ctx, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"run":    s.journal.Run(),
		"events": records,
	})
}

func (s *Server) showLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.link.Status())
}

func (s *Server) toggleLink(f func(*link.Link) link.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSONOK(w, f(s.link))
	}
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.d.Snapshots().ServeSSE(w, r)
}

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/config"
	"github.com/meridian-robotics/navcore/internal/httputil"
	"github.com/meridian-robotics/navcore/internal/navdb"
	"github.com/meridian-robotics/navcore/internal/pipeline"
	"github.com/meridian-robotics/navcore/internal/units"
	"github.com/meridian-robotics/navcore/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	p     *pipeline.Pipeline
	db    *navdb.DB
	units string
}

// NewServer wires the HTTP surface to a running pipeline. db may be nil when
// no run log is configured; the sessions endpoints then return 503.
func NewServer(p *pipeline.Pipeline, db *navdb.DB, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.MPS
	}
	return &Server{
		p:     p,
		db:    db,
		units: displayUnits,
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
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/nav/status", s.showStatus)
	mux.HandleFunc("/api/nav/goal", s.handleGoal)
	mux.HandleFunc("/api/nav/params", s.handleParams)
	mux.HandleFunc("/api/nav/sessions", s.listSessions)
	mux.HandleFunc("/api/nav/sessions/", s.showSessionSummary)
	mux.HandleFunc("/api/nav/version", s.showVersion)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

// statusAPI flattens the pipeline's typed quantities into plain floats for
// the wire. Speeds honor the requested display units; everything else is SI.
type statusAPI struct {
	SessionID   string            `json:"session_id"`
	Initialized bool              `json:"initialized"`
	Diverged    bool              `json:"diverged"`
	Mode        string            `json:"mode"`
	Timestamp   float64           `json:"t"`
	X           float64           `json:"x_m"`
	Y           float64           `json:"y_m"`
	Yaw         float64           `json:"yaw_rad"`
	VarX        float64           `json:"var_x"`
	VarY        float64           `json:"var_y"`
	VarYaw      float64           `json:"var_yaw"`
	Linear      float64           `json:"linear"`
	Angular     float64           `json:"angular_rps"`
	Units       string            `json:"units"`
	Counters    pipeline.Counters `json:"counters"`
}

func statusToAPI(st pipeline.Status, displayUnits string) statusAPI {
	return statusAPI{
		SessionID:   st.SessionID,
		Initialized: st.Belief.Initialized,
		Diverged:    st.Belief.Diverged,
		Mode:        string(st.Mode),
		Timestamp:   st.Belief.Timestamp.Float(),
		X:           st.Belief.Pose.X.Float(),
		Y:           st.Belief.Pose.Y.Float(),
		Yaw:         st.Belief.Pose.Yaw.Float(),
		VarX:        st.Belief.Covariance[0],
		VarY:        st.Belief.Covariance[4],
		VarYaw:      st.Belief.Covariance[8],
		Linear:      units.ConvertSpeed(st.LastCommand.Linear, displayUnits),
		Angular:     st.LastCommand.Angular.Float(),
		Units:       displayUnits,
		Counters:    st.Counters,
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	displayUnits := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.WriteJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("Invalid 'units' parameter; valid values: %s", units.GetValidUnitsString()))
			return
		}
		displayUnits = u
	}

	httputil.WriteJSONOK(w, statusToAPI(s.p.Status(), displayUnits))
}

type goalRequest struct {
	X   float64 `json:"x_m"`
	Y   float64 `json:"y_m"`
	Yaw float64 `json:"yaw_rad"`
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req goalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid goal body: %v", err))
			return
		}
		goal := belief.Pose{
			X:   units.Meters(req.X),
			Y:   units.Meters(req.Y),
			Yaw: units.Radians(req.Yaw),
		}
		if err := s.p.SetGoal(goal); err != nil {
			httputil.WriteJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to set goal: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"result": "goal set"})

	case http.MethodDelete:
		s.p.ClearGoal()
		httputil.WriteJSONOK(w, map[string]string{"result": "goal cleared"})

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.p.Config())

	case http.MethodPost:
		overlay := config.EmptyTuningConfig()
		if err := json.NewDecoder(r.Body).Decode(overlay); err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid params body: %v", err))
			return
		}

		merged := s.p.Config().Merge(overlay)
		if err := s.p.Reconfigure(merged); err != nil {
			httputil.WriteJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Failed to apply params: %v", err))
			return
		}
		httputil.WriteJSONOK(w, merged)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Run log not configured")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	ids, err := s.db.ListSessions(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteJSONOK(w, ids)
}

func (s *Server) showSessionSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Run log not configured")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/nav/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	summary, err := s.db.GetSessionSummary(sessionID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound,
			fmt.Sprintf("Failed to retrieve session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, summary)
}

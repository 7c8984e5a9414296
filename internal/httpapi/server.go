// Package httpapi serves health, metrics and read access to the stored
// series over HTTP.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/status
//	GET  /api/v1/series
//	GET  /api/v1/series/{id}/last
//	GET  /api/v1/series/{id}/records?from=&to=
//	POST /api/v1/refresh
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/xtxerr/lenedastat/internal/errors"
	"github.com/xtxerr/lenedastat/internal/logging"
	"github.com/xtxerr/lenedastat/internal/metrics"
	"github.com/xtxerr/lenedastat/internal/orchestrator"
	"github.com/xtxerr/lenedastat/internal/scheduler"
	"github.com/xtxerr/lenedastat/internal/series"
	"github.com/xtxerr/lenedastat/internal/store"
)

var log = logging.Component("httpapi")

// defaultRange is the records window when from is omitted.
const defaultRange = 7 * 24 * time.Hour

// Store is the read side of the statistics store.
type Store interface {
	Health(ctx context.Context) error
	ListSeries(ctx context.Context) ([]store.SeriesInfo, error)
	Meta(ctx context.Context, seriesID string) (series.Meta, error)
	ReadLast(ctx context.Context, seriesID string) (series.ResumeState, error)
	Records(ctx context.Context, seriesID string, from, to time.Time) ([]series.Record, error)
}

// Trigger requests an out-of-schedule cycle.
type Trigger interface {
	Trigger() bool
	Stats() scheduler.Stats
}

// Cycles reports orchestrator progress.
type Cycles interface {
	Status() map[string]orchestrator.State
	LastReport() (orchestrator.Report, bool)
}

// Config wires the server to its collaborators. Only Store is required.
type Config struct {
	Store   Store
	Trigger Trigger
	Cycles  Cycles
	Metrics *metrics.Metrics

	// AccessLog receives Apache combined log lines. Nil disables it.
	AccessLog io.Writer
}

// Server routes HTTP requests.
type Server struct {
	cfg    Config
	router *mux.Router
	now    func() time.Time
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		now:    time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Handle("/healthz", s.wrap("/healthz", s.health)).Methods(http.MethodGet)
	r.Handle("/metrics", s.cfg.Metrics.WrapHandler("/metrics", s.cfg.Metrics.Handler())).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Handle("/status", s.wrap("/api/v1/status", s.status)).Methods(http.MethodGet)
	api.Handle("/series", s.wrap("/api/v1/series", s.listSeries)).Methods(http.MethodGet)
	api.Handle("/series/{id}/last", s.wrap("/api/v1/series/{id}/last", s.last)).Methods(http.MethodGet)
	api.Handle("/series/{id}/records", s.wrap("/api/v1/series/{id}/records", s.records)).Methods(http.MethodGet)
	api.Handle("/refresh", s.wrap("/api/v1/refresh", s.refresh)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the root handler with recovery, compression and, if
// configured, access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.CompressHandler(h)
	if s.cfg.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(s.cfg.AccessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
}

func (s *Server) wrap(route string, fn http.HandlerFunc) http.Handler {
	return s.cfg.Metrics.WrapHandler(route, fn)
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Health(r.Context()); err != nil {
		log.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Active: map[string]string{}}
	if s.cfg.Cycles != nil {
		for id, st := range s.cfg.Cycles.Status() {
			resp.Active[id] = st.String()
		}
		if report, ok := s.cfg.Cycles.LastReport(); ok {
			resp.LastCycle = newCycleStatus(report)
		}
	}
	if s.cfg.Trigger != nil {
		resp.Scheduler = newSchedulerStatus(s.cfg.Trigger.Stats())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listSeries(w http.ResponseWriter, r *http.Request) {
	infos, err := s.cfg.Store.ListSeries(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}

	out := make([]seriesInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, newSeriesInfo(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) last(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	meta, err := s.cfg.Store.Meta(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	state, err := s.cfg.Store.ReadLast(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !state.HasHistory {
		writeErr(w, errors.NewNotFound("records of series", id))
		return
	}

	resp := lastResponse{
		SeriesID:    id,
		Unit:        meta.Unit,
		PeriodStart: state.LastPeriodStart.UTC(),
	}
	if meta.HasSum {
		resp.Sum = series.Float(state.LastSum)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	to := s.now().UTC()
	if v := q.Get("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeErr(w, errors.NewInvalidValue("to", v, err.Error()))
			return
		}
		to = t
	}
	from := to.Add(-defaultRange)
	if v := q.Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			writeErr(w, errors.NewInvalidValue("from", v, err.Error()))
			return
		}
		from = t
	}
	if !to.After(from) {
		writeErr(w, errors.Wrapf(errors.ErrInvalidRange, "from %s is not before to %s", from.Format(time.RFC3339), to.Format(time.RFC3339)))
		return
	}

	meta, err := s.cfg.Store.Meta(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	recs, err := s.cfg.Store.Records(r.Context(), id, from, to)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := recordsResponse{
		SeriesID: id,
		Unit:     meta.Unit,
		From:     from,
		To:       to,
		Records:  make([]record, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Records = append(resp.Records, newRecord(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	triggered := s.cfg.Trigger.Trigger()
	log.Info("refresh requested", "triggered", triggered, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, refreshResponse{Triggered: triggered})
}

// =============================================================================
// Helpers
// =============================================================================

// parseTime accepts RFC 3339 timestamps, dates and unix seconds.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.UTC(), nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339, YYYY-MM-DD or unix seconds")
	}
	return time.Unix(sec, 0).UTC(), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeErr(w http.ResponseWriter, err error) {
	status := errors.ErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

// Package api serves the current recording over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/hrvmon/internal/config"
	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/hrv"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	"codeberg.org/mutker/hrvmon/internal/metrics"
	"codeberg.org/mutker/hrvmon/internal/publish"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
	readHeaderTimeout   = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Controller is the recording the API reads and reconfigures.
type Controller interface {
	measurement.Source
	SetStatsWindow(window time.Duration)
	SetOutlierFilter(value float64)
}

type Server struct {
	ctl     Controller
	history metrics.MetricsCollector
	gauges  *Gauges
	log     logger.Logger
	router  *mux.Router
}

func NewServer(ctl Controller, history metrics.MetricsCollector, gauges *Gauges, log logger.Logger) *Server {
	s := &Server{
		ctl:     ctl,
		history: history,
		gauges:  gauges,
		log:     log,
		router:  mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gauges.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/series/{metric}", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/poincare", s.handlePoincare).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/window", s.handleSetWindow).Methods(http.MethodPut)
	api.HandleFunc("/outlier-filter", s.handleSetOutlierFilter).Methods(http.MethodPut)

	return s
}

// Handler returns the router wrapped with request logging and panic
// recovery.
func (s *Server) Handler() http.Handler {
	logged := handlers.CustomLoggingHandler(io.Discard, s.router, s.logRequest)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(logged)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Debug().
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("duration", time.Since(p.TimeStamp)).
		Msg("HTTP request")
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.New().Wrap(ErrServe, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.New().Wrap(errors.ErrShutdownFailed, err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionResponse struct {
	publish.Payload
	StartTime string `json:"start_time"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	snap := s.ctl.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Payload:   publish.NewPayload(time.Now(), snap),
		StartTime: snap.StartTime.UTC().Format(time.RFC3339Nano),
	})
}

type seriesPoint struct {
	T float64  `json:"t"`
	V *float64 `json:"v"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	metric, err := measurement.ParseMetric(mux.Vars(r)["metric"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var points []seriesPoint
	s.ctl.Read(func(rd measurement.Reader) {
		series := rd.Series(metric)
		points = make([]seriesPoint, len(series))
		for i, p := range series {
			points[i] = seriesPoint{T: p[0], V: publish.Finite(p[1])}
		}
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"metric": metric,
		"points": points,
	})
}

type poincareResponse struct {
	Inliers  []hrv.Point `json:"inliers"`
	Outliers []hrv.Point `json:"outliers"`
}

func (s *Server) handlePoincare(w http.ResponseWriter, _ *http.Request) {
	resp := poincareResponse{Inliers: []hrv.Point{}, Outliers: []hrv.Point{}}
	s.ctl.Read(func(rd measurement.Reader) {
		in, out := rd.PoincarePoints()
		resp.Inliers = append(resp.Inliers, in...)
		resp.Outliers = append(resp.Outliers, out...)
	})
	writeJSON(w, http.StatusOK, resp)
}

type historyRow struct {
	Timestamp   string               `json:"timestamp"`
	ElapsedSec  float64              `json:"elapsed_s"`
	State       string               `json:"state"`
	Messages    int                  `json:"messages"`
	RRIntervals int                  `json:"rr_intervals"`
	Stats       metrics.StatsMetrics `json:"stats"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, errors.New().WithData(ErrBadRequest, raw))
			return
		}
		limit = n
	}

	rows, err := s.history.History(r.Context(), s.ctl.Snapshot().ID.String(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to query snapshot history")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]historyRow, len(rows))
	for i, row := range rows {
		out[i] = historyRow{
			Timestamp:   row.Timestamp.UTC().Format(time.RFC3339Nano),
			ElapsedSec:  row.Elapsed.Seconds(),
			State:       row.State,
			Messages:    row.Messages,
			RRIntervals: row.RRCount,
			Stats:       row.Stats,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Window string `json:"window"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New().Wrap(ErrBadRequest, err))
		return
	}

	window, err := config.ParseDuration(body.Window)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if window < 0 {
		writeError(w, http.StatusBadRequest, errors.New().WithData(errors.ErrInvalidInterval, body.Window))
		return
	}

	s.ctl.SetStatsWindow(window)
	s.log.Info().Dur("window", window).Msg("Statistics window changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetOutlierFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New().Wrap(ErrBadRequest, err))
		return
	}
	if body.Value == nil || *body.Value < 0 || publish.Finite(*body.Value) == nil {
		writeError(w, http.StatusBadRequest, errors.New().WithMessage(ErrBadRequest, "value must be a non-negative number"))
		return
	}

	s.ctl.SetOutlierFilter(*body.Value)
	s.log.Info().Float64("outlier_filter", *body.Value).Msg("Outlier filter changed")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	var appErr errors.Error
	if errors.As(err, &appErr) {
		body["code"] = string(appErr.Code())
	}
	writeJSON(w, status, body)
}

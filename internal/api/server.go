package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/DefusalEngine/internal/engine"
	"github.com/AaronLay10/DefusalEngine/internal/events"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage"
	"github.com/AaronLay10/DefusalEngine/internal/storage/postgres"
	"github.com/AaronLay10/DefusalEngine/internal/version"
)

const shutdownTimeout = 10 * time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// EventHistory serves persisted events. The Postgres client implements it.
type EventHistory interface {
	QueryEvents(ctx context.Context, deviceID string, limit int) ([]postgres.EventRow, error)
}

// Server is the operator HTTP API over an engine.
type Server struct {
	engine    *engine.Engine
	bus       *events.Bus
	auth      *Auth
	readiness *Readiness
	registry  *prometheus.Registry
	metrics   *httpMetrics
	history   EventHistory
	started   time.Time
	mux       *http.ServeMux
}

// NewServer builds the API. A nil auth disables authentication and a nil
// registry gets a fresh one.
func NewServer(eng *engine.Engine, auth *Auth, readiness *Readiness, reg *prometheus.Registry) *Server {
	if readiness == nil {
		readiness = NewReadiness()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		engine:    eng,
		bus:       eng.Bus(),
		auth:      auth,
		readiness: readiness,
		registry:  reg,
		started:   time.Now(),
		mux:       http.NewServeMux(),
	}
	s.metrics = newHTTPMetrics(reg, s.bus, readiness, s.started)
	s.routes()
	return s
}

// SetHistory enables /events/history.
func (s *Server) SetHistory(h EventHistory) {
	s.history = h
}

// Readiness returns the tracker behind /ready.
func (s *Server) Readiness() *Readiness {
	return s.readiness
}

func (s *Server) routes() {
	// Unauthenticated, for probes and scrapers.
	s.handle("GET /health", s.healthHandler)
	s.handle("GET /ready", s.readiness.handler)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.handle("GET /types", s.auth.RequireAnyRole(s.typesHandler))
	s.handle("GET /events", s.auth.RequireAnyRole(s.eventsHandler))
	s.handle("GET /events/history", s.auth.RequireAnyRole(s.historyHandler))
	// Not instrumented: the upgrade needs the raw ResponseWriter.
	s.mux.HandleFunc("GET /ws/events", s.auth.RequireAnyRole(s.wsEventsHandler))

	s.handle("GET /devices", s.auth.RequireAnyRole(s.listDevicesHandler))
	s.handle("POST /devices", s.auth.RequireAdmin(s.registerDeviceHandler))
	s.handle("GET /devices/{id}", s.auth.RequireAnyRole(s.getDeviceHandler))
	s.handle("DELETE /devices/{id}", s.auth.RequireAdmin(s.deleteDeviceHandler))
	s.handle("GET /devices/{id}/facts", s.auth.RequireAnyRole(s.factsHandler))
	s.handle("POST /devices/{id}/modules", s.auth.RequireAdmin(s.addModuleHandler))
	s.handle("DELETE /devices/{id}/modules/{mid}", s.auth.RequireAdmin(s.removeModuleHandler))
	s.handle("POST /devices/{id}/modules/{mid}/solve", s.auth.RequireAnyRole(s.solveHandler))
	s.handle("POST /devices/{id}/strikes", s.auth.RequireAnyRole(s.strikeHandler))
}

// handle registers h with request metrics labelled by its pattern.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	labels := prometheus.Labels{"route": pattern}
	s.mux.Handle(pattern,
		promhttp.InstrumentHandlerDuration(s.metrics.duration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(s.metrics.requests.MustCurryWith(labels), h)))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// A nil or disabled tlsCfg serves plain HTTP.
func (s *Server) ListenAndServe(ctx context.Context, port int, tlsCfg *TLSConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if tlsCfg.Enabled() {
		cfg, err := tlsCfg.Load()
		if err != nil {
			return err
		}
		srv.TLSConfig = cfg
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if srv.TLSConfig != nil {
			log.Printf("API listening on %s (TLS)", srv.Addr)
			err = srv.ListenAndServeTLS("", "")
		} else {
			log.Printf("API listening on %s", srv.Addr)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return <-errCh
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "defusald",
		Version:   version.Version,
		Hostname:  host,
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) typesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry().Descriptors())
}

// eventsHandler returns buffered events, oldest first. ?device= filters and
// ?limit= keeps only the most recent.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all := s.bus.Snapshot()
	if dev := r.URL.Query().Get("device"); dev != "" {
		filtered := all[:0:0]
		for _, e := range all {
			if e.DeviceID() == dev {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "event history requires postgres")
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.history.QueryEvents(r.Context(), r.URL.Query().Get("device"), limit)
	if err != nil {
		log.Printf("event history query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "event history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listDevicesHandler(w http.ResponseWriter, r *http.Request) {
	devs, err := s.engine.Devices(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if devs == nil {
		devs = []storage.Device{}
	}
	writeJSON(w, http.StatusOK, devs)
}

func (s *Server) registerDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var spec engine.DeviceSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	view, err := s.engine.RegisterDevice(r.Context(), spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) getDeviceHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Device(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) deleteDeviceHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveDevice(r.Context(), r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) factsHandler(w http.ResponseWriter, r *http.Request) {
	facts, _, err := s.engine.Facts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facts)
}

func (s *Server) addModuleHandler(w http.ResponseWriter, r *http.Request) {
	var spec engine.ModuleSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	m, err := s.engine.AddModule(r.Context(), r.PathValue("id"), spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) removeModuleHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveModule(r.Context(), r.PathValue("id"), r.PathValue("mid")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SolveRequest is the body of a solve call.
type SolveRequest struct {
	Input solver.Blob `json:"input"`
}

// solveHandler answers 200 with the solution, or 422 with the failure when
// the solver rejected the input.
func (s *Server) solveHandler(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Input == nil {
		req.Input = solver.Blob{}
	}
	res, err := s.engine.Solve(r.Context(), r.PathValue("id"), r.PathValue("mid"), req.Input)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if res.Failure != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// StrikeResponse reports the device's strike count after a strike.
type StrikeResponse struct {
	DeviceID string `json:"device_id"`
	Strikes  int    `json:"strikes"`
}

func (s *Server) strikeHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.engine.RecordStrike(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StrikeResponse{DeviceID: id, Strikes: n})
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrDeviceNotFound), errors.Is(err, storage.ErrModuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrDeviceExists), errors.Is(err, engine.ErrDuplicateModule):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("api: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes and validates a JSON body, writing 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AaronLay10/DefusalEngine/internal/engine"
	"github.com/AaronLay10/DefusalEngine/internal/events"
	"github.com/AaronLay10/DefusalEngine/internal/modules"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage/memory"
	"github.com/AaronLay10/DefusalEngine/internal/storage/postgres"
)

type testServer struct {
	*Server
	engine *engine.Engine
	bus    *events.Bus
}

func newTestServer(t *testing.T, auth *Auth) *testServer {
	t.Helper()
	reg, err := modules.NewRegistry(solver.NewCodec(), modules.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	promReg := prometheus.NewRegistry()
	bus := events.NewBus(64)
	eng := engine.New(reg, memory.New(), bus, engine.NewMetrics(promReg))
	return &testServer{
		Server: NewServer(eng, auth, NewReadiness(), promReg),
		engine: eng,
		bus:    bus,
	}
}

// do sends a request through the full mux and returns the recorder.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func (s *testServer) registerBomb(t *testing.T) {
	t.Helper()
	w := s.do("POST", "/devices", map[string]any{
		"id":      "bomb",
		"facts":   map[string]any{"serial": "AB3CD5"},
		"modules": []map[string]any{{"id": "w1", "type": "wires"}, {"id": "mem", "type": "memory"}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do("GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	resp := decode[HealthResponse](t, w)
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
	if resp.Service != "defusald" {
		t.Errorf("expected service 'defusald', got '%s'", resp.Service)
	}
	if resp.Version == "" {
		t.Error("expected a version")
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do("GET", "/ready", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before the engine is ready, got %d", w.Code)
	}

	s.Readiness().SetEngineReady(true)
	w = s.do("GET", "/ready", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	resp := decode[ReadinessResponse](t, w)
	if !resp.Ready {
		t.Error("expected ready=true")
	}
	if resp.Checks["mqtt"].Status != StatusDegraded {
		t.Errorf("expected mqtt 'degraded', got '%s'", resp.Checks["mqtt"].Status)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerBomb(t)

	w := s.do("GET", "/devices/bomb", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	view := decode[engine.DeviceView](t, w)
	if view.Facts.Serial != "AB3CD5" {
		t.Errorf("expected serial AB3CD5, got %q", view.Facts.Serial)
	}
	if len(view.Modules) != 2 {
		t.Errorf("expected 2 modules, got %d", len(view.Modules))
	}

	w = s.do("GET", "/devices", nil)
	if devs := decode[[]map[string]any](t, w); len(devs) != 1 {
		t.Errorf("expected 1 device, got %d", len(devs))
	}

	w = s.do("POST", "/devices", map[string]any{"id": "bomb"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", w.Code)
	}

	w = s.do("DELETE", "/devices/bomb", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", w.Code)
	}
	w = s.do("GET", "/devices/bomb", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestRegisterDeviceValidation(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name string
		body any
	}{
		{"invalid JSON", "{not json"},
		{"module without type", map[string]any{"modules": []map[string]any{{"id": "m"}}}},
		{"long id", map[string]any{"id": strings.Repeat("x", 65)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do("POST", "/devices", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestSolveEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerBomb(t)

	w := s.do("POST", "/devices/bomb/modules/w1/solve", map[string]any{
		"input": map[string]any{"wires": []string{"red", "blue", "white"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[engine.SolveResult](t, w)
	if !res.Solved {
		t.Error("expected solved=true")
	}
	if res.Solution["cut"] != float64(3) {
		t.Errorf("expected cut 3, got %v", res.Solution["cut"])
	}

	w = s.do("POST", "/devices/bomb/modules/w1/solve", map[string]any{
		"input": map[string]any{"wires": []string{"red"}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	res = decode[engine.SolveResult](t, w)
	if res.Failure == nil || res.Failure.Kind != solver.KindValidation {
		t.Errorf("expected a validation failure, got %+v", res.Failure)
	}

	w = s.do("POST", "/devices/bomb/modules/nope/solve", map[string]any{"input": map[string]any{}})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown module: expected 404, got %d", w.Code)
	}
}

func TestModuleEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerBomb(t)

	w := s.do("POST", "/devices/bomb/modules", map[string]any{"id": "btn", "type": "button"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = s.do("POST", "/devices/bomb/modules", map[string]any{"id": "btn", "type": "button"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate add: expected 409, got %d", w.Code)
	}
	w = s.do("POST", "/devices/bomb/modules", map[string]any{"id": "m"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing type: expected 400, got %d", w.Code)
	}
	w = s.do("POST", "/devices/ghost/modules", map[string]any{"type": "button"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device: expected 404, got %d", w.Code)
	}

	w = s.do("GET", "/devices/bomb/facts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("facts: expected 200, got %d", w.Code)
	}
	facts := decode[map[string]any](t, w)
	if mods, _ := facts["modules"].([]any); len(mods) != 3 {
		t.Errorf("expected 3 sibling modules in facts, got %v", facts["modules"])
	}

	w = s.do("DELETE", "/devices/bomb/modules/btn", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("remove: expected 204, got %d", w.Code)
	}
	w = s.do("DELETE", "/devices/bomb/modules/btn", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second remove: expected 404, got %d", w.Code)
	}
}

func TestStrikeEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerBomb(t)

	for want := 1; want <= 2; want++ {
		w := s.do("POST", "/devices/bomb/strikes", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if resp := decode[StrikeResponse](t, w); resp.Strikes != want {
			t.Errorf("expected %d strikes, got %d", want, resp.Strikes)
		}
	}
	if w := s.do("POST", "/devices/ghost/strikes", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestTypesEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do("GET", "/types", nil)
	descs := decode[[]solver.Descriptor](t, w)
	if len(descs) != 10 {
		t.Errorf("expected 10 module types, got %d", len(descs))
	}
}

func TestEventsEndpointFilters(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerBomb(t)
	s.do("POST", "/devices/bomb/strikes", nil)
	s.bus.Emit(events.LevelInfo, events.SystemStartup, "", nil)

	all := decode[[]events.Event](t, s.do("GET", "/events", nil))
	if len(all) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(all))
	}

	mine := decode[[]events.Event](t, s.do("GET", "/events?device=bomb", nil))
	for _, e := range mine {
		if e.DeviceID() != "bomb" {
			t.Errorf("unexpected event for device %q", e.DeviceID())
		}
	}
	if len(mine) != len(all)-1 {
		t.Errorf("expected %d device events, got %d", len(all)-1, len(mine))
	}

	last := decode[[]events.Event](t, s.do("GET", "/events?limit=1", nil))
	if len(last) != 1 || last[0].Name != events.SystemStartup {
		t.Errorf("expected only the latest event, got %+v", last)
	}

	if w := s.do("GET", "/events?limit=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", w.Code)
	}
}

type fakeHistory struct {
	rows   []postgres.EventRow
	err    error
	device string
	limit  int
}

func (f *fakeHistory) QueryEvents(_ context.Context, deviceID string, limit int) ([]postgres.EventRow, error) {
	f.device, f.limit = deviceID, limit
	return f.rows, f.err
}

func TestHistoryEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	if w := s.do("GET", "/events/history", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without history: expected 503, got %d", w.Code)
	}

	h := &fakeHistory{rows: []postgres.EventRow{{EventID: 7, Event: events.StrikeAdded}}}
	s.SetHistory(h)
	w := s.do("GET", "/events/history?device=bomb&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rows := decode[[]postgres.EventRow](t, w)
	if len(rows) != 1 || rows[0].EventID != 7 {
		t.Errorf("unexpected rows %+v", rows)
	}
	if h.device != "bomb" || h.limit != 5 {
		t.Errorf("query got device=%q limit=%d", h.device, h.limit)
	}

	h.err = errors.New("connection refused")
	if w := s.do("GET", "/events/history", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("query error: expected 500, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerBomb(t)
	s.do("POST", "/devices/bomb/modules/w1/solve", map[string]any{
		"input": map[string]any{"wires": []string{"red", "blue", "white"}},
	})

	w := s.do("GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"defusal_build_info",
		"defusal_uptime_seconds",
		`defusal_http_requests_total{code="201",method="post",route="POST /devices"} 1`,
		`defusal_solves_total{outcome="solved",type="wires"} 1`,
		"defusal_devices 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

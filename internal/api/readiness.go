package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// Check statuses reported by /ready.
const (
	StatusOK       = "ok"
	StatusNotReady = "not_ready"
	StatusDegraded = "degraded"
)

// Readiness tracks the state of the engine and its dependencies. An optional
// dependency that is down degrades the service without failing readiness.
type Readiness struct {
	mu                sync.RWMutex
	engineReady       bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// NewReadiness returns a tracker with nothing ready and both dependencies
// optional.
func NewReadiness() *Readiness {
	return &Readiness{mqttOptional: true, postgresOptional: true}
}

func (r *Readiness) SetEngineReady(ready bool) {
	r.mu.Lock()
	r.engineReady = ready
	r.mu.Unlock()
}

func (r *Readiness) SetMQTT(connected, optional bool) {
	r.mu.Lock()
	r.mqttConnected, r.mqttOptional = connected, optional
	r.mu.Unlock()
}

func (r *Readiness) SetPostgres(connected, optional bool) {
	r.mu.Lock()
	r.postgresConnected, r.postgresOptional = connected, optional
	r.mu.Unlock()
}

// MQTTConnected reports the last known broker state.
func (r *Readiness) MQTTConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mqttConnected
}

// PostgresConnected reports the last known database state.
func (r *Readiness) PostgresConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.postgresConnected
}

// Check is one dependency's status.
type Check struct {
	Status string `json:"status"`
}

// ReadinessResponse is the /ready body.
type ReadinessResponse struct {
	Ready       bool             `json:"ready"`
	Checks      map[string]Check `json:"checks"`
	NotReadyMsg string           `json:"message,omitempty"`
}

// Evaluate computes the readiness response.
func (r *Readiness) Evaluate() ReadinessResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]Check, 3)}
	var failing []string

	dep := func(name string, up, optional bool) {
		switch {
		case up:
			resp.Checks[name] = Check{Status: StatusOK}
		case optional:
			resp.Checks[name] = Check{Status: StatusDegraded}
		default:
			resp.Checks[name] = Check{Status: StatusNotReady}
			failing = append(failing, name)
		}
	}
	dep("engine", r.engineReady, false)
	dep("mqtt", r.mqttConnected, r.mqttOptional)
	dep("postgres", r.postgresConnected, r.postgresOptional)

	if len(failing) > 0 {
		sort.Strings(failing)
		resp.Ready = false
		resp.NotReadyMsg = "not ready: " + strings.Join(failing, ", ")
	}
	return resp
}

func (r *Readiness) handler(w http.ResponseWriter, _ *http.Request) {
	resp := r.Evaluate()
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

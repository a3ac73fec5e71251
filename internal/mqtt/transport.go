package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/DefusalEngine/internal/engine"
	"github.com/AaronLay10/DefusalEngine/internal/events"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage"
)

// Engine is what the transport drives. *engine.Engine implements it.
type Engine interface {
	RegisterDevice(ctx context.Context, spec engine.DeviceSpec) (engine.DeviceView, error)
	Solve(ctx context.Context, deviceID, moduleID string, input solver.Blob) (engine.SolveResult, error)
	MarkSolved(ctx context.Context, deviceID, moduleID string, solved bool) error
	RecordStrike(ctx context.Context, deviceID string) (int, error)
}

// SolveRequest is the payload of a solve message.
type SolveRequest struct {
	RequestID string      `json:"request_id,omitempty"`
	Input     solver.Blob `json:"input"`
}

// SolveReply is published on the module's result topic.
type SolveReply struct {
	RequestID string `json:"request_id,omitempty"`
	engine.SolveResult
	Error string `json:"error,omitempty"`
}

// StatusReply is published on the device's status topic.
type StatusReply struct {
	Kind    string   `json:"kind"`
	OK      bool     `json:"ok"`
	Strikes int      `json:"strikes,omitempty"`
	Modules []string `json:"modules,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Transport routes device messages to the engine and publishes replies.
type Transport struct {
	broker  Broker
	engine  Engine
	bus     *events.Bus
	topics  Topics
	monitor *Monitor
	timeout time.Duration

	mu         sync.Mutex
	subscribed map[string]bool
}

// NewTransport creates a transport. The monitor may be nil.
func NewTransport(broker Broker, eng Engine, bus *events.Bus, topics Topics, monitor *Monitor) *Transport {
	return &Transport{
		broker:     broker,
		engine:     eng,
		bus:        bus,
		topics:     topics,
		monitor:    monitor,
		timeout:    5 * time.Second,
		subscribed: make(map[string]bool),
	}
}

// Subscribe subscribes to every inbound topic not yet subscribed.
// It is idempotent and safe to call on each reconnect after ClearSubscriptions.
func (t *Transport) Subscribe() error {
	var errs []error
	for _, topic := range t.topics.Subscriptions() {
		t.mu.Lock()
		done := t.subscribed[topic]
		t.mu.Unlock()
		if done {
			continue
		}

		if err := t.broker.Subscribe(topic, t.handle); err != nil {
			errs = append(errs, err)
			t.bus.Emit(events.LevelError, events.DeviceError, "failed to subscribe", map[string]interface{}{
				"topic": topic,
				"error": err.Error(),
			})
			continue
		}
		t.mu.Lock()
		t.subscribed[topic] = true
		t.mu.Unlock()
	}
	return errors.Join(errs...)
}

// ClearSubscriptions clears the subscription tracking.
// Call this on disconnect to allow re-subscription on reconnect.
func (t *Transport) ClearSubscriptions() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribed = make(map[string]bool)
}

// IsSubscribed returns true if the topic is already subscribed.
func (t *Transport) IsSubscribed(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribed[topic]
}

func (t *Transport) handle(_ paho.Client, msg paho.Message) {
	route, ok := t.topics.Parse(msg.Topic())
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	t.Dispatch(ctx, route, msg.Payload())
}

// Dispatch handles one inbound message.
func (t *Transport) Dispatch(ctx context.Context, route Route, payload []byte) {
	if route.Kind != KindHeartbeat {
		var body interface{}
		if err := json.Unmarshal(payload, &body); err != nil {
			body = string(payload)
		}
		t.bus.Emit(events.LevelInfo, events.DeviceInput, "", map[string]interface{}{
			"device_id": route.DeviceID,
			"module_id": route.ModuleID,
			"kind":      route.Kind,
			"payload":   body,
		})
	}

	switch route.Kind {
	case KindRegister:
		t.handleRegister(ctx, route, payload)
	case KindHeartbeat:
		if t.monitor != nil {
			t.monitor.Heartbeat(route.DeviceID)
		}
	case KindStrike:
		t.handleStrike(ctx, route)
	case KindSolve:
		t.handleSolve(ctx, route, payload)
	case KindSolved:
		t.handleSolved(ctx, route, payload)
	}
}

func (t *Transport) handleRegister(ctx context.Context, route Route, payload []byte) {
	reg, err := ParseRegistration(route.DeviceID, payload)
	if err != nil {
		t.deviceError(route, "registration validation failed", err)
		t.publish(t.topics.Status(route.DeviceID), StatusReply{Kind: KindRegister, Error: err.Error()})
		return
	}

	reconnect := false
	view, err := t.engine.RegisterDevice(ctx, reg.DeviceSpec())
	if errors.Is(err, storage.ErrDeviceExists) {
		reconnect, err = true, nil
	}
	if err != nil {
		t.deviceError(route, "registration failed", err)
		t.publish(t.topics.Status(route.DeviceID), StatusReply{Kind: KindRegister, Error: err.Error()})
		return
	}
	if t.monitor != nil {
		t.monitor.Register(route.DeviceID, reg.Device.HeartbeatSec, reconnect)
	}

	reply := StatusReply{Kind: KindRegister, OK: true}
	for _, m := range view.Modules {
		reply.Modules = append(reply.Modules, m.ID)
	}
	if reconnect {
		for _, m := range reg.Modules {
			reply.Modules = append(reply.Modules, m.ID)
		}
	}
	t.publish(t.topics.Status(route.DeviceID), reply)
}

func (t *Transport) handleStrike(ctx context.Context, route Route) {
	n, err := t.engine.RecordStrike(ctx, route.DeviceID)
	if err != nil {
		t.deviceError(route, "strike not recorded", err)
		t.publish(t.topics.Status(route.DeviceID), StatusReply{Kind: KindStrike, Error: err.Error()})
		return
	}
	t.publish(t.topics.Status(route.DeviceID), StatusReply{Kind: KindStrike, OK: true, Strikes: n})
}

func (t *Transport) handleSolve(ctx context.Context, route Route, payload []byte) {
	var req SolveRequest
	reply := SolveReply{SolveResult: engine.SolveResult{DeviceID: route.DeviceID, ModuleID: route.ModuleID}}
	if err := json.Unmarshal(payload, &req); err != nil {
		reply.Error = fmt.Sprintf("invalid solve JSON: %v", err)
		t.publish(t.topics.Result(route.DeviceID, route.ModuleID), reply)
		return
	}
	reply.RequestID = req.RequestID

	res, err := t.engine.Solve(ctx, route.DeviceID, route.ModuleID, req.Input)
	if err != nil {
		t.deviceError(route, "solve failed", err)
		reply.Error = err.Error()
		t.publish(t.topics.Result(route.DeviceID, route.ModuleID), reply)
		return
	}
	reply.SolveResult = res
	t.publish(t.topics.Result(route.DeviceID, route.ModuleID), reply)
}

func (t *Transport) handleSolved(ctx context.Context, route Route, payload []byte) {
	var body struct {
		Solved *bool `json:"solved"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Solved == nil {
		t.deviceError(route, "solved report needs {\"solved\":bool}", err)
		return
	}
	if err := t.engine.MarkSolved(ctx, route.DeviceID, route.ModuleID, *body.Solved); err != nil {
		t.deviceError(route, "solved report rejected", err)
	}
}

func (t *Transport) deviceError(route Route, msg string, err error) {
	fields := map[string]interface{}{
		"device_id": route.DeviceID,
		"kind":      route.Kind,
	}
	if route.ModuleID != "" {
		fields["module_id"] = route.ModuleID
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	t.bus.Emit(events.LevelError, events.DeviceError, msg, fields)
}

func (t *Transport) publish(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: failed to encode reply for %s: %v", topic, err)
		return
	}
	if err := t.broker.Publish(topic, data); err != nil {
		log.Printf("mqtt: failed to publish to %s: %v", topic, err)
	}
}

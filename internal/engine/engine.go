// Package engine ties the solver registry to persistent devices. It serializes
// solves per module, persists state only on success, and reports every change
// on the event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/events"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/storage"
)

// ErrDuplicateModule is returned when a registration names the same module
// twice.
var ErrDuplicateModule = errors.New("duplicate module id")

// ModuleSpec describes a module to mount. An empty ID is generated.
type ModuleSpec struct {
	ID   string            `json:"id,omitempty" validate:"omitempty,max=64"`
	Type device.ModuleType `json:"type" validate:"required"`
}

// DeviceSpec describes a device to register. An empty ID is generated.
type DeviceSpec struct {
	ID      string       `json:"id,omitempty" validate:"omitempty,max=64"`
	Name    string       `json:"name,omitempty"`
	Facts   device.Facts `json:"facts"`
	Modules []ModuleSpec `json:"modules" validate:"dive"`
}

// DeviceView is a device with its modules.
type DeviceView struct {
	storage.Device
	Modules []storage.Module `json:"modules"`
}

// SolveResult reports one solve. Failure is set when the solver rejected the
// input; the module's stored state is then unchanged.
type SolveResult struct {
	DeviceID string            `json:"device_id"`
	ModuleID string            `json:"module_id"`
	Type     device.ModuleType `json:"type"`
	Solved   bool              `json:"solved"`
	Solution solver.Blob       `json:"solution,omitempty"`
	Failure  *solver.Failure   `json:"failure,omitempty"`
}

// Engine runs solves against stored devices.
type Engine struct {
	registry *solver.Registry
	store    storage.Store
	bus      *events.Bus
	metrics  *Metrics
	locks    *keyedMutex
	dirty    *dirtySet
}

// New creates an engine. A nil bus uses the process default; nil metrics are
// created unregistered.
func New(registry *solver.Registry, store storage.Store, bus *events.Bus, metrics *Metrics) *Engine {
	if bus == nil {
		bus = events.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{
		registry: registry,
		store:    store,
		bus:      bus,
		metrics:  metrics,
		locks:    newKeyedMutex(),
		dirty:    newDirtySet(metrics.RefreshBacklog),
	}
}

// Registry returns the solver registry.
func (e *Engine) Registry() *solver.Registry {
	return e.registry
}

// Bus returns the event bus the engine reports on.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// RegisterDevice stores a new device and its modules.
func (e *Engine) RegisterDevice(ctx context.Context, spec DeviceSpec) (DeviceView, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	seen := make(map[string]bool, len(spec.Modules))
	for i := range spec.Modules {
		if spec.Modules[i].ID == "" {
			spec.Modules[i].ID = uuid.NewString()
		}
		if seen[spec.Modules[i].ID] {
			return DeviceView{}, fmt.Errorf("module %s: %w", spec.Modules[i].ID, ErrDuplicateModule)
		}
		seen[spec.Modules[i].ID] = true
	}

	if err := e.store.CreateDevice(ctx, storage.Device{ID: spec.ID, Name: spec.Name, Facts: spec.Facts}); err != nil {
		return DeviceView{}, fmt.Errorf("failed to create device: %w", err)
	}
	for _, m := range spec.Modules {
		if err := e.store.PutModule(ctx, storage.Module{ID: m.ID, DeviceID: spec.ID, Type: m.Type}); err != nil {
			return DeviceView{}, fmt.Errorf("failed to add module %s: %w", m.ID, err)
		}
	}
	e.metrics.Devices.Inc()

	e.emit(events.LevelInfo, events.DeviceRegistered, "", map[string]interface{}{
		"device_id": spec.ID,
		"modules":   len(spec.Modules),
	})
	return e.Device(ctx, spec.ID)
}

// Device returns a device and its modules.
func (e *Engine) Device(ctx context.Context, deviceID string) (DeviceView, error) {
	d, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		return DeviceView{}, err
	}
	mods, err := e.store.ListModules(ctx, deviceID)
	if err != nil {
		return DeviceView{}, err
	}
	return DeviceView{Device: d, Modules: mods}, nil
}

// Devices lists every registered device without modules.
func (e *Engine) Devices(ctx context.Context) ([]storage.Device, error) {
	return e.store.ListDevices(ctx)
}

// RemoveDevice deletes a device and all of its modules.
func (e *Engine) RemoveDevice(ctx context.Context, deviceID string) error {
	if err := e.store.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}
	e.metrics.Devices.Dec()
	e.emit(events.LevelInfo, events.DeviceRemoved, "", map[string]interface{}{"device_id": deviceID})
	return nil
}

// AddModule mounts a module on an existing device.
func (e *Engine) AddModule(ctx context.Context, deviceID string, spec ModuleSpec) (storage.Module, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	unlock := e.locks.Lock(moduleKey(deviceID, spec.ID))
	defer unlock()

	if _, err := e.store.GetModule(ctx, deviceID, spec.ID); err == nil {
		return storage.Module{}, fmt.Errorf("module %s: %w", spec.ID, ErrDuplicateModule)
	} else if !errors.Is(err, storage.ErrModuleNotFound) {
		return storage.Module{}, err
	}

	m := storage.Module{ID: spec.ID, DeviceID: deviceID, Type: spec.Type}
	if err := e.store.PutModule(ctx, m); err != nil {
		return storage.Module{}, err
	}
	e.dirty.Mark(deviceID)
	e.emit(events.LevelInfo, events.ModuleUpdated, "module added", moduleFields(m))
	return e.store.GetModule(ctx, deviceID, spec.ID)
}

// RemoveModule unmounts a module. Siblings that depend on it are refreshed
// by the reactor.
func (e *Engine) RemoveModule(ctx context.Context, deviceID, moduleID string) error {
	unlock := e.locks.Lock(moduleKey(deviceID, moduleID))
	defer unlock()

	m, err := e.store.GetModule(ctx, deviceID, moduleID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteModule(ctx, deviceID, moduleID); err != nil {
		return err
	}
	e.dirty.Mark(deviceID)
	e.emit(events.LevelInfo, events.ModuleRemoved, "", moduleFields(m))
	return nil
}

// Facts assembles the solver view of a device: its stored facts plus a
// summary of every mounted module.
func (e *Engine) Facts(ctx context.Context, deviceID string) (device.Facts, []storage.Module, error) {
	d, err := e.store.GetDevice(ctx, deviceID)
	if err != nil {
		return device.Facts{}, nil, err
	}
	mods, err := e.store.ListModules(ctx, deviceID)
	if err != nil {
		return device.Facts{}, nil, err
	}

	facts := d.Facts
	facts.Modules = make([]device.Sibling, 0, len(mods))
	for _, m := range mods {
		sib := device.Sibling{ID: m.ID, Type: m.Type, Solved: m.Solved}
		e.registry.Annotate(m.State, &sib)
		facts.Modules = append(facts.Modules, sib)
	}
	return facts, mods, nil
}

// Solve runs one operator input through the module's solver. Storage and
// lookup errors are returned as err; solver rejections come back in
// SolveResult.Failure.
func (e *Engine) Solve(ctx context.Context, deviceID, moduleID string, input solver.Blob) (SolveResult, error) {
	unlock := e.locks.Lock(moduleKey(deviceID, moduleID))
	defer unlock()

	facts, mods, err := e.Facts(ctx, deviceID)
	if err != nil {
		return SolveResult{}, err
	}
	m, ok := findModule(mods, moduleID)
	if !ok {
		return SolveResult{}, fmt.Errorf("module %s/%s: %w", deviceID, moduleID, storage.ErrModuleNotFound)
	}

	start := time.Now()
	out := e.registry.Solve(m.Type, solver.Request{
		Module: m.ID,
		Facts:  facts,
		State:  m.State,
		Input:  input,
	})
	e.metrics.SolveDuration.WithLabelValues(string(m.Type)).Observe(time.Since(start).Seconds())

	res := SolveResult{DeviceID: deviceID, ModuleID: moduleID, Type: m.Type}
	if !out.OK() {
		res.Failure = out.Failure
		res.Solved = m.Solved
		e.metrics.Solves.WithLabelValues(string(m.Type), outcomeLabel(string(out.Failure.Kind))).Inc()

		fields := moduleFields(m)
		fields["kind"] = string(out.Failure.Kind)
		fields["reason"] = out.Failure.Reason
		e.emit(events.LevelWarn, events.ModuleFailed, out.Failure.Error(), fields)
		return res, nil
	}

	// Solved only ever goes from false to true.
	wasSolved := m.Solved
	m.State = out.State
	m.Solution = out.Solution
	m.Solved = m.Solved || out.Solved
	if err := e.store.PutModule(ctx, m); err != nil {
		return SolveResult{}, fmt.Errorf("failed to persist module %s: %w", moduleID, err)
	}
	e.dirty.Mark(deviceID)

	res.Solved = m.Solved
	res.Solution = out.Solution

	name, outcome := events.ModuleUpdated, outcomeProgress
	if m.Solved {
		outcome = outcomeSolved
		if !wasSolved {
			name = events.ModuleSolved
		}
	}
	e.metrics.Solves.WithLabelValues(string(m.Type), outcome).Inc()
	fields := moduleFields(m)
	fields["solved"] = m.Solved
	e.emit(events.LevelInfo, name, "", fields)
	return res, nil
}

// MarkSolved sets the solved flag of a module the engine has no solver for,
// as reported by the device itself. A solved module stays solved; a later
// report of false is ignored.
func (e *Engine) MarkSolved(ctx context.Context, deviceID, moduleID string, solved bool) error {
	unlock := e.locks.Lock(moduleKey(deviceID, moduleID))
	defer unlock()

	m, err := e.store.GetModule(ctx, deviceID, moduleID)
	if err != nil {
		return err
	}
	if m.Solved || !solved {
		return nil
	}
	m.Solved = true
	if err := e.store.PutModule(ctx, m); err != nil {
		return fmt.Errorf("failed to persist module %s: %w", moduleID, err)
	}
	e.dirty.Mark(deviceID)

	fields := moduleFields(m)
	fields["solved"] = true
	e.emit(events.LevelInfo, events.ModuleSolved, "reported by device", fields)
	return nil
}

// RecordStrike adds a strike to the device and returns the new count.
func (e *Engine) RecordStrike(ctx context.Context, deviceID string) (int, error) {
	n, err := e.store.AddStrike(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	e.metrics.Strikes.Inc()
	e.dirty.Mark(deviceID)
	e.emit(events.LevelWarn, events.StrikeAdded, "", map[string]interface{}{
		"device_id": deviceID,
		"strikes":   n,
	})
	return n, nil
}

// RefreshDevice recomputes the solution of every module on the device whose
// answer depends on its siblings. Only the solution and solved flag are
// written; state is untouched. A device that no longer exists is a no-op.
func (e *Engine) RefreshDevice(ctx context.Context, deviceID string) error {
	mods, err := e.store.ListModules(ctx, deviceID)
	if errors.Is(err, storage.ErrDeviceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, m := range mods {
		if !e.registry.Refreshes(m.Type) {
			continue
		}
		if err := e.refreshModule(ctx, deviceID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) refreshModule(ctx context.Context, deviceID, moduleID string) error {
	unlock := e.locks.Lock(moduleKey(deviceID, moduleID))
	defer unlock()

	facts, mods, err := e.Facts(ctx, deviceID)
	if errors.Is(err, storage.ErrDeviceNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	target, ok := findModule(mods, moduleID)
	if !ok {
		return nil
	}

	var instances []solver.Snapshot
	for _, m := range mods {
		if m.Type == target.Type {
			instances = append(instances, solver.Snapshot{ID: m.ID, State: m.State, Solution: m.Solution})
		}
	}

	out, ok := e.registry.Refresh(target.Type, solver.RefreshRequest{
		Target:    moduleID,
		Facts:     facts,
		Instances: instances,
	})
	if !ok {
		return nil
	}
	if !out.OK() {
		e.metrics.Refreshes.WithLabelValues(string(target.Type), outcomeLabel(string(out.Failure.Kind))).Inc()
		fields := moduleFields(target)
		fields["kind"] = string(out.Failure.Kind)
		fields["reason"] = out.Failure.Reason
		e.emit(events.LevelWarn, events.ModuleFailed, "refresh: "+out.Failure.Error(), fields)
		return nil
	}

	solved := target.Solved || out.Solved
	if target.Solved == solved && reflect.DeepEqual(target.Solution, out.Solution) {
		e.metrics.Refreshes.WithLabelValues(string(target.Type), outcomeUnchanged).Inc()
		return nil
	}
	target.Solution = out.Solution
	target.Solved = solved
	if err := e.store.PutModule(ctx, target); err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			return nil
		}
		return fmt.Errorf("failed to persist refresh of %s: %w", moduleID, err)
	}

	e.metrics.Refreshes.WithLabelValues(string(target.Type), outcomeProgress).Inc()
	fields := moduleFields(target)
	fields["solved"] = solved
	e.emit(events.LevelInfo, events.ModuleRefreshed, "", fields)
	return nil
}

func (e *Engine) emit(level, name, msg string, fields map[string]interface{}) {
	// Event names are constants from the registry, so Validate cannot fail.
	_, _ = e.bus.Emit(level, name, msg, fields)
}

func moduleFields(m storage.Module) map[string]interface{} {
	return map[string]interface{}{
		"device_id": m.DeviceID,
		"module_id": m.ID,
		"type":      string(m.Type),
	}
}

func findModule(mods []storage.Module, id string) (storage.Module, bool) {
	for _, m := range mods {
		if m.ID == id {
			return m, true
		}
	}
	return storage.Module{}, false
}

// SyncMetrics sets the device gauge from the store. Call once at startup.
func (e *Engine) SyncMetrics(ctx context.Context) error {
	devices, err := e.store.ListDevices(ctx)
	if err != nil {
		return err
	}
	e.metrics.Devices.Set(float64(len(devices)))
	return nil
}

// Package memory is an in-process Store used by tests, the CLI and as the
// server fallback when Postgres is unavailable.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/DefusalEngine/internal/storage"
)

// Store keeps devices and modules in maps guarded by a single lock.
type Store struct {
	mu      sync.RWMutex
	devices map[string]storage.Device
	modules map[string]map[string]storage.Module
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		devices: make(map[string]storage.Device),
		modules: make(map[string]map[string]storage.Module),
		now:     time.Now,
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) CreateDevice(_ context.Context, d storage.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[d.ID]; exists {
		return fmt.Errorf("device %s: %w", d.ID, storage.ErrDeviceExists)
	}
	now := s.now().UTC()
	d.Facts = storage.CloneFacts(d.Facts)
	d.CreatedAt, d.UpdatedAt = now, now
	s.devices[d.ID] = d
	s.modules[d.ID] = make(map[string]storage.Module)
	return nil
}

func (s *Store) GetDevice(_ context.Context, id string) (storage.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return storage.Device{}, fmt.Errorf("device %s: %w", id, storage.ErrDeviceNotFound)
	}
	d.Facts = storage.CloneFacts(d.Facts)
	return d, nil
}

func (s *Store) ListDevices(_ context.Context) ([]storage.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Device, 0, len(s.devices))
	for _, d := range s.devices {
		d.Facts = storage.CloneFacts(d.Facts)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("device %s: %w", id, storage.ErrDeviceNotFound)
	}
	delete(s.devices, id)
	delete(s.modules, id)
	return nil
}

func (s *Store) AddStrike(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return 0, fmt.Errorf("device %s: %w", id, storage.ErrDeviceNotFound)
	}
	d.Facts.Strikes++
	d.UpdatedAt = s.now().UTC()
	s.devices[id] = d
	return d.Facts.Strikes, nil
}

func (s *Store) PutModule(_ context.Context, m storage.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mods, ok := s.modules[m.DeviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", m.DeviceID, storage.ErrDeviceNotFound)
	}
	m.State = storage.CloneBlob(m.State)
	m.Solution = storage.CloneBlob(m.Solution)
	m.UpdatedAt = s.now().UTC()
	mods[m.ID] = m
	return nil
}

func (s *Store) GetModule(_ context.Context, deviceID, moduleID string) (storage.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mods, ok := s.modules[deviceID]
	if !ok {
		return storage.Module{}, fmt.Errorf("device %s: %w", deviceID, storage.ErrDeviceNotFound)
	}
	m, ok := mods[moduleID]
	if !ok {
		return storage.Module{}, fmt.Errorf("module %s/%s: %w", deviceID, moduleID, storage.ErrModuleNotFound)
	}
	return cloneModule(m), nil
}

func (s *Store) ListModules(_ context.Context, deviceID string) ([]storage.Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mods, ok := s.modules[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, storage.ErrDeviceNotFound)
	}
	out := make([]storage.Module, 0, len(mods))
	for _, m := range mods {
		out = append(out, cloneModule(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteModule(_ context.Context, deviceID, moduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mods, ok := s.modules[deviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", deviceID, storage.ErrDeviceNotFound)
	}
	if _, ok := mods[moduleID]; !ok {
		return fmt.Errorf("module %s/%s: %w", deviceID, moduleID, storage.ErrModuleNotFound)
	}
	delete(mods, moduleID)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func cloneModule(m storage.Module) storage.Module {
	m.State = storage.CloneBlob(m.State)
	m.Solution = storage.CloneBlob(m.Solution)
	return m
}

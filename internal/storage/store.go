// Package storage defines persistence for devices and their module instances.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrModuleNotFound = errors.New("module not found")
	ErrDeviceExists   = errors.New("device already exists")
)

// Device is a registered puzzle device. Facts.Modules is never stored; it is
// rebuilt from the module records on read.
type Device struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Facts     device.Facts `json:"facts"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Module is one module instance mounted on a device.
type Module struct {
	ID        string            `json:"id"`
	DeviceID  string            `json:"device_id"`
	Type      device.ModuleType `json:"type"`
	Solved    bool              `json:"solved"`
	State     solver.Blob       `json:"state,omitempty"`
	Solution  solver.Blob       `json:"solution,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store persists devices and modules. Implementations must be safe for
// concurrent use; callers serialize writes to a single module themselves.
type Store interface {
	CreateDevice(ctx context.Context, d Device) error
	GetDevice(ctx context.Context, id string) (Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
	DeleteDevice(ctx context.Context, id string) error
	// AddStrike increments the device's strike count and returns the new total.
	AddStrike(ctx context.Context, id string) (int, error)

	// PutModule inserts or replaces a module record.
	PutModule(ctx context.Context, m Module) error
	GetModule(ctx context.Context, deviceID, moduleID string) (Module, error)
	// ListModules returns the device's modules ordered by ID.
	ListModules(ctx context.Context, deviceID string) ([]Module, error)
	DeleteModule(ctx context.Context, deviceID, moduleID string) error

	Close() error
}

// CloneBlob returns a deep copy of b.
func CloneBlob(b solver.Blob) solver.Blob {
	if b == nil {
		return nil
	}
	out := make(solver.Blob, len(b))
	for k, v := range b {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case solver.Blob:
		return CloneBlob(t)
	case map[string]any:
		return map[string]any(CloneBlob(solver.Blob(t)))
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

// CloneFacts returns a copy of f that shares no maps or slices with it.
func CloneFacts(f device.Facts) device.Facts {
	out := f
	if f.Indicators != nil {
		out.Indicators = make(map[string]bool, len(f.Indicators))
		for k, v := range f.Indicators {
			out.Indicators[k] = v
		}
	}
	if f.PortPlates != nil {
		out.PortPlates = make([]device.PortPlate, len(f.PortPlates))
		for i, p := range f.PortPlates {
			out.PortPlates[i] = append(device.PortPlate(nil), p...)
		}
	}
	out.Modules = nil
	return out
}

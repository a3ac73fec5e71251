package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AaronLay10/DefusalEngine/internal/device"
	"github.com/AaronLay10/DefusalEngine/internal/engine"
)

// RegistrationPayload represents a v1 device registration message.
type RegistrationPayload struct {
	Version int          `json:"version" validate:"eq=1"`
	Device  DeviceInfo   `json:"device"`
	Facts   device.Facts `json:"facts"`
	Modules []ModuleInfo `json:"modules" validate:"required,min=1,dive"`
}

// DeviceInfo contains device metadata.
type DeviceInfo struct {
	ID           string `json:"id" validate:"omitempty,max=64"`
	Name         string `json:"name"`
	Firmware     string `json:"firmware"`
	HeartbeatSec int    `json:"heartbeat_sec" validate:"omitempty,min=1,max=3600"`
}

// ModuleInfo describes one module mounted on the device.
type ModuleInfo struct {
	ID   string `json:"id" validate:"required,max=64,excludesall=/#+"`
	Type string `json:"type" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseRegistration parses and validates a registration payload. The device
// ID in the topic wins; a payload naming a different device is rejected.
func ParseRegistration(topicDeviceID string, data []byte) (*RegistrationPayload, error) {
	var payload RegistrationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid registration JSON: %w", err)
	}

	if payload.Version != 1 {
		return nil, fmt.Errorf("unsupported registration version: %d", payload.Version)
	}
	if err := validate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	if payload.Device.ID != "" && payload.Device.ID != topicDeviceID {
		return nil, fmt.Errorf("device.id %q does not match topic device %q", payload.Device.ID, topicDeviceID)
	}
	payload.Device.ID = topicDeviceID

	seen := make(map[string]bool, len(payload.Modules))
	for _, m := range payload.Modules {
		if seen[m.ID] {
			return nil, fmt.Errorf("duplicate module id: %s", m.ID)
		}
		seen[m.ID] = true
	}

	return &payload, nil
}

// DeviceSpec converts the payload to an engine registration.
func (p *RegistrationPayload) DeviceSpec() engine.DeviceSpec {
	spec := engine.DeviceSpec{
		ID:    p.Device.ID,
		Name:  p.Device.Name,
		Facts: p.Facts,
	}
	for _, m := range p.Modules {
		spec.Modules = append(spec.Modules, engine.ModuleSpec{ID: m.ID, Type: device.ModuleType(m.Type)})
	}
	return spec
}

package events

import "fmt"

// Event names.
const (
	ModuleUpdated   = "module.updated"
	ModuleSolved    = "module.solved"
	ModuleFailed    = "module.failed"
	ModuleRefreshed = "module.refreshed"
	ModuleRemoved   = "module.removed"

	StrikeAdded = "strike.added"

	DeviceRegistered   = "device.registered"
	DeviceRemoved      = "device.removed"
	DeviceConnected    = "device.connected"
	DeviceDisconnected = "device.disconnected"
	DeviceInput        = "device.input"
	DeviceError        = "device.error"

	SystemStartup  = "system.startup"
	SystemShutdown = "system.shutdown"
	SystemError    = "system.error"
)

var allowedEvents = map[string]struct{}{
	// module
	ModuleUpdated:   {},
	ModuleSolved:    {},
	ModuleFailed:    {},
	ModuleRefreshed: {},
	ModuleRemoved:   {},

	// strike
	StrikeAdded: {},

	// device
	DeviceRegistered:   {},
	DeviceRemoved:      {},
	DeviceConnected:    {},
	DeviceDisconnected: {},
	DeviceInput:        {},
	DeviceError:        {},

	// system
	SystemStartup:  {},
	SystemShutdown: {},
	SystemError:    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}

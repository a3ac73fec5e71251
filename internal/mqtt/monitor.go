package mqtt

import (
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/DefusalEngine/internal/events"
)

// DeviceHealth tracks one device's heartbeat.
type DeviceHealth struct {
	DeviceID     string
	LastSeen     time.Time
	HeartbeatSec int
	Connected    bool
}

// Monitor tracks device heartbeats and reports connects and disconnects on
// the bus.
type Monitor struct {
	mu          sync.RWMutex
	devices     map[string]*DeviceHealth
	bus         *events.Bus
	defaultBeat int
	tolerance   float64 // multiplier for heartbeat interval (e.g., 2.0 = 2x heartbeat)
	now         func() time.Time
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewMonitor creates a new device monitor. defaultBeat is the heartbeat
// interval in seconds assumed for devices that do not announce one.
func NewMonitor(bus *events.Bus, defaultBeat int, tolerance float64) *Monitor {
	if tolerance <= 1.0 {
		tolerance = 2.0 // default: miss 1 heartbeat
	}
	if defaultBeat <= 0 {
		defaultBeat = 15
	}
	return &Monitor{
		devices:     make(map[string]*DeviceHealth),
		bus:         bus,
		defaultBeat: defaultBeat,
		tolerance:   tolerance,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Register records a registered device as connected.
func (m *Monitor) Register(deviceID string, heartbeatSec int, reconnect bool) {
	if heartbeatSec <= 0 {
		heartbeatSec = m.defaultBeat
	}

	m.mu.Lock()
	m.devices[deviceID] = &DeviceHealth{
		DeviceID:     deviceID,
		LastSeen:     m.now(),
		HeartbeatSec: heartbeatSec,
		Connected:    true,
	}
	m.mu.Unlock()

	m.bus.Emit(events.LevelInfo, events.DeviceConnected, "", map[string]interface{}{
		"device_id":     deviceID,
		"heartbeat_sec": heartbeatSec,
		"reconnect":     reconnect,
	})
}

// Heartbeat refreshes a device's last-seen time. A heartbeat from a device
// that had timed out marks it connected again. Unknown devices are ignored
// until they register.
func (m *Monitor) Heartbeat(deviceID string) bool {
	m.mu.Lock()
	state, ok := m.devices[deviceID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	state.LastSeen = m.now()
	reconnected := !state.Connected
	state.Connected = true
	m.mu.Unlock()

	if reconnected {
		m.bus.Emit(events.LevelInfo, events.DeviceConnected, "heartbeat resumed", map[string]interface{}{
			"device_id": deviceID,
			"reconnect": true,
		})
	}
	return true
}

// Forget stops tracking a device.
func (m *Monitor) Forget(deviceID string) {
	m.mu.Lock()
	delete(m.devices, deviceID)
	m.mu.Unlock()
}

// Start begins the background health check loop.
func (m *Monitor) Start(checkInterval time.Duration) {
	m.wg.Add(1)
	go m.healthCheckLoop(checkInterval)
}

// Stop stops the background health check loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) healthCheckLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Monitor) checkHealth() {
	type lost struct {
		id       string
		lastSeen time.Time
		timeout  time.Duration
	}
	var timedOut []lost

	m.mu.Lock()
	now := m.now()
	for id, state := range m.devices {
		if !state.Connected {
			continue
		}
		// Calculate timeout: heartbeat * tolerance
		timeout := time.Duration(float64(state.HeartbeatSec)*m.tolerance) * time.Second
		if now.Sub(state.LastSeen) > timeout {
			state.Connected = false
			timedOut = append(timedOut, lost{id, state.LastSeen, timeout})
		}
	}
	m.mu.Unlock()

	sort.Slice(timedOut, func(i, j int) bool { return timedOut[i].id < timedOut[j].id })
	for _, l := range timedOut {
		m.bus.Emit(events.LevelWarn, events.DeviceDisconnected, "heartbeat timeout", map[string]interface{}{
			"device_id":   l.id,
			"last_seen":   l.lastSeen.Format(time.RFC3339),
			"timeout_sec": l.timeout.Seconds(),
		})
	}
}

// DeviceState returns the health of a device (for testing/inspection).
func (m *Monitor) DeviceState(deviceID string) *DeviceHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.devices[deviceID]; ok {
		cpy := *state
		return &cpy
	}
	return nil
}

// ConnectedDevices returns the IDs of devices currently considered connected.
func (m *Monitor) ConnectedDevices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, state := range m.devices {
		if state.Connected {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

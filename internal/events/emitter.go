package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Levels used by the engine.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// DeviceID returns the device_id field, if any.
func (e Event) DeviceID() string {
	id, _ := e.Fields["device_id"].(string)
	return id
}

// Sink persists events. The Postgres store implements it.
type Sink interface {
	AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}, deviceID string) error
}

// SetSink sets the sink used for event persistence. A nil sink disables
// persistence.
func (b *Bus) SetSink(s Sink) {
	b.sinkMu.Lock()
	b.sink = s
	b.sinkErrorLogged = false
	b.sinkMu.Unlock()
}

// Emit validates, buffers, persists and broadcasts an event, and returns its
// JSON encoding.
func (b *Bus) Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	b.buffer.Add(e)

	b.sinkMu.RLock()
	sink := b.sink
	b.sinkMu.RUnlock()

	if sink != nil {
		if err := sink.AppendEvent(ts, level, name, msg, fields, e.DeviceID()); err != nil {
			b.sinkFailed(err)
		}
	}

	b.broadcast(e)

	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return out, nil
}

// sinkFailed records the first persistence failure. The system.error event
// goes straight to the ring buffer, not through Emit, so a sink that keeps
// failing cannot recurse.
func (b *Bus) sinkFailed(err error) {
	b.sinkMu.Lock()
	if b.sinkErrorLogged {
		b.sinkMu.Unlock()
		return
	}
	b.sinkErrorLogged = true
	b.sinkMu.Unlock()

	b.buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     LevelError,
		Name:      SystemError,
		Message:   "event sink append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

func SetSink(s Sink) { defaultBus.SetSink(s) }

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	return defaultBus.Emit(level, name, msg, fields)
}

package engine

import (
	"context"
	"log"
	"time"

	"github.com/AaronLay10/DefusalEngine/internal/events"
)

// Reactor refreshes dependent modules after every committed change to a
// device. It drains the engine's dirty-device set rather than the event bus,
// so a busy bus can never cost a refresh. Refreshes do not mark devices
// dirty, so they never cascade.
type Reactor struct {
	engine  *Engine
	timeout time.Duration
}

// NewReactor creates a reactor for the engine.
func NewReactor(e *Engine) *Reactor {
	return &Reactor{engine: e, timeout: 5 * time.Second}
}

// Start processes dirty devices in a goroutine. Changes committed before
// Start are picked up on the first pass. The returned channel is closed when
// processing stops.
func (r *Reactor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ctx)
	}()
	return done
}

func (r *Reactor) run(ctx context.Context) {
	dirty := r.engine.dirty
	for {
		for _, deviceID := range dirty.Drain() {
			if ctx.Err() != nil {
				return
			}
			r.refresh(ctx, deviceID)
		}

		select {
		case <-ctx.Done():
			return
		case <-dirty.Wait():
		}
	}
}

func (r *Reactor) refresh(ctx context.Context, deviceID string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.engine.RefreshDevice(ctx, deviceID); err != nil {
		log.Printf("refresh of device %s failed: %v", deviceID, err)
		r.engine.emit(events.LevelError, events.SystemError, "refresh failed", map[string]interface{}{
			"device_id": deviceID,
			"error":     err.Error(),
		})
	}
}

package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// dirtySet collects devices with committed changes that the reactor has not
// yet refreshed. Marking never blocks and never drops: a device marked twice
// before a drain is refreshed once.
type dirtySet struct {
	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	signal  chan struct{}
	backlog prometheus.Gauge
}

func newDirtySet(backlog prometheus.Gauge) *dirtySet {
	return &dirtySet{
		pending: make(map[string]struct{}),
		signal:  make(chan struct{}, 1),
		backlog: backlog,
	}
}

// Mark records deviceID and wakes the reactor.
func (d *dirtySet) Mark(deviceID string) {
	d.mu.Lock()
	if _, ok := d.pending[deviceID]; !ok {
		d.pending[deviceID] = struct{}{}
		d.order = append(d.order, deviceID)
		d.backlog.Set(float64(len(d.order)))
	}
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Drain returns the marked devices in marking order and clears the set.
func (d *dirtySet) Drain() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.order
	d.order = nil
	d.pending = make(map[string]struct{})
	d.backlog.Set(0)
	return out
}

// Len returns the number of devices waiting for a refresh.
func (d *dirtySet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Wait returns a channel that receives after a Mark.
func (d *dirtySet) Wait() <-chan struct{} {
	return d.signal
}

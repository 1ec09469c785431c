// Package sim is an in-memory radio medium. Simulated peripherals advertise
// real AD payloads and expose the pairing GATT table; simulated centrals
// scan, connect, subscribe and write through the radio interfaces with
// configurable delays and injected faults.
package sim

import (
	"sync"

	"github.com/google/uuid"
	"github.com/user/aurapair/radio"
)

// Air is the shared medium that devices advertise on and connect through.
type Air struct {
	sim   *simulator
	trace *Trace

	mu      sync.RWMutex
	devices map[radio.PeerID]*Device
	order   []*Device // creation order, so scans report devices deterministically
}

// NewAir creates a medium. A nil config uses DefaultSimulationConfig.
func NewAir(config *SimulationConfig) *Air {
	return &Air{
		sim:     newSimulator(config),
		trace:   &Trace{},
		devices: make(map[radio.PeerID]*Device),
	}
}

// Trace returns the operation trace shared by every device on this medium.
func (a *Air) Trace() *Trace {
	return a.trace
}

// NewDevice adds a peripheral. An empty id gets a random hardware UUID.
func (a *Air) NewDevice(id string) *Device {
	if id == "" {
		id = uuid.New().String()
	}
	d := newDevice(a, radio.PeerID(id))

	a.mu.Lock()
	a.devices[d.id] = d
	a.order = append(a.order, d)
	a.mu.Unlock()
	return d
}

// NewCentral creates a scanning/connecting adapter on this medium.
func (a *Air) NewCentral(id string) *Central {
	if id == "" {
		id = uuid.New().String()
	}
	return &Central{
		air:     a,
		id:      radio.PeerID(id),
		powered: true,
		scans:   make(map[*scan]struct{}),
	}
}

func (a *Air) device(id radio.PeerID) (*Device, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.devices[id]
	return d, ok
}

func (a *Air) snapshot() []*Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Device, len(a.order))
	copy(out, a.order)
	return out
}

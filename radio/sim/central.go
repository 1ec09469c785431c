package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/radio"
)

// ErrConnectionFailed is returned when the simulator drops a connection attempt.
var ErrConnectionFailed = errors.New("sim: connection failed (simulated interference)")

// Faults injects failures into a Central's operations. Zero value means none.
type Faults struct {
	ConnectErr   error
	DiscoverErr  error
	SubscribeErr error
	WriteErr     error

	// HoldConnect makes Connect block until its context is done.
	HoldConnect bool
}

// Central is a simulated scanning/connecting adapter. It implements
// radio.Adapter.
type Central struct {
	air *Air
	id  radio.PeerID

	mu      sync.Mutex
	powered bool
	faults  Faults
	scans   map[*scan]struct{}
}

type scan struct {
	cb   radio.ScanCallback
	stop chan struct{}
	once sync.Once
}

// ID returns the central's own identifier, as peripherals see it.
func (c *Central) ID() radio.PeerID {
	return c.id
}

// SetPowered turns the simulated adapter on or off. A powered-off adapter
// refuses to scan.
func (c *Central) SetPowered(on bool) {
	c.mu.Lock()
	c.powered = on
	c.mu.Unlock()
}

// SetFaults replaces the injected faults for subsequent operations.
func (c *Central) SetFaults(f Faults) {
	c.mu.Lock()
	c.faults = f
	c.mu.Unlock()
}

// InjectScanError reports err to every active scan without stopping it.
func (c *Central) InjectScanError(err error) {
	c.mu.Lock()
	scans := make([]*scan, 0, len(c.scans))
	for s := range c.scans {
		scans = append(scans, s)
	}
	c.mu.Unlock()

	for _, s := range scans {
		s.cb.OnScanFailed(err)
	}
}

// Scanning reports whether any scan is active.
func (c *Central) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scans) > 0
}

// StartScan delivers every advertising device once per advertising interval
// until stopped or ctx is done.
func (c *Central) StartScan(ctx context.Context, cb radio.ScanCallback) (func(), error) {
	c.mu.Lock()
	if !c.powered {
		c.mu.Unlock()
		return nil, radio.ErrPoweredOff
	}
	s := &scan{cb: cb, stop: make(chan struct{})}
	c.scans[s] = struct{}{}
	c.mu.Unlock()

	c.air.trace.record(OpScanStart, c.id)
	logger.Trace("sim", "%s scan started", logger.Short(string(c.id)))

	stop := func() {
		s.once.Do(func() {
			close(s.stop)
			c.mu.Lock()
			delete(c.scans, s)
			c.mu.Unlock()
			c.air.trace.record(OpScanStop, c.id)
		})
	}

	go c.runScan(ctx, s, stop)
	return stop, nil
}

func (c *Central) runScan(ctx context.Context, s *scan, stop func()) {
	ticker := time.NewTicker(c.air.sim.advertisingInterval())
	defer ticker.Stop()

	for {
		for _, d := range c.air.snapshot() {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				stop()
				return
			default:
			}
			if d.isAdvertising() {
				s.cb.OnScanResult(d.advertisement(c.air.sim.rssi()))
			}
		}

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			stop()
			return
		case <-ticker.C:
		}
	}
}

// Connect opens a connection to an advertising device.
func (c *Central) Connect(ctx context.Context, id radio.PeerID) (radio.Peer, error) {
	c.mu.Lock()
	faults := c.faults
	c.mu.Unlock()

	d, ok := c.air.device(id)
	if !ok {
		return nil, fmt.Errorf("sim: unknown peer %s", id)
	}

	if faults.HoldConnect {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := sleepCtx(ctx, c.air.sim.connectionDelay()); err != nil {
		return nil, err
	}
	if faults.ConnectErr != nil {
		return nil, faults.ConnectErr
	}
	if !d.isAdvertising() {
		return nil, fmt.Errorf("sim: peer %s is not connectable", id)
	}
	if !c.air.sim.shouldConnectionSucceed() {
		return nil, ErrConnectionFailed
	}

	p := newPeer(c, d, faults)
	d.attach(c.id, p)
	c.air.trace.record(OpConnect, id)
	logger.Debug("sim", "%s connected to %s", logger.Short(string(c.id)), logger.Short(string(id)))
	return p, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

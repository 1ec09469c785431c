package sim

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/aurapair/radio"
	"github.com/user/aurapair/radio/gatt"
)

type notification struct {
	charUUID string
	value    []byte
}

// peer is the central's handle on one connected Device. Notifications are
// delivered in order on a single goroutine per connection.
type peer struct {
	central *Central
	device  *Device
	faults  Faults

	mu        sync.Mutex
	connected bool
	handlers  map[string]func([]byte)

	queue chan notification
	done  chan struct{}
	once  sync.Once
}

func newPeer(c *Central, d *Device, faults Faults) *peer {
	p := &peer{
		central:   c,
		device:    d,
		faults:    faults,
		connected: true,
		handlers:  make(map[string]func([]byte)),
		queue:     make(chan notification, 64),
		done:      make(chan struct{}),
	}
	go p.deliver()
	return p
}

func (p *peer) ID() radio.PeerID {
	return p.device.id
}

func (p *peer) DiscoverCharacteristics(ctx context.Context) ([]radio.Characteristic, error) {
	if err := p.checkConnected(); err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, p.central.air.sim.discoveryDelay()); err != nil {
		return nil, err
	}
	if p.faults.DiscoverErr != nil {
		return nil, p.faults.DiscoverErr
	}
	p.central.air.trace.record(OpDiscover, p.device.id)
	return p.device.characteristics(), nil
}

func (p *peer) Subscribe(ctx context.Context, charUUID string, onValue func([]byte)) error {
	if err := p.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.faults.SubscribeErr != nil {
		return p.faults.SubscribeErr
	}
	c, ok := radio.FindCharacteristic(p.device.characteristics(), charUUID)
	if !ok || !hasProperty(c, "notify") {
		return fmt.Errorf("subscribe %s: %w", charUUID, radio.ErrCharacteristicNotFound)
	}

	p.mu.Lock()
	p.handlers[strings.ToLower(charUUID)] = onValue
	p.mu.Unlock()

	if err := p.device.writeCCCD(p.central.id, charUUID, gatt.EncodeCCCDValue(true, false)); err != nil {
		return fmt.Errorf("write CCCD: %w", err)
	}
	p.central.air.trace.record(OpSubscribe, p.device.id)
	return nil
}

func (p *peer) Write(ctx context.Context, charUUID string, value []byte) error {
	if err := p.checkConnected(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.faults.WriteErr != nil {
		return p.faults.WriteErr
	}
	c, ok := radio.FindCharacteristic(p.device.characteristics(), charUUID)
	if !ok || !hasProperty(c, "write") {
		return fmt.Errorf("write %s: %w", charUUID, radio.ErrCharacteristicNotFound)
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	p.central.air.trace.record(OpWrite, p.device.id)

	// The write is acknowledged before the peripheral application sees it.
	go p.device.dispatchWrite(p.central.id, charUUID, buf)
	return nil
}

func (p *peer) Disconnect() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.connected = false
		p.mu.Unlock()
		close(p.done)
		p.device.detach(p.central.id)
		p.central.air.trace.record(OpDisconnect, p.device.id)
	})
	return nil
}

func (p *peer) checkConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return radio.ErrNotConnected
	}
	return nil
}

func (p *peer) enqueue(charUUID string, value []byte) {
	select {
	case p.queue <- notification{charUUID: charUUID, value: value}:
	case <-p.done:
	}
}

func (p *peer) deliver() {
	for {
		select {
		case <-p.done:
			return
		case n := <-p.queue:
			p.mu.Lock()
			handler := p.handlers[strings.ToLower(n.charUUID)]
			p.mu.Unlock()
			if handler != nil {
				handler(n.value)
			}
		}
	}
}

func hasProperty(c radio.Characteristic, prop string) bool {
	for _, p := range c.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

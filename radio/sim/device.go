package sim

import (
	"fmt"
	"sync"

	"github.com/user/aurapair/logger"
	"github.com/user/aurapair/radio"
	"github.com/user/aurapair/radio/advertising"
	"github.com/user/aurapair/radio/gatt"
)

// Device is a simulated peripheral exposing the pairing service.
// It implements radio.Peripheral.
type Device struct {
	air *Air
	id  radio.PeerID

	mu           sync.RWMutex
	advertising  bool
	advData      []byte
	scanResponse []byte
	table        *gatt.Table
	writeHandler func(central radio.PeerID, charUUID string, value []byte)
	links        map[radio.PeerID]*link // connected centrals
}

// link is the peripheral's view of one connection.
type link struct {
	cccd *gatt.CCCDManager
	peer *peer
}

func newDevice(air *Air, id radio.PeerID) *Device {
	return &Device{
		air: air,
		id:  id,
		table: gatt.Build(gatt.PairingService()),
		links: make(map[radio.PeerID]*link),
	}
}

// ID returns the device's hardware identifier.
func (d *Device) ID() radio.PeerID {
	return d.id
}

// Advertise starts broadcasting. An empty name advertises without a local
// name AD structure; the pairing service UUID goes in the scan response.
func (d *Device) Advertise(name string) error {
	structures := []advertising.ADStructure{
		advertising.Flags(advertising.FlagLEGeneralDiscoverableMode | advertising.FlagBREDRNotSupported),
	}
	if name != "" {
		structures = append(structures, advertising.CompleteLocalName(name))
	}
	advData, err := advertising.Encode(structures)
	if err != nil {
		return fmt.Errorf("encode advertising data: %w", err)
	}

	svc, err := advertising.ServiceUUIDs128(radio.PairingServiceUUID)
	if err != nil {
		return err
	}
	scanResponse, err := advertising.Encode([]advertising.ADStructure{svc})
	if err != nil {
		return fmt.Errorf("encode scan response: %w", err)
	}

	d.mu.Lock()
	d.advertising = true
	d.advData = advData
	d.scanResponse = scanResponse
	d.mu.Unlock()

	logger.Debug("sim", "%s advertising as %q", logger.Short(string(d.id)), name)
	return nil
}

// StopAdvertising stops broadcasting. Existing connections stay up.
func (d *Device) StopAdvertising() {
	d.mu.Lock()
	d.advertising = false
	d.mu.Unlock()
}

// HandleWrites installs the handler for characteristic writes from centrals.
func (d *Device) HandleWrites(handler func(central radio.PeerID, charUUID string, value []byte)) {
	d.mu.Lock()
	d.writeHandler = handler
	d.mu.Unlock()
}

// RemoveCharacteristic drops a characteristic from the GATT table, to
// simulate a peer running an incompatible service.
func (d *Device) RemoveCharacteristic(charUUID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table.Remove(charUUID)
}

// Notify sends a notification to a connected central. The central must have
// enabled notifications through the characteristic's CCCD.
func (d *Device) Notify(central radio.PeerID, charUUID string, value []byte) error {
	d.mu.RLock()
	l, ok := d.links[central]
	entry, known := d.table.Lookup(charUUID)
	d.mu.RUnlock()

	if !ok {
		return radio.ErrNotConnected
	}
	if !known || entry.CCCDHandle == 0 {
		return radio.ErrCharacteristicNotFound
	}
	if !l.cccd.IsNotifyEnabled(charUUID) {
		return radio.ErrNotSubscribed
	}

	d.air.trace.record(OpNotify, central)
	buf := make([]byte, len(value))
	copy(buf, value)
	l.peer.enqueue(charUUID, buf)
	return nil
}

// ConnectedCentrals returns the centrals currently connected to this device.
func (d *Device) ConnectedCentrals() []radio.PeerID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]radio.PeerID, 0, len(d.links))
	for id := range d.links {
		out = append(out, id)
	}
	return out
}

func (d *Device) isAdvertising() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.advertising
}

// advertisement builds what a scanner sees: advertising data merged with
// the scan response.
func (d *Device) advertisement(rssi int) radio.Advertisement {
	d.mu.RLock()
	payload := append(append([]byte{}, d.advData...), d.scanResponse...)
	d.mu.RUnlock()

	adv := radio.Advertisement{ID: d.id, RSSI: rssi}
	structures, err := advertising.Decode(payload)
	if err != nil {
		logger.Warn("sim", "Dropping malformed advertisement from %s: %v", logger.Short(string(d.id)), err)
		return adv
	}
	adv.Name, adv.HasName = advertising.LocalName(structures)
	return adv
}

func (d *Device) characteristics() []radio.Characteristic {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.table.Characteristics()
}

func (d *Device) attach(central radio.PeerID, p *peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links[central] = &link{cccd: gatt.NewCCCDManager(), peer: p}
}

func (d *Device) detach(central radio.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.links[central]; ok {
		l.cccd.Clear()
		delete(d.links, central)
	}
}

func (d *Device) writeCCCD(central radio.PeerID, charUUID string, value []byte) error {
	d.mu.RLock()
	l, ok := d.links[central]
	entry, known := d.table.Lookup(charUUID)
	d.mu.RUnlock()
	if !ok {
		return radio.ErrNotConnected
	}
	if !known || entry.CCCDHandle == 0 {
		return radio.ErrCharacteristicNotFound
	}
	return l.cccd.SetSubscription(charUUID, value)
}

func (d *Device) dispatchWrite(central radio.PeerID, charUUID string, value []byte) {
	d.mu.RLock()
	handler := d.writeHandler
	d.mu.RUnlock()
	if handler != nil {
		handler(central, charUUID, value)
	}
}

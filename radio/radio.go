// Package radio defines the boundary between the pairing handshake and the
// low-power radio stack. Backends (radio/sim, radio/bluez) implement these
// interfaces; the handshake package only ever talks to them.
package radio

import (
	"context"
	"errors"
	"strings"
)

// Pairing GATT table. The initiator writes requests to RequestCharUUID and
// receives approvals as notifications on ResponseCharUUID.
const (
	PairingServiceUUID = "7a3c0001-5e1b-4d8e-9f2a-6c4b1d0e8f11"
	RequestCharUUID    = "7a3c0002-5e1b-4d8e-9f2a-6c4b1d0e8f11" // Write
	ResponseCharUUID   = "7a3c0003-5e1b-4d8e-9f2a-6c4b1d0e8f11" // Notify
	CCCDUUID           = "00002902-0000-1000-8000-00805f9b34fb"
)

var (
	ErrNotConnected           = errors.New("radio: peer not connected")
	ErrCharacteristicNotFound = errors.New("radio: characteristic not found")
	ErrNotSubscribed          = errors.New("radio: central not subscribed")
	ErrPoweredOff             = errors.New("radio: adapter powered off")
)

// PeerID is an opaque handle for a remote device (a hardware UUID in the
// simulator, the device address on BlueZ).
type PeerID string

// Advertisement is one observed advertising frame. It is only valid for the
// duration of the callback that receives it.
type Advertisement struct {
	ID      PeerID
	Name    string
	HasName bool
	RSSI    int
}

// Characteristic is a GATT characteristic exposed by a connected peer.
type Characteristic struct {
	ServiceUUID string
	UUID        string
	Properties  []string
}

// ScanCallback receives scan events. Calls may arrive on any goroutine and
// may still arrive shortly after the scan was stopped.
type ScanCallback interface {
	OnScanResult(adv Advertisement)
	OnScanFailed(err error)
}

// Adapter is the central-role side of the radio.
type Adapter interface {
	// StartScan begins continuous scanning. An error means the radio stack
	// cannot scan at all. The returned stop function is idempotent.
	StartScan(ctx context.Context, cb ScanCallback) (stop func(), err error)

	// Connect opens a connection to a previously advertised peer.
	Connect(ctx context.Context, id PeerID) (Peer, error)
}

// Peer is one connected remote device. A Peer is owned by exactly one
// session; no other component reads or writes through it.
type Peer interface {
	ID() PeerID
	DiscoverCharacteristics(ctx context.Context) ([]Characteristic, error)
	// Subscribe returns once notifications are enabled on the peer.
	Subscribe(ctx context.Context, charUUID string, onValue func([]byte)) error
	// Write returns once the peer acknowledged the write.
	Write(ctx context.Context, charUUID string, value []byte) error
	Disconnect() error
}

// Peripheral is the advertising side, used by the responder.
type Peripheral interface {
	Advertise(name string) error
	StopAdvertising()
	HandleWrites(handler func(central PeerID, charUUID string, value []byte))
	Notify(central PeerID, charUUID string, value []byte) error
}

// FindCharacteristic returns the characteristic with the given UUID.
func FindCharacteristic(chars []Characteristic, uuid string) (Characteristic, bool) {
	for _, c := range chars {
		if strings.EqualFold(c.UUID, uuid) {
			return c, true
		}
	}
	return Characteristic{}, false
}

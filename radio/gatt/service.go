package gatt

import (
	"strings"

	"github.com/user/aurapair/radio"
)

// Characteristic property bits
const (
	PropRead                 uint8 = 0x02
	PropWriteWithoutResponse uint8 = 0x04
	PropWrite                uint8 = 0x08
	PropNotify               uint8 = 0x10
	PropIndicate             uint8 = 0x20
)

// Service is a high-level GATT service definition.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Characteristic is a high-level GATT characteristic definition.
type Characteristic struct {
	UUID       string
	Properties uint8
}

// Entry is one characteristic in a built Table.
type Entry struct {
	ServiceUUID       string
	UUID              string
	Properties        uint8
	DeclarationHandle uint16
	ValueHandle       uint16
	CCCDHandle        uint16 // 0 when the characteristic cannot notify or indicate
}

// Table is an attribute table with handles assigned in declaration order:
// service declaration, then per characteristic its declaration, its value
// and, for notify/indicate characteristics, a CCCD.
type Table struct {
	entries    []Entry
	nextHandle uint16
}

// Build lays out services into a Table starting at handle 0x0001.
func Build(services ...Service) *Table {
	t := &Table{nextHandle: 0x0001}
	for _, svc := range services {
		t.nextHandle++ // service declaration
		for _, c := range svc.Characteristics {
			e := Entry{
				ServiceUUID:       strings.ToLower(svc.UUID),
				UUID:              strings.ToLower(c.UUID),
				Properties:        c.Properties,
				DeclarationHandle: t.nextHandle,
				ValueHandle:       t.nextHandle + 1,
			}
			t.nextHandle += 2
			if c.Properties&(PropNotify|PropIndicate) != 0 {
				e.CCCDHandle = t.nextHandle
				t.nextHandle++
			}
			t.entries = append(t.entries, e)
		}
	}
	return t
}

// PairingService is the service every pairing host exposes.
func PairingService() Service {
	return Service{
		UUID: radio.PairingServiceUUID,
		Characteristics: []Characteristic{
			{UUID: radio.RequestCharUUID, Properties: PropWrite},
			{UUID: radio.ResponseCharUUID, Properties: PropNotify},
		},
	}
}

// Lookup finds a characteristic by UUID.
func (t *Table) Lookup(uuid string) (Entry, bool) {
	for _, e := range t.entries {
		if strings.EqualFold(e.UUID, uuid) {
			return e, true
		}
	}
	return Entry{}, false
}

// Remove drops a characteristic. Handles of the others are unchanged.
func (t *Table) Remove(uuid string) {
	kept := t.entries[:0]
	for _, e := range t.entries {
		if !strings.EqualFold(e.UUID, uuid) {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// Characteristics returns what a client sees after discovery.
func (t *Table) Characteristics() []radio.Characteristic {
	out := make([]radio.Characteristic, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, radio.Characteristic{
			ServiceUUID: e.ServiceUUID,
			UUID:        e.UUID,
			Properties:  PropertyNames(e.Properties),
		})
	}
	return out
}

// PropertyNames renders property bits the way BlueZ reports them in the
// GattCharacteristic1 Flags property.
func PropertyNames(props uint8) []string {
	var names []string
	if props&PropRead != 0 {
		names = append(names, "read")
	}
	if props&PropWriteWithoutResponse != 0 {
		names = append(names, "write-without-response")
	}
	if props&PropWrite != 0 {
		names = append(names, "write")
	}
	if props&PropNotify != 0 {
		names = append(names, "notify")
	}
	if props&PropIndicate != 0 {
		names = append(names, "indicate")
	}
	return names
}

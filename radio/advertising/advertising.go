// Package advertising encodes and decodes BLE advertising data (the AD
// structure list carried in ADV_IND and SCAN_RSP payloads).
package advertising

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AD types used by the pairing advertiser.
const (
	ADTypeFlags                        = 0x01
	ADTypeIncomplete128BitServiceUUIDs = 0x06
	ADTypeComplete128BitServiceUUIDs   = 0x07
	ADTypeShortenedLocalName           = 0x08
	ADTypeCompleteLocalName            = 0x09
	ADTypeTxPowerLevel                 = 0x0A
)

// Advertising flags
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

// MaxDataLen is the legacy advertising payload limit.
const MaxDataLen = 31

var ErrTooLong = errors.New("advertising data exceeds 31 bytes")

// ADStructure is one length-type-value entry. The length byte on the wire
// counts the type byte plus the data.
type ADStructure struct {
	Type byte
	Data []byte
}

// Encode serializes structures into a single advertising payload.
func Encode(structures []ADStructure) ([]byte, error) {
	var buf []byte
	for _, s := range structures {
		length := 1 + len(s.Data)
		if length > 255 {
			return nil, fmt.Errorf("AD structure 0x%02X too long: %d bytes", s.Type, length)
		}
		buf = append(buf, byte(length), s.Type)
		buf = append(buf, s.Data...)
	}
	if len(buf) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d", ErrTooLong, len(buf))
	}
	return buf, nil
}

// Decode splits an advertising payload into structures. A zero length byte
// marks trailing padding.
func Decode(data []byte) ([]ADStructure, error) {
	var structures []ADStructure
	offset := 0
	for offset < len(data) {
		length := int(data[offset])
		if length == 0 {
			break
		}
		offset++
		if offset+length > len(data) {
			return nil, fmt.Errorf("AD structure length exceeds data: length=%d, remaining=%d", length, len(data)-offset)
		}
		adType := data[offset]
		value := make([]byte, length-1)
		copy(value, data[offset+1:offset+length])
		offset += length

		structures = append(structures, ADStructure{Type: adType, Data: value})
	}
	return structures, nil
}

// Flags builds a flags structure.
func Flags(flags byte) ADStructure {
	return ADStructure{Type: ADTypeFlags, Data: []byte{flags}}
}

// CompleteLocalName builds a complete local name structure.
func CompleteLocalName(name string) ADStructure {
	return ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(name)}
}

// TxPowerLevel builds a TX power structure.
func TxPowerLevel(dBm int8) ADStructure {
	return ADStructure{Type: ADTypeTxPowerLevel, Data: []byte{byte(dBm)}}
}

// ServiceUUIDs128 builds a complete list of 128-bit service UUIDs. UUIDs are
// given in their canonical string form and stored little-endian.
func ServiceUUIDs128(uuids ...string) (ADStructure, error) {
	data := make([]byte, 0, 16*len(uuids))
	for _, u := range uuids {
		raw, err := parseUUID128(u)
		if err != nil {
			return ADStructure{}, err
		}
		for i := 15; i >= 0; i-- {
			data = append(data, raw[i])
		}
	}
	return ADStructure{Type: ADTypeComplete128BitServiceUUIDs, Data: data}, nil
}

// LocalName returns the complete or shortened local name, if present. A
// present but empty name still reports true.
func LocalName(structures []ADStructure) (string, bool) {
	for _, s := range structures {
		if s.Type == ADTypeCompleteLocalName || s.Type == ADTypeShortenedLocalName {
			return string(s.Data), true
		}
	}
	return "", false
}

// ServiceUUIDs returns all 128-bit service UUIDs in canonical string form.
func ServiceUUIDs(structures []ADStructure) []string {
	var out []string
	for _, s := range structures {
		if s.Type != ADTypeComplete128BitServiceUUIDs && s.Type != ADTypeIncomplete128BitServiceUUIDs {
			continue
		}
		if len(s.Data)%16 != 0 {
			continue
		}
		for i := 0; i < len(s.Data); i += 16 {
			var raw [16]byte
			for j := 0; j < 16; j++ {
				raw[j] = s.Data[i+15-j]
			}
			out = append(out, formatUUID128(raw))
		}
	}
	return out
}

// TxPower returns the advertised TX power in dBm.
func TxPower(structures []ADStructure) (int8, bool) {
	for _, s := range structures {
		if s.Type == ADTypeTxPowerLevel && len(s.Data) == 1 {
			return int8(s.Data[0]), true
		}
	}
	return 0, false
}

func parseUUID128(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid 128-bit UUID %q: %w", s, err)
	}
	return u, nil
}

func formatUUID128(raw [16]byte) string {
	return uuid.UUID(raw).String()
}

package advertising

import (
	"errors"
	"strings"
	"testing"
)

const pairingService = "7a3c0001-5e1b-4d8e-9f2a-6c4b1d0e8f11"

func TestEncodeDecode(t *testing.T) {
	svc, err := ServiceUUIDs128(pairingService)
	if err != nil {
		t.Fatalf("ServiceUUIDs128 failed: %v", err)
	}

	data, err := Encode([]ADStructure{
		Flags(FlagLEGeneralDiscoverableMode | FlagBREDRNotSupported),
		svc,
		CompleteLocalName("Host_42"),
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != 3+18+9 {
		t.Errorf("Expected 30 bytes, got %d", len(data))
	}

	structures, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(structures) != 3 {
		t.Fatalf("Expected 3 structures, got %d", len(structures))
	}

	name, ok := LocalName(structures)
	if !ok || name != "Host_42" {
		t.Errorf("LocalName = %q, %v", name, ok)
	}

	uuids := ServiceUUIDs(structures)
	if len(uuids) != 1 || uuids[0] != pairingService {
		t.Errorf("ServiceUUIDs = %v", uuids)
	}
}

func TestEncodeTooLong(t *testing.T) {
	_, err := Encode([]ADStructure{
		Flags(FlagLEGeneralDiscoverableMode),
		CompleteLocalName(strings.Repeat("x", 29)),
	})
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("Expected ErrTooLong, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{0x05, ADTypeCompleteLocalName, 'a'}); err == nil {
		t.Fatal("Expected error for truncated structure")
	}
}

func TestDecodeStopsAtPadding(t *testing.T) {
	structures, err := Decode([]byte{0x02, ADTypeFlags, 0x06, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(structures) != 1 {
		t.Errorf("Expected 1 structure before padding, got %d", len(structures))
	}
}

func TestLocalNameAbsent(t *testing.T) {
	structures := []ADStructure{Flags(FlagLEGeneralDiscoverableMode), TxPowerLevel(-4)}
	if _, ok := LocalName(structures); ok {
		t.Error("Expected no local name")
	}
	power, ok := TxPower(structures)
	if !ok || power != -4 {
		t.Errorf("TxPower = %d, %v", power, ok)
	}
}

func TestServiceUUIDs128Invalid(t *testing.T) {
	if _, err := ServiceUUIDs128("not-a-uuid"); err == nil {
		t.Fatal("Expected error for invalid UUID")
	}
}
